package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/anysoft/askql/internal/query"
	"github.com/anysoft/askql/internal/storage"
)

const ParquetContentType = "application/vnd.apache.parquet"

// archivedCell is one cell of a result in long format. Null cells keep a nil
// Value so they stay distinguishable from empty text.
type archivedCell struct {
	RowIndex    int64   `parquet:"row_index"`
	ColumnIndex int32   `parquet:"column_index"`
	Column      string  `parquet:"column"`
	Kind        string  `parquet:"kind"`
	Value       *string `parquet:"value,optional"`
}

// Archive keeps full query results as Parquet objects next to the history rows.
type Archive struct {
	store storage.ResultStore
	newID func() string
}

func NewArchive(store storage.ResultStore) *Archive {
	return &Archive{store: store, newID: uuid.NewString}
}

// Put encodes result and stores it, returning the object key.
func (a *Archive) Put(ctx context.Context, userID int64, createdAt time.Time, result query.Result) (string, error) {
	data, err := EncodeParquet(result)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildResultArchivePath(userID, createdAt, a.newID())
	if err != nil {
		return "", fmt.Errorf("build archive path: %w", err)
	}
	if err := a.store.Put(ctx, key, data, ParquetContentType); err != nil {
		return "", fmt.Errorf("put result archive: %w", err)
	}
	return key, nil
}

// Open returns the archived object for key, refusing keys owned by another
// user. A missing object is reported as ErrNotFound.
func (a *Archive) Open(ctx context.Context, userID int64, key string) (storage.Object, error) {
	owner, err := storage.ResultArchiveOwner(key)
	if err != nil || owner != userID {
		return storage.Object{}, ErrNotFound
	}
	object, err := a.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.Object{}, ErrNotFound
		}
		return storage.Object{}, fmt.Errorf("open result archive: %w", err)
	}
	if object.ContentType == "" {
		object.ContentType = ParquetContentType
	}
	return object, nil
}

func (a *Archive) Delete(ctx context.Context, key string) error {
	if err := a.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete result archive: %w", err)
	}
	return nil
}

// EncodeParquet writes result as one Parquet row per cell.
func EncodeParquet(result query.Result) ([]byte, error) {
	cells := make([]archivedCell, 0, len(result.Rows)*len(result.Columns))
	for rowIndex, row := range result.Rows {
		for columnIndex, column := range result.Columns {
			value := row[column]
			cell := archivedCell{
				RowIndex:    int64(rowIndex),
				ColumnIndex: int32(columnIndex),
				Column:      column,
				Kind:        value.Kind().String(),
			}
			if !value.IsNull() {
				text := value.String()
				cell.Value = &text
			}
			cells = append(cells, cell)
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[archivedCell](buf)
	if _, err := writer.Write(cells); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
