package history

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/anysoft/askql/internal/query"
	"github.com/anysoft/askql/internal/storage"
)

type memoryHistoryStore struct {
	mu        sync.Mutex
	records   []Record
	insertErr error
}

func (m *memoryHistoryStore) Insert(_ context.Context, record NewRecord) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return Record{}, m.insertErr
	}
	stored := Record{
		ID:              int64(len(m.records) + 1),
		UserID:          record.UserID,
		Question:        record.Question,
		SQL:             record.SQL,
		Result:          record.Result,
		ResultObjectKey: record.ResultObjectKey,
		CreatedAt:       record.CreatedAt,
	}
	m.records = append(m.records, stored)
	return stored, nil
}

func (m *memoryHistoryStore) ListRecent(_ context.Context, userID int64, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].UserID == userID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *memoryHistoryStore) Get(_ context.Context, userID, id int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.ID == id && record.UserID == userID {
			return record, nil
		}
	}
	return Record{}, ErrNotFound
}

type memoryResultStore struct {
	mu      sync.Mutex
	objects     map[string][]byte
	contentType string
	putErr      error
}

func newMemoryResultStore() *memoryResultStore {
	return &memoryResultStore{objects: map[string][]byte{}}
}

func (m *memoryResultStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.contentType = contentType
	return nil
}

func (m *memoryResultStore) Open(_ context.Context, key string) (storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrObjectNotFound
	}
	return storage.Object{Body: io.NopCloser(bytes.NewReader(data)), Size: int64(len(data))}, nil
}

func (m *memoryResultStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func sampleResult() query.Result {
	return query.Result{
		Columns: []string{"id", "name"},
		Rows: []query.Row{
			{"id": query.Int(1), "name": query.Text("Ada")},
			{"id": query.Int(2), "name": query.Null()},
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
}

func TestRecordStoresEncodedResult(t *testing.T) {
	store := &memoryHistoryStore{}
	recorder := NewRecorder(store, nil, nil)
	recorder.now = fixedClock

	err := recorder.Record(context.Background(), Entry{UserID: 7, Question: "who?", SQL: "SELECT id, name FROM customers", Result: sampleResult()})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("records = %d", len(store.records))
	}
	record := store.records[0]
	if record.UserID != 7 || record.Question != "who?" || !record.CreatedAt.Equal(fixedClock()) {
		t.Fatalf("record = %+v", record)
	}
	want := `{"columns":["id","name"],"rows":[{"id":1,"name":"Ada"},{"id":2,"name":null}],"truncated":false}`
	if string(record.Result) != want {
		t.Fatalf("result = %s, want %s", record.Result, want)
	}
	if record.ResultObjectKey != "" {
		t.Fatalf("ResultObjectKey = %q, want empty without archive", record.ResultObjectKey)
	}
}

func TestRecordReturnsPersistenceErrorOnInsertFailure(t *testing.T) {
	store := &memoryHistoryStore{insertErr: errors.New("db down")}
	objects := newMemoryResultStore()
	recorder := NewRecorder(store, NewArchive(objects), nil)

	err := recorder.Record(context.Background(), Entry{UserID: 1, Question: "q", SQL: "SELECT 1", Result: sampleResult()})
	var persistenceErr *PersistenceError
	if !errors.As(err, &persistenceErr) || persistenceErr.Op != "insert" {
		t.Fatalf("Record() error = %v, want insert *PersistenceError", err)
	}
	if len(objects.objects) != 0 {
		t.Fatalf("orphaned archives = %d, want 0", len(objects.objects))
	}
}

func TestRecordArchivesResultAsParquet(t *testing.T) {
	store := &memoryHistoryStore{}
	objects := newMemoryResultStore()
	archive := NewArchive(objects)
	archive.newID = func() string { return "fixed-id" }
	recorder := NewRecorder(store, archive, nil)
	recorder.now = fixedClock

	if err := recorder.Record(context.Background(), Entry{UserID: 3, Question: "q", SQL: "SELECT 1", Result: sampleResult()}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	wantKey := "results/user=3/date=2024-05-06/fixed-id.parquet"
	if store.records[0].ResultObjectKey != wantKey {
		t.Fatalf("ResultObjectKey = %q, want %q", store.records[0].ResultObjectKey, wantKey)
	}

	if objects.contentType != ParquetContentType {
		t.Fatalf("content type = %q", objects.contentType)
	}

	object, err := recorder.OpenArchive(context.Background(), 3, store.records[0].ID)
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	if object.ContentType != ParquetContentType {
		t.Fatalf("object.ContentType = %q", object.ContentType)
	}
	data, err := io.ReadAll(object.Body)
	_ = object.Body.Close()
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	cells, err := parquet.Read[archivedCell](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(cells) != 4 {
		t.Fatalf("cells = %d, want 4", len(cells))
	}
	if cells[1].Column != "name" || cells[1].Value == nil || *cells[1].Value != "Ada" {
		t.Fatalf("cells[1] = %+v", cells[1])
	}
	if cells[3].Kind != "null" || cells[3].Value != nil {
		t.Fatalf("cells[3] = %+v", cells[3])
	}

	if _, err := recorder.OpenArchive(context.Background(), 4, store.records[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("OpenArchive() for another user error = %v, want %v", err, ErrNotFound)
	}
}

func TestRecordKeepsHistoryWhenArchiveFails(t *testing.T) {
	store := &memoryHistoryStore{}
	objects := newMemoryResultStore()
	objects.putErr = errors.New("bucket gone")
	recorder := NewRecorder(store, NewArchive(objects), nil)

	if err := recorder.Record(context.Background(), Entry{UserID: 1, Question: "q", SQL: "SELECT 1", Result: sampleResult()}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(store.records) != 1 || store.records[0].ResultObjectKey != "" {
		t.Fatalf("records = %+v", store.records)
	}
}

func TestOpenArchiveReportsMissingObjectAsNotFound(t *testing.T) {
	store := &memoryHistoryStore{}
	objects := newMemoryResultStore()
	recorder := NewRecorder(store, NewArchive(objects), nil)

	if err := recorder.Record(context.Background(), Entry{UserID: 5, Question: "q", SQL: "SELECT 1", Result: sampleResult()}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	objects.objects = map[string][]byte{}
	if _, err := recorder.OpenArchive(context.Background(), 5, store.records[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("OpenArchive() error = %v, want %v", err, ErrNotFound)
	}

	// A row whose key names another user is refused even if the row matches.
	store.records[0].ResultObjectKey = "results/user=6/date=2024-05-06/x.parquet"
	objects.objects[store.records[0].ResultObjectKey] = []byte("PAR1")
	if _, err := recorder.OpenArchive(context.Background(), 5, store.records[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("OpenArchive() foreign key error = %v, want %v", err, ErrNotFound)
	}
}

func TestRecentClampsLimitAndOrdersNewestFirst(t *testing.T) {
	store := &memoryHistoryStore{}
	recorder := NewRecorder(store, nil, nil)
	for i := 0; i < 12; i++ {
		if err := recorder.Record(context.Background(), Entry{UserID: 1, Question: strings.Repeat("q", i+1), SQL: "SELECT 1"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := recorder.Record(context.Background(), Entry{UserID: 2, Question: "other", SQL: "SELECT 1"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	cases := map[int]int{0: 10, 50: 10, 3: 3, -4: 1}
	for limit, want := range cases {
		records, err := recorder.Recent(context.Background(), 1, limit)
		if err != nil {
			t.Fatalf("Recent(%d) error = %v", limit, err)
		}
		if len(records) != want {
			t.Fatalf("Recent(%d) = %d records, want %d", limit, len(records), want)
		}
		if records[0].Question != strings.Repeat("q", 12) {
			t.Fatalf("Recent(%d) newest = %q", limit, records[0].Question)
		}
	}
}

func TestEncodeResultUsesEmptyArrays(t *testing.T) {
	payload, err := EncodeResult(query.Result{})
	if err != nil {
		t.Fatalf("EncodeResult() error = %v", err)
	}
	if string(payload) != `{"columns":[],"rows":[],"truncated":false}` {
		t.Fatalf("payload = %s", payload)
	}
}
