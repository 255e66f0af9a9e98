package query

import (
	"context"
	"database/sql"
	"reflect"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestCollectMarksTruncationFromProbeRow(t *testing.T) {
	db, mock := newSQLMock(t)
	rows := sqlmock.NewRowsWithColumnDefinition(
		mock.NewColumn("id").OfType("INT8", int64(0)),
		mock.NewColumn("name").OfType("TEXT", ""),
	).AddRow(int64(1), "Ada").AddRow(int64(2), "Grace").AddRow(int64(3), "Linus")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM customers")).WillReturnRows(rows)

	sqlRows, err := db.QueryContext(context.Background(), "SELECT id, name FROM customers")
	if err != nil {
		t.Fatalf("QueryContext() error = %v", err)
	}
	defer func() { _ = sqlRows.Close() }()

	result, err := Collect(sqlRows, 2)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !result.Truncated {
		t.Fatal("Truncated = false, want true")
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if !reflect.DeepEqual(result.Columns, []string{"id", "name"}) {
		t.Fatalf("Columns = %#v", result.Columns)
	}
	if got := result.Rows[1]["name"].String(); got != "Grace" {
		t.Fatalf("rows[1].name = %q", got)
	}
	if result.Rows[0]["id"].Kind() != KindInt {
		t.Fatalf("rows[0].id kind = %s", result.Rows[0]["id"].Kind())
	}
	assertSQLMock(t, mock)
}

func TestCollectEmptyResultKeepsColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	rows := sqlmock.NewRowsWithColumnDefinition(mock.NewColumn("total").OfType("NUMERIC", ""))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT total FROM orders")).WillReturnRows(rows)

	sqlRows, err := db.QueryContext(context.Background(), "SELECT total FROM orders")
	if err != nil {
		t.Fatalf("QueryContext() error = %v", err)
	}
	defer func() { _ = sqlRows.Close() }()

	result, err := Collect(sqlRows, 10)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if result.Truncated || len(result.Rows) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if result.Rows == nil {
		t.Fatal("Rows should be an empty slice, not nil")
	}
	if !reflect.DeepEqual(result.Columns, []string{"total"}) {
		t.Fatalf("Columns = %#v", result.Columns)
	}
	assertSQLMock(t, mock)
}

func TestUniqueColumnNames(t *testing.T) {
	got := UniqueColumnNames([]string{"id", "name", "id", "id_2", "id"})
	want := []string{"id", "name", "id_3", "id_2", "id_4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("UniqueColumnNames() = %#v, want %#v", got, want)
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
