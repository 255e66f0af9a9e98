package query

import (
	"database/sql"
	"fmt"
	"strconv"
)

// Collect reads at most rowLimit rows and reports whether more were available.
// Repeated column names are made unique with a numeric suffix.
func Collect(rows *sql.Rows, rowLimit int) (Result, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}
	columns := make([]string, len(columnTypes))
	dbTypes := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = columnType.Name()
		dbTypes[i] = columnType.DatabaseTypeName()
	}
	columns = UniqueColumnNames(columns)

	result := Result{Columns: columns, Rows: make([]Row, 0)}
	for rows.Next() {
		if rowLimit > 0 && len(result.Rows) == rowLimit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = FromDriver(values[i], dbTypes[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func UniqueColumnNames(columns []string) []string {
	seen := make(map[string]int, len(columns))
	for _, column := range columns {
		seen[column] = 0
	}
	unique := make([]string, len(columns))
	used := make(map[string]struct{}, len(columns))
	for i, column := range columns {
		name := column
		if _, taken := used[name]; taken {
			for n := seen[column] + 2; ; n++ {
				candidate := column + "_" + strconv.Itoa(n)
				if _, clash := used[candidate]; !clash {
					if _, original := seen[candidate]; !original {
						name = candidate
						seen[column] = n - 1
						break
					}
				}
			}
		}
		used[name] = struct{}{}
		unique[i] = name
	}
	return unique
}
