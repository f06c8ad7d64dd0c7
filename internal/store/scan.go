package store

import (
	"database/sql"

	"github.com/conduit-lang/taskprovider/internal/contract"
)

// scanRows scans multiple rows into a slice of rows keyed by column name
func scanRows(rows *sql.Rows) ([]contract.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]contract.Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(contract.Row, len(columns))
		for i, col := range columns {
			record[col] = normalize(values[i])
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// normalize converts driver byte slices to strings so rows encode cleanly
func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
