package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// QueryParams selects and orders the rows returned by a query.
type QueryParams struct {
	// Where is a condition without the WHERE keyword, such as
	// "Time > ? AND Event = ?".
	Where string
	Args  []any

	// OrderBy is an ordering without the ORDER BY keywords, such as
	// "Time DESC".
	OrderBy string

	// Limit of 0 returns all the rows. Offset is ignored without a limit.
	Limit  int
	Offset int
}

func (p QueryParams) filter() string {
	if p.Where == "" {
		return ""
	}

	return " WHERE " + p.Where
}

func (p QueryParams) page() string {
	var b strings.Builder

	if p.OrderBy != "" {
		b.WriteString(" ORDER BY " + p.OrderBy)
	}

	if p.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", p.Limit)

		if p.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", p.Offset)
		}
	}

	return b.String()
}

// DataReader reads the tables written by a DataRecorder back into structs.
type DataReader interface {
	// MapTable tells the reader which struct a table holds. A table must be
	// mapped before it can be queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the mapped tables in alphabetical order.
	ListTables() []string

	// Query returns pointers to the selected entries and the number of rows
	// that match the condition regardless of the limit.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

type sqliteReader struct {
	db    *sql.DB
	types map[string]reflect.Type
}

// NewReader opens the database file for reading. It panics if the database
// cannot be opened.
func NewReader(dbFilename string) DataReader {
	db, err := sql.Open("sqlite3", "file:"+dbFilename+"?mode=ro")
	if err != nil {
		panic(err)
	}

	return NewReaderWithDB(db)
}

// NewReaderWithDB creates a DataReader over an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:    db,
		types: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.types[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	entryType, ok := r.types[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	var total int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableName+params.filter(),
		params.Args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM "+tableName+params.filter()+params.page(),
		params.Args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := scanAll(rows, entryType)
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

// scanAll reads every row into a new entry. Columns without a field of the
// same name are skipped.
func scanAll(rows *sql.Rows, entryType reflect.Type) ([]any, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []any

	for rows.Next() {
		entry := reflect.New(entryType)
		targets := make([]any, len(names))

		for i, name := range names {
			field := entry.Elem().FieldByName(name)
			if field.IsValid() && field.CanSet() {
				targets[i] = field.Addr().Interface()
				continue
			}

			targets[i] = new(any)
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, entry.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}
