// Package datarecording stores simulation records in SQLite databases.
//
// A table is described by a sample struct. Every exported field becomes a
// column whose SQLite type follows the Go kind of the field. Entries are
// buffered in memory and written in one transaction per flush.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DefaultBatchSize is the number of buffered entries that triggers a flush.
const DefaultBatchSize = 100000

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table whose columns are the fields of the
	// sample entry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData writes an entry into a table that already exists. The entry
	// must have the same type as the sample entry of the table.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all tables, in alphabetical order.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush()

	// Close flushes the buffered entries and closes the database.
	Close() error
}

// New creates a DataRecorder that writes into <path>.sqlite3. If path is
// empty, a unique name is generated. It panics if the file already exists.
func New(path string) DataRecorder {
	if path == "" {
		path = "netsim_recording_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	fmt.Fprintf(os.Stderr, "Recording into %s\n", filename)

	return NewWithDB(db)
}

// NewWithDB creates a DataRecorder that writes into an open database.
func NewWithDB(db *sql.DB) DataRecorder {
	r := &sqliteRecorder{
		db:        db,
		batchSize: DefaultBatchSize,
		tables:    make(map[string]*table),
	}

	atexit.Register(r.Flush)

	return r
}

type table struct {
	entryType reflect.Type
	insertSQL string
	pending   []any
}

type sqliteRecorder struct {
	db *sql.DB

	tables    map[string]*table
	batchSize int
	pending   int
	closed    bool
}

func columnType(kind reflect.Kind) (string, bool) {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return "INTEGER", true
	case reflect.Float32, reflect.Float64:
		return "REAL", true
	case reflect.String:
		return "TEXT", true
	default:
		return "", false
	}
}

// columns returns the column definitions of a table that stores entries of
// the same type as sample.
func columns(sample any) ([]string, error) {
	t := reflect.TypeOf(sample)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entry %T is not a struct", sample)
	}

	names := structs.Names(sample)
	if len(names) != t.NumField() {
		return nil, fmt.Errorf("entry %T has unexported fields", sample)
	}

	defs := make([]string, 0, len(names))
	for i, name := range names {
		sqlType, ok := columnType(t.Field(i).Type.Kind())
		if !ok {
			return nil, fmt.Errorf("field %s of %T cannot be stored",
				name, sample)
		}

		defs = append(defs, name+" "+sqlType)
	}

	return defs, nil
}

func (r *sqliteRecorder) CreateTable(tableName string, sampleEntry any) {
	defs, err := columns(sampleEntry)
	if err != nil {
		panic(err)
	}

	if _, exists := r.tables[tableName]; exists {
		panic(fmt.Sprintf("table %s already exists", tableName))
	}

	r.mustExec(fmt.Sprintf("CREATE TABLE %s (\n\t%s\n);",
		tableName, strings.Join(defs, ",\n\t")))

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(defs)), ", ")
	r.tables[tableName] = &table{
		entryType: reflect.TypeOf(sampleEntry),
		insertSQL: fmt.Sprintf("INSERT INTO %s VALUES (%s)",
			tableName, placeholders),
	}
}

func (r *sqliteRecorder) InsertData(tableName string, entry any) {
	t, exists := r.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.entryType {
		panic(fmt.Sprintf("entry %T does not match table %s", entry, tableName))
	}

	t.pending = append(t.pending, entry)

	r.pending++
	if r.pending >= r.batchSize {
		r.Flush()
	}
}

func (r *sqliteRecorder) ListTables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Flush writes the buffered entries, table by table in alphabetical order.
func (r *sqliteRecorder) Flush() {
	if r.pending == 0 || r.closed {
		return
	}

	tx, err := r.db.Begin()
	if err != nil {
		panic(err)
	}

	for _, name := range r.ListTables() {
		if err := r.flushTable(tx, r.tables[name]); err != nil {
			_ = tx.Rollback()
			panic(fmt.Errorf("flushing table %s: %w", name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		panic(err)
	}

	r.pending = 0
}

func (r *sqliteRecorder) flushTable(tx *sql.Tx, t *table) error {
	if len(t.pending) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(t.insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range t.pending {
		if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
			return err
		}
	}

	t.pending = nil

	return nil
}

func (r *sqliteRecorder) Close() error {
	if r.closed {
		return nil
	}

	r.Flush()
	r.closed = true

	return r.db.Close()
}

func (r *sqliteRecorder) mustExec(query string) {
	if _, err := r.db.Exec(query); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute: %s\n", query)
		panic(err)
	}
}
