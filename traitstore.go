package distepi

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// TraitStore resolves a field of the external person-trait database for a
// given node id (§1, §4.15 "SQL field-selector dialect for a person-trait
// database" — out of scope as a full dialect, in scope as a single-field
// lookup path). No set-content selector in this package queries it.
type TraitStore interface {
	FieldValue(nodeID NodeID, field string) (Value, error)
	Close() error
}

// SQLiteTraitStore is the one concrete TraitStore backend, built on
// github.com/mattn/go-sqlite3 the same way the teacher's sqlite_logger.go
// opens and queries SQLite databases (§4.15).
type SQLiteTraitStore struct {
	db        *sql.DB
	tableName string
	idColumn  string
}

// OpenSQLiteTraitStore opens path (the dbConnection config option, §6) as a
// read-only trait table lookup source.
func OpenSQLiteTraitStore(path, tableName, idColumn string) (*SQLiteTraitStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, newRunError(ErrIOFailure, 0, errors.Wrapf(err, "open trait db %s", path))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, newRunError(ErrIOFailure, 0, errors.Wrapf(err, "ping trait db %s", path))
	}
	return &SQLiteTraitStore{db: db, tableName: tableName, idColumn: idColumn}, nil
}

// FieldValue runs `select <field> from <table> where <idColumn> = ?` and
// converts the single result column of the single row to a Value,
// dispatching on its Go type (§4.15).
func (s *SQLiteTraitStore) FieldValue(nodeID NodeID, field string) (Value, error) {
	query := fmt.Sprintf("select %s from %s where %s = ?", field, s.tableName, s.idColumn)
	row := s.db.QueryRow(query, nodeID)

	var raw interface{}
	if err := row.Scan(&raw); err != nil {
		return Value{}, errors.Wrapf(err, "trait field %q for node %d", field, nodeID)
	}
	switch v := raw.(type) {
	case int64:
		return IntValue(v), nil
	case float64:
		return NumberValue(v), nil
	case string:
		return StringValue(v), nil
	case []byte:
		return StringValue(string(v)), nil
	case bool:
		return BoolValue(v), nil
	default:
		return Value{}, errors.Errorf("trait field %q for node %d: unsupported column type %T", field, nodeID, raw)
	}
}

// Close releases the underlying database handle.
func (s *SQLiteTraitStore) Close() error { return s.db.Close() }
