package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure Metadata implements both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on the pointer receiver; Value is on the value receiver.
var (
	_ sql.Scanner   = (*Metadata)(nil)
	_ driver.Valuer = Metadata(nil)
)

// Metadata carries the caller-supplied key/value pairs attached to a
// notification. Values are scalars only (string, number, bool); the payload
// validator enforces this and drops nulls before the map reaches storage.
//
// Stored as JSONB in Postgres and as a TEXT JSON document in SQLite.
type Metadata map[string]any

// scanJSON scans a JSON database value into a Go pointer. It handles nil
// values, []byte, and string representations from different drivers.
func scanJSON(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Scan implements the sql.Scanner interface for reading JSON from the database.
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSON(m, value)
}

// Value implements the driver.Valuer interface for writing JSON to the database.
// Nil maps are stored as SQL NULL, not the JSON literal "null".
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
