package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an opaque server-assigned identifier. Remote stores hand out
// either integers or strings; ID keeps the textual form and always encodes
// as a JSON string. Use NumericJSON where a store expects numbers back.
type ID string

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id == "" }

func (id ID) String() string { return string(id) }

// Canonical reports whether id is the decimal form of an integer, so that
// writing it as a JSON number and reading it back yields the same text.
// "12" is canonical; "007", "+5" and "1e3" are not.
func (id ID) Canonical() bool {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == string(id)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// NumericJSON encodes id as a JSON number when it is canonical and as a
// string otherwise.
func (id ID) NumericJSON() ([]byte, error) {
	if id.Canonical() {
		return []byte(id), nil
	}
	return id.MarshalJSON()
}

// NumericJSONToken reports whether raw is a JSON number, as opposed to a
// string or null.
func NumericJSONToken(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && (raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// IDPtr returns a pointer to id, or nil when id is empty.
func IDPtr(id ID) *ID {
	if id == "" {
		return nil
	}
	return &id
}
