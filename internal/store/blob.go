package store

import (
	"database/sql"
	"encoding/json"
)

// Blob is an opaque JSON object stored as text. When a stored value fails to
// decode, the original text is preserved in Raw and surfaced as
// {"raw": <text>} instead of raising an error. Downstream consumers depend on
// always getting something back.
type Blob struct {
	Data map[string]any
	Raw  string
}

// IsZero reports whether the blob holds no stored value at all.
func (b Blob) IsZero() bool {
	return b.Data == nil && b.Raw == ""
}

// IsRaw reports whether the stored text failed to decode.
func (b Blob) IsRaw() bool {
	return b.Raw != ""
}

// Value returns the decoded object, or the raw-text fallback wrapper.
func (b Blob) Value() map[string]any {
	if b.Raw != "" {
		return map[string]any{"raw": b.Raw}
	}
	return b.Data
}

// MarshalJSON renders the blob the way Value shapes it.
func (b Blob) MarshalJSON() ([]byte, error) {
	if b.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(b.Value())
}

// DecodeBlob reads a stored JSON column into a Blob.
func DecodeBlob(raw sql.NullString) Blob {
	if !raw.Valid || raw.String == "" {
		return Blob{}
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw.String), &data); err != nil {
		return Blob{Raw: raw.String}
	}
	return Blob{Data: data}
}

// EncodeObject renders a map as the stored JSON text. Nil encodes as an
// empty object so the column never holds SQL NULL for written values.
func EncodeObject(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
