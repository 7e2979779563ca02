package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Decode reads a single JSON object from r. Numbers are kept as json.Number so
// identifiers and codes survive a round trip unchanged.
func Decode(r io.Reader) (Mapping, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, Invalid("document", fmt.Sprintf("malformed JSON: %v", err))
	}
	if dec.More() {
		return nil, Invalid("document", "trailing data after JSON object")
	}

	m, ok := FromValue(raw).(Mapping)
	if !ok {
		return nil, Invalid("document", "top-level value must be an object")
	}
	return m, nil
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(b []byte) (Mapping, error) {
	return Decode(bytes.NewReader(b))
}

// Encode writes m as indented JSON.
func Encode(w io.Writer, m Mapping) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Value(m))
}

// FromStruct converts a JSON-tagged struct into a Mapping.
func FromStruct(v interface{}) (Mapping, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return DecodeBytes(b)
}
