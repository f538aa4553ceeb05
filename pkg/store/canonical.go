package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonical returns the canonical encoding of a JSON value: decoded and
// re-encoded through encoding/json, which sorts object keys and strips
// insignificant whitespace. Value-equal documents therefore map to the same
// Redis set member and ledger field regardless of how the client formatted
// them. Numbers are decoded as json.Number so re-encoding preserves their
// literal form; a float64 round trip would corrupt integers beyond 2^53.
func Canonical(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("item is not valid JSON: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("item has trailing content after the JSON value")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("re-encode item: %w", err)
	}
	return string(out), nil
}
