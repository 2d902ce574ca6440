package trace

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes t to canonical CBOR.
func Marshal(t *Trace) ([]byte, error) {
	return cborEncMode.Marshal(t)
}

// Unmarshal deserializes a trace from CBOR bytes.
func Unmarshal(data []byte) (*Trace, error) {
	var t Trace
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("trace: unmarshal: %w", err)
	}
	if t.Steps != len(t.Entries) || t.Steps > t.Capacity {
		return nil, fmt.Errorf("%w: %d entries, steps %d, capacity %d", ErrCorrupt, len(t.Entries), t.Steps, t.Capacity)
	}
	return &t, nil
}

// WriteJSON writes t as indented JSON.
func WriteJSON(w io.Writer, t *Trace) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}
