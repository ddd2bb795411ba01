package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// RawPayload is the verbatim JSON of a source record. It is stored as-is and
// only decoded on demand.
type RawPayload []byte

// NewRawPayload encodes rec into a RawPayload.
func NewRawPayload(rec RawRecord) (RawPayload, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode raw payload: %w", err)
	}
	return RawPayload(b), nil
}

// Bytes returns the stored JSON.
func (p RawPayload) Bytes() []byte { return []byte(p) }

// IsZero reports whether nothing was stored.
func (p RawPayload) IsZero() bool { return len(bytes.TrimSpace(p)) == 0 }

// Decode unmarshals the payload into v.
func (p RawPayload) Decode(v any) error {
	if p.IsZero() {
		return errors.New("raw payload is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	return dec.Decode(v)
}

// Record re-parses the payload into a RawRecord.
func (p RawPayload) Record() (RawRecord, error) {
	var rec RawRecord
	if err := p.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}
