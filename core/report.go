package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Report holds the scanner's output: exactly one well-formed JSON document,
// kept verbatim so it can be written byte-for-byte to the output path.
type Report struct {
	Raw json.RawMessage `json:"raw"`
}

// ParseReport validates that data contains a single JSON document and nothing
// else. The scanner writes its report to stdout as one document; trailing
// content means the output is not a report.
func ParseReport(data []byte) (*Report, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var doc json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse scan report: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("parse scan report: trailing content after JSON document")
	}
	return &Report{Raw: data}, nil
}

// Decode unmarshals the report document into v.
func (r *Report) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}
