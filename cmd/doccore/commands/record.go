package commands

import (
	"encoding/json"
	"fmt"
	"io"
)

// record is the schemaless entity the CLI stores. Its "id" field is the
// document id.
type record map[string]any

func (r *record) DocumentID() string {
	id, _ := (*r)["id"].(string)
	return id
}

func (r *record) SetDocumentID(id string) {
	if *r == nil {
		*r = record{}
	}
	(*r)["id"] = id
}

func parseRecord(raw string) (*record, error) {
	rec := record{}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	if id, ok := rec["id"]; ok {
		if _, isString := id.(string); !isString {
			return nil, fmt.Errorf("record id must be a string, got %T", id)
		}
	}
	return &rec, nil
}

func printRecord(w io.Writer, rec *record) error {
	if rec == nil {
		_, err := fmt.Fprintln(w, "null")
		return err
	}
	enc := json.NewEncoder(w)
	return enc.Encode(rec)
}
