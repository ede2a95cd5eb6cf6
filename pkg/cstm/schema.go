package cstm

import (
	"hash/crc32"

	"github.com/goccy/go-json"
)

// SchemaField is one entry of the canonical schema description.
type SchemaField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SchemaFields returns the ordered name/type pairs of columns.
func SchemaFields(columns []Column) []SchemaField {
	fields := make([]SchemaField, len(columns))
	for i, c := range columns {
		fields[i] = SchemaField{Name: c.Name, Type: c.Type.String()}
	}
	return fields
}

// SchemaSignature returns the CRC-32 (IEEE) of the compact JSON encoding of
// the column names and types, in order, without HTML escaping. Values do not
// affect it.
func SchemaSignature(columns []Column) uint32 {
	return signFields(SchemaFields(columns))
}

// HeaderSignature computes the same signature from a decoded header.
func HeaderSignature(h *Header) uint32 {
	fields := make([]SchemaField, len(h.Columns))
	for i, d := range h.Columns {
		fields[i] = SchemaField{Name: d.Name, Type: d.Type.String()}
	}
	return signFields(fields)
}

func signFields(fields []SchemaField) uint32 {
	// Marshaling a slice of plain string structs cannot fail.
	b, _ := json.MarshalWithOption(fields, json.DisableHTMLEscape())
	return crc32.ChecksumIEEE(b)
}
