package importer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ImportRow is a decoded, typed row of one entity type.
type ImportRow interface {
	// Row is the human-facing row number used in issues.
	Row() int
	// NaturalKey is the name used to match existing entities.
	NaturalKey() string
	// ReferenceValue returns the normalized natural key stored in a
	// reference field, or "" when the field is empty or unknown.
	ReferenceValue(field string) string
}

// reconcileFunc applies one batch of rows of a single entity type.
type reconcileFunc func(ctx context.Context, tx Tx, batch []ImportRow, rc reconcileContext) (Counts, error)

// EntityDefinition describes how an entity type flows through the pipeline.
type EntityDefinition struct {
	Type EntityType

	// Fields are the canonical field names rows of this type understand.
	Fields []string

	// TimestampField is coerced to RFC 3339 by the mapper.
	TimestampField string

	// References lists the fields resolved against reference tables.
	References []ReferenceSpec

	// Decode builds a typed row from a mapped record.
	Decode func(MappedRecord) ImportRow

	reconcile reconcileFunc
}

var definitions = map[EntityType]*EntityDefinition{}

// register adds a definition. It panics on duplicates since definitions are
// registered from init.
func register(def *EntityDefinition) {
	if _, exists := definitions[def.Type]; exists {
		panic("importer: duplicate entity definition " + string(def.Type))
	}
	definitions[def.Type] = def
}

// Definition returns the definition for an entity type.
func Definition(t EntityType) (*EntityDefinition, error) {
	def, ok := definitions[t]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntity, "%q", t)
	}
	return def, nil
}

// DecodeRecords decodes mapped records into typed rows.
func (d *EntityDefinition) DecodeRecords(records []MappedRecord) []ImportRow {
	rows := make([]ImportRow, len(records))
	for i, rec := range records {
		rows[i] = d.Decode(rec)
	}
	return rows
}

// required returns the trimmed value of a field, "" when absent.
func required(fields map[string]string, name string) string {
	return strings.TrimSpace(fields[name])
}

// optional returns a pointer to the trimmed value, nil when absent or empty.
func optional(fields map[string]string, name string) *string {
	v := strings.TrimSpace(fields[name])
	if v == "" {
		return nil
	}
	return &v
}

func derefKey(p *string) string {
	if p == nil {
		return ""
	}
	return NormalizeKey(*p)
}
