package importer

import (
	"sort"
	"strings"
)

// Mapper projects raw records onto canonical field names.
//
// Labels are bound to fields once per file: a file label matches a mapping
// label when both are equal after trimming, NFC normalization and
// lowercasing. When two columns bind to the same field the leftmost wins.
type Mapper struct {
	bindings       []binding
	timestampField string
	dayFirst       bool
}

type binding struct {
	label string
	field string
}

// NewMapper binds the file's labels to fields. An empty mapping is the
// identity: every label becomes a field of the same name.
func NewMapper(labels []string, mapping map[string]string, timestampField string, dayFirst bool) *Mapper {
	m := &Mapper{timestampField: timestampField, dayFirst: dayFirst}

	byLabel := normalizeMapping(mapping)
	taken := make(map[string]bool, len(labels))

	for _, label := range labels {
		if label == "" {
			continue
		}

		field := label
		if len(mapping) > 0 {
			f, ok := byLabel[NormalizeLabel(label)]
			if !ok {
				continue
			}
			field = f
		}

		if taken[field] {
			continue
		}
		taken[field] = true
		m.bindings = append(m.bindings, binding{label: label, field: field})
	}

	return m
}

// normalizeMapping keys mapping by normalized label. Entries are visited in
// sorted order so colliding labels resolve the same way on every run.
func normalizeMapping(mapping map[string]string) map[string]string {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(mapping))
	for _, k := range keys {
		field := strings.TrimSpace(mapping[k])
		if field == "" {
			continue
		}
		nk := NormalizeLabel(k)
		if _, exists := out[nk]; !exists {
			out[nk] = field
		}
	}
	return out
}

// Map rewrites one record. Labels without a binding are dropped.
func (m *Mapper) Map(raw RawRecord) MappedRecord {
	fields := make(map[string]string, len(m.bindings))
	for _, b := range m.bindings {
		v, ok := raw.Values[b.label]
		if !ok {
			continue
		}
		if b.field == m.timestampField && v != "" {
			v = coerceTimestamp(v, m.dayFirst)
		}
		fields[b.field] = v
	}
	return MappedRecord{Row: raw.Row, Fields: fields}
}

// MapRecord maps a single record using its own keys as the label set.
func MapRecord(raw RawRecord, mapping map[string]string, def *EntityDefinition, dayFirst bool) MappedRecord {
	labels := make([]string, 0, len(raw.Values))
	for k := range raw.Values {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return NewMapper(labels, mapping, def.TimestampField, dayFirst).Map(raw)
}

// MapRecords maps every record of a parsed file.
func MapRecords(file *ParsedFile, mapping map[string]string, def *EntityDefinition, dayFirst bool) []MappedRecord {
	m := NewMapper(file.Labels, mapping, def.TimestampField, dayFirst)
	out := make([]MappedRecord, len(file.Records))
	for i, raw := range file.Records {
		out[i] = m.Map(raw)
	}
	return out
}

// coerceTimestamp normalizes a date to RFC 3339, or returns v unchanged so
// the validator can flag it.
func coerceTimestamp(v string, dayFirst bool) string {
	t, ok := ParseDate(v, dayFirst)
	if !ok {
		return v
	}
	return FormatTimestamp(t)
}
