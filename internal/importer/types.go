package importer

import (
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
)

// EntityType identifies the target entity of an import.
type EntityType string

const (
	EntityCustomer EntityType = "customer"
	EntityScrew    EntityType = "screw"
)

// ParseEntityType validates an entity type supplied by a caller.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(strings.ToLower(strings.TrimSpace(s))) {
	case EntityCustomer:
		return EntityCustomer, nil
	case EntityScrew:
		return EntityScrew, nil
	}
	return "", errors.Wrapf(ErrUnknownEntity, "%q", s)
}

// FileFormat is the declared format of the uploaded file.
type FileFormat string

const (
	FormatCSV         FileFormat = "csv"
	FormatSpreadsheet FileFormat = "spreadsheet"
)

// ParseFileFormat maps the caller's declared file type to a FileFormat.
// The file content is never inspected.
func ParseFileFormat(s string) (FileFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "excel", "xlsx", "spreadsheet":
		return FormatSpreadsheet, nil
	}
	return "", errors.Wrapf(ErrUnsupportedFormat, "%q", s)
}

// FileTypeFromName guesses a declared file type from a file name, for
// callers that did not state one. The result still goes through
// ParseFileFormat.
func FileTypeFromName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv", ".txt":
		return "csv"
	case ".xlsx", ".xlsm":
		return "excel"
	}
	return strings.TrimPrefix(ext, ".")
}

// MatchMode controls how incoming names are matched against existing entities.
type MatchMode string

const (
	// MatchContains matches when the existing name contains the incoming
	// name, ignoring case.
	MatchContains MatchMode = "contains"
	// MatchExact matches names that are equal ignoring case.
	MatchExact MatchMode = "exact"
	// MatchFuzzy matches when the incoming name's characters appear in order
	// in the existing name, ignoring case and diacritics.
	MatchFuzzy MatchMode = "fuzzy"
)

// ParseMatchMode validates a match mode. The empty string selects MatchContains.
func ParseMatchMode(s string) (MatchMode, error) {
	switch m := MatchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MatchContains, nil
	case MatchContains, MatchExact, MatchFuzzy:
		return m, nil
	}
	return "", errors.Errorf("unknown match mode %q", s)
}

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 100

// Options tune a single import run.
type Options struct {
	// HasHeaderRow reports whether the first CSV line holds column labels.
	// Nil means true. Spreadsheets are always read with a header.
	HasHeaderRow *bool

	// ColumnMapping maps file column labels to canonical field names.
	// Empty means the labels are used verbatim.
	ColumnMapping map[string]string

	// UpdateExisting enables matching rows against existing entities.
	UpdateExisting bool

	// BatchSize bounds how many rows are resolved and reconciled together.
	BatchSize int

	// MatchMode selects name matching when UpdateExisting is set.
	MatchMode MatchMode

	// Delimiter is the CSV field separator (default ',').
	Delimiter rune

	// DayFirst reads ambiguous dates such as 03/04/2024 as 3 April.
	DayFirst bool
}

// HeaderRow reports whether the input carries a header row.
func (o Options) HeaderRow() bool {
	return o.HasHeaderRow == nil || *o.HasHeaderRow
}

// Request is one import call. It is built once by the caller and never
// modified by the engine.
type Request struct {
	Data       []byte
	Format     FileFormat
	Entity     EntityType
	OperatorID int64
	Options    Options
}

// RawRecord is one non-empty data row keyed by column label.
// Row is the human-facing row number (header offset applied).
type RawRecord struct {
	Row    int
	Values map[string]string
}

// MappedRecord is a RawRecord whose keys were rewritten to field names.
type MappedRecord struct {
	Row    int
	Fields map[string]string
}

// Severity distinguishes blocking issues from informational ones.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is a problem found in a single row.
type ValidationIssue struct {
	Row      int      `json:"row"`
	Column   string   `json:"column"`
	Message  string   `json:"message"`
	Value    any      `json:"value,omitempty"`
	Severity Severity `json:"-"`
}

// ReferenceSpec names a row field that refers to another table by name.
type ReferenceSpec struct {
	Field    string
	Table    string
	Optional bool
}

// ReferenceCache maps natural keys to ids per reference table for the
// duration of one run.
type ReferenceCache struct {
	tables map[string]map[string]int64
}

// NewReferenceCache returns an empty cache.
func NewReferenceCache() *ReferenceCache {
	return &ReferenceCache{tables: make(map[string]map[string]int64)}
}

// Get returns the id cached for name in table.
func (c *ReferenceCache) Get(table, name string) (int64, bool) {
	id, ok := c.tables[table][name]
	return id, ok
}

// Put caches id for name in table. An existing entry is kept.
func (c *ReferenceCache) Put(table, name string, id int64) {
	t, ok := c.tables[table]
	if !ok {
		t = make(map[string]int64)
		c.tables[table] = t
	}
	if _, exists := t[name]; !exists {
		t[name] = id
	}
}

// Len returns the number of cached names for table.
func (c *ReferenceCache) Len(table string) int {
	return len(c.tables[table])
}

// Counts are the rows created and updated by one batch or run.
type Counts struct {
	Created int
	Updated int
}

// Add returns the sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{Created: c.Created + o.Created, Updated: c.Updated + o.Updated}
}
