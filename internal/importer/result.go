package importer

// Result is the report of one import call.
//
// On success TotalProcessed == RowsCreated + RowsUpdated. When Valid is
// false nothing was written and all counts are zero.
type Result struct {
	Success        bool              `json:"success"`
	Valid          bool              `json:"valid"`
	TotalProcessed int               `json:"totalProcessed"`
	RowsCreated    int               `json:"rowsCreated"`
	RowsUpdated    int               `json:"rowsUpdated"`
	TotalRecords   int               `json:"totalRecords"`
	Errors         []ValidationIssue `json:"errors"`
	Warnings       []ValidationIssue `json:"warnings"`
}

// Aggregator accumulates batch counts into a Result.
type Aggregator struct {
	validation ValidationResult
	processed  int
	counts     Counts
}

// NewAggregator starts a report for a validated file.
func NewAggregator(validation ValidationResult) *Aggregator {
	return &Aggregator{validation: validation}
}

// AddBatch records one reconciled batch of size rows.
func (a *Aggregator) AddBatch(size int, c Counts) {
	a.processed += size
	a.counts = a.counts.Add(c)
}

// Counts returns the totals so far.
func (a *Aggregator) Counts() Counts { return a.counts }

// Success returns the report of a committed run.
func (a *Aggregator) Success() *Result {
	return &Result{
		Success:        true,
		Valid:          true,
		TotalProcessed: a.processed,
		RowsCreated:    a.counts.Created,
		RowsUpdated:    a.counts.Updated,
		TotalRecords:   a.validation.TotalRecords,
		Errors:         []ValidationIssue{},
		Warnings:       nonNil(a.validation.Warnings),
	}
}

// Rejected returns the report of a run stopped by validation errors.
func Rejected(validation ValidationResult) *Result {
	return &Result{
		Success:      false,
		Valid:        false,
		TotalRecords: validation.TotalRecords,
		Errors:       nonNil(validation.Errors),
		Warnings:     nonNil(validation.Warnings),
	}
}

// Validated returns the report of a dry run: nothing is written, and
// Success mirrors Valid.
func Validated(validation ValidationResult) *Result {
	if !validation.Valid {
		return Rejected(validation)
	}
	return &Result{
		Success:      true,
		Valid:        true,
		TotalRecords: validation.TotalRecords,
		Errors:       []ValidationIssue{},
		Warnings:     nonNil(validation.Warnings),
	}
}

func nonNil(issues []ValidationIssue) []ValidationIssue {
	if issues == nil {
		return []ValidationIssue{}
	}
	return issues
}
