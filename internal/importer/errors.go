package importer

import (
	"github.com/go-faster/errors"
)

var (
	// ErrUnsupportedFormat is returned when the declared file type is not
	// csv or a spreadsheet.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrUnknownEntity is returned for an entity type with no definition.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrReferenceResolution is returned when referenced names could not be
	// looked up or created, including after the single race retry.
	ErrReferenceResolution = errors.New("reference resolution failed")

	// ErrReconciliation is returned when a staged create or update fails.
	ErrReconciliation = errors.New("reconciliation failed")

	// ErrUniqueViolation is returned by stores when an insert hits a unique
	// constraint.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrTooManyImports is returned when no import slot frees up in time.
	ErrTooManyImports = errors.New("too many imports in progress, please try again later")

	// ErrEmptyFile is returned when the uploaded file has no bytes.
	ErrEmptyFile = errors.New("empty file")
)

// RunError is a run-level failure of one pipeline stage. It matches its
// Kind sentinel with errors.Is and unwraps to the underlying cause.
type RunError struct {
	Kind  error
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	return e.Stage + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error { return e.Err }

// Is reports whether target is the error's kind.
func (e *RunError) Is(target error) bool { return target == e.Kind }

func resolutionError(table string, err error) error {
	return &RunError{Kind: ErrReferenceResolution, Stage: "resolve " + table, Err: err}
}

func reconcileError(stage string, err error) error {
	return &RunError{Kind: ErrReconciliation, Stage: stage, Err: err}
}
