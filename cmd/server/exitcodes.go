package main

import (
	"github.com/go-faster/errors"

	"github.com/JonMunkholm/bulkimport/internal/importer"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// runErrorCode classifies an engine error: problems with the input are
// usage errors, everything after the transaction opened is a database error.
func runErrorCode(err error) int {
	switch {
	case errors.Is(err, importer.ErrUnsupportedFormat),
		errors.Is(err, importer.ErrUnknownEntity),
		errors.Is(err, importer.ErrEmptyFile):
		return exitUsage
	}
	switch importer.MapError(err).Code {
	case "FILE002", "FILE003", "IMP007":
		return exitUsage
	}
	return exitDB
}
