package importer

// validation.go checks decoded rows before anything is written.
//
// Rules live on the row structs as tags for go-playground/validator:
//   - `validate:"..."` rules produce errors, which reject the whole import
//   - `warn:"..."` rules produce warnings, which are reported but never block
//
// Every row is checked and every issue collected. Empty optional fields are
// nil pointers and skip both rule sets through omitempty.

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

// phoneRegex accepts digits with the usual separators and an optional
// leading plus.
var phoneRegex = regexp.MustCompile(`^\+?[0-9 .\-()]{3,20}$`)

// ValidationResult is the outcome of validating all rows of a file.
type ValidationResult struct {
	Valid        bool
	Errors       []ValidationIssue
	Warnings     []ValidationIssue
	TotalRecords int
}

// Validator runs the error and warning rule sets over typed rows.
// It is safe for concurrent use.
type Validator struct {
	errs  *validator.Validate
	warns *validator.Validate
}

// NewValidator builds a validator with the import rule tags registered.
func NewValidator() *Validator {
	errs := validator.New(validator.WithRequiredStructEnabled())
	warns := validator.New(validator.WithRequiredStructEnabled())
	warns.SetTagName("warn")

	for _, v := range []*validator.Validate{errs, warns} {
		v.RegisterTagNameFunc(jsonFieldName)
		mustRegister(v, "phone", isPhone)
		mustRegister(v, "integer", isInteger)
		mustRegister(v, "decimal", isDecimal)
		mustRegister(v, "iso8601", isTimestamp)
	}

	return &Validator{errs: errs, warns: warns}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("importer: register %q validation: %v", tag, err))
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func isPhone(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if !phoneRegex.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 3
}

func isInteger(fl validator.FieldLevel) bool {
	_, err := ParseInteger(fl.Field().String())
	return err == nil
}

func isDecimal(fl validator.FieldLevel) bool {
	_, err := ParseDecimal(fl.Field().String())
	return err == nil
}

func isTimestamp(fl validator.FieldLevel) bool {
	_, ok := ParseTimestamp(fl.Field().String())
	return ok
}

// Validate checks every row and collects all issues. Valid is false when
// any error was found.
func (v *Validator) Validate(rows []ImportRow) ValidationResult {
	result := ValidationResult{
		Errors:       []ValidationIssue{},
		Warnings:     []ValidationIssue{},
		TotalRecords: len(rows),
	}

	for _, row := range rows {
		result.Errors = append(result.Errors, check(v.errs, row, SeverityError)...)
		result.Warnings = append(result.Warnings, check(v.warns, row, SeverityWarning)...)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func check(v *validator.Validate, row ImportRow, severity Severity) []ValidationIssue {
	err := v.Struct(row)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// Only reachable with a non-struct row type.
		return []ValidationIssue{{
			Row:      row.Row(),
			Message:  err.Error(),
			Severity: severity,
		}}
	}

	issues := make([]ValidationIssue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issue := ValidationIssue{
			Row:      row.Row(),
			Column:   fe.Field(),
			Message:  issueMessage(fe, fieldLabel(row, fe)),
			Severity: severity,
		}
		if fe.Tag() != "required" {
			issue.Value = issueValue(fe.Value())
		}
		issues = append(issues, issue)
	}
	return issues
}

// fieldLabel returns the human label of the failing field, falling back to
// its canonical name.
func fieldLabel(row ImportRow, fe validator.FieldError) string {
	t := reflect.TypeOf(row)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if f, ok := t.FieldByName(fe.StructField()); ok {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
	}
	return fe.Field()
}

func issueMessage(fe validator.FieldError, label string) string {
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "integer":
		return label + " must be a whole number"
	case "decimal":
		return label + " must be a number"
	case "phone":
		return label + " does not look like a phone number"
	case "email":
		return label + " is not a valid email address"
	case "iso8601":
		return label + " is not a recognized date"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %s check", label, fe.Tag())
	}
}

func issueValue(v any) any {
	if p, ok := v.(*string); ok {
		if p == nil {
			return nil
		}
		return *p
	}
	return v
}
