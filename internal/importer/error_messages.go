package importer

// error_messages.go maps technical errors to user-facing messages with
// support codes.
//
// Codes are grouped by category:
//
//	DB001  - Duplicate key            ("duplicate key")
//	DB002  - Unique constraint        ("unique constraint", "violates unique")
//	DB003  - Foreign key              ("foreign key constraint", "violates foreign key")
//	DB004  - Connection refused       ("connection refused")
//	DB005  - Connection reset         ("connection reset")
//	DB006  - Timeout                  ("timeout")
//	DB007  - Deadlock                 ("deadlock")
//
//	VAL001 - Invalid date             ("invalid date")
//	VAL002 - Invalid number           ("invalid number")
//	VAL003 - Required field           ("required field", "is required")
//	VAL004 - Invalid column mapping   ("invalid column mapping")
//
//	FILE001 - File too large          ("file too large", "request body too large")
//	FILE002 - Invalid CSV             ("invalid csv", "parse error on line")
//	FILE003 - Invalid spreadsheet     ("invalid spreadsheet", "zip: not a valid zip file")
//	FILE004 - No file                 ("no file provided")
//	FILE005 - Empty file              ("empty file")
//	FILE006 - Unsupported format      ("unsupported file format")
//
//	IMP001 - Unknown entity           ("unknown entity type")
//	IMP002 - Reference resolution     ("reference resolution failed")
//	IMP003 - Reconciliation           ("reconciliation failed")
//	IMP004 - System busy              ("too many imports")
//	IMP005 - Request cancelled        ("context canceled")
//	IMP006 - Request timeout          ("context deadline exceeded")
//	IMP007 - Unknown match mode       ("unknown match mode")
//
//	REQ001 - Missing operator         ("x-operator-id")
//	REQ002 - Invalid form field       ("invalid form field")
//
//	ERR000 - Unknown error (fallback)
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so more specific patterns come first. When users report ERR000,
// check the application logs for the original error.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Constraint Errors (DB001-DB003)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this name already exists",
			Action:  "Review the file for duplicate names",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Another import may have created it; please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check the referenced platform, component type or material",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check the referenced platform, component type or material",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Request lifecycle (IMP004-IMP006)
	// Checked before "timeout" so deadline errors get their own code.
	// =========================================================================
	{
		pattern: "too many imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try importing a smaller file or try again later",
			Code:    "IMP006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try importing a smaller file or try again later",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL004)
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Remove currency symbols and use standard decimal format",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid column mapping",
		msg: UserMessage{
			Message: "Column mapping could not be read",
			Action:  "Send columnMapping as a JSON object of label to field name",
			Code:    "VAL004",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with balanced quotes",
			Code:    "FILE002",
		},
	},
	{
		pattern: "parse error on line",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with balanced quotes",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid spreadsheet",
		msg: UserMessage{
			Message: "File is not a readable spreadsheet",
			Action:  "Save the file as .xlsx and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV or Excel file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "File type is not supported",
			Action:  "Use csv or excel as the file type",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Import Errors (IMP001-IMP003, IMP007)
	// =========================================================================
	{
		pattern: "unknown entity type",
		msg: UserMessage{
			Message: "Unknown import type",
			Action:  "Import customer or screw data",
			Code:    "IMP001",
		},
	},
	{
		pattern: "reference resolution failed",
		msg: UserMessage{
			Message: "Referenced names could not be resolved",
			Action:  "Another import may be running; please try again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "reconciliation failed",
		msg: UserMessage{
			Message: "Rows could not be saved; nothing was imported",
			Action:  "Review the file and try again",
			Code:    "IMP003",
		},
	},
	{
		pattern: "unknown match mode",
		msg: UserMessage{
			Message: "Unknown match mode",
			Action:  "Use contains, exact or fuzzy",
			Code:    "IMP007",
		},
	},

	// =========================================================================
	// Request Errors (REQ001-REQ002)
	// =========================================================================
	{
		pattern: "x-operator-id",
		msg: UserMessage{
			Message: "The request does not identify the operator",
			Action:  "Send the X-Operator-ID header with a numeric user id",
			Code:    "REQ001",
		},
	},
	{
		pattern: "invalid form field",
		msg: UserMessage{
			Message: "A form field has an invalid value",
			Action:  "Check updateExisting, hasHeaderRow and batchSize",
			Code:    "REQ002",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	msg := MapError(ErrTooManyImports)
//	// msg.Code == "IMP004"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
