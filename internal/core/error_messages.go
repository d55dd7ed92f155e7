package core

// # Error Codes Reference
//
// User-facing errors carry a code so users can quote it to support.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large           Split the file into smaller files
//	FILE002 - Unreadable file          Re-export the sheet as CSV or XLSX
//	FILE003 - Unsupported format       Upload a .csv or .xlsx file
//	FILE004 - No file                  Select a file to upload
//	FILE005 - No data rows             Add at least one row below the header
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date              Use YYYY-MM-DD or DD/MM/YYYY
//	VAL002 - Invalid number            Use digits with one decimal separator
//	VAL003 - Required field empty      Fill in every required column
//	VAL004 - Missing required column   Add the column or rename its header
//	VAL005 - Invalid enum value        Use one of the listed values
//	VAL006 - Date in the future        Movement dates cannot be after today
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Import cancelled
//	IMP002 - Too many imports in progress
//	IMP003 - Import job not found (expired or never existed)
//	IMP004 - Unknown import type
//	IMP005 - Import already finished
//	IMP006 - Request cancelled
//	IMP007 - Request timed out
//	IMP008 - Audit history not available
//
// # Store Errors (DB001-DB099)
//
//	DB001 - Store unavailable
//	DB002 - Connection refused
//	DB003 - Connection reset
//	DB004 - Timeout
//	DB005 - Duplicate key (concurrent import of the same entity)
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.
//
// Sentinel errors are matched first with errors.Is. Other errors are matched
// case-insensitively against substring patterns; the first match wins, so
// specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"mensaje"`
	Action  string `json:"accion"`
	Code    string `json:"codigo"`
}

var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrFileTooLarge, UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{ErrUnreadableFile, UserMessage{"The file could not be read", "Re-export the sheet as CSV or XLSX and try again", "FILE002"}},
	{ErrUnsupportedFormat, UserMessage{"File format is not supported", "Upload a .csv or .xlsx file", "FILE003"}},
	{ErrNoFile, UserMessage{"No file was selected", "Select a file to upload", "FILE004"}},
	{ErrNoDataRows, UserMessage{"The file has no data rows", "Add at least one row below the header row", "FILE005"}},
	{ErrCancelled, UserMessage{"Import was cancelled", "Start a new import when ready", "IMP001"}},
	{ErrTooManyImports, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP002"}},
	{ErrJobNotFound, UserMessage{"Import job not found", "The job may have expired. Start a new import", "IMP003"}},
	{ErrUnknownImportType, UserMessage{"Unknown import type", "Use one of the listed import types", "IMP004"}},
	{ErrJobTerminal, UserMessage{"Import already finished", "Check the final status of the job", "IMP005"}},
	{ErrAuditUnavailable, UserMessage{"Audit history is not available", "Configure a database-backed store to keep row history", "IMP008"}},
	{ErrDuplicateKey, UserMessage{"The record was created by another import at the same time", "Run the import again to skip it", "DB005"}},
	{ErrStoreUnavailable, UserMessage{"Inventory data is temporarily unavailable", "Please try again in a few moments", "DB001"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Row validation
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD or DD/MM/YYYY", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Use digits with a single decimal separator", "VAL002"}},
	{"whole number", UserMessage{"Value must be a whole number", "Remove the decimal part", "VAL002"}},
	{"required field", UserMessage{"Required field is empty", "Fill in every required column", "VAL003"}},
	{"required column", UserMessage{"Required column is missing", "Add the column or rename its header", "VAL004"}},
	{"invalid enum", UserMessage{"Value is not in the allowed list", "Check the allowed values for this field", "VAL005"}},
	{"in the future", UserMessage{"Date is in the future", "Use today's date or earlier", "VAL006"}},

	// Request lifecycle
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "IMP006"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or check your connection", "IMP007"}},

	// Store connectivity
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB002"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB004"}},
	{"duplicate key", UserMessage{"The record was created by another import at the same time", "Run the import again to skip it", "DB005"}},
	{"unique constraint", UserMessage{"The record was created by another import at the same time", "Run the import again to skip it", "DB005"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
