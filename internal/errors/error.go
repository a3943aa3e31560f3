package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryParse     Category = "parse"
	CategoryToolchain Category = "toolchain"
	CategoryIO        Category = "io"
	CategoryProtocol  Category = "protocol"
	CategoryConfig    Category = "config"
	CategoryCLI       Category = "cli"
)

// Location represents a source code location.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	if l.Line > 0 {
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return l.File
}

// SpindleError is a structured error with source location, suggestions, and documentation.
type SpindleError struct {
	// Code is a unique error identifier (e.g., "E100").
	Code string

	// Category is the error type (parse, toolchain, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error. For toolchain
	// failures it carries the tool's diagnostic output.
	Detail string

	// Tool names the toolchain adapter that failed ("wasm", "scss", ...).
	Tool string

	// Location is the source location where the error occurred.
	Location *Location

	// Context contains surrounding source lines.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *SpindleError) Error() string {
	msg := e.Message
	if e.Tool != "" {
		msg = e.Tool + ": " + msg
	}
	if e.Detail != "" && e.Category != CategoryConfig {
		msg += ": " + firstLine(e.Detail)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *SpindleError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds source location to the error.
func (e *SpindleError) WithLocation(file string, line, column int) *SpindleError {
	e.Location = &Location{File: file, Line: line, Column: column}
	if line > 0 {
		e.Context = readContextLines(file, line, 5)
	}
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *SpindleError) WithSuggestion(s string) *SpindleError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *SpindleError) WithDetail(d string) *SpindleError {
	e.Detail = d
	return e
}

// WithDetailf is WithDetail with a format string.
func (e *SpindleError) WithDetailf(format string, args ...any) *SpindleError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithTool records the adapter kind a toolchain error belongs to.
func (e *SpindleError) WithTool(tool string) *SpindleError {
	e.Tool = tool
	return e
}

// Wrap wraps another error.
func (e *SpindleError) Wrap(err error) *SpindleError {
	e.Wrapped = err
	return e
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a SpindleError from a registered error code.
func New(code string) *SpindleError {
	template, ok := registry[code]
	if !ok {
		return &SpindleError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &SpindleError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new SpindleError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *SpindleError {
	return &SpindleError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Toolchain builds the error reported when an external tool or a
// post-processing step fails for an asset of the given kind.
func Toolchain(tool, message string) *SpindleError {
	return New("E200").WithTool(tool).WithDetail(message)
}

// FromError wraps a standard error in a SpindleError.
func FromError(err error, code string) *SpindleError {
	if err == nil {
		return nil
	}
	var se *SpindleError
	if stderrors.As(err, &se) {
		return se
	}
	return New(code).Wrap(err)
}

// IsCode reports whether any error in err's chain carries the given code.
func IsCode(err error, code string) bool {
	for err != nil {
		if se, ok := err.(*SpindleError); ok && se.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// CategoryOf returns the category of the first SpindleError in err's chain.
func CategoryOf(err error) Category {
	var se *SpindleError
	if stderrors.As(err, &se) {
		return se.Category
	}
	return ""
}
