// Package ui formats command output for the taskprovider CLI.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/taskprovider/internal/provider"
	"github.com/conduit-lang/taskprovider/internal/store"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a headline with optional detail and follow-up commands
type Message struct {
	Level   Level
	Context string
	Problem string
	Detail  string
	Hints   []string
	NoColor bool
}

func (l Level) colors() (header, body *color.Color, symbol string) {
	switch l {
	case LevelWarning:
		return color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "!"
	case LevelInfo:
		return color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "i"
	default:
		return color.New(color.FgRed, color.Bold), color.New(color.FgRed), "x"
	}
}

// Format renders m:
//
//	x UNKNOWN URI: notes
//	   The provider does not route this identifier.
//
//	   → List routes: taskprovider config show
func Format(m Message) string {
	var b strings.Builder

	header, body, symbol := m.Level.colors()
	hint := color.New(color.FgCyan)
	if m.NoColor {
		header.DisableColor()
		body.DisableColor()
		hint.DisableColor()
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	if m.Detail != "" {
		body.Fprintf(&b, "   %s\n", m.Detail)
	}

	if len(m.Hints) > 0 {
		b.WriteString("\n")
		for _, h := range m.Hints {
			hint.Fprintf(&b, "   → %s\n", h)
		}
	}

	return b.String()
}

// Write writes a formatted message
func Write(w io.Writer, m Message) {
	fmt.Fprint(w, Format(m))
}

// Success formats a success line
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, Success(message, noColor))
}

// DispatchError explains a dispatcher failure with hints for the likely fix
func DispatchError(err error, noColor bool) string {
	m := Message{Level: LevelError, Problem: err.Error(), NoColor: noColor}

	switch {
	case provider.IsUnrecognized(err):
		m.Context = "unknown uri"
		m.Detail = "The provider does not route this identifier."
		m.Hints = []string{
			"Show configured collections: taskprovider config show",
			"Identifiers look like <authority>/<collection>[/<id>]",
		}
	case provider.IsNotInitialized(err):
		m.Context = "store unavailable"
		m.Detail = "The backing store could not be opened."
		m.Hints = []string{"Check database.driver and database.url: taskprovider config show"}
	case provider.IsNotImplemented(err):
		m.Context = "not supported"
		m.Detail = "The configured store does not support this operation."
	case store.IsConstraintViolation(err):
		m.Context = "constraint violation"
		m.Detail = "The row was rejected by the table's constraints."
		m.Hints = []string{"Provide every required column, e.g. --set description=... --set priority=1"}
	case store.IsInvalidInput(err):
		m.Context = "invalid input"
		m.Hints = []string{"Columns: " + strings.Join(store.TasksTable().ColumnNames(), ", ")}
	case provider.IsWriteFailed(err):
		m.Context = "write failed"
	default:
		m.Context = "error"
	}

	return Format(m)
}

// ConfigError explains a configuration failure
func ConfigError(err error, noColor bool) string {
	return Format(Message{
		Level:   LevelError,
		Context: "configuration error",
		Problem: err.Error(),
		Hints: []string{
			"View config: cat taskprovider.yml",
			"Get help: taskprovider --help",
		},
		NoColor: noColor,
	})
}
