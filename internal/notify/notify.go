// Package notify delivers user-facing notices from the recorder: device
// failures, upload results and recording state changes.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"
)

// Notifier surfaces a short message to the user
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string, err error)
}

// TerminalNotifier prints colored one-line notices
type TerminalNotifier struct {
	out     io.Writer
	info    *color.Color
	success *color.Color
	failure *color.Color
	mu      sync.Mutex
}

// NewTerminalNotifier writes notices to out
func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{
		out:     out,
		info:    color.New(color.FgCyan),
		success: color.New(color.FgGreen, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
	}
}

func (n *TerminalNotifier) Info(msg string) {
	n.print(n.info, "•", msg)
}

func (n *TerminalNotifier) Success(msg string) {
	n.print(n.success, "✓", msg)
}

func (n *TerminalNotifier) Error(msg string, err error) {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	n.print(n.failure, "✗", msg)
}

func (n *TerminalNotifier) print(c *color.Color, symbol, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c.Fprintf(n.out, "%s %s\n", symbol, msg)
}

// LogNotifier records notices in the structured log
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by logger
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Info(msg string) {
	n.logger.Info(msg)
}

func (n *LogNotifier) Success(msg string) {
	n.logger.Info(msg, slog.Bool("success", true))
}

func (n *LogNotifier) Error(msg string, err error) {
	attrs := []any{slog.Bool("success", false)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	n.logger.Error(msg, attrs...)
}

// Multi fans notices out to several notifiers
type Multi []Notifier

func (m Multi) Info(msg string) {
	for _, n := range m {
		n.Info(msg)
	}
}

func (m Multi) Success(msg string) {
	for _, n := range m {
		n.Success(msg)
	}
}

func (m Multi) Error(msg string, err error) {
	for _, n := range m {
		n.Error(msg, err)
	}
}

// Discard drops every notice
type Discard struct{}

func (Discard) Info(string)         {}
func (Discard) Success(string)      {}
func (Discard) Error(string, error) {}
