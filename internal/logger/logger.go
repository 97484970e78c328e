// Package logger defines the small structured-logging interface used
// throughout the node, decoupled from any concrete backend.
package logger

import (
	"KoordeDHT/internal/domain"
)

// Field is a single structured key:value log attribute.
type Field struct {
	Key string
	Val any
}

// Logger is the minimal structured logging interface every internal
// package depends on.
type Logger interface {
	Named(name string) Logger
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// F is a concise constructor for a Field.
func F(key string, val any) Field { return Field{Key: key, Val: val} }

// FNode renders a domain.Node as a readable structured field.
func FNode(key string, n domain.Node) Field {
	return Field{
		Key: key,
		Val: map[string]any{
			"id":   n.ID.String(),
			"addr": n.Addr(),
		},
	}
}

// ----------------------------------------------------------------
// NopLogger is a Logger implementation that discards everything.
type NopLogger struct{}

func (l *NopLogger) Named(name string) Logger          { return l }
func (l *NopLogger) With(fields ...Field) Logger       { return l }
func (l *NopLogger) Debug(msg string, fields ...Field) {}
func (l *NopLogger) Info(msg string, fields ...Field)  {}
func (l *NopLogger) Warn(msg string, fields ...Field)  {}
func (l *NopLogger) Error(msg string, fields ...Field) {}
