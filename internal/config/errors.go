package config

import (
	"fmt"
	"strings"
)

// ErrorType classifies configuration failures.
type ErrorType string

const (
	ErrReading    ErrorType = "reading"
	ErrParsing    ErrorType = "parsing"
	ErrValidation ErrorType = "validation"
)

// ConfigError is fatal: the controller never starts a cycle with it.
type ConfigError struct {
	Type     ErrorType
	Message  string
	Problems []string
	Err      error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "config %s error: %s", e.Type, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }
