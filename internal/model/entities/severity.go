package entities

import (
	"fmt"
	"strings"
)

// SeverityLevel is the ordered classification of a reading or a system condition.
type SeverityLevel int

const (
	SeverityOk SeverityLevel = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

var severityNames = [...]string{"ok", "info", "warning", "error"}

func (s SeverityLevel) String() string {
	if s < SeverityOk || s > SeverityError {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// Valid reports whether s is one of the four defined levels.
func (s SeverityLevel) Valid() bool { return s >= SeverityOk && s <= SeverityError }

func (s SeverityLevel) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *SeverityLevel) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeverity accepts the level names case-insensitively.
func ParseSeverity(v string) (SeverityLevel, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, n := range severityNames {
		if n == v {
			return SeverityLevel(i), nil
		}
	}
	return SeverityOk, fmt.Errorf("unknown severity %q", v)
}

// MaxSeverity returns the highest of the given levels, SeverityOk for none.
func MaxSeverity(levels ...SeverityLevel) SeverityLevel {
	out := SeverityOk
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}
