// Package timefilter defines the recency-window codes that bound how far back a
// collection run searches.
package timefilter

import (
	"fmt"
	"strings"

	"github.com/leakwatch/gateway/pkg/domain/shared"
)

// Code is a recency-window code understood by the authority.
type Code string

const (
	D1  Code = "D1"
	D7  Code = "D7"
	D30 Code = "D30"
	W1  Code = "W1"
	W2  Code = "W2"
	W4  Code = "W4"
	M1  Code = "M1"
	M3  Code = "M3"
	M6  Code = "M6"
	Y1  Code = "Y1"
)

// Default is used when no filter is supplied.
const Default = D1

var codes = []Code{D1, D7, D30, W1, W2, W4, M1, M3, M6, Y1}

// User-facing aliases accepted at the boundary.
var aliases = map[string]Code{
	"24h":  D1,
	"1d":   D1,
	"7d":   D7,
	"30d":  D30,
	"90d":  M3,
	"365d": Y1,
	"1y":   Y1,
}

// All returns every valid code.
func All() []Code {
	out := make([]Code, len(codes))
	copy(out, codes)
	return out
}

// IsValid reports whether c is a canonical code.
func (c Code) IsValid() bool {
	for _, v := range codes {
		if v == c {
			return true
		}
	}
	return false
}

func (c Code) String() string { return string(c) }

// Normalize maps a canonical code or alias onto a Code. Empty input yields Default.
func Normalize(raw string) (Code, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Default, nil
	}
	if c := Code(strings.ToUpper(v)); c.IsValid() {
		return c, nil
	}
	if c, ok := aliases[strings.ToLower(v)]; ok {
		return c, nil
	}
	return "", shared.NewDomainError("VALIDATION",
		fmt.Sprintf("invalid time_filter %q", raw), shared.ErrValidation)
}

// Valid reports whether raw normalizes to a code.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// OrDefault returns the canonical code for raw, falling back to Default for
// values the authority stored that no longer parse.
func OrDefault(raw string) Code {
	c, err := Normalize(raw)
	if err != nil {
		return Default
	}
	return c
}
