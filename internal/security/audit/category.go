// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import "fmt"

// Category classifies an audit entry.
type Category uint8

const (
	Error Category = iota
	Warning
	Info
	DebugInfo
	AuditSuccess
	AuditFailure
	SuspiciousActivity

	numCategories
)

var categoryNames = [numCategories]string{
	Error:              "Error",
	Warning:            "Warning",
	Info:               "Info",
	DebugInfo:          "DebugInfo",
	AuditSuccess:       "AuditSuccess",
	AuditFailure:       "AuditFailure",
	SuspiciousActivity: "SuspiciousActivity",
}

// Categories returns all categories in declaration order.
func Categories() []Category {
	out := make([]Category, 0, numCategories)
	for c := Category(0); c < numCategories; c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c is one of the seven defined categories.
func (c Category) Valid() bool {
	return c < numCategories
}

// String returns the canonical name of the category.
func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// ParseCategory returns the category with the given canonical name.
func ParseCategory(name string) (Category, error) {
	for c, n := range categoryNames {
		if n == name {
			return Category(c), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown category %d", ErrInvalidArgument, uint8(c))
	}
	return []byte(categoryNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
