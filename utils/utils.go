package utils

import "strings"

func Ptr[T any](v T) *T {
	return &v
}

// StringOrNil returns nil for an empty or all whitespace string.
func StringOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
