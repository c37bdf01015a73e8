package common

import "strings"

// ContainsInsensitive checks if a string contains a substring, ignoring case.
func ContainsInsensitive(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
