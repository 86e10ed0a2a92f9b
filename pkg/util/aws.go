// Package util provides small helpers shared across the ENI manager:
// string-slice and tag-map operations plus IPv4 CIDR arithmetic.
package util

// ContainsString checks if a string is in a slice of strings
func ContainsString(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}

// RemoveString removes a string from a slice of strings
func RemoveString(slice []string, s string) []string {
	result := make([]string, 0, len(slice))
	for _, item := range slice {
		if item != s {
			result = append(result, item)
		}
	}
	return result
}

// MergeMaps merges two maps, with values from the second map taking precedence
func MergeMaps(m1, m2 map[string]string) map[string]string {
	result := make(map[string]string)

	// Copy all keys from m1
	for k, v := range m1 {
		result[k] = v
	}

	// Copy all keys from m2, overwriting any from m1
	for k, v := range m2 {
		result[k] = v
	}

	return result
}
