package mastodon

import "strings"

// CompareID orders two status ids numerically. Mastodon ids are decimal
// strings too large for native integers, so they are compared as unbounded
// integers: by digit-string length after stripping leading zeros, then
// lexicographically. Returns -1, 0, or 1.
func CompareID(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// MaxID returns the larger of two status ids under CompareID ordering.
func MaxID(a, b string) string {
	if CompareID(a, b) >= 0 {
		return a
	}
	return b
}
