// Package util holds small logging helpers.
package util

// MaskSecret hides all but the tail of a credential so log lines stay
// correlatable without exposing the secret.
func MaskSecret(s string) string {
	if len(s) < 12 {
		return "***"
	}
	return "..." + s[len(s)-8:]
}
