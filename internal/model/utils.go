package model

// TruncateString caps a string at maxLength bytes so oversized API payloads
// never overflow a varchar column.
func TruncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength]
}
