package tgui

// TruncRunes caps s at n runes, appending an ellipsis when it had to cut.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
