// Package textutil provides the truncation helpers used when shrinking
// transcript content into digests, ledger records, and error messages.
package textutil

import "strings"

// Truncate trims value and cuts it to at most max characters, appending an
// ellipsis when something was dropped.
func Truncate(value string, max int) string {
	if max <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return strings.TrimRight(string(runes[:max-3]), " \t\n") + "..."
}

// TruncateMiddle keeps the head and tail of value, replacing the middle
// with an ellipsis line. Failure context usually lives at both ends.
func TruncateMiddle(value string, max int) string {
	if max <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	const glue = "\n...\n"
	if max <= len(glue)+10 {
		return Truncate(value, max)
	}
	headLen := (max - len(glue)) / 2
	tailLen := max - len(glue) - headLen
	head := strings.TrimRight(string(runes[:headLen]), " \t\n")
	tail := strings.TrimLeft(string(runes[len(runes)-tailLen:]), " \t\n")
	return head + glue + tail
}

// TruncateTail keeps the last max characters of value. Used for command
// output, where failure messages live at the end.
func TruncateTail(value string, max int) string {
	if max <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return "..." + strings.TrimLeft(string(runes[len(runes)-(max-3):]), " \t\n")
}
