package textutil

import (
	"strings"
	"testing"
)

func TestTruncateShortInputUnchanged(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("expected unchanged string, got %q", got)
	}
}

func TestTruncateAppendsEllipsis(t *testing.T) {
	got := Truncate("abcdefghij", 8)
	if got != "abcde..." {
		t.Fatalf("expected %q, got %q", "abcde...", got)
	}
	if len(got) != 8 {
		t.Fatalf("expected length 8, got %d", len(got))
	}
}

func TestTruncateMultibyte(t *testing.T) {
	got := Truncate(strings.Repeat("日", 20), 10)
	if count := len([]rune(got)); count != 10 {
		t.Fatalf("expected 10 runes, got %d", count)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
}

func TestTruncateTailKeepsEnd(t *testing.T) {
	got := TruncateTail("abcdefghij", 8)
	if got != "...fghij" {
		t.Fatalf("expected %q, got %q", "...fghij", got)
	}
}

func TestTruncateMiddleKeepsBothEnds(t *testing.T) {
	input := strings.Repeat("a", 50) + strings.Repeat("z", 50)
	got := TruncateMiddle(input, 40)
	if !strings.HasPrefix(got, "a") || !strings.HasSuffix(got, "z") {
		t.Fatalf("expected both ends retained, got %q", got)
	}
	if !strings.Contains(got, "\n...\n") {
		t.Fatalf("expected middle glue, got %q", got)
	}
}

func TestTruncateMiddleTinyBudgetFallsBack(t *testing.T) {
	got := TruncateMiddle(strings.Repeat("x", 100), 10)
	if len(got) > 10 {
		t.Fatalf("expected at most 10 chars, got %d", len(got))
	}
}
