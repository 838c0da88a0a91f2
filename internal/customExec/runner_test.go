package customExec

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	got := truncate(strings.Repeat("x", 20), 5)
	if got != "xxxxx...(truncated)" {
		t.Errorf("truncate = %q", got)
	}
}
