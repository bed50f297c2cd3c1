package main

import (
	"strings"
	"testing"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Status", "Size"},
		[][]string{
			{"abc123", "pending", "12 MB"},
			{"def456"},
		},
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	)
	if !strings.Contains(out, "abc123") || !strings.Contains(out, "def456") {
		t.Fatalf("expected both rows in output:\n%s", out)
	}
	if !strings.Contains(out, "Status") {
		t.Fatalf("expected header in output:\n%s", out)
	}
}

func TestRenderTableEmptyHeaders(t *testing.T) {
	if out := renderTable(nil, nil, nil); out != "" {
		t.Fatalf("expected empty string, got %q", out)
	}
}
