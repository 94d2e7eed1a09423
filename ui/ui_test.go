package ui

import (
	"context"
	"testing"
)

func TestParseLocationRoundTrip(t *testing.T) {
	loc := ParseLocation("/ledger/list?page=2")
	if loc.Path != "/ledger/list" {
		t.Fatalf("expected path /ledger/list, got %q", loc.Path)
	}
	if got := loc.Query.Get("page"); got != "2" {
		t.Fatalf("expected page=2, got %q", got)
	}
	if got := loc.FullPath(); got != "/ledger/list?page=2" {
		t.Fatalf("unexpected full path %q", got)
	}
}

func TestParseLocationEmpty(t *testing.T) {
	if got := ParseLocation("").FullPath(); got != "/" {
		t.Fatalf("expected /, got %q", got)
	}
	if got := ParseLocation("?a=b").Path; got != "/" {
		t.Fatalf("expected / for query-only input, got %q", got)
	}
}

func TestHistoryRecordsVisits(t *testing.T) {
	h := NewHistory(Location{})
	if got := h.CurrentLocation().Path; got != "/" {
		t.Fatalf("expected start at /, got %q", got)
	}

	var seen int
	h.OnVisit(func(Location) { seen++ })
	h.NavigateTo(context.Background(), Location{Path: "/login"})
	h.NavigateTo(context.Background(), Location{Path: "/ledger/list"})

	if got := h.CurrentLocation().Path; got != "/ledger/list" {
		t.Fatalf("expected current /ledger/list, got %q", got)
	}
	if len(h.Visited()) != 2 || seen != 2 {
		t.Fatalf("expected 2 visits, got %d (callback %d)", len(h.Visited()), seen)
	}
}
