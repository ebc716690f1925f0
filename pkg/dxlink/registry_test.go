// pkg/dxlink/registry_test.go
package dxlink

import (
	"reflect"
	"testing"
)

func TestRegistry_AddDiffExpandsKinds(t *testing.T) {
	reg := newRegistry()

	entries := reg.addDiff([]string{"AAPL"})
	if len(entries) != 3 {
		t.Fatalf("addDiff produced %d entries, want 3", len(entries))
	}
	want := []SubscriptionEntry{
		{Kind: KindTrade, Symbol: "AAPL"},
		{Kind: KindQuote, Symbol: "AAPL"},
		{Kind: KindSummary, Symbol: "AAPL"},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %+v, want %+v", entries, want)
	}
}

func TestRegistry_AddDiffIdempotent(t *testing.T) {
	reg := newRegistry()

	first := reg.addDiff([]string{"AAPL", "MSFT"})
	if len(first) != 6 {
		t.Fatalf("first addDiff produced %d entries, want 6", len(first))
	}

	second := reg.addDiff([]string{"AAPL", "MSFT"})
	if len(second) != 0 {
		t.Errorf("repeated addDiff produced %d entries, want 0", len(second))
	}

	mixed := reg.addDiff([]string{"AAPL", "TSLA"})
	if len(mixed) != 3 {
		t.Errorf("mixed addDiff produced %d entries, want 3 (only TSLA)", len(mixed))
	}
	if reg.size() != 3 {
		t.Errorf("size = %d, want 3", reg.size())
	}
}

func TestRegistry_AddDiffSkipsEmpty(t *testing.T) {
	reg := newRegistry()
	if entries := reg.addDiff([]string{"", "AAPL", ""}); len(entries) != 3 {
		t.Errorf("addDiff produced %d entries, want 3", len(entries))
	}
}

func TestRegistry_RemoveDiff(t *testing.T) {
	reg := newRegistry()
	reg.addDiff([]string{"AAPL", "MSFT"})

	entries := reg.removeDiff([]string{"AAPL", "NVDA"})
	if len(entries) != 3 {
		t.Fatalf("removeDiff produced %d entries, want 3 (NVDA never subscribed)", len(entries))
	}
	for _, e := range entries {
		if e.Symbol != "AAPL" {
			t.Errorf("removal entry for %s, want AAPL only", e.Symbol)
		}
	}
	if got := reg.list(); !reflect.DeepEqual(got, []string{"MSFT"}) {
		t.Errorf("remaining symbols = %v, want [MSFT]", got)
	}
}

func TestRegistry_ListSortedAndClear(t *testing.T) {
	reg := newRegistry()
	reg.addDiff([]string{"MSFT", "AAPL", "TSLA"})

	if got := reg.list(); !reflect.DeepEqual(got, []string{"AAPL", "MSFT", "TSLA"}) {
		t.Errorf("list = %v, want sorted", got)
	}

	reg.clear()
	if reg.size() != 0 {
		t.Errorf("size after clear = %d, want 0", reg.size())
	}
	if entries := reg.removeDiff([]string{"AAPL"}); len(entries) != 0 {
		t.Errorf("removeDiff after clear produced %d entries, want 0", len(entries))
	}
}
