// pkg/dxlink/registry.go
package dxlink

import "sort"

// registry tracks which symbols the session currently subscribes to.
//
// A symbol counts as subscribed only when all three event kinds were added
// for it; removal covers all three kinds in one step. The registry is the
// source of truth for intended protocol state: feed subscription is
// fire-and-forget, there is no wire ack to wait for.
type registry struct {
	symbols map[string]struct{}
}

func newRegistry() *registry {
	return &registry{symbols: make(map[string]struct{})}
}

// addDiff stages untracked symbols for addition and marks them tracked.
// Already subscribed symbols produce no entries (idempotent subscribe).
func (r *registry) addDiff(symbols []string) []SubscriptionEntry {
	var entries []SubscriptionEntry
	for _, sym := range symbols {
		if sym == "" {
			continue
		}
		if _, ok := r.symbols[sym]; ok {
			continue
		}
		r.symbols[sym] = struct{}{}
		entries = append(entries, expandKinds(sym)...)
	}
	return entries
}

// removeDiff stages tracked symbols for removal and untracks them. Symbols
// that were never subscribed produce no entries.
func (r *registry) removeDiff(symbols []string) []SubscriptionEntry {
	var entries []SubscriptionEntry
	for _, sym := range symbols {
		if _, ok := r.symbols[sym]; !ok {
			continue
		}
		delete(r.symbols, sym)
		entries = append(entries, expandKinds(sym)...)
	}
	return entries
}

// list returns a sorted snapshot of subscribed symbols.
func (r *registry) list() []string {
	out := make([]string, 0, len(r.symbols))
	for sym := range r.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (r *registry) size() int { return len(r.symbols) }

func (r *registry) clear() {
	r.symbols = make(map[string]struct{})
}

// expandKinds expands one symbol to entries for every event kind.
func expandKinds(sym string) []SubscriptionEntry {
	return []SubscriptionEntry{
		{Kind: KindTrade, Symbol: sym},
		{Kind: KindQuote, Symbol: sym},
		{Kind: KindSummary, Symbol: sym},
	}
}
