// Package suggestion holds the suggestion data model and the session-scoped
// SuggestionStore.
//
// The store is the single source of truth for suggestion status inside a
// session. It never talks to the network; the assignment coordinator, bulk
// processor, and loader request mutations through its methods. Each mutation
// publishes a fresh immutable Snapshot, so readers never observe a partially
// applied change and rollback can restore records exactly.
package suggestion
