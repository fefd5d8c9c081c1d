// Package store implements the canonical sheet store: the single source of
// truth for one project's rows, columns, style overlay, formula overlay,
// and selection state.
//
// Canonical state is keyed by stable identity: rows by the identity
// column's value, columns by header name, never by grid position. The
// store exposes three write paths:
//
//   - ApplyLocal: optimistic application of a user mutation, marking the
//     affected cell/row/column pending and stashing rollback state.
//   - ApplyRemote: merge of a delta from another session. A delta never
//     overwrites a pending cell (the value is cached and deferred until
//     the pending edit resolves) and clears pending markers it confirms.
//   - Acknowledge / Rollback: resolution of a pending mutation after the
//     persistence layer answers. Acknowledge of an AddRow performs the
//     atomic placeholder-to-authoritative identity rename, re-keying every
//     structure that referenced the placeholder. Rollback restores exactly
//     the stashed state, then applies any deferred remote value.
//
// Single-writer discipline: all mutations are discrete, non-overlapping
// transitions applied from one goroutine (the session engine's loop). The
// store holds no mutex; Snapshot() returns deep copies that are safe to
// retain anywhere.
//
// Style resolution is an incrementally maintained (identity, header) index
// stamped with seqs from a logical clock; lookup is O(1) per cell and
// "last applied wins" is unambiguous under concurrent writers.
package store
