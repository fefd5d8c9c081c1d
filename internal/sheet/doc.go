// Package sheet defines the value types shared across the synchronization
// engine: row records keyed by stable identity, insertion-ordered column
// headers, sparse style records, mutation messages, and the error taxonomy.
//
// Everything in this package is a plain value. Mutations are immutable
// messages: they describe a change but never carry references into live
// store state, so they can sit on a queue, be logged, or be replayed
// without aliasing hazards.
//
// Identity rules:
//   - A row's identity is the value of the first column. It is assigned
//     once (placeholder client-side, authoritative server-side) and never
//     reused while a store is live.
//   - Header names are unique after NFC normalization. A hidden header is
//     still present in every row's field mapping.
//   - Grid positions never appear in this package. Anything positional is
//     derived by the projector and stays session-local.
package sheet
