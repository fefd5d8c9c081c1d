package engine

import (
	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/store"
	"github.com/gridhouse/sheetsync/internal/wire"
)

// MessageType distinguishes between message kinds.
type MessageType int

const (
	// MessageTypeLocal is a local mutation submitted through Do.
	MessageTypeLocal MessageType = iota + 1
	// MessageTypeAck confirms a local mutation persisted successfully.
	MessageTypeAck
	// MessageTypeNack reports a local mutation the service rejected.
	MessageTypeNack
	// MessageTypeRemote is a delta pushed by the service.
	MessageTypeRemote
	// MessageTypeRefetch carries the result of a full row re-fetch.
	MessageTypeRefetch
	// MessageTypeControl is a session-local store operation (selection,
	// visibility) that needs no persistence round trip.
	MessageTypeControl
)

// Message wraps everything the session loop processes. Exactly the
// fields selected by Type are populated.
type Message struct {
	Type     MessageType
	Request  string // correlation token, set on local/ack/nack
	Mutation sheet.Mutation
	Event    *wire.Event

	// NewIdentity is the server-assigned identity on an addRow ack.
	NewIdentity string
	// Err is the service rejection on a nack, or the fetch error on a
	// failed refetch.
	Err error
	// Rows is the fetched row set on a successful refetch.
	Rows []sheet.RowRecord
	// Formula is the raw formula text behind a SetCell, kept as an
	// overlay so re-editing the cell shows the formula again.
	Formula string
	// Control runs a session-local store operation on the loop goroutine.
	Control func(*store.Store) error
}
