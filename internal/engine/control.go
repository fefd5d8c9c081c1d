package engine

import (
	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/store"
)

// CommitCell submits a cell edit together with the raw formula text
// that produced its value. Pass an empty formula for a plain edit; a
// plain edit clears any existing overlay on the cell.
func (s *Session) CommitCell(identity, header, value, formula string) bool {
	return s.queue.Enqueue(Message{
		Type:     MessageTypeLocal,
		Request:  s.idGen.Generate(),
		Mutation: sheet.SetCell{Identity: identity, Header: header, Value: value},
		Formula:  formula,
	})
}

// ToggleRowChecked flips the checked flag on a row.
// Session-local: no persistence round trip.
func (s *Session) ToggleRowChecked(identity string) bool {
	return s.queue.Enqueue(Message{
		Type: MessageTypeControl,
		Control: func(st *store.Store) error {
			return st.ToggleRowChecked(identity)
		},
	})
}

// SelectColumn marks a canonical column index as selected for deletion.
// Pass -1 to clear the selection.
func (s *Session) SelectColumn(idx int) bool {
	return s.queue.Enqueue(Message{
		Type: MessageTypeControl,
		Control: func(st *store.Store) error {
			return st.SelectColumn(idx)
		},
	})
}

// ToggleVisibility flips a column's display flag. Hidden columns stay in
// the canonical state and reappear in their original position.
func (s *Session) ToggleVisibility(name string) bool {
	return s.queue.Enqueue(Message{
		Type: MessageTypeControl,
		Control: func(st *store.Store) error {
			return st.ToggleVisibility(name)
		},
	})
}
