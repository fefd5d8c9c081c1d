package engine

import (
	"fmt"

	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/wire"
)

// eventMutations translates one pushed delta into store mutations.
//
// The second return reports whether the delta requires a full row
// re-fetch: rowAdded carries identities only, so the session must fetch
// the new rows' field values from the service afterwards.
func eventMutations(ev *wire.Event) ([]sheet.Mutation, bool, error) {
	switch ev.Kind {
	case wire.KindColumnAdded:
		if ev.Column == "" {
			return nil, false, fmt.Errorf("columnAdded event without column name")
		}
		return []sheet.Mutation{sheet.AddColumn{Name: ev.Column}}, false, nil

	case wire.KindColumnRemoved:
		if ev.Column == "" {
			return nil, false, fmt.Errorf("columnRemoved event without column name")
		}
		return []sheet.Mutation{sheet.RemoveColumn{Name: ev.Column}}, false, nil

	case wire.KindRowAdded:
		if len(ev.Identities) == 0 {
			return nil, false, fmt.Errorf("rowAdded event without identities")
		}
		ms := make([]sheet.Mutation, 0, len(ev.Identities))
		for _, id := range ev.Identities {
			ms = append(ms, sheet.AddRow{Identity: id})
		}
		return ms, true, nil

	case wire.KindRowsRemoved:
		if len(ev.Identities) == 0 {
			return nil, false, fmt.Errorf("rowsRemoved event without identities")
		}
		return []sheet.Mutation{sheet.RemoveRows{Identities: ev.Identities}}, false, nil

	case wire.KindCellsChanged:
		ms := make([]sheet.Mutation, 0, len(ev.Cells))
		for _, c := range ev.Cells {
			ms = append(ms, sheet.SetCell{Identity: c.Identity, Header: c.Field, Value: c.NewValue})
		}
		if len(ms) == 0 {
			return nil, false, fmt.Errorf("cellsChanged event without cells")
		}
		return ms, false, nil

	case wire.KindStyleChanged:
		if ev.Style == nil {
			return nil, false, fmt.Errorf("styleChanged event without style payload")
		}
		return []sheet.Mutation{sheet.SetStyle{
			Identity: ev.Style.Identity,
			Header:   ev.Style.Field,
			Style: sheet.StylePayload{
				Color:      ev.Style.Color,
				Background: ev.Style.Background,
				Bold:       ev.Style.Bold,
				Italic:     ev.Style.Italic,
			},
		}}, false, nil

	default:
		return nil, false, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}
