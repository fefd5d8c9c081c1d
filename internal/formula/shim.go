// Package formula intercepts cell editing to provide formula entry on
// top of a grid that only understands plain values. The shim watches the
// edit buffer for the '=' sentinel, captures pointer interaction while a
// formula is being typed, and on commit hands the grid a computed value
// while keeping the raw text as an overlay.
package formula

import (
	"fmt"

	"github.com/gridhouse/sheetsync/internal/project"
	"github.com/gridhouse/sheetsync/internal/sheet"
)

// State is the shim's editing state.
type State int

const (
	// StateIdle means no cell is being edited.
	StateIdle State = iota
	// StateEditing means a cell edit is open with plain text.
	StateEditing
	// StateFormula means the buffer starts with '=': pointer clicks
	// insert references instead of moving the selection.
	StateFormula
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateFormula:
		return "formula"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Engine evaluates a committed formula. Evaluator is the built-in
// implementation; callers that need a different grammar plug in their
// own.
type Engine interface {
	Evaluate(raw string, res Resolver) (string, error)
}

// Shim tracks one edit at a time. Not safe for concurrent use; drive it
// from the same goroutine that owns the UI event stream.
type Shim struct {
	state  State
	cell   sheet.CellKey
	text   string
	cursor int
	eval   Engine
}

// NewShim returns an idle shim evaluating formulas with eng. A nil eng
// falls back to the built-in Evaluator.
func NewShim(eng Engine) *Shim {
	if eng == nil {
		eng = &Evaluator{}
	}
	return &Shim{eval: eng}
}

// State returns the current editing state.
func (s *Shim) State() State { return s.state }

// Text returns the current edit buffer.
func (s *Shim) Text() string { return s.text }

// Cell returns the cell being edited. Zero when idle.
func (s *Shim) Cell() sheet.CellKey { return s.cell }

// Cursor returns the insertion point inside the edit buffer.
func (s *Shim) Cursor() int { return s.cursor }

// SetCursor moves the insertion point. Pointer references land there
// instead of at the end of the buffer. Out-of-range positions are
// clamped. No-op when idle.
func (s *Shim) SetCursor(pos int) {
	if s.state == StateIdle {
		return
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.text) {
		pos = len(s.text)
	}
	s.cursor = pos
}

// Begin opens an edit on a cell. Pass the cell's raw formula when an
// overlay exists so the user edits the formula, not its result;
// otherwise pass the displayed value.
func (s *Shim) Begin(cell sheet.CellKey, initial string) {
	s.cell = cell
	s.setText(initial)
}

// Input replaces the edit buffer. The state follows the sentinel: a
// buffer starting with '=' is a formula, anything else plain text.
// No-op when idle.
func (s *Shim) Input(text string) {
	if s.state == StateIdle {
		return
	}
	s.setText(text)
}

func (s *Shim) setText(text string) {
	s.text = text
	s.cursor = len(text)
	if len(text) > 0 && text[0] == '=' {
		s.state = StateFormula
	} else {
		s.state = StateEditing
	}
}

// PointerDown reports a click on the visible grid while an edit is open.
// In formula state the click is captured: a reference token for the
// clicked cell, in canonical coordinates, is inserted at the cursor and
// true is returned. In any other state it returns false and the caller
// performs its normal selection behavior.
func (s *Shim) PointerDown(view project.View, row, col int) (bool, error) {
	if s.state != StateFormula {
		return false, nil
	}
	canonical, err := view.CanonicalColumn(col)
	if err != nil {
		return true, err
	}
	if row < 0 || row >= len(view.Identities) {
		return true, &sheet.ValidationError{Message: fmt.Sprintf("row %d out of range", row)}
	}
	tok := sheet.RefToken(canonical, row)
	s.text = s.text[:s.cursor] + tok + s.text[s.cursor:]
	s.cursor += len(tok)
	return true, nil
}

// Commit closes the edit. For a formula it evaluates against the
// resolver and returns the computed value together with the raw text;
// for plain text it returns the buffer with an empty raw. On evaluation
// failure the edit stays open so the user can correct it.
func (s *Shim) Commit(res Resolver) (value string, raw string, err error) {
	switch s.state {
	case StateIdle:
		return "", "", &sheet.ValidationError{Message: "no edit in progress"}
	case StateEditing:
		value = s.text
		s.reset()
		return value, "", nil
	default:
		raw = s.text
		value, err = s.eval.Evaluate(raw, res)
		if err != nil {
			return "", "", err
		}
		s.reset()
		return value, raw, nil
	}
}

// Cancel abandons the edit.
func (s *Shim) Cancel() {
	s.reset()
}

func (s *Shim) reset() {
	s.state = StateIdle
	s.cell = sheet.CellKey{}
	s.text = ""
	s.cursor = 0
}
