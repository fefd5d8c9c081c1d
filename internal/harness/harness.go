// Package harness runs YAML conformance scenarios against the sheet
// store. A scenario seeds the canonical state, drives a flow of local,
// remote and acknowledgement steps, and records the visible grid after
// each step; golden traces pin the expected evolution.
package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridhouse/sheetsync/internal/project"
	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/store"
)

// Scenario defines one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Seed establishes the canonical state before the flow runs.
	Seed Seed `yaml:"seed"`

	// Flow is the ordered list of steps to execute.
	Flow []Step `yaml:"flow"`
}

// Seed is the initial sheet content.
type Seed struct {
	Columns []string            `yaml:"columns"`
	Rows    []map[string]string `yaml:"rows,omitempty"`
}

// Step is one flow step. Exactly one of the step fields must be set.
type Step struct {
	// Local applies an optimistic local mutation.
	Local *MutationSpec `yaml:"local,omitempty"`

	// Remote applies a reconciled remote mutation.
	Remote *MutationSpec `yaml:"remote,omitempty"`

	// Ack acknowledges a pending local mutation. NewIdentity carries the
	// authoritative identity for row-creation acks.
	Ack         *MutationSpec `yaml:"ack,omitempty"`
	NewIdentity string        `yaml:"newIdentity,omitempty"`

	// Nack rolls back a failed local mutation.
	Nack *MutationSpec `yaml:"nack,omitempty"`

	// Hide toggles the named column's visibility.
	Hide string `yaml:"hide,omitempty"`

	// Check toggles the checked flag of the named row.
	Check string `yaml:"check,omitempty"`
}

// MutationSpec is the YAML form of a sheet mutation.
type MutationSpec struct {
	Op         string   `yaml:"op"`
	Name       string   `yaml:"name,omitempty"`
	Identity   string   `yaml:"identity,omitempty"`
	Identities []string `yaml:"identities,omitempty"`
	Header     string   `yaml:"header,omitempty"`
	Value      string   `yaml:"value,omitempty"`
	Color      string   `yaml:"color,omitempty"`
	Background string   `yaml:"background,omitempty"`
	Bold       bool     `yaml:"bold,omitempty"`
	Italic     bool     `yaml:"italic,omitempty"`
}

// Mutation converts the YAML form to a sheet mutation.
func (m *MutationSpec) Mutation() (sheet.Mutation, error) {
	switch m.Op {
	case "addColumn":
		return sheet.AddColumn{Name: m.Name}, nil
	case "removeColumn":
		return sheet.RemoveColumn{Name: m.Name}, nil
	case "addRow":
		return sheet.AddRow{Identity: m.Identity}, nil
	case "removeRows":
		return sheet.RemoveRows{Identities: m.Identities}, nil
	case "setCell":
		return sheet.SetCell{Identity: m.Identity, Header: m.Header, Value: m.Value}, nil
	case "setStyle":
		return sheet.SetStyle{
			Identity: m.Identity,
			Header:   m.Header,
			Style: sheet.StylePayload{
				Color:      m.Color,
				Background: m.Background,
				Bold:       m.Bold,
				Italic:     m.Italic,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown mutation op %q", m.Op)
	}
}

// TraceEvent captures the visible grid after one flow step.
type TraceEvent struct {
	Step    int        `json:"step"`
	Action  string     `json:"action"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Pending int        `json:"pending"`
}

// Result is a completed scenario run.
type Result struct {
	Scenario string       `json:"scenario"`
	Trace    []TraceEvent `json:"trace"`
}

// LoadScenario reads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s has no name", path)
	}
	if len(sc.Seed.Columns) == 0 {
		return nil, fmt.Errorf("scenario %s seeds no columns", sc.Name)
	}
	return &sc, nil
}

// Run executes the scenario against a fresh store and returns the trace.
func Run(sc *Scenario) (*Result, error) {
	st := store.New()

	identity := sc.Seed.Columns[0]
	rows := make([]sheet.RowRecord, len(sc.Seed.Rows))
	for i, fields := range sc.Seed.Rows {
		rows[i] = sheet.RowRecord{Identity: fields[identity], Fields: fields}
	}
	if err := st.Seed(sc.Seed.Columns, rows); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	result := &Result{Scenario: sc.Name}
	for i, step := range sc.Flow {
		action, err := runStep(st, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, action, err)
		}

		snap := st.Snapshot()
		view := project.Build(snap)
		result.Trace = append(result.Trace, TraceEvent{
			Step:    i + 1,
			Action:  action,
			Headers: view.Headers,
			Rows:    view.Rows,
			Pending: len(snap.PendingCells) + len(snap.PendingRows) + len(snap.PendingColumns),
		})
	}
	return result, nil
}

func runStep(st *store.Store, step Step) (string, error) {
	switch {
	case step.Local != nil:
		m, err := step.Local.Mutation()
		if err != nil {
			return "local", err
		}
		return "local " + sheet.Describe(m), st.ApplyLocal(m)
	case step.Remote != nil:
		m, err := step.Remote.Mutation()
		if err != nil {
			return "remote", err
		}
		return "remote " + sheet.Describe(m), st.ApplyRemote(m)
	case step.Ack != nil:
		m, err := step.Ack.Mutation()
		if err != nil {
			return "ack", err
		}
		return "ack " + sheet.Describe(m), st.Acknowledge(m, step.NewIdentity)
	case step.Nack != nil:
		m, err := step.Nack.Mutation()
		if err != nil {
			return "nack", err
		}
		return "nack " + sheet.Describe(m), st.Rollback(m)
	case step.Hide != "":
		return "hide " + step.Hide, st.ToggleVisibility(step.Hide)
	case step.Check != "":
		return "check " + step.Check, st.ToggleRowChecked(step.Check)
	default:
		return "", fmt.Errorf("empty flow step")
	}
}
