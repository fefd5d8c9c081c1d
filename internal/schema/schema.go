// Package schema loads sheet project definitions from CUE files. A
// definition names the project, its column set with the identity column
// first, and optional seed rows, and is used to create projects on the
// service.
package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

// Column is one declared column.
type Column struct {
	Name string `json:"name"`
}

// Definition is a sheet project declaration. The first column is the
// identity column.
type Definition struct {
	ID      string              `json:"id"`
	Columns []Column            `json:"columns"`
	Rows    []map[string]string `json:"rows,omitempty"`
}

// ColumnNames returns the declared column names in order.
func (d *Definition) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Load reads the CUE package in dir and extracts its project
// definition. The definition lives under the top-level "project" field.
func Load(dir string) (*Definition, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("schema directory not found: %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("access schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}

	projectVal := value.LookupPath(cue.ParsePath("project"))
	if !projectVal.Exists() {
		return nil, fmt.Errorf("no top-level \"project\" field in %s", dir)
	}

	var def Definition
	if err := projectVal.Decode(&def); err != nil {
		return nil, fmt.Errorf("decoding project: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the structural rules a definition must satisfy.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return &sheet.ValidationError{Message: "project id is required"}
	}
	if len(d.Columns) == 0 {
		return &sheet.ValidationError{Message: "at least the identity column is required"}
	}

	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		key := sheet.NormalizeHeader(c.Name)
		if key == "" {
			return &sheet.ValidationError{Message: "empty column name"}
		}
		if seen[key] {
			return &sheet.InvariantViolation{Message: fmt.Sprintf("duplicate column %q", c.Name)}
		}
		seen[key] = true
	}

	identity := d.Columns[0].Name
	for i, row := range d.Rows {
		if row[identity] == "" {
			return &sheet.ValidationError{Message: fmt.Sprintf("seed row %d has no %s", i, identity)}
		}
		for field := range row {
			if !seen[sheet.NormalizeHeader(field)] {
				return &sheet.NotFoundError{Target: "column", Key: field}
			}
		}
	}
	return nil
}

// SeedRows converts the definition's seed rows to row records keyed by
// the identity column.
func (d *Definition) SeedRows() []sheet.RowRecord {
	if len(d.Rows) == 0 || len(d.Columns) == 0 {
		return nil
	}
	identity := d.Columns[0].Name
	out := make([]sheet.RowRecord, 0, len(d.Rows))
	for _, row := range d.Rows {
		fields := make(map[string]string, len(row))
		for k, v := range row {
			fields[k] = v
		}
		out = append(out, sheet.RowRecord{Identity: row[identity], Fields: fields})
	}
	return out
}
