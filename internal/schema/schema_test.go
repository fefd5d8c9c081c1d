package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

func writeCUE(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "project.cue"), []byte(content), 0o644)
	require.NoError(t, err)
	return dir
}

func TestLoad_Catalog(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "catalog"))
	require.NoError(t, err)

	assert.Equal(t, "catalog", def.ID)
	assert.Equal(t, []string{"productId", "name", "price"}, def.ColumnNames())

	rows := def.SeedRows()
	require.Len(t, rows, 2)
	assert.Equal(t, "p1", rows[0].Identity)
	assert.Equal(t, "Widget", rows[0].Fields["name"])
	assert.Equal(t, "p2", rows[1].Identity)
	assert.Equal(t, "7.50", rows[1].Fields["price"])
}

func TestLoad_MinimalHasNoSeedRows(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "minimal"))
	require.NoError(t, err)

	assert.Equal(t, []string{"sku"}, def.ColumnNames())
	assert.Nil(t, def.SeedRows())
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoad_NoProjectField(t *testing.T) {
	dir := writeCUE(t, `package p

other: {id: "x"}
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project")
}

func TestLoad_DuplicateColumns(t *testing.T) {
	dir := writeCUE(t, `package p

project: {
	id: "dup"
	columns: [
		{name: "sku"},
		{name: "sku"},
	]
}
`)
	_, err := Load(dir)
	require.Error(t, err)
	var inv *sheet.InvariantViolation
	assert.ErrorAs(t, err, &inv)
}

func TestLoad_SeedRowWithoutIdentity(t *testing.T) {
	dir := writeCUE(t, `package p

project: {
	id: "rows"
	columns: [
		{name: "sku"},
		{name: "name"},
	]
	rows: [
		{name: "orphan"},
	]
}
`)
	_, err := Load(dir)
	require.Error(t, err)
	var ve *sheet.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLoad_SeedRowUnknownColumn(t *testing.T) {
	dir := writeCUE(t, `package p

project: {
	id: "rows"
	columns: [
		{name: "sku"},
	]
	rows: [
		{sku: "s1", color: "red"},
	]
}
`)
	_, err := Load(dir)
	require.Error(t, err)
	var nf *sheet.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestValidate_EmptyID(t *testing.T) {
	def := &Definition{Columns: []Column{{Name: "sku"}}}
	var ve *sheet.ValidationError
	assert.ErrorAs(t, def.Validate(), &ve)
}

func TestValidate_NoColumns(t *testing.T) {
	def := &Definition{ID: "x"}
	var ve *sheet.ValidationError
	assert.ErrorAs(t, def.Validate(), &ve)
}
