package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

// gridResolver serves a small fixed grid:
//
//	     A      B     C
//	1   id1    10    x
//	2   id2    20    5
//	3   id3    2.5   hello
func gridResolver() Resolver {
	grid := [][]string{
		{"id1", "10", "x"},
		{"id2", "20", "5"},
		{"id3", "2.5", "hello"},
	}
	return ResolverFunc(func(col, row int) (string, bool) {
		if row < 0 || row >= len(grid) || col < 0 || col >= len(grid[row]) {
			return "", false
		}
		return grid[row][col], true
	})
}

func TestEvaluate_Arithmetic(t *testing.T) {
	var e Evaluator
	res := gridResolver()

	cases := []struct {
		raw  string
		want string
	}{
		{"=1+2", "3"},
		{"=2*3+4", "10"},
		{"=2+3*4", "14"},
		{"=(2+3)*4", "20"},
		{"=10/4", "2.5"},
		{"=-5+2", "-3"},
		{"=2*-3", "-6"},
		{"=B1+B2", "30"},
		{"=B3*2", "5"},
		{"=B2/B1", "2"},
		{"=C2+1", "6"},
	}
	for _, tc := range cases {
		got, err := e.Evaluate(tc.raw, res)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestEvaluate_Concatenation(t *testing.T) {
	var e Evaluator
	res := gridResolver()

	got, err := e.Evaluate(`="total: "&B1`, res)
	require.NoError(t, err)
	assert.Equal(t, "total: 10", got)

	got, err = e.Evaluate(`=A1&"-"&A2`, res)
	require.NoError(t, err)
	assert.Equal(t, "id1-id2", got)
}

func TestEvaluate_Sum(t *testing.T) {
	var e Evaluator
	res := gridResolver()

	got, err := e.Evaluate("=SUM(B1:B3)", res)
	require.NoError(t, err)
	assert.Equal(t, "32.5", got)

	// Non-numeric cells in the range are skipped.
	got, err = e.Evaluate("=SUM(A1:C3)", res)
	require.NoError(t, err)
	assert.Equal(t, "37.5", got)

	// Argument lists mix refs, literals, and expressions.
	got, err = e.Evaluate("=SUM(B1,B2,1+1)", res)
	require.NoError(t, err)
	assert.Equal(t, "32", got)

	got, err = e.Evaluate("=SUM(B1:B2)*2", res)
	require.NoError(t, err)
	assert.Equal(t, "60", got)
}

func TestEvaluate_Errors(t *testing.T) {
	var e Evaluator
	res := gridResolver()

	for _, raw := range []string{
		"no sentinel",
		"=",
		"=1/0",
		"=C3+1",     // "hello" in numeric context
		"=Z99",      // out of grid
		"=COUNT(B1)", // unsupported function
		"=B1:B2+1",  // bare range outside SUM
	} {
		_, err := e.Evaluate(raw, res)
		assert.Error(t, err, raw)
	}
}

func TestEvaluate_EmptyCellIsZero(t *testing.T) {
	var e Evaluator
	res := ResolverFunc(func(col, row int) (string, bool) {
		return "", true
	})

	got, err := e.Evaluate("=A1+5", res)
	require.NoError(t, err)
	assert.Equal(t, "5", got)
}

func TestSnapshotResolver_UsesCanonicalCoordinates(t *testing.T) {
	snap := sheet.Snapshot{
		Headers: []sheet.ColumnHeader{
			{Name: "id", Visible: true},
			{Name: "price", Visible: false}, // hidden but addressable
		},
		Rows: []sheet.RowRecord{
			{Identity: "r1", Fields: map[string]string{"id": "r1", "price": "42"}},
		},
	}
	res := SnapshotResolver(snap)

	v, ok := res.CellValue(1, 0)
	require.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok = res.CellValue(2, 0)
	assert.False(t, ok)
	_, ok = res.CellValue(0, 1)
	assert.False(t, ok)
}
