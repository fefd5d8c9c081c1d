package sheet

import (
	"strconv"
	"strings"
)

// Cell reference tokens use spreadsheet A1 notation against CANONICAL
// coordinates: column letter from the canonical column index, 1-based
// canonical row number. Visibility filtering never changes a cell's
// reference token.

// ColumnLetter converts a zero-based canonical column index to its letter
// form: 0 -> A, 25 -> Z, 26 -> AA.
func ColumnLetter(idx int) string {
	if idx < 0 {
		return ""
	}
	var b []byte
	for idx >= 0 {
		b = append([]byte{byte('A' + idx%26)}, b...)
		idx = idx/26 - 1
	}
	return string(b)
}

// RefToken builds the reference token for a canonical (column, row) pair,
// both zero-based. Row 0 renders as row number 1.
func RefToken(colIdx, rowIdx int) string {
	if colIdx < 0 || rowIdx < 0 {
		return ""
	}
	return ColumnLetter(colIdx) + strconv.Itoa(rowIdx+1)
}

// ParseRef splits a reference token into zero-based canonical column and
// row indexes. Returns ok=false for anything that is not letters followed
// by a positive number.
func ParseRef(token string) (colIdx, rowIdx int, ok bool) {
	token = strings.ToUpper(strings.TrimSpace(token))
	i := 0
	for i < len(token) && token[i] >= 'A' && token[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(token) {
		return 0, 0, false
	}

	col := 0
	for _, c := range token[:i] {
		col = col*26 + int(c-'A') + 1
	}

	row := 0
	for _, c := range token[i:] {
		if c < '0' || c > '9' {
			return 0, 0, false
		}
		row = row*10 + int(c-'0')
	}
	if row == 0 {
		return 0, 0, false
	}

	return col - 1, row - 1, true
}
