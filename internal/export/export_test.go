package export

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/store"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	err := s.Seed(
		[]string{"productId", "name", "price"},
		[]sheet.RowRecord{
			{Identity: "p1", Fields: map[string]string{"productId": "p1", "name": "Widget", "price": "12"}},
			{Identity: "p2", Fields: map[string]string{"productId": "p2", "name": "Gadget", "price": "7.50"}},
			{Identity: "p3", Fields: map[string]string{"productId": "p3", "name": "Sprocket", "price": "3"}},
		},
	)
	require.NoError(t, err)
	return s
}

func exportToWorkbook(t *testing.T, e *Exporter, snap sheet.Snapshot) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, e.Export(context.Background(), snap, &buf))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func cellValue(t *testing.T, f *excelize.File, cell string) string {
	t.Helper()
	v, err := f.GetCellValue("Sheet1", cell)
	require.NoError(t, err)
	return v
}

func TestExport_AllRowsWhenNoneChecked(t *testing.T) {
	s := seededStore(t)
	f := exportToWorkbook(t, New(nil), s.Snapshot())

	assert.Equal(t, "productId", cellValue(t, f, "A1"))
	assert.Equal(t, "name", cellValue(t, f, "B1"))
	assert.Equal(t, "price", cellValue(t, f, "C1"))
	assert.Equal(t, "p1", cellValue(t, f, "A2"))
	assert.Equal(t, "Gadget", cellValue(t, f, "B3"))
	assert.Equal(t, "3", cellValue(t, f, "C4"))
}

func TestExport_CheckedRowsOnly(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.ToggleRowChecked("p1"))
	require.NoError(t, s.ToggleRowChecked("p3"))

	f := exportToWorkbook(t, New(nil), s.Snapshot())

	assert.Equal(t, "p1", cellValue(t, f, "A2"))
	assert.Equal(t, "p3", cellValue(t, f, "A3"))
	assert.Equal(t, "", cellValue(t, f, "A4"))
}

func TestExport_HiddenColumnElided(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.ToggleVisibility("name"))

	f := exportToWorkbook(t, New(nil), s.Snapshot())

	assert.Equal(t, "productId", cellValue(t, f, "A1"))
	assert.Equal(t, "price", cellValue(t, f, "B1"))
	assert.Equal(t, "12", cellValue(t, f, "B2"))
	assert.Equal(t, "", cellValue(t, f, "C1"))
}

func TestExport_StylesCarryOver(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.ApplyRemote(sheet.SetStyle{
		Identity: "p1",
		Header:   "name",
		Style:    sheet.StylePayload{Color: "#ff0000", Bold: true},
	}))

	f := exportToWorkbook(t, New(nil), s.Snapshot())

	styleID, err := f.GetCellStyle("Sheet1", "B2")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
	assert.Contains(t, style.Font.Color, "FF0000")
}

type fakeFetcher struct {
	urls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) ([]byte, string, error) {
	f.urls = append(f.urls, rawURL)
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), ".png", nil
}

func TestExport_ImageURLEmbedded(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.ApplyRemote(sheet.SetCell{
		Identity: "p1",
		Header:   "name",
		Value:    "https://img.example.com/widget.png",
	}))

	fetch := &fakeFetcher{}
	f := exportToWorkbook(t, New(fetch), s.Snapshot())

	assert.Equal(t, []string{"https://img.example.com/widget.png"}, fetch.urls)
	assert.Equal(t, "", cellValue(t, f, "B2"))

	pics, err := f.GetPictures("Sheet1", "B2")
	require.NoError(t, err)
	require.Len(t, pics, 1)
	assert.Equal(t, ".png", pics[0].Extension)
}

func TestExport_NilFetcherLeavesURLText(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.ApplyRemote(sheet.SetCell{
		Identity: "p1",
		Header:   "name",
		Value:    "https://img.example.com/widget.png",
	}))

	f := exportToWorkbook(t, New(nil), s.Snapshot())
	assert.Equal(t, "https://img.example.com/widget.png", cellValue(t, f, "B2"))
}

func TestImageExt(t *testing.T) {
	assert.Equal(t, ".jpg", imageExt("https://x.test/a.JPG"))
	assert.Equal(t, ".png", imageExt("https://x.test/a"))
	assert.Equal(t, ".png", imageExt("https://x.test/a.webp"))
}
