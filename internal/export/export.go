// Package export writes sheet state to xlsx workbooks. The export scope
// is the visible projection of the checked rows; when no row is checked
// every row is exported.
package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gridhouse/sheetsync/internal/project"
	"github.com/gridhouse/sheetsync/internal/sheet"
)

// ImageFetcher retrieves picture bytes for a cell whose value is an
// image URL. The returned extension includes the leading dot.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (data []byte, ext string, err error)
}

// HTTPFetcher fetches images over plain HTTP GET.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, imageExt(rawURL), nil
}

func imageExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".png"
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".png", ".jpg", ".jpeg", ".gif":
		return ext
	default:
		return ".png"
	}
}

// Exporter writes workbooks. A nil fetcher disables picture embedding
// and leaves image URLs as plain text.
type Exporter struct {
	fetcher ImageFetcher
}

// New returns an Exporter using the given fetcher.
func New(fetcher ImageFetcher) *Exporter {
	return &Exporter{fetcher: fetcher}
}

const sheetName = "Sheet1"

// Export writes the snapshot's visible projection to w as an xlsx
// workbook. Rows are restricted to the checked set when one exists.
// Cell style overrides become workbook styles; cells holding image URLs
// are embedded as pictures with the text cleared.
func (e *Exporter) Export(ctx context.Context, snap sheet.Snapshot, w io.Writer) error {
	view := project.Build(snap)

	f := excelize.NewFile()
	defer f.Close()

	for col, name := range view.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return err
		}
	}

	anyChecked := false
	for _, checked := range snap.Selection.CheckedRows {
		if checked {
			anyChecked = true
			break
		}
	}

	out := 0
	for i, identity := range view.Identities {
		if anyChecked && !snap.Selection.CheckedRows[identity] {
			continue
		}
		out++
		for col, value := range view.Rows[i] {
			cell, err := excelize.CoordinatesToCellName(col+1, out+1)
			if err != nil {
				return err
			}
			if err := e.writeCell(ctx, f, snap, cell, identity, view.Headers[col], value); err != nil {
				return err
			}
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func (e *Exporter) writeCell(ctx context.Context, f *excelize.File, snap sheet.Snapshot, cell, identity, header, value string) error {
	if e.fetcher != nil && isImageURL(value) {
		data, ext, err := e.fetcher.Fetch(ctx, value)
		if err != nil {
			return fmt.Errorf("embed %s: %w", value, err)
		}
		return f.AddPictureFromBytes(sheetName, cell, &excelize.Picture{
			Extension: ext,
			File:      data,
		})
	}

	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		return err
	}

	payload, ok := snap.Style(identity, header)
	if !ok || payload.Zero() {
		return nil
	}
	styleID, err := f.NewStyle(workbookStyle(payload))
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheetName, cell, cell, styleID)
}

func isImageURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

func workbookStyle(p sheet.StylePayload) *excelize.Style {
	s := &excelize.Style{}
	if p.Color != "" || p.Bold || p.Italic {
		s.Font = &excelize.Font{
			Color:  strings.TrimPrefix(p.Color, "#"),
			Bold:   p.Bold,
			Italic: p.Italic,
		}
	}
	if p.Background != "" {
		s.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{strings.TrimPrefix(p.Background, "#")},
		}
	}
	return s
}
