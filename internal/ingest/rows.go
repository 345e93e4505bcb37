// Package ingest loads health reports and daily case counts from CSV or XLSX
// files into a store.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Row is one data row keyed by lower-cased header name.
type Row struct {
	Line   int
	Fields map[string]string
}

// Get returns the trimmed value of column name, or "".
func (r Row) Get(name string) string {
	return r.Fields[name]
}

// StreamRows reads a header-first CSV or XLSX file (chosen by extension) and
// sends each data row. Both channels are closed when processing completes.
func StreamRows(ctx context.Context, path string) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		var err error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".xlsx":
			err = streamXLSX(ctx, path, rowCh)
		default:
			err = streamCSV(ctx, path, rowCh)
		}
		if err != nil {
			errCh <- err
		}
	}()

	return rowCh, errCh
}

func streamCSV(ctx context.Context, path string, rowCh chan<- Row) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var header []string
	for line := 1; ; line++ {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "ingest: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "ingest: read csv row")
		}

		if header == nil {
			header = normalizeHeader(record)
			continue
		}
		if err := send(ctx, rowCh, Row{Line: line, Fields: keyed(header, record)}); err != nil {
			return err
		}
	}
}

func streamXLSX(ctx context.Context, path string, rowCh chan<- Row) error {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return eris.New("ingest: xlsx has no sheets")
	}

	var header []string
	for i, row := range f.Sheets[0].Rows {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "ingest: context cancelled")
		}

		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if header == nil {
			header = normalizeHeader(cells)
			continue
		}
		if isBlank(cells) {
			continue
		}
		if err := send(ctx, rowCh, Row{Line: i + 1, Fields: keyed(header, cells)}); err != nil {
			return err
		}
	}
	return nil
}

func send(ctx context.Context, rowCh chan<- Row, r Row) error {
	select {
	case rowCh <- r:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "ingest: context cancelled")
	}
}

func normalizeHeader(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
	}
	return out
}

func keyed(header, cells []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(cells) && h != "" {
			m[h] = strings.TrimSpace(cells[i])
		}
	}
	return m
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
