// Package dsadapter reads tabular dataset files into an ordered sequence
// of rows. Supported formats: CSV, XLSX and Markdown (first pipe table in
// the document, with optional YAML frontmatter overriding column names).
package dsadapter

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aymanshehab/imgfetch/internal/common"
	"github.com/aymanshehab/imgfetch/internal/entity"
	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.abhg.dev/goldmark/frontmatter"
)

type DatasetAdapter struct {
	fs  afero.Fs
	md  goldmark.Markdown
	log *slog.Logger
}

func NewDatasetAdapter(log *slog.Logger) *DatasetAdapter {
	return NewDatasetAdapterWithFS(afero.NewOsFs(), log)
}

func NewDatasetAdapterWithFS(fs afero.Fs, log *slog.Logger) *DatasetAdapter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			&frontmatter.Extender{},
		),
	)

	return &DatasetAdapter{
		fs:  fs,
		md:  md,
		log: log.With(slog.String("item", "DatasetAdapter")),
	}
}

// ReadDataset selects a reader by file extension and materializes the
// whole dataset. Rows keep their source order.
func (a *DatasetAdapter) ReadDataset(path string) (*entity.Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return a.readCSV(path)
	case ".xlsx":
		return a.readXLSX(path)
	case ".md", ".markdown":
		return a.readMarkdown(path)
	default:
		return nil, fmt.Errorf("%w: %s (use .csv, .xlsx or .md)", common.ErrUnsupportedDataset, filepath.Ext(path))
	}
}

func buildRows(columns []string, records [][]string) []entity.Row {
	rows := make([]entity.Row, 0, len(records))
	for _, record := range records {
		row := make(entity.Row, len(columns))
		for i, column := range columns {
			if i < len(record) {
				row[column] = record[i]
			} else {
				row[column] = ""
			}
		}

		rows = append(rows, row)
	}

	return rows
}
