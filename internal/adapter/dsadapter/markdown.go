package dsadapter

import (
	"bytes"
	"fmt"

	"github.com/aymanshehab/imgfetch/internal/entity"
	"github.com/spf13/afero"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/frontmatter"
)

// markdownMeta are the dataset-level overrides a markdown file may carry
// in its frontmatter.
type markdownMeta struct {
	URLColumn  string `yaml:"url_column"`
	NameColumn string `yaml:"name_column"`
}

// readMarkdown parses the document and uses the first pipe table as the
// dataset. The table header row supplies the column names.
func (a *DatasetAdapter) readMarkdown(path string) (*entity.Dataset, error) {
	src, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("cannot read dataset file: %w", err)
	}

	pc := parser.NewContext()
	doc := a.md.Parser().Parse(text.NewReader(src), parser.WithContext(pc))

	var table *east.Table
	if err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if t, ok := n.(*east.Table); ok {
			table = t

			return ast.WalkStop, nil
		}

		return ast.WalkContinue, nil
	}); err != nil {
		return nil, fmt.Errorf("cannot walk markdown tree: %w", err)
	}

	if table == nil {
		return nil, fmt.Errorf("dataset file contains no table")
	}

	dataset := &entity.Dataset{SourcePath: path}

	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, nodeText(cell, src))
		}

		if _, isHeader := row.(*east.TableHeader); isHeader {
			dataset.Columns = cells

			continue
		}

		dataset.Rows = append(dataset.Rows, buildRows(dataset.Columns, [][]string{cells})...)
	}

	if fm := frontmatter.Get(pc); fm != nil {
		var meta markdownMeta
		if err := fm.Decode(&meta); err != nil {
			return nil, fmt.Errorf("cannot decode frontmatter: %w", err)
		}

		dataset.URLColumn = meta.URLColumn
		dataset.NameColumn = meta.NameColumn
	}

	return dataset, nil
}

func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if t, ok := node.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
		}

		return ast.WalkContinue, nil
	})

	return buf.String()
}
