package dsadapter

import (
	"fmt"
	"log/slog"

	"github.com/aymanshehab/imgfetch/internal/entity"
	"github.com/xuri/excelize/v2"
)

func (a *DatasetAdapter) readXLSX(path string) (*entity.Dataset, error) {
	file, err := a.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open dataset file: %w", err)
	}
	defer file.Close()

	book, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("cannot read workbook: %w", err)
	}
	defer book.Close()

	sheet := book.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	records, err := book.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("cannot read sheet %s: %w", sheet, err)
	}

	if len(records) == 0 {
		return &entity.Dataset{SourcePath: path}, nil
	}

	a.log.Debug("Read workbook", slog.String("sheet", sheet), slog.Int("rows", len(records)-1))

	columns := records[0]

	return &entity.Dataset{
		SourcePath: path,
		Columns:    columns,
		Rows:       buildRows(columns, records[1:]),
	}, nil
}
