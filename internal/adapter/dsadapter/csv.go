package dsadapter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/aymanshehab/imgfetch/internal/entity"
)

func (a *DatasetAdapter) readCSV(path string) (*entity.Dataset, error) {
	file, err := a.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open dataset file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // rows may be ragged, missing cells read as empty

	columns, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return &entity.Dataset{SourcePath: path}, nil
		}

		return nil, fmt.Errorf("cannot read csv header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cannot read csv rows: %w", err)
	}

	return &entity.Dataset{
		SourcePath: path,
		Columns:    columns,
		Rows:       buildRows(columns, records),
	}, nil
}
