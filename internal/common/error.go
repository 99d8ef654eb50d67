package common

import "fmt"

var (
	ErrRunAlreadyActive      = fmt.Errorf("run already active")
	ErrUnsupportedDataset    = fmt.Errorf("unsupported dataset file type")
	ErrDatasetColumnNotFound = fmt.Errorf("dataset column not found")
)
