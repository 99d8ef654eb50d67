package entity

// Row is one record of the input dataset, keyed by column name.
// Rows have no identity beyond their position in the dataset.
type Row map[string]string

// Dataset is an ordered, already-materialized sequence of rows together
// with the column names found in the source file.
type Dataset struct {
	SourcePath string
	Columns    []string
	Rows       []Row

	// Column overrides from the dataset itself (markdown frontmatter).
	// Empty means "use the configured name".
	URLColumn  string
	NameColumn string
}

// HasColumn reports whether the dataset declares the given column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}

	return false
}

// DownloadTask is the per-row work item derived by the controller.
// It is created, consumed and discarded within a single iteration.
type DownloadTask struct {
	Index   int // 1-based, used in user-facing messages
	RawName string
	URL     string
}
