package export

// Table is one titled grid of a document.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Document is a titled report made of summary lines followed by tables.
type Document struct {
	Title   string
	Summary []string
	Tables  []Table
}
