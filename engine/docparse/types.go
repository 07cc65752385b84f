package docparse

// Wire types for the document analysis service. Only the fields the page
// assembler reads are mapped.

type analyzeOperation struct {
	Status        string         `json:"status"`
	AnalyzeResult *AnalyzeResult `json:"analyzeResult"`
	Error         *analyzeError  `json:"error"`
}

type analyzeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AnalyzeResult is the layout model's output for one document.
type AnalyzeResult struct {
	Pages  []Page  `json:"pages"`
	Tables []Table `json:"tables"`
}

// Page holds the recognized text lines of one page in reading order.
type Page struct {
	PageNumber int    `json:"pageNumber"`
	Lines      []Line `json:"lines"`
}

// Line is one recognized text line.
type Line struct {
	Content string `json:"content"`
}

// Table is a detected table; cells are listed row-major.
type Table struct {
	Cells           []Cell           `json:"cells"`
	BoundingRegions []BoundingRegion `json:"boundingRegions"`
}

// Cell is one table cell.
type Cell struct {
	Content string `json:"content"`
}

// BoundingRegion anchors an element to a page.
type BoundingRegion struct {
	PageNumber int `json:"pageNumber"`
}
