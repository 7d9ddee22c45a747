package models

// SchoolRecord is one row of the public school data file. Any
// verification_codes key in the source is deliberately not mapped.
type SchoolRecord struct {
	School     string   `json:"sekolah"`
	PDFFile    string   `json:"pdf_file"`
	Companions []string `json:"pendamping"`
}
