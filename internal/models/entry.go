package models

// Entry lists the verification codes that unlock one PDF file.
type Entry struct {
	PDFFile string   `json:"pdf_file" db:"pdf_file"`
	Codes   []string `json:"verification_codes" db:"codes"`
}

// Accepts reports whether code is one of the entry's codes, compared as exact strings.
func (e Entry) Accepts(code string) bool {
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}
