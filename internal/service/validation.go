package service

import (
	"github.com/go-playground/validator/v10"

	"participant-gate/internal/pathsafe"
)

// VerifyRequest is the client's verification submission.
type VerifyRequest struct {
	PDFFile string `json:"pdf_file" validate:"required,pdfname"`
	Code    string `json:"code" validate:"required,len=4,number"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("pdfname", func(fl validator.FieldLevel) bool {
		return pathsafe.CheckFileName(fl.Field().String()) == nil
	})
	return v
}

// invalidInputMessage names the first field that failed validation.
func invalidInputMessage(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		if verrs[0].Field() == "PDFFile" {
			return "Invalid file name."
		}
	}
	return "Invalid verification code."
}
