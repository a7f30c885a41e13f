// Package pdfcheck validates the submission form before any job starts.
package pdfcheck

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	MinEpisodeNameLength = 3
	MaxPDFBytes          = 50 << 20
)

const (
	msgNameTooShort = "Episode name must be at least 3 characters."
	msgInvalidPDF   = "Please upload a valid PDF file."
)

// Upload is the PDF as received from the form.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Errors maps form fields to messages.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e[f]))
	}
	return strings.Join(parts, "; ")
}

// Validate checks the episode name and the PDF. It returns nil when the
// form may be submitted.
func Validate(episodeName string, file *Upload) Errors {
	errs := Errors{}
	if len([]rune(strings.TrimSpace(episodeName))) < MinEpisodeNameLength {
		errs["episodeName"] = msgNameTooShort
	}
	if err := checkPDF(file); err != nil {
		errs["pdfFile"] = msgInvalidPDF
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func checkPDF(file *Upload) (err error) {
	switch {
	case file == nil || len(file.Data) == 0:
		return fmt.Errorf("empty file")
	case len(file.Data) > MaxPDFBytes:
		return fmt.Errorf("file exceeds %d bytes", MaxPDFBytes)
	case !isPDFContentType(file.ContentType):
		return fmt.Errorf("content type %q is not application/pdf", file.ContentType)
	}

	// the parser panics on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unreadable pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return fmt.Errorf("unreadable pdf: %w", err)
	}
	if reader.NumPage() == 0 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}

func isPDFContentType(ct string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	return strings.EqualFold(mediaType, "application/pdf")
}
