package pdfcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsShortName(t *testing.T) {
	errs := Validate("  ab ", nil)
	assert.Equal(t, msgNameTooShort, errs["episodeName"])
	assert.Equal(t, msgInvalidPDF, errs["pdfFile"])
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]*Upload{
		"missing":    nil,
		"empty":      {Filename: "a.pdf", ContentType: "application/pdf"},
		"wrong type": {Filename: "a.txt", ContentType: "text/plain", Data: []byte("%PDF-1.4")},
		"not a pdf":  {Filename: "a.pdf", ContentType: "application/pdf", Data: []byte("hello world")},
		"truncated":  {Filename: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4\n%%EOF")},
		"oversized":  {Filename: "a.pdf", ContentType: "application/pdf", Data: make([]byte, MaxPDFBytes+1)},
	}
	for name, file := range cases {
		t.Run(name, func(t *testing.T) {
			errs := Validate("Ep-100", file)
			assert.Equal(t, Errors{"pdfFile": msgInvalidPDF}, errs)
		})
	}
}

func TestErrorsMessageIsStable(t *testing.T) {
	errs := Errors{"pdfFile": "bad", "episodeName": "short"}
	assert.Equal(t, "episodeName: short; pdfFile: bad", errs.Error())
}

func TestIsPDFContentType(t *testing.T) {
	assert.True(t, isPDFContentType("application/pdf"))
	assert.True(t, isPDFContentType("Application/PDF; charset=binary"))
	assert.False(t, isPDFContentType("application/octet-stream"))
}
