// Package document extracts plain text from uploaded PDF and text files.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Kind is a supported document type.
type Kind string

// Supported document kinds.
const (
	KindPDF  Kind = "pdf"
	KindText Kind = "text"
)

// Content types and extensions accepted for each kind.
const (
	contentTypePDF      = "application/pdf"
	contentTypeText     = "text/plain"
	contentTypeMarkdown = "text/markdown"
	extPDF              = ".pdf"
	extTXT              = ".txt"
	extMD               = ".md"
	pageSeparator       = "\n"
)

// Error messages.
const (
	errFmtUnsupported = "%w: %q (%s)"
	errFmtOpenPDF     = "failed to open PDF: %w"
	errFmtReadPage    = "failed to read PDF page %d: %w"
	errFmtPDFPanic    = "failed to parse PDF: %v"
	errFmtReadFile    = "failed to read document %s: %w"
)

var (
	// ErrUnsupportedType is returned for anything other than PDF or plain text.
	ErrUnsupportedType = errors.New("only PDF and TXT documents are supported")
	// ErrNoText is returned when a document holds no extractable text.
	ErrNoText = errors.New("no text found in document")
)

// KindOf classifies a document by content type, falling back to the file
// extension when the content type is missing or generic.
func KindOf(filename, contentType string) (Kind, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))

	switch mediaType {
	case contentTypePDF:
		return KindPDF, nil
	case contentTypeText, contentTypeMarkdown:
		return KindText, nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case extPDF:
		return KindPDF, nil
	case extTXT, extMD:
		return KindText, nil
	default:
		return "", fmt.Errorf(errFmtUnsupported, ErrUnsupportedType, filename, contentType)
	}
}

// Extract returns the text of data. PDF pages are separated by newlines so
// that line-based cleanup can still see page boundaries.
func Extract(filename, contentType string, data []byte) (string, error) {
	kind, err := KindOf(filename, contentType)
	if err != nil {
		return "", err
	}

	var text string

	switch kind {
	case KindPDF:
		text, err = extractPDF(data)
		if err != nil {
			return "", err
		}
	case KindText:
		text = strings.ToValidUTF8(string(data), "")
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}

	return text, nil
}

// ExtractFile reads path and extracts its text.
func ExtractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf(errFmtReadFile, path, err)
	}

	return Extract(filepath.Base(path), "", data)
}

func extractPDF(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed cross-reference tables.
	defer func() {
		if recovered := recover(); recovered != nil {
			text = ""
			err = fmt.Errorf(errFmtPDFPanic, recovered)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf(errFmtOpenPDF, err)
	}

	pages := make([]string, 0, reader.NumPage())

	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			return "", fmt.Errorf(errFmtReadPage, pageIndex, pageErr)
		}

		pages = append(pages, pageText)
	}

	return strings.Join(pages, pageSeparator), nil
}
