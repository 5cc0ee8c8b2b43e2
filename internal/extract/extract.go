package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	ErrEmptyInput    = errors.New("input contains no extractable text")
	ErrInputTooLarge = errors.New("input exceeds size limit")
)

var pdfMagic = []byte("%PDF-")

// Extract sniffs the payload format, pulls plain text out of it and
// normalizes the result. Equivalent documents must come out identical
// here, since the dedup fingerprint is computed over this text.
func Extract(data []byte, maxBytes int64) (string, error) {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", ErrInputTooLarge
	}
	var text string
	if bytes.HasPrefix(data, pdfMagic) {
		t, err := fromPDF(data)
		if err != nil {
			return "", fmt.Errorf("parse pdf: %w", err)
		}
		text = t
	} else {
		if !utf8.Valid(data) {
			return "", errors.New("input is neither a PDF nor valid UTF-8 text")
		}
		text = string(data)
	}
	text = Normalize(text)
	if text == "" {
		return "", ErrEmptyInput
	}
	return text, nil
}

func fromPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Normalize collapses whitespace runs to single spaces and trims. Runs
// before fingerprinting so formatting differences don't defeat dedup.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
