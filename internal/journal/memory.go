package journal

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Memory is one journal entry. CalculatedAge is free text computed by the
// caller, usually with AgeAt.
type Memory struct {
	Date          string `json:"date"`
	CalculatedAge string `json:"calculatedAge"`
	Mood          string `json:"mood"`
	Note          string `json:"note"`
}

// Row returns the spreadsheet row for m: date, age, mood, note, then one
// cell per image link.
func (m Memory) Row(imageLinks []string) []any {
	row := make([]any, 0, 4+len(imageLinks))
	row = append(row, m.Date, m.CalculatedAge, m.Mood, m.Note)
	for _, link := range imageLinks {
		row = append(row, link)
	}
	return row
}

// Image is a base64 image, optionally in data URL form.
type Image struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// DecodeDataURL decodes a "data:<mime>;base64,<payload>" string. Input
// without a comma is treated as a bare base64 payload.
func DecodeDataURL(s string) ([]byte, error) {
	payload := s
	if _, after, ok := strings.Cut(s, ","); ok {
		payload = after
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}
	}
	return data, nil
}

// MimeTypeFromDataURL returns the media type of a data URL, or an empty
// string when s has no data URL header.
func MimeTypeFromDataURL(s string) string {
	header, _, ok := strings.Cut(s, ",")
	if !ok {
		return ""
	}
	rest, ok := strings.CutPrefix(header, "data:")
	if !ok {
		return ""
	}
	mime, _, _ := strings.Cut(rest, ";")
	return mime
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// DefaultFileName returns a unique file name for an upload with no name.
func DefaultFileName(mimeType string) string {
	return "memory-" + uuid.NewString() + extensions[mimeType]
}

// AgeAt formats the age of someone born on birthday at the date on, as
// "<years>y <months>m <days>d". A zero birthday or a date before it yields
// an empty string.
func AgeAt(birthday, on time.Time) string {
	if birthday.IsZero() || on.Before(birthday) {
		return ""
	}

	years := on.Year() - birthday.Year()
	months := int(on.Month()) - int(birthday.Month())
	days := on.Day() - birthday.Day()

	if days < 0 {
		months--
		// Borrow from the month preceding on, clamping birthdays past its end.
		prev := time.Date(on.Year(), on.Month(), 0, 0, 0, 0, 0, time.UTC).Day()
		days = on.Day() + prev - min(birthday.Day(), prev)
	}
	if months < 0 {
		years--
		months += 12
	}
	return fmt.Sprintf("%dy %dm %dd", years, months, days)
}
