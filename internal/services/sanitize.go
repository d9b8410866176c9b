package services

import (
	"html"
	"path"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const maxFileNameLength = 120

var strictPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup and control characters from free-form user input.
func sanitizeText(value string) string {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	return strings.TrimSpace(cleaned)
}

func sanitizeAddress(address Address) Address {
	return Address{
		Recipient:  sanitizeText(address.Recipient),
		Company:    sanitizeText(address.Company),
		Line1:      sanitizeText(address.Line1),
		Line2:      sanitizeText(address.Line2),
		City:       sanitizeText(address.City),
		State:      sanitizeText(address.State),
		PostalCode: sanitizeText(address.PostalCode),
		Country:    strings.ToUpper(sanitizeText(address.Country)),
		Phone:      sanitizeText(address.Phone),
	}
}

// sanitizeFileName keeps the base name of an uploaded file usable as an object path segment.
func sanitizeFileName(name string) string {
	name = sanitizeText(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '?' || r == '#' || r == '%':
			return '_'
		case unicode.IsSpace(r):
			return '_'
		}
		return r
	}, name)
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	name = strings.Trim(name, "._")
	if runes := []rune(name); len(runes) > maxFileNameLength {
		ext := []rune(path.Ext(name))
		if len(ext) > 10 {
			ext = nil
		}
		name = string(runes[:maxFileNameLength-len(ext)]) + string(ext)
	}
	return name
}
