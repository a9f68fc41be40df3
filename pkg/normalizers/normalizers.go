// Package normalizers reduces raw source fields to the canonical forms the matcher compares.
package normalizers

import (
	"strings"
	"unicode"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Email lower-cases and trims an address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EmailDomain returns the part after the last '@' of a normalized address.
func EmailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// Phone keeps only digits and reduces the result to the last 10, so a leading
// country code does not prevent a match.
func Phone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// Name lower-cases, trims and collapses internal whitespace.
func Name(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Text normalizes free-text attributes such as company and city.
func Text(s string) string {
	return Name(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Record builds the matchable form of a raw source row. Label and Sublabel keep
// their original casing for display.
func Record(source models.Source, row models.SourceRow) models.IdentityRecord {
	email := Email(deref(row.Email))
	first := Name(deref(row.FirstName))
	last := Name(deref(row.LastName))

	rec := models.IdentityRecord{
		Source:      source,
		ID:          row.ID,
		Email:       email,
		EmailDomain: EmailDomain(email),
		Phone:       Phone(deref(row.Phone)),
		FirstName:   first,
		LastName:    last,
		Company:     Text(deref(row.Company)),
		City:        Text(deref(row.City)),
	}

	display := strings.TrimSpace(strings.Join(strings.Fields(deref(row.FirstName)+" "+deref(row.LastName)), " "))
	switch {
	case display != "":
		rec.Label = display
	case email != "":
		rec.Label = strings.TrimSpace(deref(row.Email))
	case rec.Phone != "":
		rec.Label = strings.TrimSpace(deref(row.Phone))
	default:
		rec.Label = row.ID
	}

	for _, candidate := range []string{deref(row.Title), deref(row.Company), deref(row.City), deref(row.Email)} {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" && candidate != rec.Label {
			rec.Sublabel = candidate
			break
		}
	}

	return rec
}
