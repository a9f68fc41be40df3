package normalizers

import (
	"testing"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
)

func ptr(s string) *string { return &s }

func TestPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(555) 123-4567", "5551234567"},
		{"+1 555 123 4567", "5551234567"},
		{"001-44-555-123-4567", "5551234567"},
		{"12345", "12345"},
		{"", ""},
		{"n/a", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Phone(tt.in))
		})
	}
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", Email("  Ada@Example.COM "))
	assert.Equal(t, "example.com", EmailDomain("ada@example.com"))
	assert.Equal(t, "", EmailDomain("not-an-email"))
	assert.Equal(t, "", EmailDomain("trailing@"))
}

func TestName(t *testing.T) {
	assert.Equal(t, "mary ann", Name("  Mary   Ann "))
	assert.Equal(t, "", Name("   "))
}

func TestRecord(t *testing.T) {
	row := models.SourceRow{
		ID:        "42",
		Email:     ptr(" Ada@Example.com "),
		Phone:     ptr("+1 (555) 123-4567"),
		FirstName: ptr("Ada"),
		LastName:  ptr(" Lovelace "),
		Company:   ptr("Analytical  Engines"),
		City:      ptr("London"),
	}

	rec := Record(models.SourceCRM, row)
	assert.Equal(t, models.IdentityRecord{
		Source:      models.SourceCRM,
		ID:          "42",
		Email:       "ada@example.com",
		EmailDomain: "example.com",
		Phone:       "5551234567",
		FirstName:   "ada",
		LastName:    "lovelace",
		Company:     "analytical engines",
		City:        "london",
		Label:       "Ada Lovelace",
		Sublabel:    "Analytical  Engines",
	}, rec)
}

func TestRecord_LabelFallbacks(t *testing.T) {
	rec := Record(models.SourceMailing, models.SourceRow{ID: "7", Email: ptr("Bob@x.com")})
	assert.Equal(t, "Bob@x.com", rec.Label)
	assert.Equal(t, "", rec.Sublabel)

	rec = Record(models.SourceEcom, models.SourceRow{ID: "8", Phone: ptr("555-0100")})
	assert.Equal(t, "555-0100", rec.Label)

	rec = Record(models.SourceEcom, models.SourceRow{ID: "9"})
	assert.Equal(t, "9", rec.Label)
}
