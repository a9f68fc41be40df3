package models

// Source identifies one of the disconnected record systems.
type Source string

const (
	SourceCRM     Source = "crm_contacts"
	SourceEcom    Source = "ecom_customers"
	SourceMailing Source = "mailing_subscribers"
)

// Sources lists every known source in default priority order.
var Sources = []Source{SourceCRM, SourceEcom, SourceMailing}

// EntityType is the graph node entity type that anchors records of this source.
func (s Source) EntityType() string {
	switch s {
	case SourceCRM:
		return "contact"
	case SourceEcom:
		return "customer"
	case SourceMailing:
		return "subscriber"
	default:
		return string(s)
	}
}

// SourceForEntityType is the inverse of Source.EntityType.
func SourceForEntityType(entityType string) (Source, bool) {
	for _, s := range Sources {
		if s.EntityType() == entityType {
			return s, true
		}
	}
	return "", false
}

func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// IdentityRecord is the normalized, matchable projection of one source row.
// It is rebuilt on every compute and never persisted.
type IdentityRecord struct {
	Source      Source `json:"source"`
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	EmailDomain string `json:"email_domain,omitempty"`
	Phone       string `json:"phone,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	City        string `json:"city,omitempty"`
	Label       string `json:"label,omitempty"`
	Sublabel    string `json:"sublabel,omitempty"`
}

// Key is the record's identity within an org, "source:id".
func (r IdentityRecord) Key() string {
	return RecordKey(r.Source, r.ID)
}

func (r IdentityRecord) Ref() RecordRef {
	return RecordRef{Source: r.Source, ID: r.ID}
}

func RecordKey(source Source, id string) string {
	return string(source) + ":" + id
}

// RecordRef points at one source row.
type RecordRef struct {
	Source Source `json:"source" validate:"required"`
	ID     string `json:"id" validate:"required"`
}

func (r RecordRef) Key() string {
	return RecordKey(r.Source, r.ID)
}

// SourceRow is a raw row read from a source table before normalization.
type SourceRow struct {
	ID        string  `db:"id"`
	Email     *string `db:"email"`
	Phone     *string `db:"phone"`
	FirstName *string `db:"first_name"`
	LastName  *string `db:"last_name"`
	Company   *string `db:"company"`
	City      *string `db:"city"`
	Title     *string `db:"title"`
}
