package domain

import "time"

// TagAssociation is a community tag attached to a phone number.
// (Phone, Tag) is unique; ID is a surrogate used to address a single association.
type TagAssociation struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	Tag         string    `json:"tag"`
	CreatedAt   time.Time `json:"created_at"`
	ReportCount int64     `json:"report_count"`
}

// Key returns the semantic primary key of the association.
func (a *TagAssociation) Key() TagKey {
	return TagKey{Phone: a.Phone, Tag: a.Tag}
}

// TagKey identifies an association by its canonical phone and tag.
type TagKey struct {
	Phone string `json:"phone"`
	Tag   string `json:"tag"`
}

// PhoneGroup is every tag stored for one phone.
type PhoneGroup struct {
	Phone string   `json:"phone"`
	Tags  []string `json:"tags"`
}

// RegistryStats summarizes the registry contents.
type RegistryStats struct {
	Associations int64 `json:"associations"`
	Phones       int64 `json:"phones"`
}
