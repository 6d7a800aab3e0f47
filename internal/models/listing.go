package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MaxListingImages is the hard ceiling on images per listing, enforced on
// every create and update.
const MaxListingImages = 10

// ImageList is an ordered sequence of data-URI encoded images. It is stored
// as a single JSON text column; new images are only ever appended.
type ImageList []string

// Value implements driver.Valuer so GORM can persist the list as text.
func (l ImageList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for reading the JSON text column back.
func (l *ImageList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported image list column type %T", src)
	}
}

// ListingTags is the fixed attribute set attached to every listing.
// All three fields are required at creation; updates merge per sub-field.
type ListingTags struct {
	Category     string `json:"category" gorm:"type:varchar(100)"`
	Manufacturer string `json:"manufacturer" gorm:"type:varchar(100)"`
	Distributor  string `json:"distributor" gorm:"type:varchar(100)"`
}

// Listing represents an item offered by a single owner. The OwnerID is bound
// at creation and never reassigned; every repository access filters on it.
type Listing struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Title       string      `json:"title" gorm:"type:varchar(200)"`
	Description string      `json:"description" gorm:"type:text"`
	Images      ImageList   `json:"images" gorm:"type:text"`
	Tags        ListingTags `json:"tags" gorm:"embedded;embeddedPrefix:tag_"`
	OwnerID     string      `json:"owner" gorm:"index;type:varchar(36)"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
