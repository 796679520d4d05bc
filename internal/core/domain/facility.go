package domain

import "time"

// Well-known facility categories. The remote store may send others.
const (
	CategoryPharmacy    = "pharmacy"
	CategoryClinic      = "clinic"
	CategoryHospital    = "hospital"
	CategoryLaboratory  = "laboratory"
	CategoryStore       = "store"
	CategorySupermarket = "supermarket"
	CategoryRestaurant  = "restaurant"
)

// Contact holds the optional ways to reach a facility.
type Contact struct {
	Phone      string `json:"phone,omitempty"`
	AltContact string `json:"alt_contact,omitempty"`
	Website    string `json:"website,omitempty"`
}

// FacilityRecord is a geo-tagged commercial store or health establishment.
// The discovery core treats it as read-only input.
type FacilityRecord struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Address    string     `json:"address"`
	City       string     `json:"city"`
	Coordinate Coordinate `json:"coordinate"`
	Contact    *Contact   `json:"contact,omitempty"`
	Hours      *string    `json:"hours,omitempty"`
	Services   []string   `json:"services"`
	Active     bool       `json:"active"`
	ImageRefs  []string   `json:"image_refs"`
	UpdatedAt  time.Time  `json:"updated_at,omitempty"`
}

func (f FacilityRecord) RecordID() string     { return f.ID }
func (f FacilityRecord) Location() Coordinate { return f.Coordinate }
func (f FacilityRecord) CategoryTag() string  { return f.Category }
func (f FacilityRecord) DisplayName() string  { return f.Name }

// FacilityList is the remote fetch response body.
type FacilityList struct {
	Items []FacilityRecord `json:"items"`
}

// FacilitiesChanged is published after the backing record store has been modified.
type FacilitiesChanged struct {
	RunID      string    `json:"run_id"`
	Categories []string  `json:"categories"`
	Count      int       `json:"count"`
	At         time.Time `json:"at"`
}
