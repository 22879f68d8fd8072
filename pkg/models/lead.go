package models

import "time"

// Desk statuses. Archived leads are invisible to duplicate detection.
const (
	DeskStatusBin      = "BIN"
	DeskStatusActive   = "ACTIVE"
	DeskStatusArchived = "ARCHIVED"
)

// Lead temperatures, hottest first.
const (
	TemperatureSuperHot = "SUPER HOT"
	TemperatureHot      = "HOT"
	TemperatureWarm     = "WARM"
	TemperatureCold     = "COLD"
	TemperatureTBD      = "TBD"
	TemperatureDead     = "DEAD"
)

// Lead is a property lead row.
// Field order matches schema: id, address_line1, address_line2, city, state, zipcode, ...
type Lead struct {
	ID              int64      `json:"id" db:"id"`
	AddressLine1    string     `json:"address_line1" db:"address_line1"`
	AddressLine2    *string    `json:"address_line2,omitempty" db:"address_line2"`
	City            string     `json:"city" db:"city"`
	State           string     `json:"state" db:"state"`
	Zipcode         string     `json:"zipcode" db:"zipcode"`
	Latitude        *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude       *float64   `json:"longitude,omitempty" db:"longitude"`
	Owner1Name      *string    `json:"owner1_name,omitempty" db:"owner1_name"`
	Owner2Name      *string    `json:"owner2_name,omitempty" db:"owner2_name"`
	LeadTemperature string     `json:"lead_temperature" db:"lead_temperature"`
	DeskStatus      string     `json:"desk_status" db:"desk_status"`
	AssignedAgentID *int64     `json:"assigned_agent_id,omitempty" db:"assigned_agent_id"`
	ContactCount    int        `json:"contact_count" db:"contact_count"`
	NoteCount       int        `json:"note_count" db:"note_count"`
	TaskCount       int        `json:"task_count" db:"task_count"`
	PhotoCount      int        `json:"photo_count" db:"photo_count"`
	AgentCount      int        `json:"agent_count" db:"agent_count"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty" db:"last_activity_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// RelatedCounts tallies a lead's dependent records per entity type. Phones and
// emails hang off contacts, so they move with their parent contact on merge.
type RelatedCounts struct {
	Contacts      int `json:"contacts"`
	Phones        int `json:"phones"`
	Emails        int `json:"emails"`
	Notes         int `json:"notes"`
	Tasks         int `json:"tasks"`
	Photos        int `json:"photos"`
	Visits        int `json:"visits"`
	Agents        int `json:"agents"`
	FamilyMembers int `json:"family_members"`
	Tags          int `json:"tags"`
}

// Total sums every dependent type.
func (c RelatedCounts) Total() int {
	return c.Contacts + c.Phones + c.Emails + c.Notes + c.Tasks +
		c.Photos + c.Visits + c.Agents + c.FamilyMembers + c.Tags
}

// LeadSnapshot is a lead plus its related-data counts, the unit the scorer
// compares. Counts come from one aggregate query, not per-table round trips.
type LeadSnapshot struct {
	Lead   `json:"lead"`
	Counts RelatedCounts `json:"counts"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (l *Lead) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// FullAddress joins the address parts for display and audit snapshots.
func (l *Lead) FullAddress() string {
	addr := l.AddressLine1
	if l.AddressLine2 != nil && *l.AddressLine2 != "" {
		addr += " " + *l.AddressLine2
	}
	return addr + ", " + l.City + ", " + l.State + " " + l.Zipcode
}
