package domain

import (
	"strings"
	"time"
)

type Address struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Label       string    `json:"label" db:"label"`
	Unit        string    `json:"unit" db:"unit"`
	HouseNumber string    `json:"house_number" db:"house_number"`
	Road        string    `json:"road" db:"road"`
	City        string    `json:"city" db:"city"`
	State       string    `json:"state" db:"state"`
	Postcode    string    `json:"postcode" db:"postcode"`
	Country     string    `json:"country" db:"country"`
	Latitude    *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64  `json:"longitude,omitempty" db:"longitude"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// AddressParams lists the postal fields. HouseNumber, Road, City, State,
// Postcode and Country are required.
type AddressParams struct {
	Label       string
	Unit        string
	HouseNumber string
	Road        string
	City        string
	State       string
	Postcode    string
	Country     string
	Latitude    *float64
	Longitude   *float64
}

func NewAddress(userID string, p AddressParams, now time.Time) (*Address, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Message: "is required"}
	}
	a := &Address{
		UserID:      userID,
		Label:       strings.TrimSpace(p.Label),
		Unit:        strings.TrimSpace(p.Unit),
		HouseNumber: strings.TrimSpace(p.HouseNumber),
		Road:        strings.TrimSpace(p.Road),
		City:        strings.TrimSpace(p.City),
		State:       strings.TrimSpace(p.State),
		Postcode:    strings.TrimSpace(p.Postcode),
		Country:     strings.TrimSpace(p.Country),
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Address) BelongsTo(userID string) bool {
	return a.UserID == userID
}

type AddressUpdate struct {
	Label       *string
	Unit        *string
	HouseNumber *string
	Road        *string
	City        *string
	State       *string
	Postcode    *string
	Country     *string
	Latitude    *float64
	Longitude   *float64
}

func (a *Address) Apply(upd AddressUpdate) error {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&a.Label, upd.Label)
	set(&a.Unit, upd.Unit)
	set(&a.HouseNumber, upd.HouseNumber)
	set(&a.Road, upd.Road)
	set(&a.City, upd.City)
	set(&a.State, upd.State)
	set(&a.Postcode, upd.Postcode)
	set(&a.Country, upd.Country)
	if upd.Latitude != nil {
		a.Latitude = upd.Latitude
	}
	if upd.Longitude != nil {
		a.Longitude = upd.Longitude
	}
	return a.validate()
}

func (a *Address) validate() error {
	required := []struct {
		field string
		value string
	}{
		{"house_number", a.HouseNumber},
		{"road", a.Road},
		{"city", a.City},
		{"state", a.State},
		{"postcode", a.Postcode},
		{"country", a.Country},
	}
	for _, r := range required {
		if r.value == "" {
			return &ValidationError{Field: r.field, Message: "is required"}
		}
	}
	if a.Latitude != nil && (*a.Latitude < -90 || *a.Latitude > 90) {
		return &ValidationError{Field: "latitude", Message: "must be between -90 and 90"}
	}
	if a.Longitude != nil && (*a.Longitude < -180 || *a.Longitude > 180) {
		return &ValidationError{Field: "longitude", Message: "must be between -180 and 180"}
	}
	return nil
}
