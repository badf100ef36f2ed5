package models

import "time"

// PropertyStatus is the listing state of a property.
type PropertyStatus string

const (
	PropertyActive    PropertyStatus = "active"
	PropertyPending   PropertyStatus = "pending"
	PropertySold      PropertyStatus = "sold"
	PropertyWithdrawn PropertyStatus = "withdrawn"
)

// Showable reports whether a showing may be scheduled for a property in status s.
func (s PropertyStatus) Showable() bool {
	return s == PropertyActive || s == PropertyPending
}

type Property struct {
	ID           string         `json:"id"`
	MLSNumber    string         `json:"mlsNumber"`
	Address      string         `json:"address"`
	City         string         `json:"city"`
	State        string         `json:"state"`
	ZipCode      string         `json:"zipCode"`
	PropertyType string         `json:"propertyType"`
	Price        float64        `json:"price"`
	Bedrooms     int            `json:"bedrooms"`
	Bathrooms    float64        `json:"bathrooms"`
	SquareFeet   int            `json:"squareFeet"`
	Status       PropertyStatus `json:"status"`
	ListingDate  time.Time      `json:"listingDate"`
	DaysOnMarket int            `json:"daysOnMarket"`
	Description  string         `json:"description,omitempty"`
	AgentID      string         `json:"agentId,omitempty"`
	AgentName    string         `json:"agentName,omitempty"`
}

type Agent struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	LicenseNumber   string  `json:"licenseNumber"`
	Specialties     string  `json:"specialties,omitempty"`
	YearsExperience int     `json:"yearsExperience"`
	YTDSales        float64 `json:"ytdSales"`
	Rating          float64 `json:"rating"`
	Featured        bool    `json:"featured"`
	Active          bool    `json:"active"`
	Bio             string  `json:"bio,omitempty"`
}

// ShowingRequested is the initial status of every showing.
const ShowingRequested = "requested"

type Showing struct {
	ID            string    `json:"id"`
	PropertyID    string    `json:"propertyId"`
	AgentID       string    `json:"agentId,omitempty"`
	ClientName    string    `json:"clientName"`
	ClientEmail   string    `json:"clientEmail"`
	ClientPhone   string    `json:"clientPhone,omitempty"`
	PreferredDate time.Time `json:"preferredDate"`
	TimeSlot      string    `json:"timeSlot"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
