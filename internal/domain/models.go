// Package domain defines the persistence models for the subsidy catalog and
// consultation bookings. These types are mapped with GORM and shared by the
// repository, service and HTTP layers.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Subsidy is one government subsidy program in the public catalog.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Title / Summary: display text, also indexed for search.
//   - Organization: the administering body (ministry, prefecture, city).
//   - Region / Category: facet filters; indexed together for list queries.
//   - MaxAmount: upper bound of the grant in yen (0 when unspecified).
//   - SubsidyRate: free-form rate such as "2/3" or "1/2 (up to 1,000,000 yen)".
//   - ApplicationStart / ApplicationEnd: optional application window.
//   - Published: only published programs are visible on the public API.
type Subsidy struct {
	ID               string         `json:"id"                          gorm:"type:char(36);primaryKey"`
	Title            string         `json:"title"                       gorm:"type:varchar(255);not null"`
	Summary          string         `json:"summary"                     gorm:"type:text"`
	Organization     string         `json:"organization"                gorm:"type:varchar(255)"`
	Region           string         `json:"region"                      gorm:"type:varchar(64);index:idx_subsidy_facets,priority:1"`
	Category         string         `json:"category"                    gorm:"type:varchar(64);index:idx_subsidy_facets,priority:2"`
	MaxAmount        int64          `json:"max_amount"`
	SubsidyRate      string         `json:"subsidy_rate"                gorm:"type:varchar(64)"`
	ApplicationStart *time.Time     `json:"application_start,omitempty"`
	ApplicationEnd   *time.Time     `json:"application_end,omitempty"`
	URL              string         `json:"url"                         gorm:"type:varchar(512)"`
	Published        bool           `json:"-"                           gorm:"not null;default:false;index"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-"                           gorm:"index"`
}

// TableName returns the database table name for Subsidy.
func (Subsidy) TableName() string { return "subsidies" }

// AcceptingApplications reports whether now falls inside the application
// window. Open-ended bounds are treated as unbounded.
func (s Subsidy) AcceptingApplications(now time.Time) bool {
	if s.ApplicationStart != nil && now.Before(*s.ApplicationStart) {
		return false
	}
	if s.ApplicationEnd != nil && now.After(*s.ApplicationEnd) {
		return false
	}
	return true
}

// Appointment is a booked free consultation. StartAt is unique so one slot
// can only be booked once.
type Appointment struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	StartAt     time.Time `json:"start_at"     gorm:"not null;uniqueIndex:ux_appointment_start"`
	EndAt       time.Time `json:"end_at"       gorm:"not null;index"`
	CompanyName string    `json:"company_name" gorm:"type:varchar(255);not null"`
	ContactName string    `json:"contact_name" gorm:"type:varchar(255);not null"`
	Email       string    `json:"email"        gorm:"type:varchar(255);not null"`
	Phone       string    `json:"phone,omitempty" gorm:"type:varchar(32)"`
	Note        string    `json:"note,omitempty"  gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Appointment.
func (Appointment) TableName() string { return "appointments" }
