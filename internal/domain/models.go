// Package domain defines the persistence models for the flood-preparedness
// backend: the notification ledger, registered device push-tokens, citizen
// reports, curated flood information, and app users reachable over WhatsApp.
// These types are mapped with GORM and form the core data layer shared by the
// repository and service layers.
package domain

import "time"

// Notification is a ledger entry: the durable, append-only record of a warning
// that has been dispatched. Entries are never updated; they double as the
// audit trail and as the source of truth for deduplication.
//
// DedupKey is the warning kind plus the creation time truncated to the kind's
// minimum re-fire interval. Its unique index turns the ledger insert into an
// insert-if-absent, which is the authoritative guard against duplicate
// warnings when the in-process checks race.
type Notification struct {
	ID        string    `json:"id"         gorm:"type:TEXT NOT NULL;primaryKey"`
	Kind      string    `json:"kind"       gorm:"type:TEXT NOT NULL;index"`
	Title     string    `json:"judul"      gorm:"type:TEXT NOT NULL"`
	Body      string    `json:"pesan"      gorm:"type:TEXT NOT NULL"`
	DedupKey  string    `json:"-"          gorm:"type:TEXT NOT NULL;uniqueIndex:ux_notifications_dedup"`
	CreatedAt time.Time `json:"created_at" gorm:"type:DATETIME NOT NULL;index"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// DeviceToken is a registered FCM device token. Tokens are unique by value;
// registration is an idempotent upsert, and the row is deleted when the push
// provider reports the token as unregistered (either during a warning fan-out
// or the periodic validation sweep). The token registry owns this table
// exclusively; no other component mutates it.
type DeviceToken struct {
	Token     string    `json:"token"         gorm:"type:TEXT NOT NULL;primaryKey"`
	CreatedAt time.Time `json:"registered_at" gorm:"type:DATETIME NOT NULL"`
}

// TableName returns the database table name for DeviceToken.
func (DeviceToken) TableName() string { return "fcm_tokens" }

// Report is a citizen-submitted report. Only the columns the notification
// core reads are modeled: the report type, the moderation status, and the
// submission time. The CRUD surface that creates and curates reports lives
// outside this subsystem.
type Report struct {
	ID         string    `json:"id"           gorm:"type:TEXT NOT NULL;primaryKey"`
	ReportType string    `json:"tipe_laporan" gorm:"type:TEXT NOT NULL;index:idx_reports_type_status,priority:1"`
	Status     string    `json:"status"       gorm:"type:TEXT NOT NULL;index:idx_reports_type_status,priority:2"`
	ReportedAt time.Time `json:"waktu"        gorm:"type:DATETIME NOT NULL;index"`
}

// TableName returns the database table name for Report.
func (Report) TableName() string { return "reports" }

// Report type and status values recognized by the condition evaluator.
const (
	ReportTypeFlood   = "Banjir"
	ReportStatusValid = "Valid"
)

// FloodInfo is an administrator-curated flood record. The flood condition
// evaluator reads only the most recent row; the CRUD surface that maintains
// this table is out of scope.
type FloodInfo struct {
	ID         string    `json:"id"             gorm:"type:TEXT NOT NULL;primaryKey"`
	Area       string    `json:"wilayah_banjir" gorm:"type:TEXT NOT NULL"`
	OccurredAt time.Time `json:"waktu_kejadian" gorm:"type:DATETIME NOT NULL;index"`
}

// TableName returns the database table name for FloodInfo.
func (FloodInfo) TableName() string { return "flood_info" }

// AppUser is a mobile-app user. Only the WhatsApp number matters to this
// subsystem; the broadcast path reads every non-empty number and normalizes
// it to international form before sending.
type AppUser struct {
	ID             string    `json:"id"         gorm:"type:TEXT NOT NULL;primaryKey"`
	WhatsAppNumber string    `json:"nomor_wa"   gorm:"type:TEXT"`
	CreatedAt      time.Time `json:"created_at" gorm:"type:DATETIME NOT NULL"`
}

// TableName returns the database table name for AppUser.
func (AppUser) TableName() string { return "app_users" }
