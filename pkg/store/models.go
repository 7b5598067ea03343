package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Domain errors surfaced by the store.
var (
	ErrLinkNotFound   = errors.New("store: link not found")
	ErrDeviceNotFound = errors.New("store: device not found")
	ErrRecordNotFound = errors.New("store: record not found")

	ErrDuplicateEndpoint = errors.New("store: a link with this mode, ip and port already exists")
	ErrDuplicateDevice   = errors.New("store: a device with this code already exists on the link")
	ErrLinkInUse         = errors.New("store: link is referenced by devices")
)

// Link is a configured TCP endpoint. Mode and protocol are immutable
// after creation: devices bind to the link id, and changing either
// would desync telemetry history. Links are soft-deleted.
type Link struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Name     string `gorm:"not null;size:255" json:"name"`
	Mode     string `gorm:"not null;size:50" json:"mode"` // TCP Server / TCP Client
	IP       string `gorm:"not null;size:255" json:"ip"`
	Port     int    `gorm:"not null" json:"port"`
	Protocol string `gorm:"not null;default:SL651;size:50" json:"protocol"`
	Enabled  bool   `gorm:"default:true" json:"enabled"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for Link.
func (Link) TableName() string {
	return "links"
}

// Device is a telemetry station registered on a link, addressed by its
// 10-digit remote code. Config carries the JSON-encoded element
// dictionaries consumed by the parser.
type Device struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Code     string `gorm:"not null;size:10;uniqueIndex:idx_devices_link_code" json:"code"`
	LinkID   string `gorm:"not null;size:36;uniqueIndex:idx_devices_link_code" json:"link_id"`
	Name     string `gorm:"size:255" json:"name"`
	Timezone string `gorm:"default:+08:00;size:10" json:"timezone"`
	Password string `gorm:"default:0000;size:4" json:"password"`
	Config   string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Link Link `gorm:"foreignKey:LinkID" json:"link,omitempty"`
}

// TableName returns the table name for Device.
func (Device) TableName() string {
	return "devices"
}

// TelemetryRecord is one persisted frame: a completed single frame or a
// completed multi-packet transaction. The auto-increment id is the
// correlation handle for command responses.
type TelemetryRecord struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID string `gorm:"not null;size:36;index" json:"device_id"`
	LinkID   string `gorm:"not null;size:36;index" json:"link_id"`
	Protocol string `gorm:"not null;size:50" json:"protocol"`
	Data     string `gorm:"type:text" json:"data"`

	ReportTime *time.Time `gorm:"index" json:"report_time,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for TelemetryRecord.
func (TelemetryRecord) TableName() string {
	return "telemetry_records"
}

// AllModels returns every model for schema migration.
func AllModels() []any {
	return []any{
		&Link{},
		&Device{},
		&TelemetryRecord{},
	}
}
