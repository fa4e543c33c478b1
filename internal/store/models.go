// Package store is the transactional registry of devices, mappings,
// pending delivery state, and dead letters — the single source of truth
// on disk described in spec §4.C.
package store

import "time"

// Device is the persistent entity of spec §3, keyed by a stable
// hardware-provided device_id.
type Device struct {
	ID                   string `gorm:"column:id;primaryKey"`
	Protocol             string `gorm:"column:protocol;index"`
	IP                   string `gorm:"column:ip"`
	Name                 string `gorm:"column:name"`
	Model                string `gorm:"column:model"`
	DeviceType           string `gorm:"column:device_type"`
	CapabilitiesJSON     string `gorm:"column:capabilities_json"`
	Manual               bool   `gorm:"column:manual"`
	Discovered           bool   `gorm:"column:discovered"`
	Configured           bool   `gorm:"column:configured"`
	Enabled              bool   `gorm:"column:enabled"`
	Stale                bool   `gorm:"column:stale"`
	Offline              bool   `gorm:"column:offline"`
	FailureCount         int    `gorm:"column:failure_count"`
	LastPayloadHash      string `gorm:"column:last_payload_hash"`
	LastPayloadAt        *time.Time `gorm:"column:last_payload_at"`
	LastFailureAt        *time.Time `gorm:"column:last_failure_at"`
	PollFailureCount     int        `gorm:"column:poll_failure_count"`
	PollLastSuccessAt    *time.Time `gorm:"column:poll_last_success_at"`
	PollLastFailureAt    *time.Time `gorm:"column:poll_last_failure_at"`
	PollStateJSON        string     `gorm:"column:poll_state_json"`
	PollStateUpdatedAt   *time.Time `gorm:"column:poll_state_updated_at"`
	FirstSeen            time.Time  `gorm:"column:first_seen"`
	LastSeen             time.Time  `gorm:"column:last_seen"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

// TableName overrides GORM's pluralization, matching the teacher's
// explicit-TableName idiom.
func (Device) TableName() string { return "devices" }

// Mapping is a persistent binding of a (universe, channel, length) slice to
// a device and a field interpretation, per spec §3.
type Mapping struct {
	ID          uint   `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID    string `gorm:"column:device_id;index"`
	Universe    uint16 `gorm:"column:universe;index:idx_universe_channel"`
	Channel     int    `gorm:"column:channel;index:idx_universe_channel"`
	Length      int    `gorm:"column:length"`
	MappingType string `gorm:"column:mapping_type"`
	Field       string `gorm:"column:field"`
	FieldsJSON  string `gorm:"column:fields_json"`
	AllowOverlap bool  `gorm:"column:allow_overlap"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (Mapping) TableName() string { return "mappings" }

// PendingState is a FIFO queue row, ordered by ID within a device.
type PendingState struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID  string `gorm:"column:device_id;index"`
	Payload   []byte `gorm:"column:payload"`
	ContextID string `gorm:"column:context_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (PendingState) TableName() string { return "state" }

// DeadLetter is an immutable quarantine record.
type DeadLetter struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	StateID        uint64    `gorm:"column:state_id"`
	DeviceID       string    `gorm:"column:device_id;index"`
	Payload        []byte    `gorm:"column:payload"`
	PayloadHash    string    `gorm:"column:payload_hash"`
	ContextID      string    `gorm:"column:context_id"`
	Reason         string    `gorm:"column:reason"`
	Details        string    `gorm:"column:details"`
	StateCreatedAt time.Time `gorm:"column:state_created_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (DeadLetter) TableName() string { return "dead_letters" }

// schemaMeta stores the schema version, the single source of truth for
// whether this binary may run against the on-disk database.
type schemaMeta struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

func (schemaMeta) TableName() string { return "meta" }
