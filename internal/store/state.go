package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DeviceStateUpdate is what the Mapper hands to EnqueueState: an aggregated
// per-device payload fragment plus an optional correlation token.
type DeviceStateUpdate struct {
	DeviceID  string
	Payload   map[string]any
	ContextID string
}

// EnqueueState resolves the device's protocol, wraps the payload into one
// or more wire commands, and appends one state row per command so ordering
// is preserved and retries are per-command (spec §4.C).
func (s *Store) EnqueueState(update DeviceStateUpdate) (int, error) {
	var device Device
	if err := s.db.Where("id = ?", update.DeviceID).First(&device).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, &ValidationError{Message: fmt.Sprintf("device %s does not exist", update.DeviceID)}
		}
		return 0, err
	}
	if s.protocols == nil {
		return 0, fmt.Errorf("store: no protocol registry configured")
	}
	wrapper, ok := s.protocols.Resolve(device.Protocol)
	if !ok {
		return 0, fmt.Errorf("store: unknown protocol %q for device %s", device.Protocol, device.ID)
	}
	commands, err := wrapper.Wrap(update.Payload)
	if err != nil {
		return 0, fmt.Errorf("store: wrap payload: %w", err)
	}

	now := time.Now().UTC()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, cmd := range commands {
			row := PendingState{
				DeviceID:  update.DeviceID,
				Payload:   cmd,
				ContextID: update.ContextID,
				CreatedAt: now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("store: enqueue state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(commands), nil
}

// NextState returns the head pending-state row for a device by id
// ascending, or nil if the queue is empty.
func (s *Store) NextState(deviceID string) (*PendingState, error) {
	var row PendingState
	err := s.db.Where("device_id = ?", deviceID).Order("id ASC").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteState removes a pending-state row, used on delivery success.
func (s *Store) DeleteState(stateID uint64) error {
	return s.db.Delete(&PendingState{}, "id = ?", stateID).Error
}

// QuarantineState atomically writes a dead-letter and deletes the state
// row, per the device_unavailable/missing_ip failure paths in §4.D.
func (s *Store) QuarantineState(row PendingState, reason string, details string) error {
	hash := sha256.Sum256(row.Payload)
	return s.db.Transaction(func(tx *gorm.DB) error {
		letter := DeadLetter{
			StateID:        row.ID,
			DeviceID:       row.DeviceID,
			Payload:        row.Payload,
			PayloadHash:    hex.EncodeToString(hash[:]),
			ContextID:      row.ContextID,
			Reason:         reason,
			Details:        details,
			StateCreatedAt: row.CreatedAt,
		}
		if err := tx.Create(&letter).Error; err != nil {
			return fmt.Errorf("store: write dead letter: %w", err)
		}
		if err := tx.Delete(&PendingState{}, "id = ?", row.ID).Error; err != nil {
			return fmt.Errorf("store: delete quarantined state: %w", err)
		}
		return nil
	})
}

// PendingDeviceIDs returns the distinct device ids with queued state rows,
// polled by Delivery's worker-spawn loop.
func (s *Store) PendingDeviceIDs() ([]string, error) {
	var ids []string
	err := s.db.Model(&PendingState{}).Distinct().Pluck("device_id", &ids).Error
	return ids, err
}
