package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/bus"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/capabilities"
)

// DiscoveryResult is the parsed record a discovery scanner hands to
// UpsertDiscovery. Discovery itself is an excluded external collaborator
// (spec §1); this is the seam it calls through.
type DiscoveryResult struct {
	ID           string
	Protocol     string
	IP           string
	Name         string
	Model        string
	Capabilities map[string]any
}

// ManualDeclaration is a statically configured device merged at startup.
type ManualDeclaration struct {
	ID           string
	IP           string
	Protocol     string
	Model        string
	Description  string
	Capabilities map[string]any
}

// DevicePatch is a partial update applied with COALESCE semantics: nil
// fields are left unchanged.
type DevicePatch struct {
	Name         *string
	Model        *string
	IP           *string
	Enabled      *bool
	Capabilities map[string]any
}

// DeviceInfo is the Delivery-facing snapshot returned by DeviceInfo. A nil
// result means the device is disabled or stale and must not be sent to.
type DeviceInfo struct {
	ID              string
	Protocol        string
	IP              string
	Capabilities    capabilities.NormalizedCapabilities
	FailureCount    int
	LastPayloadHash string
}

// UpsertDiscovery inserts or refreshes a device from a discovery record,
// preserving operator-set configured/enabled flags and clearing stale.
func (s *Store) UpsertDiscovery(result DiscoveryResult) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing Device
		err := tx.Where("id = ?", result.ID).First(&existing).Error
		now := time.Now().UTC()

		capsJSON, err2 := marshalCapabilities(result.Capabilities)
		if err2 != nil {
			return err2
		}

		if err == gorm.ErrRecordNotFound {
			device := Device{
				ID:               result.ID,
				Protocol:         result.Protocol,
				IP:               result.IP,
				Name:             result.Name,
				Model:            result.Model,
				CapabilitiesJSON: capsJSON,
				Discovered:       true,
				Enabled:          true,
				FirstSeen:        now,
				LastSeen:         now,
			}
			if err := tx.Create(&device).Error; err != nil {
				return fmt.Errorf("store: create discovered device: %w", err)
			}
			s.publish(bus.TopicDeviceDiscovered, device.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("store: lookup device %s: %w", result.ID, err)
		}

		updates := map[string]any{
			"ip":                result.IP,
			"protocol":          result.Protocol,
			"name":              result.Name,
			"model":             result.Model,
			"capabilities_json": capsJSON,
			"discovered":        true,
			"stale":             false,
			"last_seen":         now,
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("store: update discovered device: %w", err)
		}
		s.publish(bus.TopicDeviceUpdated, existing.ID)
		return nil
	})
}

// UpsertManual merges a statically declared device: manual=1,
// discovered=0, enabled=1, capabilities merged over any existing row.
func (s *Store) UpsertManual(decl ManualDeclaration) error {
	if decl.ID == "" || decl.IP == "" {
		return &ValidationError{Message: "manual device requires id and ip"}
	}
	capsJSON, err := marshalCapabilities(decl.Capabilities)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing Device
		err := tx.Where("id = ?", decl.ID).First(&existing).Error
		now := time.Now().UTC()

		if err == gorm.ErrRecordNotFound {
			device := Device{
				ID:               decl.ID,
				Protocol:         decl.Protocol,
				IP:               decl.IP,
				Model:            decl.Model,
				Name:             decl.Description,
				CapabilitiesJSON: capsJSON,
				Manual:           true,
				Enabled:          true,
				FirstSeen:        now,
				LastSeen:         now,
			}
			return tx.Create(&device).Error
		}
		if err != nil {
			return fmt.Errorf("store: lookup manual device %s: %w", decl.ID, err)
		}

		merged, err := unmarshalCapabilities(existing.CapabilitiesJSON)
		if err != nil {
			return err
		}
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range decl.Capabilities {
			merged[k] = v
		}
		mergedJSON, err := marshalCapabilities(merged)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"ip":                decl.IP,
			"protocol":          decl.Protocol,
			"model":             decl.Model,
			"capabilities_json": mergedJSON,
			"manual":            true,
			"discovered":        false,
			"enabled":           true,
		}
		return tx.Model(&existing).Updates(updates).Error
	})
}

// UpdateDevice applies a partial update with COALESCE semantics and
// re-normalizes capabilities when supplied.
func (s *Store) UpdateDevice(id string, patch DevicePatch) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing Device
		if err := tx.Where("id = ?", id).First(&existing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		updates := map[string]any{}
		if patch.Name != nil {
			updates["name"] = *patch.Name
		}
		if patch.Model != nil {
			updates["model"] = *patch.Model
		}
		if patch.IP != nil {
			updates["ip"] = *patch.IP
		}
		if patch.Enabled != nil {
			updates["enabled"] = *patch.Enabled
		}
		if patch.Capabilities != nil {
			capsJSON, err := marshalCapabilities(patch.Capabilities)
			if err != nil {
				return err
			}
			updates["capabilities_json"] = capsJSON
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		s.publish(bus.TopicDeviceUpdated, id)
		return nil
	})
}

// MarkStale sets stale=1 on every device whose last_seen predates the
// threshold.
func (s *Store) MarkStale(threshold time.Duration) error {
	cutoff := time.Now().UTC().Add(-threshold)
	return s.db.Model(&Device{}).
		Where("last_seen < ? AND stale = ?", cutoff, false).
		Update("stale", true).Error
}

// RecordSendSuccess resets the failure counter, clears offline (publishing
// device_online on transition), and stamps last_payload_at.
func (s *Store) RecordSendSuccess(deviceID string, payloadHash string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var device Device
		if err := tx.Where("id = ?", deviceID).First(&device).Error; err != nil {
			return err
		}
		wasOffline := device.Offline
		now := time.Now().UTC()
		if err := tx.Model(&device).Updates(map[string]any{
			"failure_count":     0,
			"offline":           false,
			"last_payload_hash": payloadHash,
			"last_payload_at":   now,
			"last_seen":         now,
		}).Error; err != nil {
			return err
		}
		if wasOffline {
			s.publish(bus.TopicDeviceOnline, deviceID)
		}
		return nil
	})
}

// RecordSendFailure increments the failure counter and transitions the
// device offline when it reaches offlineThreshold.
func (s *Store) RecordSendFailure(deviceID string, payloadHash string, offlineThreshold int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var device Device
		if err := tx.Where("id = ?", deviceID).First(&device).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		newCount := device.FailureCount + 1
		updates := map[string]any{
			"failure_count":     newCount,
			"last_payload_hash": payloadHash,
			"last_failure_at":   now,
		}
		transitioned := !device.Offline && newCount >= offlineThreshold
		if transitioned {
			updates["offline"] = true
		}
		if err := tx.Model(&device).Updates(updates).Error; err != nil {
			return err
		}
		if transitioned {
			s.publish(bus.TopicDeviceOffline, deviceID)
		}
		return nil
	})
}

// RecordPollSuccess stamps poll_last_success_at and resets poll_failure_count.
func (s *Store) RecordPollSuccess(deviceID string) error {
	now := time.Now().UTC()
	return s.db.Model(&Device{}).Where("id = ?", deviceID).Updates(map[string]any{
		"poll_failure_count":   0,
		"poll_last_success_at": now,
	}).Error
}

// RecordPollFailure increments poll_failure_count and stamps poll_last_failure_at.
func (s *Store) RecordPollFailure(deviceID string) error {
	now := time.Now().UTC()
	return s.db.Model(&Device{}).Where("id = ?", deviceID).
		Updates(map[string]any{
			"poll_failure_count":   gorm.Expr("poll_failure_count + 1"),
			"poll_last_failure_at": now,
		}).Error
}

// DeviceInfo returns a Delivery-facing snapshot, or nil if the device is
// disabled or stale.
func (s *Store) DeviceInfo(id string) (*DeviceInfo, error) {
	var device Device
	err := s.db.Where("id = ?", id).First(&device).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !device.Enabled || device.Stale {
		return nil, nil
	}

	raw, err := unmarshalCapabilities(device.CapabilitiesJSON)
	if err != nil {
		return nil, err
	}

	return &DeviceInfo{
		ID:              device.ID,
		Protocol:        device.Protocol,
		IP:              device.IP,
		Capabilities:    capabilities.Normalize(device.Model, raw),
		FailureCount:    device.FailureCount,
		LastPayloadHash: device.LastPayloadHash,
	}, nil
}

func marshalCapabilities(caps map[string]any) (string, error) {
	if caps == nil {
		caps = map[string]any{}
	}
	b, err := json.Marshal(caps)
	if err != nil {
		return "", fmt.Errorf("store: marshal capabilities: %w", err)
	}
	return string(b), nil
}

func unmarshalCapabilities(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("store: unmarshal capabilities: %w", err)
	}
	return out, nil
}
