package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/bus"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/capabilities"
)

// MappingSpec describes a mapping to create, mirroring spec §3's Mapping
// fields before a row id is assigned.
type MappingSpec struct {
	DeviceID     string
	Universe     uint16
	Channel      int
	Length       int
	MappingType  string // "range" | "discrete"
	Field        string
	Fields       []string
	AllowOverlap bool
}

// CreateMapping validates and inserts a single mapping row, per spec
// §4.C's create_mapping preconditions.
func (s *Store) CreateMapping(spec MappingSpec) (uint, error) {
	var id uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		device, caps, err := s.loadDeviceCapabilities(tx, spec.DeviceID)
		if err != nil {
			return err
		}
		if err := validateMappingSpec(spec, caps); err != nil {
			return err
		}
		if err := checkOverlap(tx, spec, 0); err != nil {
			return err
		}

		fieldsJSON, err := json.Marshal(spec.Fields)
		if err != nil {
			return fmt.Errorf("store: marshal fields: %w", err)
		}

		row := Mapping{
			DeviceID:     spec.DeviceID,
			Universe:     spec.Universe,
			Channel:      spec.Channel,
			Length:       spec.Length,
			MappingType:  spec.MappingType,
			Field:        spec.Field,
			FieldsJSON:   string(fieldsJSON),
			AllowOverlap: spec.AllowOverlap,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("store: create mapping: %w", err)
		}
		id = row.ID

		if err := tx.Model(&Device{}).Where("id = ?", device.ID).Update("configured", true).Error; err != nil {
			return err
		}
		s.publish(bus.TopicMappingCreated, row.ID)
		return nil
	})
	return id, err
}

// CreateTemplateMappings inserts every mapping in specs atomically;
// ValidationError on any one aborts the whole transaction (spec §4.C).
func (s *Store) CreateTemplateMappings(specs []MappingSpec) ([]uint, error) {
	ids := make([]uint, 0, len(specs))
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, spec := range specs {
			device, caps, err := s.loadDeviceCapabilities(tx, spec.DeviceID)
			if err != nil {
				return err
			}
			if err := validateMappingSpec(spec, caps); err != nil {
				return err
			}
			if err := checkOverlap(tx, spec, 0); err != nil {
				return err
			}
			fieldsJSON, err := json.Marshal(spec.Fields)
			if err != nil {
				return fmt.Errorf("store: marshal fields: %w", err)
			}
			row := Mapping{
				DeviceID: spec.DeviceID, Universe: spec.Universe, Channel: spec.Channel,
				Length: spec.Length, MappingType: spec.MappingType, Field: spec.Field,
				FieldsJSON: string(fieldsJSON), AllowOverlap: spec.AllowOverlap,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("store: create template mapping: %w", err)
			}
			ids = append(ids, row.ID)
			if err := tx.Model(&Device{}).Where("id = ?", device.ID).Update("configured", true).Error; err != nil {
				return err
			}
			s.publish(bus.TopicMappingCreated, row.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateMapping re-validates and updates a mapping's channel span/field.
func (s *Store) UpdateMapping(id uint, spec MappingSpec) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing Mapping
		if err := tx.Where("id = ?", id).First(&existing).Error; err != nil {
			return err
		}
		_, caps, err := s.loadDeviceCapabilities(tx, existing.DeviceID)
		if err != nil {
			return err
		}
		spec.DeviceID = existing.DeviceID
		if err := validateMappingSpec(spec, caps); err != nil {
			return err
		}
		if err := checkOverlap(tx, spec, id); err != nil {
			return err
		}
		fieldsJSON, err := json.Marshal(spec.Fields)
		if err != nil {
			return err
		}
		updates := map[string]any{
			"universe": spec.Universe, "channel": spec.Channel, "length": spec.Length,
			"mapping_type": spec.MappingType, "field": spec.Field,
			"fields_json": string(fieldsJSON), "allow_overlap": spec.AllowOverlap,
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		s.publish(bus.TopicMappingUpdated, id)
		return nil
	})
}

// DeleteMapping removes a mapping, clearing the device's configured flag if
// no mappings remain.
func (s *Store) DeleteMapping(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing Mapping
		if err := tx.Where("id = ?", id).First(&existing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if err := tx.Delete(&existing).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&Mapping{}).Where("device_id = ?", existing.DeviceID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			if err := tx.Model(&Device{}).Where("id = ?", existing.DeviceID).Update("configured", false).Error; err != nil {
				return err
			}
		}
		s.publish(bus.TopicMappingDeleted, id)
		return nil
	})
}

// MappingSnapshot is a Mapper-facing read of a mapping joined with its
// device's normalized capabilities, used to rebuild the per-universe cache.
type MappingSnapshot struct {
	MappingID    uint
	DeviceID     string
	Universe     uint16
	Channel      int
	Length       int
	MappingType  string
	Field        string
	Fields       []string
	Capabilities capabilities.NormalizedCapabilities
}

// AllMappingsForCache returns every mapping belonging to an enabled,
// non-stale device, in ascending mapping id order (insertion order), for
// the Mapper's cache rebuild (spec §4.B).
func (s *Store) AllMappingsForCache() ([]MappingSnapshot, error) {
	type row struct {
		Mapping
		Model            string
		CapabilitiesJSON string
	}
	var rows []row
	err := s.db.Table("mappings").
		Select("mappings.*, devices.model AS model, devices.capabilities_json AS capabilities_json").
		Joins("JOIN devices ON devices.id = mappings.device_id").
		Where("devices.enabled = ? AND devices.stale = ?", true, false).
		Order("mappings.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: load mappings for cache: %w", err)
	}

	snapshots := make([]MappingSnapshot, 0, len(rows))
	for _, r := range rows {
		raw, err := unmarshalCapabilities(r.CapabilitiesJSON)
		if err != nil {
			return nil, err
		}
		var fields []string
		if r.FieldsJSON != "" {
			if err := json.Unmarshal([]byte(r.FieldsJSON), &fields); err != nil {
				return nil, fmt.Errorf("store: unmarshal mapping fields: %w", err)
			}
		}
		snapshots = append(snapshots, MappingSnapshot{
			MappingID:    r.ID,
			DeviceID:     r.DeviceID,
			Universe:     r.Universe,
			Channel:      r.Channel,
			Length:       r.Length,
			MappingType:  r.MappingType,
			Field:        r.Field,
			Fields:       fields,
			Capabilities: capabilities.Normalize(r.Model, raw),
		})
	}
	return snapshots, nil
}

func (s *Store) loadDeviceCapabilities(tx *gorm.DB, deviceID string) (*Device, capabilities.NormalizedCapabilities, error) {
	var device Device
	if err := tx.Where("id = ?", deviceID).First(&device).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, capabilities.NormalizedCapabilities{}, &ValidationError{Message: fmt.Sprintf("device %s does not exist", deviceID)}
		}
		return nil, capabilities.NormalizedCapabilities{}, err
	}
	raw, err := unmarshalCapabilities(device.CapabilitiesJSON)
	if err != nil {
		return nil, capabilities.NormalizedCapabilities{}, err
	}
	return &device, capabilities.Normalize(device.Model, raw), nil
}

func validateMappingSpec(spec MappingSpec, caps capabilities.NormalizedCapabilities) error {
	if spec.Channel <= 0 || spec.Length <= 0 {
		return &ValidationError{Message: "channel and length must be positive"}
	}
	if spec.Channel+spec.Length-1 > 512 {
		return &ValidationError{Message: "channel + length - 1 exceeds 512"}
	}
	if spec.MappingType == "discrete" {
		if spec.Length != 1 {
			return &ValidationError{Message: "discrete mapping requires length=1"}
		}
		if spec.Field == "" {
			return &ValidationError{Message: "discrete mapping requires a field"}
		}
	}
	if spec.Field != "" {
		if err := capabilities.ValidateMappingField(spec.Field, caps); err != nil {
			return &ValidationError{Message: err.Error()}
		}
	}
	return nil
}

// checkOverlap rejects a channel-range overlap within a universe, or a
// duplicate field per (device, universe), unless AllowOverlap was set.
// excludeID lets UpdateMapping exclude itself from the comparison.
func checkOverlap(tx *gorm.DB, spec MappingSpec, excludeID uint) error {
	if spec.AllowOverlap {
		return nil
	}
	var candidates []Mapping
	if err := tx.Where("universe = ? AND id <> ?", spec.Universe, excludeID).Find(&candidates).Error; err != nil {
		return err
	}

	newStart, newEnd := spec.Channel, spec.Channel+spec.Length-1
	for _, m := range candidates {
		if m.AllowOverlap {
			continue
		}
		existingStart, existingEnd := m.Channel, m.Channel+m.Length-1
		if newStart <= existingEnd && existingStart <= newEnd {
			return &ValidationError{Message: fmt.Sprintf("mapping overlaps existing mapping %d on universe %d", m.ID, spec.Universe)}
		}
		if spec.Field != "" && m.Field == spec.Field && m.DeviceID == spec.DeviceID {
			return &ValidationError{Message: fmt.Sprintf("field %q already assigned on device for universe %d", spec.Field, spec.Universe)}
		}
	}
	return nil
}
