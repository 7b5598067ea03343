package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateDevice registers a device on a link. The (link, code) pair is
// unique.
func (s *Store) CreateDevice(ctx context.Context, device *Device) (string, error) {
	return s.createDevice(ctx, s.db, device)
}

// CreateDeviceTx is the guard-scoped variant of CreateDevice.
func (s *Store) CreateDeviceTx(ctx context.Context, g *TxGuard, device *Device) (string, error) {
	tx, err := g.Tx()
	if err != nil {
		return "", err
	}
	return s.createDevice(ctx, tx, device)
}

func (s *Store) createDevice(ctx context.Context, db *gorm.DB, device *Device) (string, error) {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	if device.Timezone == "" {
		device.Timezone = "+08:00"
	}
	if device.Password == "" {
		device.Password = "0000"
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	// The link must exist and not be deleted.
	var count int64
	if err := db.WithContext(ctx).Model(&Link{}).Where("id = ?", device.LinkID).Count(&count).Error; err != nil {
		return "", err
	}
	if count == 0 {
		return "", ErrLinkNotFound
	}

	if err := db.WithContext(ctx).Create(device).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", ErrDuplicateDevice
		}
		return "", err
	}
	return device.ID, nil
}

// GetDevice returns one device by id.
func (s *Store) GetDevice(ctx context.Context, id string) (*Device, error) {
	var device Device
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&device).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrDeviceNotFound)
	}
	return &device, nil
}

// GetDeviceByLinkAndCode resolves the device addressed by a frame: the
// link the frame arrived on plus the remote code in its header.
func (s *Store) GetDeviceByLinkAndCode(ctx context.Context, linkID, code string) (*Device, error) {
	var device Device
	err := s.db.WithContext(ctx).
		Where("link_id = ? AND code = ?", linkID, code).
		First(&device).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrDeviceNotFound)
	}
	return &device, nil
}

// ListDevices returns every device, optionally scoped to one link.
func (s *Store) ListDevices(ctx context.Context, linkID string) ([]*Device, error) {
	q := s.db.WithContext(ctx).Order("created_at")
	if linkID != "" {
		q = q.Where("link_id = ?", linkID)
	}

	var devices []*Device
	if err := q.Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// UpdateDevice updates a device's mutable fields: name, code, timezone
// and element configuration.
func (s *Store) UpdateDevice(ctx context.Context, device *Device) error {
	return s.updateDevice(ctx, s.db, device)
}

// UpdateDeviceTx is the guard-scoped variant of UpdateDevice.
func (s *Store) UpdateDeviceTx(ctx context.Context, g *TxGuard, device *Device) error {
	tx, err := g.Tx()
	if err != nil {
		return err
	}
	return s.updateDevice(ctx, tx, device)
}

func (s *Store) updateDevice(ctx context.Context, db *gorm.DB, device *Device) error {
	device.UpdatedAt = time.Now()
	result := db.WithContext(ctx).
		Model(&Device{}).
		Where("id = ?", device.ID).
		Updates(map[string]any{
			"name":       device.Name,
			"code":       device.Code,
			"timezone":   device.Timezone,
			"password":   device.Password,
			"config":     device.Config,
			"updated_at": device.UpdatedAt,
		})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return ErrDuplicateDevice
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// DeleteDevice removes a device registration.
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Device{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
