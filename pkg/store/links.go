package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateLink inserts a new link. The (mode, ip, port) endpoint must be
// unique among non-deleted links.
func (s *Store) CreateLink(ctx context.Context, link *Link) (string, error) {
	return s.createLink(ctx, s.db, link)
}

// CreateLinkTx is the guard-scoped variant of CreateLink.
func (s *Store) CreateLinkTx(ctx context.Context, g *TxGuard, link *Link) (string, error) {
	tx, err := g.Tx()
	if err != nil {
		return "", err
	}
	return s.createLink(ctx, tx, link)
}

func (s *Store) createLink(ctx context.Context, db *gorm.DB, link *Link) (string, error) {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.Protocol == "" {
		link.Protocol = "SL651"
	}
	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now

	if err := s.checkEndpointFree(ctx, db, link.Mode, link.IP, link.Port, ""); err != nil {
		return "", err
	}
	if err := db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", ErrDuplicateEndpoint
		}
		return "", err
	}
	return link.ID, nil
}

// checkEndpointFree enforces endpoint uniqueness among non-deleted
// links. excludeID skips the link being updated.
func (s *Store) checkEndpointFree(ctx context.Context, db *gorm.DB, mode, ip string, port int, excludeID string) error {
	q := db.WithContext(ctx).Model(&Link{}).
		Where("mode = ? AND ip = ? AND port = ?", mode, ip, port)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateEndpoint
	}
	return nil
}

// GetLink returns one link by id.
func (s *Store) GetLink(ctx context.Context, id string) (*Link, error) {
	var link Link
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&link).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrLinkNotFound)
	}
	return &link, nil
}

// ListLinks returns every non-deleted link.
func (s *Store) ListLinks(ctx context.Context) ([]*Link, error) {
	var links []*Link
	if err := s.db.WithContext(ctx).Order("created_at").Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// ListEnabledLinks returns the links the manager should be running.
func (s *Store) ListEnabledLinks(ctx context.Context) ([]*Link, error) {
	var links []*Link
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("created_at").Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// UpdateLink updates the mutable fields of a link: name, ip, port,
// enabled. Mode and protocol are immutable after creation.
func (s *Store) UpdateLink(ctx context.Context, link *Link) error {
	return s.updateLink(ctx, s.db, link)
}

// UpdateLinkTx is the guard-scoped variant of UpdateLink.
func (s *Store) UpdateLinkTx(ctx context.Context, g *TxGuard, link *Link) error {
	tx, err := g.Tx()
	if err != nil {
		return err
	}
	return s.updateLink(ctx, tx, link)
}

func (s *Store) updateLink(ctx context.Context, db *gorm.DB, link *Link) error {
	current, err := s.GetLink(ctx, link.ID)
	if err != nil {
		return err
	}
	if err := s.checkEndpointFree(ctx, db, current.Mode, link.IP, link.Port, link.ID); err != nil {
		return err
	}

	link.UpdatedAt = time.Now()
	result := db.WithContext(ctx).
		Model(&Link{}).
		Where("id = ?", link.ID).
		Updates(map[string]any{
			"name":       link.Name,
			"ip":         link.IP,
			"port":       link.Port,
			"enabled":    link.Enabled,
			"updated_at": link.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// DeleteLink soft-deletes a link. Fails with ErrLinkInUse while any
// device still references it.
func (s *Store) DeleteLink(ctx context.Context, id string) error {
	return s.deleteLink(ctx, s.db, id)
}

// DeleteLinkTx is the guard-scoped variant of DeleteLink.
func (s *Store) DeleteLinkTx(ctx context.Context, g *TxGuard, id string) error {
	tx, err := g.Tx()
	if err != nil {
		return err
	}
	return s.deleteLink(ctx, tx, id)
}

func (s *Store) deleteLink(ctx context.Context, db *gorm.DB, id string) error {
	var devices int64
	if err := db.WithContext(ctx).Model(&Device{}).Where("link_id = ?", id).Count(&devices).Error; err != nil {
		return err
	}
	if devices > 0 {
		return ErrLinkInUse
	}

	result := db.WithContext(ctx).Where("id = ?", id).Delete(&Link{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}
