package gateway

import (
	"context"

	"github.com/hydronet-io/hydrogate/internal/logger"
	"github.com/hydronet-io/hydrogate/pkg/bus"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

// Service is the write path for link and device configuration. Every
// mutation runs inside a transaction guard and its domain events are
// published only after the commit acknowledges, so subscribers always
// observe the committed state.
type Service struct {
	store  *store.Store
	events *bus.Bus
}

// NewService creates the configuration service.
func NewService(st *store.Store, events *bus.Bus) *Service {
	return &Service{store: st, events: events}
}

// CreateLink persists a new link and announces it.
func (s *Service) CreateLink(ctx context.Context, l *store.Link) (string, error) {
	guard, err := s.store.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer guard.Close()

	id, err := s.store.CreateLinkTx(ctx, guard, l)
	if err != nil {
		return "", err
	}
	if err := guard.Commit(); err != nil {
		return "", err
	}

	logger.Info("link created", logger.KeyLinkID, id, logger.KeyLinkName, l.Name)
	s.events.Publish(bus.LinkCreated(id))
	return id, nil
}

// UpdateLink persists link changes and announces them. The event asks
// the gateway to reload the link only when a connection-affecting field
// changed; a pure rename keeps running connections alive.
func (s *Service) UpdateLink(ctx context.Context, l *store.Link) error {
	current, err := s.store.GetLink(ctx, l.ID)
	if err != nil {
		return err
	}
	needReload := current.IP != l.IP ||
		current.Port != l.Port ||
		current.Enabled != l.Enabled

	guard, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer guard.Close()

	if err := s.store.UpdateLinkTx(ctx, guard, l); err != nil {
		return err
	}
	if err := guard.Commit(); err != nil {
		return err
	}

	logger.Info("link updated", logger.KeyLinkID, l.ID, "need_reload", needReload)
	s.events.Publish(bus.LinkUpdated(l.ID, needReload))
	return nil
}

// DeleteLink removes a link and announces the removal.
func (s *Service) DeleteLink(ctx context.Context, id string) error {
	guard, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer guard.Close()

	if err := s.store.DeleteLinkTx(ctx, guard, id); err != nil {
		return err
	}
	if err := guard.Commit(); err != nil {
		return err
	}

	logger.Info("link deleted", logger.KeyLinkID, id)
	s.events.Publish(bus.LinkDeleted(id))
	return nil
}

// CreateDevice registers a device. Registration always changes: a new
// remote code becomes valid on the link.
func (s *Service) CreateDevice(ctx context.Context, d *store.Device) (string, error) {
	guard, err := s.store.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer guard.Close()

	id, err := s.store.CreateDeviceTx(ctx, guard, d)
	if err != nil {
		return "", err
	}
	if err := guard.Commit(); err != nil {
		return "", err
	}

	logger.Info("device created",
		logger.KeyDeviceID, id,
		logger.KeyLinkID, d.LinkID,
		logger.KeyDeviceCode, d.Code)
	s.events.Publish(bus.DeviceUpdated(id, d.LinkID, true))
	return id, nil
}

// UpdateDevice persists device changes. Connected peers are dropped only
// when the registration itself changed, meaning the remote code; config
// or naming edits just invalidate cached dictionaries.
func (s *Service) UpdateDevice(ctx context.Context, d *store.Device) error {
	current, err := s.store.GetDevice(ctx, d.ID)
	if err != nil {
		return err
	}
	registrationChanged := current.Code != d.Code

	guard, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer guard.Close()

	if err := s.store.UpdateDeviceTx(ctx, guard, d); err != nil {
		return err
	}
	if err := guard.Commit(); err != nil {
		return err
	}

	logger.Info("device updated",
		logger.KeyDeviceID, d.ID,
		logger.KeyDeviceCode, d.Code,
		"registration_changed", registrationChanged)
	s.events.Publish(bus.DeviceUpdated(d.ID, current.LinkID, registrationChanged))
	return nil
}

// DeleteDevice removes a device registration and drops its peers.
func (s *Service) DeleteDevice(ctx context.Context, id string) error {
	current, err := s.store.GetDevice(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteDevice(ctx, id); err != nil {
		return err
	}

	logger.Info("device deleted", logger.KeyDeviceID, id, logger.KeyDeviceCode, current.Code)
	s.events.Publish(bus.DeviceUpdated(id, current.LinkID, true))
	return nil
}
