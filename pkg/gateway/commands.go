package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hydronet-io/hydrogate/internal/logger"
	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
)

// ErrDeviceOffline reports a command that could not be put on the wire:
// the device's link has no usable connection.
var ErrDeviceOffline = errors.New("gateway: device is not reachable")

var validate = validator.New()

// CommandInput is a downlink command addressed by device id. Element
// values reference the device's configured element definitions.
type CommandInput struct {
	DeviceID string                 `json:"device_id" validate:"required"`
	FuncCode string                 `json:"func_code" validate:"required,len=2,hexadecimal"`
	Elements []sl651.CommandElement `json:"elements" validate:"dive"`
}

// SendCommand builds a downlink command frame for the device and sends
// it on the device's link. Server links target the peer the device last
// spoke from; client links use the active connection.
func (g *Gateway) SendCommand(ctx context.Context, in CommandInput) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", sl651.ErrValidation, err)
	}

	dev, err := g.store.GetDevice(ctx, in.DeviceID)
	if err != nil {
		return err
	}

	funcCode := strings.ToUpper(in.FuncCode)
	_, cfg, err := g.resolveDevice(ctx, dev.LinkID, dev.Code)
	if err != nil {
		return err
	}

	frame, err := g.builder.Command(sl651.CommandRequest{
		CenterCode: g.cfg.CenterCode,
		RemoteCode: dev.Code,
		Password:   dev.Password,
		FuncCode:   funcCode,
		Elements:   in.Elements,
	}, cfg.Elements[funcCode])
	if err != nil {
		return err
	}

	g.mu.Lock()
	peerAddr := g.routes[cacheKey(dev.LinkID, dev.Code)]
	g.mu.Unlock()

	if !g.send(dev.LinkID, peerAddr, frame) {
		return ErrDeviceOffline
	}

	logger.Info("command sent",
		logger.KeyDeviceID, dev.ID,
		logger.KeyLinkID, dev.LinkID,
		logger.KeyRemoteCode, dev.Code,
		logger.KeyFuncCode, funcCode,
		logger.KeyFrameLen, len(frame))
	return nil
}
