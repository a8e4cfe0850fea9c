package app

import (
	"fmt"
	"log/slog"

	"meshbridge/internal/config"
	"meshbridge/internal/protocol"
	"meshbridge/internal/protocol/meshtastic"
	"meshbridge/internal/protocol/reticulum"
	"meshbridge/internal/protocol/rnode"
	"meshbridge/internal/transport"
)

// newHandlerForEndpoint builds the protocol handler matching one endpoint
// config entry.
func newHandlerForEndpoint(cfg config.EndpointConfig, logger *slog.Logger) (protocol.Handler, error) {
	switch cfg.Family {
	case config.FamilyMeshtasticSerial:
		codec, err := meshtastic.NewTextCodec()
		if err != nil {
			return nil, err
		}
		stream := transport.NewSerialStream(cfg.Path, cfg.Baud)

		return meshtastic.New(string(cfg.Family), stream, codec, logger), nil

	case config.FamilyMeshtasticTCP:
		codec, err := meshtastic.NewTextCodec()
		if err != nil {
			return nil, err
		}
		stream := transport.NewTCPStream(cfg.Path)

		return meshtastic.New(string(cfg.Family), stream, codec, logger), nil

	case config.FamilyReticulum:
		return reticulum.New(cfg.Path, logger), nil

	case config.FamilyRNode:
		stream := transport.NewSerialStream(cfg.Path, cfg.Baud)

		return rnode.New(stream, logger), nil

	default:
		return nil, fmt.Errorf("unknown endpoint family: %q", cfg.Family)
	}
}
