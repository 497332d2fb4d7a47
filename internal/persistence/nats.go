package persistence

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/config"
)

// Nats wraps the NATS connection used by the event channel.
type Nats struct {
	Conn *nats.Conn
}

// NewNats connects when a URL is configured; otherwise it returns an empty
// handle and the in-process event channel is used.
func NewNats(cfg config.NatsConfig, logger *zap.Logger) (*Nats, error) {
	if cfg.URL == "" {
		logger.Warn("NATS_URL not provided; using in-process event channel")
		return &Nats{}, nil
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("connected to nats", zap.String("url", nc.ConnectedUrl()))
	return &Nats{Conn: nc}, nil
}

// Enabled reports whether a connection exists.
func (n *Nats) Enabled() bool {
	return n != nil && n.Conn != nil
}

// Ping verifies NATS connectivity.
func (n *Nats) Ping() error {
	if !n.Enabled() {
		return errors.New("nats not configured")
	}
	if !n.Conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (n *Nats) Close() {
	if n.Enabled() {
		_ = n.Conn.Drain()
	}
}
