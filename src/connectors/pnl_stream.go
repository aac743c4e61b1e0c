package connectors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"allocengine/src/model"
)

const (
	pnlReadTimeout      = 90 * time.Second
	pnlReconnectBase    = time.Second
	pnlReconnectMax     = 30 * time.Second
	pnlPingInterval     = 30 * time.Second
	pnlHandshakeTimeout = 10 * time.Second
)

// PnLHandler consumes one P&L update. Returning an error does not stop the
// stream; the update is logged and dropped.
type PnLHandler func(ctx context.Context, update *model.PnLUpdate) error

// PnLStream is a websocket consumer for the P&L calculator's push feed. It
// reconnects with exponential backoff until the context is cancelled.
type PnLStream struct {
	url    string
	dialer *websocket.Dialer
	log    *logger.Entry
}

func NewPnLStream(url string) *PnLStream {
	return &PnLStream{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: pnlHandshakeTimeout,
		},
		log: logger.WithField("connector", "PnLStream"),
	}
}

// Run consumes the stream until ctx is cancelled. Each decoded update is
// handed to the handler in arrival order; decode failures skip the frame.
func (s *PnLStream) Run(ctx context.Context, handler PnLHandler) error {
	backoff := pnlReconnectBase

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.log.WithError(err).WithField("backoff", backoff.String()).
				Warn("P&L stream dial failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > pnlReconnectMax {
				backoff = pnlReconnectMax
			}
			continue
		}

		s.log.WithField("url", s.url).Info("P&L stream connected")
		backoff = pnlReconnectBase

		err = s.consume(ctx, conn, handler)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.WithError(err).Warn("P&L stream disconnected, reconnecting")
	}
}

func (s *PnLStream) consume(ctx context.Context, conn *websocket.Conn, handler PnLHandler) error {
	done := make(chan struct{})
	defer close(done)

	// Keepalive pings; the far side answers with pongs that reset the read
	// deadline.
	go func() {
		ticker := time.NewTicker(pnlPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pnlReadTimeout))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pnlReadTimeout)); err != nil {
			return err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var update model.PnLUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			s.log.WithError(err).Error("Undecodable P&L frame skipped")
			continue
		}
		if update.AccountID == 0 {
			s.log.Warn("P&L frame without account id skipped")
			continue
		}

		if err := handler(ctx, &update); err != nil {
			s.log.WithError(err).WithField("account_id", update.AccountID).
				Error("P&L update handler failed")
		}
	}
}
