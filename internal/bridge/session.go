package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clawpanel/clawpanel/internal/logger"
)

// Serve runs one observer session on conn until the peer disconnects, ctx
// ends or the bridge stops. It replays buffered events, then the current
// status, then live frames, and re-sends status on every reconcile tick.
func (b *Bridge) Serve(ctx context.Context, conn *websocket.Conn) error {
	id, replay, frames, cancel := b.Subscribe()
	defer cancel()
	defer conn.Close()

	log := logger.Component(logger.FromContext(ctx), "bridge").With(slog.String("session", id))
	log.Info("observer attached", slog.Int("replay", len(replay)))
	defer log.Info("observer detached")

	closed := make(chan struct{})
	go b.readPump(conn, closed)

	for _, frame := range replay {
		if err := b.write(conn, frame); err != nil {
			return err
		}
	}
	for _, frame := range b.StatusFrames() {
		if err := b.write(conn, frame); err != nil {
			return err
		}
	}

	reconcile := time.NewTicker(b.opts.ReconcileInterval)
	defer reconcile.Stop()
	ping := time.NewTicker(b.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge stopped"),
					time.Now().Add(b.opts.WriteTimeout))
				return nil
			}
			if err := b.write(conn, frame); err != nil {
				return err
			}
		case <-reconcile.C:
			for _, frame := range b.StatusFrames() {
				if err := b.write(conn, frame); err != nil {
					return err
				}
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(b.opts.WriteTimeout)); err != nil {
				return err
			}
		case <-closed:
			return nil
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(b.opts.WriteTimeout))
			return nil
		}
	}
}

func (b *Bridge) write(conn *websocket.Conn, frame Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// readPump only watches for closure; observers never send commands.
func (b *Bridge) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	wait := b.opts.PingInterval * pongWaitFactor
	conn.SetReadLimit(defaultReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) &&
				websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("observer read ended", slog.Any("error", err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
	}
}
