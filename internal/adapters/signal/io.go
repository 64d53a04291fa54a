package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// EventSource hands out session event subscriptions.
type EventSource interface {
	Subscribe() (<-chan domain.SessionEvent, func())
}

// ServeEvents upgrades the request to a WebSocket and streams session events
// as JSON text messages until the peer leaves or ctx is done.
func ServeEvents(ctx context.Context, w http.ResponseWriter, r *http.Request, src EventSource) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, unsubscribe := src.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	remote := conn.RemoteAddr().String()
	log.Info().Str("module", "signal").Str("remote", remote).Msg("event feed opened")
	go readPump(ctx, cancel, conn, remote)
	writePump(ctx, conn, events, remote)
	log.Info().Str("module", "signal").Str("remote", remote).Msg("event feed closed")
	return nil
}

func writePump(ctx context.Context, conn *websocket.Conn, events <-chan domain.SessionEvent, remote string) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("remote", remote).Msg("writePump ping")
				return
			}
		case ev, ok := <-events:
			if !ok {
				log.Warn().Str("module", "signal").Str("remote", remote).Msg("writePump channel closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump marshal")
				continue
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("remote", remote).Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("remote", remote).Msg("writePump write error")
				return
			}
		}
	}
}

// readPump discards inbound messages and cancels the feed once the peer goes away.
func readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, remote string) {
	defer cancel()
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("module", "signal").Str("remote", remote).Msg("readPump read error")
			}
			return
		}
	}
}
