package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yukikurage/project-allocation-api/internal/constants"
	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Subscriber hands out event subscriptions; events.Hub implements it.
type Subscriber interface {
	Subscribe(topics ...string) (<-chan events.Event, func())
}

// RealtimeHandler streams a principal's events over a websocket.
type RealtimeHandler struct {
	hub      Subscriber
	log      *zap.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// NewRealtimeHandler creates a new RealtimeHandler. allowedOrigins limits the
// Origin header; an empty list accepts same-host requests only.
func NewRealtimeHandler(hub Subscriber, log *zap.Logger, m *metrics.Metrics, allowedOrigins ...string) *RealtimeHandler {
	h := &RealtimeHandler{hub: hub, log: log, metrics: m}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
	return h
}

// Stream upgrades the request and forwards events until either side closes
func (h *RealtimeHandler) Stream(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	topics := []string{events.UserTopic(p.UserID)}
	if p.IsAdmin() {
		topics = append(topics, events.AdminTopic)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	stream, cancel := h.hub.Subscribe(topics...)
	defer cancel()

	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()
	h.log.Debug("realtime connection opened", zap.Uint64("user_id", p.UserID), zap.Strings("topics", topics))

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error { return readPump(conn) })
	g.Go(func() error { return writePump(ctx, conn, stream) })

	if err := g.Wait(); err != nil && !isExpectedClose(err) {
		h.log.Info("realtime connection closed", zap.Uint64("user_id", p.UserID), zap.Error(err))
	}
}

// readPump discards client frames; it only exists to process control frames
// and notice when the peer goes away.
func readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(constants.WSMaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(constants.WSPongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(constants.WSPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

var errStreamClosed = errors.New("event stream closed")

func writePump(ctx context.Context, conn *websocket.Conn, stream <-chan events.Event) error {
	ticker := time.NewTicker(constants.WSPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(constants.WSWriteWait))
			return ctx.Err()
		case event, ok := <-stream:
			if !ok {
				return errStreamClosed
			}
			if err := conn.SetWriteDeadline(time.Now().Add(constants.WSWriteWait)); err != nil {
				return err
			}
			if err := conn.WriteJSON(event); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(constants.WSWriteWait)); err != nil {
				return err
			}
		}
	}
}

func isExpectedClose(err error) bool {
	return errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
