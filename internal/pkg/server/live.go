package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/bucket"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/window"
	"github.com/robeertm/shelly-energy-analyzer/pkg/sockets"
)

type liveSource interface {
	SummarizeAll(ctx context.Context, spec window.Spec, width bucket.Width, ref time.Time) ([]model.DeviceSummary, error)
}

// Hub pushes today's summaries of all devices to every connected dashboard.
type Hub struct {
	source   liveSource
	interval time.Duration
	onUpdate func(context.Context, model.Notification)
	upgrader websocket.Upgrader
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*sockets.Conn]struct{}
	latest  []byte
}

// NewHub creates a hub refreshing every interval. onUpdate, if set, receives
// every refresh as well (the MQTT live sensors hang off it).
func NewHub(source liveSource, interval time.Duration, onUpdate func(context.Context, model.Notification)) *Hub {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Hub{
		source:   source,
		interval: interval,
		onUpdate: onUpdate,
		logger:   zap.L(),
		now:      time.Now,
		clients:  make(map[*sockets.Conn]struct{}),
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := sockets.New(ws, sockets.OnError(func(err error) {
		h.logger.Debug("live connection error", zap.Error(err))
	}))

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	latest := h.latest
	h.mu.Unlock()
	h.logger.Info("live client connected", zap.String("remote", r.RemoteAddr))

	if latest != nil {
		_ = conn.Send(latest)
	}
	conn.Run()

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	h.logger.Info("live client disconnected", zap.String("remote", r.RemoteAddr))
}

// Run refreshes until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		if err := h.Refresh(ctx); err != nil && ctx.Err() == nil {
			h.logger.Error("live refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *Hub) Refresh(ctx context.Context) error {
	now := h.now()
	summaries, err := h.source.SummarizeAll(ctx, window.Today(), bucket.Hour, now)
	if err != nil {
		return err
	}
	n := model.Notification{Kind: model.KindLive, Title: "live", Summaries: summaries, At: now}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.latest = payload
	clients := make([]*sockets.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(payload); err != nil {
			h.logger.Debug("dropping live client", zap.Error(err))
		}
	}
	if h.onUpdate != nil {
		h.onUpdate(ctx, n)
	}
	return nil
}
