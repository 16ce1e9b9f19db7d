package http

import (
	"net/http"
	"strconv"

	"finlearn-attempt-service/internal/app"
	"finlearn-attempt-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler streams a user's topic-progress updates over a websocket.
// Clients connect to /ws/progress?userId=N and receive one JSON message
// per update, whether driven by manual actions or quiz evaluations.
type WSHandler struct {
	progress *app.ProgressService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(progress *app.ProgressService, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		progress: progress,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type progressMessage struct {
	Type    string               `json:"type"`
	Payload domain.TopicProgress `json:"payload"`
}

type readyMessage struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

// ServeWS upgrades the request and forwards progress updates until the
// client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "missing or invalid userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.progress.Watch(userID)
	defer cancel()

	// Tell the client its subscription is live before any update flows.
	if err := conn.WriteJSON(readyMessage{Type: "ready", UserID: userID}); err != nil {
		return
	}

	readerDone := make(chan struct{})

	// Drain the connection so client closes are noticed; inbound payloads
	// are ignored.
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(progressMessage{Type: "progress", Payload: update}); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
