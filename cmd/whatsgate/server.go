package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"whatsgate/internal/bus"
	"whatsgate/internal/constants"
	apperrors "whatsgate/internal/errors"
	"whatsgate/internal/metrics"
	"whatsgate/internal/middleware"
	"whatsgate/internal/models"
	"whatsgate/internal/service"
	"whatsgate/pkg/media"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// MediaLookup is the slice of the directory the media route needs.
type MediaLookup interface {
	GetMediaByFileName(ctx context.Context, fileName string) (*models.StoredMedia, error)
}

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	errLog   *apperrors.Logger
	gateway  *service.Gateway
	media    *media.Store
	lookup   MediaLookup
	events   *bus.Bus
	registry *metrics.Registry
	server   *http.Server
}

func NewServer(gateway *service.Gateway, mediaStore *media.Store, lookup MediaLookup, events *bus.Bus, registry *metrics.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		errLog:   apperrors.WrapLogger(logger),
		gateway:  gateway,
		media:    mediaStore,
		lookup:   lookup,
		events:   events,
		registry: registry,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Tracing())
	s.router.Use(middleware.RequestLogging(s.logger, s.registry))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	s.router.HandleFunc("/wa/media/{file}", s.handleMedia).Methods(http.MethodGet)

	api := s.router.PathPrefix("/wa/api").Subrouter()
	api.Use(requireAPIKey(s.logger))

	api.HandleFunc("/session", s.handleSessionStatus).Methods(http.MethodGet)
	api.HandleFunc("/session/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/session/logout", s.handleLogout).Methods(http.MethodPost)

	api.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)

	api.HandleFunc("/chats", s.handleChats).Methods(http.MethodGet)
	api.HandleFunc("/chats/{jid}/messages", s.handleChatMessages).Methods(http.MethodGet)

	api.HandleFunc("/groups", s.handleGroups).Methods(http.MethodGet)
	api.HandleFunc("/groups/{jid}/members", s.handleGroupMembers).Methods(http.MethodGet)

	api.HandleFunc("/channels", s.handleCreateChannel).Methods(http.MethodPost)
	api.HandleFunc("/channels", s.handleChannels).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}/members", s.handleAddChannelMember).Methods(http.MethodPost)
	api.HandleFunc("/channels/{id}/members", s.handleChannelMembers).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}/members/{contact}", s.handleRemoveChannelMember).Methods(http.MethodDelete)
	api.HandleFunc("/channels/{id}/broadcast", s.handleBroadcast).Methods(http.MethodPost)
	api.HandleFunc("/channels/{id}/messages", s.handleChannelMessages).Methods(http.MethodGet)
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultIdleTimeoutSec * time.Second,
	}

	s.logger.WithField("port", port).Info("Starting server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}

// writeError maps application error codes onto HTTP statuses and returns the
// structured error object.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeNotConnected:
		status = http.StatusConflict
	case apperrors.ErrCodeEmptyChannel, apperrors.ErrCodeInvalidConfig:
		status = http.StatusBadRequest
	case apperrors.ErrCodeTransport:
		status = http.StatusBadGateway
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrCodeInternalError, "internal error")
	}
	if status >= 500 {
		s.errLog.LogError(err, "Request failed")
	}
	s.writeJSON(w, status, map[string]interface{}{"error": appErr})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.gateway.Status())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.Connect(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.gateway.Status())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.Logout(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.gateway.Status())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chatId"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidConfig, "invalid request body"))
		return
	}

	msg, err := s.gateway.SendText(r.Context(), req.ChatID, req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.gateway.GetChats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]
	messages, err := s.gateway.GetMessages(r.Context(), jid, limitParam(r, constants.DefaultMessageLimit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.gateway.GetGroups(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]
	members, err := s.gateway.GetGroupMembers(r.Context(), jid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidConfig, "invalid request body"))
		return
	}

	channel, err := s.gateway.CreateChannel(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, channel)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.gateway.GetChannels(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleAddChannelMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactID string `json:"contactId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContactID == "" {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidConfig, "contactId is required"))
		return
	}

	if err := s.gateway.AddChannelMember(r.Context(), mux.Vars(r)["id"], req.ContactID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *Server) handleChannelMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.gateway.GetChannelMembers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleRemoveChannelMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.gateway.RemoveChannelMember(r.Context(), vars["id"], vars["contact"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidConfig, "invalid request body"))
		return
	}

	results, mirror, err := s.gateway.Broadcast(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": mirror,
		"results": results,
	})
}

func (s *Server) handleChannelMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.gateway.GetChannelMessages(r.Context(), mux.Vars(r)["id"], limitParam(r, constants.DefaultChannelLimit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	fileName := mux.Vars(r)["file"]

	stored, err := s.lookup.GetMediaByFileName(r.Context(), fileName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if stored == nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeNotFound, "media not found"))
		return
	}

	f, err := s.media.Open(stored.FileName)
	if err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeNotFound, "media not found"))
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", stored.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(stored.Size, 10))
	if _, err := io.Copy(w, f); err != nil {
		s.logger.WithError(err).Debug("Media stream interrupted")
	}
}

// handleWebSocket bridges the in-process event bus onto a websocket so UIs
// see pairing challenges, session changes, and new messages live.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket accept failed")
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	events, unsub := s.events.Subscribe("", 32)
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			data, err := json.Marshal(map[string]interface{}{
				"kind":      evt.Kind,
				"timestamp": evt.Timestamp,
				"payload":   evt.Payload,
			})
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
