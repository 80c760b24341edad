package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/bot"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/config"
)

// UserIDHeader is set by the Mattermost server on requests from a logged in user.
const UserIDHeader = "Mattermost-User-ID"

// ClientConfig is what the webapp needs to render the channel header toggle.
type ClientConfig struct {
	ShowToggleButton   bool `json:"show_toggle_button"`
	DeleteAfterSeconds int  `json:"delete_after_seconds"`
}

// ChannelState is the allow-list state of a channel for the requesting user.
type ChannelState struct {
	ChannelID string `json:"channel_id"`
	ServerID  string `json:"server_id"`
	Enabled   bool   `json:"enabled"`
}

// ProtectResult tells whether the post was still queued.
type ProtectResult struct {
	PostID    string `json:"post_id"`
	Protected bool   `json:"protected"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the plugin HTTP API.
type Handler struct {
	router        *httprouter.Router
	registry      *app.Registry
	resolver      app.ChannelResolver
	configService config.Service
	logger        bot.Logger
	metrics       http.Handler
}

// NewHandler builds the router. metrics may be nil.
func NewHandler(registry *app.Registry, resolver app.ChannelResolver, configService config.Service, logger bot.Logger, metrics http.Handler) *Handler {
	h := &Handler{
		router:        httprouter.New(),
		registry:      registry,
		resolver:      resolver,
		configService: configService,
		logger:        logger,
		metrics:       metrics,
	}

	h.router.GET("/api/v1/config", h.authenticated(h.getConfig))
	h.router.GET("/api/v1/channels/:channel_id", h.authenticated(h.getChannel))
	h.router.POST("/api/v1/channels/:channel_id/toggle", h.authenticated(h.toggleChannel))
	h.router.POST("/api/v1/posts/:post_id/protect", h.authenticated(h.protectPost))
	if metrics != nil {
		h.router.GET("/metrics", h.authenticated(h.getMetrics))
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type userHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string)

func (h *Handler) authenticated(next userHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			h.writeError(w, http.StatusUnauthorized, errors.New("not authorized"))
			return
		}
		next(w, r, ps, userID)
	}
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	cfg := h.configService.GetConfiguration()
	h.writeJSON(w, http.StatusOK, ClientConfig{
		ShowToggleButton:   cfg.ShowToggleButton,
		DeleteAfterSeconds: cfg.DeleteAfterSeconds,
	})
}

func (h *Handler) getMetrics(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	h.metrics.ServeHTTP(w, r)
}

func (h *Handler) getChannel(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	ref, ok := h.resolve(w, userID, ps.ByName("channel_id"))
	if !ok {
		return
	}

	engine, err := h.registry.Lookup(userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	state := ChannelState{ChannelID: ref.ChannelID, ServerID: ref.ServerID}
	if engine != nil {
		enabled, err := engine.IsChannelEnabled(ref)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		state.Enabled = enabled
	}
	h.writeJSON(w, http.StatusOK, state)
}

func (h *Handler) toggleChannel(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	ref, ok := h.resolve(w, userID, ps.ByName("channel_id"))
	if !ok {
		return
	}

	engine, err := h.registry.Ensure(userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	enabled, err := engine.ToggleChannel(ref)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ChannelState{ChannelID: ref.ChannelID, ServerID: ref.ServerID, Enabled: enabled})
}

func (h *Handler) protectPost(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	postID := ps.ByName("post_id")
	res := ProtectResult{PostID: postID}

	engine, err := h.registry.Lookup(userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if engine != nil {
		removed, err := engine.UnprotectMessage(postID, r.URL.Query().Get("channel_id"))
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		res.Protected = removed
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) resolve(w http.ResponseWriter, userID, channelID string) (app.ChannelRef, bool) {
	ref, err := h.resolver.ResolveChannel(userID, channelID)
	if errors.Is(err, app.ErrChannelNotAccessible) {
		h.writeError(w, http.StatusNotFound, err)
		return ref, false
	}
	if err != nil {
		h.logger.Errorf("AutoDelete: failed to resolve channel %s for user %s: %v", channelID, userID, err)
		h.writeError(w, http.StatusInternalServerError, errors.New("failed to look up channel"))
		return ref, false
	}
	return ref, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	h.logger.Errorf("AutoDelete: api request failed: %v", err)
	if errors.Is(err, app.ErrInvalidName) {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeError(w, http.StatusInternalServerError, errors.New("auto-delete data is unavailable"))
}

func (h *Handler) writeError(w http.ResponseWriter, code int, err error) {
	h.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warnf("AutoDelete: failed to write response: %v", err)
	}
}
