package web

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/harryosmar/log-visibility/pkg/filter"
	"github.com/harryosmar/log-visibility/pkg/models"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies of the control API
const maxBodyBytes = 1 << 20

// Controller is the policy surface the control API drives
type Controller interface {
	ShowAll()
	HideAll()
	AlsoShow(ch models.Channel) bool
	AlsoHide(ch models.Channel) bool
	ApplyPolicy(p filter.Policy) error
	Snapshot() filter.Snapshot
	Passes(record models.Record) bool
	Dispatch(record models.Record) []models.Record
}

// ControlHandler serves the visibility control API
type ControlHandler struct {
	logger     *zap.Logger
	controller Controller
	router     *mux.Router
}

// recordRequest is the JSON form of a record sent to the API
type recordRequest struct {
	Channels []string `json:"channels"`
	Force    bool     `json:"force"`
	Content  string   `json:"content"`
	Source   string   `json:"source"`
}

func (r recordRequest) record() models.Record {
	channels := make([]models.Channel, 0, len(r.Channels))
	for _, ch := range r.Channels {
		channels = append(channels, ch)
	}
	return models.Record{
		Channels: channels,
		Force:    r.Force,
		Content:  r.Content,
		Source:   r.Source,
	}
}

// NewControlHandler creates a new control handler
func NewControlHandler(logger *zap.Logger, controller Controller) *ControlHandler {
	router := mux.NewRouter()

	handler := &ControlHandler{
		logger:     logger,
		controller: controller,
		router:     router,
	}

	// Register routes
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/policy", handler.handleGetPolicy).Methods(http.MethodGet)
	api.HandleFunc("/policy", handler.handlePutPolicy).Methods(http.MethodPut)
	api.HandleFunc("/policy/show-all", handler.handleShowAll).Methods(http.MethodPost)
	api.HandleFunc("/policy/hide-all", handler.handleHideAll).Methods(http.MethodPost)
	api.HandleFunc("/channels/{channel}/show", handler.handleAlsoShow).Methods(http.MethodPost)
	api.HandleFunc("/channels/{channel}/hide", handler.handleAlsoHide).Methods(http.MethodPost)
	api.HandleFunc("/decide", handler.handleDecide).Methods(http.MethodPost)
	api.HandleFunc("/records", handler.handleRecord).Methods(http.MethodPost)

	return handler
}

// Handler returns the HTTP handler
func (h *ControlHandler) Handler() http.Handler {
	return h.router
}

func (h *ControlHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *ControlHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *ControlHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.logger.Debug("Invalid request body", zap.String("path", r.URL.Path), zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// handleGetPolicy returns the current policy
func (h *ControlHandler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

// handlePutPolicy replaces the whole policy
func (h *ControlHandler) handlePutPolicy(w http.ResponseWriter, r *http.Request) {
	var p filter.Policy
	if !h.decode(w, r, &p) {
		return
	}
	if err := h.controller.ApplyPolicy(p); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *ControlHandler) handleShowAll(w http.ResponseWriter, r *http.Request) {
	h.controller.ShowAll()
	h.writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *ControlHandler) handleHideAll(w http.ResponseWriter, r *http.Request) {
	h.controller.HideAll()
	h.writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

type channelResponse struct {
	Channel string `json:"channel"`
	Result  bool   `json:"result"`
}

func (h *ControlHandler) handleAlsoShow(w http.ResponseWriter, r *http.Request) {
	ch := mux.Vars(r)["channel"]
	h.writeJSON(w, http.StatusOK, channelResponse{Channel: ch, Result: h.controller.AlsoShow(ch)})
}

func (h *ControlHandler) handleAlsoHide(w http.ResponseWriter, r *http.Request) {
	ch := mux.Vars(r)["channel"]
	h.writeJSON(w, http.StatusOK, channelResponse{Channel: ch, Result: h.controller.AlsoHide(ch)})
}

// handleDecide evaluates a record against the policy without dispatching it
func (h *ControlHandler) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"pass": h.controller.Passes(req.record())})
}

// handleRecord dispatches a record through the handler chain
func (h *ControlHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !h.decode(w, r, &req) {
		return
	}
	emitted := h.controller.Dispatch(req.record())
	h.writeJSON(w, http.StatusAccepted, map[string]int{"emitted": len(emitted)})
}
