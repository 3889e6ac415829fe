package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"modchat/pkg/auth"
	"modchat/pkg/logger"
	"modchat/pkg/metrics"
	"modchat/pkg/models"
	"modchat/pkg/moderation"
	"modchat/pkg/store"
	"modchat/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterModeration registers the admin review-queue and settings
// endpoints. The caller gates the subrouter behind the admin role.
func RegisterModeration(r *mux.Router, env *Env) {
	r.HandleFunc("/queue", listQueue).Methods(http.MethodGet)
	r.HandleFunc("/queue/{id}/review", reviewQueueItem).Methods(http.MethodPost)
	r.HandleFunc("/config", env.getSettings).Methods(http.MethodGet)
	r.HandleFunc("/config", env.putSettings).Methods(http.MethodPut)
}

func listQueue(w http.ResponseWriter, r *http.Request) {
	status := models.QueueStatus(r.URL.Query().Get("status"))
	switch status {
	case "", "all", models.StatusPending, models.StatusApproved, models.StatusRejected:
	default:
		utils.JSONError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	items, err := store.ListQueueItems(status)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Items []models.QueueItem `json:"items"`
	}{Items: items})
}

func reviewQueueItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Action models.ReviewDecision `json:"action"`
		Notes  string                `json:"notes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !in.Action.Valid() {
		utils.JSONError(w, http.StatusBadRequest, "action must be approved or rejected")
		return
	}
	item, err := store.GetQueueItem(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	// Status transitions are one-way; a second decision is an error the
	// client has to see, not a silent no-op.
	if item.Status.Terminal() {
		utils.JSONError(w, http.StatusConflict, "item already reviewed")
		return
	}
	reviewer := auth.AuthorIDFromContext(r.Context())
	if reviewer == "" {
		reviewer = r.Header.Get("X-User-ID")
	}
	item.Status = models.QueueStatus(in.Action)
	item.ReviewedTS = time.Now().UTC().UnixNano()
	item.ReviewedBy = reviewer
	item.Notes = in.Notes
	if err := store.UpdateQueueItem(item); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.ReviewDecisions.WithLabelValues(string(in.Action)).Inc()
	logger.AuditEvent("queue_item_reviewed",
		"item", id, "decision", string(in.Action), "reviewer", reviewer, "source", item.SourceID)
	w.WriteHeader(http.StatusNoContent)
}

func (env *Env) getSettings(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, env.Engine.Settings())
}

func (env *Env) putSettings(w http.ResponseWriter, r *http.Request) {
	var s moderation.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := store.SaveModerationSettings(s); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	env.Engine.SetSettings(s)
	logger.AuditEvent("moderation_settings_updated", "by", auth.AuthorIDFromContext(r.Context()))
	_ = utils.JSONWrite(w, http.StatusOK, s)
}
