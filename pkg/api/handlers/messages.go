package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
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

// RegisterMessages registers HTTP handlers for message-related endpoints.
func RegisterMessages(r *mux.Router, env *Env) {
	r.HandleFunc("/threads/{threadID}/messages", env.createThreadMessage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{threadID}/messages", listThreadMessages).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}/messages/{id}", deleteThreadMessage).Methods(http.MethodDelete)
	r.HandleFunc("/threads/{threadID}/messages/{id}/like", toggleLike).Methods(http.MethodPost)
	r.HandleFunc("/threads/{threadID}/messages/{id}/report", env.reportMessage).Methods(http.MethodPost)

	r.HandleFunc("/messages/{id}", getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/versions", listMessageVersions).Methods(http.MethodGet)
}

// rejectionBody is the 422 envelope clients classify into warning tiers.
type rejectionBody struct {
	Error moderation.RejectionError `json:"error"`
}

func (env *Env) createThreadMessage(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadID"]
	var in struct {
		Content    string `json:"content"`
		ReplyTo    string `json:"reply_to,omitempty"`
		AuthorName string `json:"author_name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.Content == "" {
		utils.JSONError(w, http.StatusBadRequest, "content required")
		return
	}
	author := auth.AuthorIDFromContext(r.Context())
	if author == "" {
		utils.JSONError(w, http.StatusUnauthorized, "author identity required")
		return
	}
	if in.ReplyTo != "" {
		parent, err := store.GetLatestMessage(in.ReplyTo)
		if err != nil || parent.Thread != threadID {
			utils.JSONError(w, http.StatusBadRequest, "reply target not in thread")
			return
		}
	}

	res := env.Engine.Check(r.Context(), in.Content)
	if res.Decision == moderation.DecisionReject {
		metrics.MessagesRejected.WithLabelValues(res.Reason).Inc()
		logger.Info("message_rejected", "thread", threadID, "author", author, "reason", res.Reason)
		utils.JSONWrite(w, http.StatusUnprocessableEntity, rejectionBody{
			Error: moderation.RejectionError{Reason: res.Reason, Message: res.Message},
		})
		return
	}

	m := models.Message{
		ID:         utils.GenID(),
		Thread:     threadID,
		Author:     author,
		AuthorName: in.AuthorName,
		Body:       in.Content,
		TS:         time.Now().UTC().UnixNano(),
		ReplyTo:    in.ReplyTo,
	}
	if err := store.SaveMessage(m); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	touchThread(threadID, author, m.TS)
	metrics.MessagesAccepted.Inc()

	if res.Decision == moderation.DecisionFlag {
		metrics.MessagesFlagged.Inc()
		env.enqueueReviewItem(newQueueItem(m, res.Categories, res.Blocklist))
	}

	logger.Info("message_created", "thread", threadID, "id", m.ID)
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func listThreadMessages(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadID"]
	var msgs []models.Message
	var err error
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		lim, cerr := strconv.Atoi(limStr)
		if cerr != nil || lim < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		msgs, err = store.ListMessages(threadID, lim)
	} else {
		msgs, err = store.ListMessages(threadID)
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Thread   string           `json:"thread"`
		Messages []models.Message `json:"messages"`
	}{Thread: threadID, Messages: msgs})
}

func getMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := store.GetLatestMessage(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func listMessageVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	vs, err := store.ListMessageVersions(id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		ID       string           `json:"id"`
		Versions []models.Message `json:"versions"`
	}{ID: id, Versions: vs})
}

func deleteThreadMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	m, err := store.GetLatestMessage(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	caller := auth.AuthorIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())
	if m.Author != caller && role != auth.RoleAdmin && role != auth.RoleBackend {
		utils.JSONError(w, http.StatusForbidden, "cannot delete another user's message")
		return
	}
	m.Tombstone()
	m.TS = time.Now().UTC().UnixNano()
	if err := store.SaveMessage(m); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("message_deleted", "id", id, "caller", caller)
	w.WriteHeader(http.StatusNoContent)
}

func toggleLike(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	caller := auth.AuthorIDFromContext(r.Context())
	if caller == "" {
		utils.JSONError(w, http.StatusUnauthorized, "identity required")
		return
	}
	m, err := store.GetLatestMessage(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if m.Deleted {
		utils.JSONError(w, http.StatusConflict, "message deleted")
		return
	}
	liked := !m.LikesUser(caller)
	m.SetLiked(caller, liked)
	m.LikeCount = len(m.LikedBy)
	m.TS = time.Now().UTC().UnixNano()
	if err := store.SaveMessage(m); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, models.LikeState{Liked: liked, LikeCount: m.LikeCount})
}

func (env *Env) reportMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	caller := auth.AuthorIDFromContext(r.Context())
	if caller == "" {
		utils.JSONError(w, http.StatusUnauthorized, "identity required")
		return
	}
	m, err := store.GetLatestMessage(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	var in struct {
		Reason string `json:"reason,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	item := newQueueItem(m, nil, nil)
	item.Notes = ""
	env.enqueueReviewItem(item)
	logger.Info("message_reported", "id", id, "reporter", caller, "reason", in.Reason)
	w.WriteHeader(http.StatusAccepted)
}

// touchThread creates thread metadata on first write and bumps UpdatedTS
// afterwards.
func touchThread(threadID, author string, ts int64) {
	th, err := store.GetThread(threadID)
	if err != nil {
		th = models.Thread{ID: threadID, Author: author, CreatedTS: ts, UpdatedTS: ts}
		_ = store.SaveThread(th)
		return
	}
	th.UpdatedTS = ts
	_ = store.SaveThread(th)
}
