package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"modchat/pkg/auth"
	"modchat/pkg/models"
	"modchat/pkg/store"
	"modchat/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterThreads registers HTTP handlers for thread endpoints.
func RegisterThreads(r *mux.Router, _ *Env) {
	r.HandleFunc("/threads", createThread).Methods(http.MethodPost)
	r.HandleFunc("/threads", listThreads).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", getThread).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", deleteThread).Methods(http.MethodDelete)
}

func createThread(w http.ResponseWriter, r *http.Request) {
	var t models.Thread
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if t.ID == "" {
		t.ID = utils.GenThreadID()
	}
	if t.Author == "" {
		t.Author = auth.AuthorIDFromContext(r.Context())
	}
	if t.CreatedTS == 0 {
		t.CreatedTS = time.Now().UTC().UnixNano()
	}
	t.UpdatedTS = t.CreatedTS
	t.Slug = slugify(t.Title, t.ID)
	if err := store.SaveThread(t); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

func listThreads(w http.ResponseWriter, r *http.Request) {
	ts, err := store.ListThreads()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Threads []models.Thread `json:"threads"`
	}{Threads: ts})
}

func getThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	th, err := store.GetThread(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, th)
}

func deleteThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := auth.AuthorIDFromContext(r.Context())
	th, err := store.GetThread(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	role := auth.RoleFromContext(r.Context())
	if th.Author != actor && role != auth.RoleAdmin && role != auth.RoleBackend {
		utils.JSONError(w, http.StatusForbidden, "cannot delete another user's thread")
		return
	}
	if err := store.SoftDeleteThread(id, actor); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// slugify produces a human-friendly URL slug from title and id.
func slugify(title, id string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := true
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return id
	}
	return out + "-" + id
}
