package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"
	"pdf-podcaster/internal/actions"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/hub"
	"pdf-podcaster/internal/middleware"
	"pdf-podcaster/internal/models"
	"pdf-podcaster/internal/pdfcheck"
	"pdf-podcaster/internal/session"
	"pdf-podcaster/internal/submission"
)

// Store is the read side of the workflow table the handlers use.
type Store interface {
	FindByEpisodeName(ctx context.Context, name string) (models.WorkflowRecord, error)
	ListRecent(ctx context.Context, limit int) ([]models.WorkflowRecord, error)
	ListWithMasterAudio(ctx context.Context, limit int) ([]models.WorkflowRecord, error)
}

// FlowLookup finds submissions by id.
type FlowLookup interface {
	Get(id string) (*submission.Flow, bool)
}

type Deps struct {
	Templates *template.Template
	Sessions  *session.Registry
	Flows     FlowLookup
	Store     Store
	Hub       *hub.Hub
	BaseURL   string
	FeedToken string
	Operators map[int64]bool
	Log       logrus.FieldLogger
}

type Handlers struct {
	templates *template.Template
	sessions  *session.Registry
	flows     FlowLookup
	store     Store
	hub       *hub.Hub
	baseURL   string
	feedToken string
	operators map[int64]bool
	log       logrus.FieldLogger
}

func New(d Deps) *Handlers {
	return &Handlers{
		templates: d.Templates,
		sessions:  d.Sessions,
		flows:     d.Flows,
		store:     d.Store,
		hub:       d.Hub,
		baseURL:   d.BaseURL,
		feedToken: d.FeedToken,
		operators: d.Operators,
		log:       d.Log,
	}
}

type pageData struct {
	Title                string
	MinEpisodeNameLength int
}

func (h *Handlers) ServeWebApp(w http.ResponseWriter, r *http.Request) {
	err := h.templates.ExecuteTemplate(w, "index.html", pageData{
		Title:                "PDF Podcaster",
		MinEpisodeNameLength: pdfcheck.MinEpisodeNameLength,
	})
	if err != nil {
		h.log.WithError(err).Error("Error executing template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handlers) PostAuth(w http.ResponseWriter, r *http.Request) {
	op := operator(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "authenticated",
		"operator": op.TelegramID,
	})
}

// operator is set by the auth middleware on every API route.
func operator(r *http.Request) *models.Operator {
	op, _ := middleware.OperatorFrom(r.Context())
	return op
}

func (h *Handlers) session(r *http.Request) *session.Coordinator {
	return h.sessions.Get(operator(r).TelegramID)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeError maps sentinel errors to client statuses and everything else
// to 500.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, actions.ErrActionDisabled):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, session.ErrNoSelection):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, actions.ErrNoEpisode), errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
	}
}
