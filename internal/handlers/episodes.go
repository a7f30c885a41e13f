package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/hub"
	"pdf-podcaster/internal/models"
	"pdf-podcaster/internal/pdfcheck"
	"pdf-podcaster/internal/present"
	"pdf-podcaster/internal/reconcile"
	"pdf-podcaster/internal/submission"
)

const (
	recentEpisodesLimit = 50
	// multipart overhead allowed on top of the PDF itself
	formOverhead = 1 << 20
)

func (h *Handlers) GetEpisodes(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListRecent(r.Context(), recentEpisodesLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, present.Episodes(records))
}

// readPDF reads the pdfFile part. A missing part is a nil upload, which
// validation reports.
func readPDF(r *http.Request) (*pdfcheck.Upload, error) {
	file, header, err := r.FormFile("pdfFile")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, pdfcheck.MaxPDFBytes+1))
	if err != nil {
		return nil, err
	}
	return &pdfcheck.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

type submitResponse struct {
	Started    bool              `json:"started"`
	Submission submission.Status `json:"submission"`
}

// PostEpisode validates the form and starts the submission flow. A
// second submit for an episode still in flight joins the running flow.
func (h *Handlers) PostEpisode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, pdfcheck.MaxPDFBytes+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Bad request"})
		return
	}

	name := r.FormValue("episodeName")
	upload, err := readPDF(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Bad request"})
		return
	}
	if errs := pdfcheck.Validate(name, upload); errs != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Validation failed", Fields: errs})
		return
	}

	flow, started, err := h.session(r).Submit(submission.Request{
		EpisodeName: name,
		Filename:    upload.Filename,
		PDF:         upload.Data,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{Started: started, Submission: flow.Status()})
}

func (h *Handlers) GetSubmission(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flows.Get(mux.Vars(r)["id"])
	if !ok || flow.Operator != operator(r).TelegramID {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Submission not found"})
		return
	}
	writeJSON(w, http.StatusOK, flow.Status())
}

// PostSelection selects an episode by name, seeding the view with its
// current row when there is one.
func (h *Handlers) PostSelection(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("episodeName"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Episode name is required"})
		return
	}

	var initial *models.WorkflowRecord
	rec, err := h.store.FindByEpisodeName(r.Context(), name)
	switch {
	case err == nil:
		initial = &rec
	case errors.Is(err, db.ErrNotFound):
	default:
		h.writeError(w, r, err)
		return
	}

	v, err := h.session(r).Select(name, initial)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, present.Render(v))
}

func (h *Handlers) DeleteSelection(w http.ResponseWriter, r *http.Request) {
	h.session(r).Deselect()
	writeJSON(w, http.StatusOK, present.Empty())
}

func (h *Handlers) currentPage(r *http.Request) present.Page {
	v, ok := h.session(r).View()
	if !ok {
		return present.Empty()
	}
	return present.Render(v)
}

func (h *Handlers) GetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentPage(r))
}

func (h *Handlers) PostRefresh(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, r)(h.session(r).Refresh(r.Context()))
}

// writeView returns a writer for the (view, error) pair every session
// operation returns.
func (h *Handlers) writeView(w http.ResponseWriter, r *http.Request) func(reconcile.View, error) {
	return func(v reconcile.View, err error) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, present.Render(v))
	}
}

// ServeWS streams the operator's views and notices.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	initial := hub.Message{Type: hub.TypeView, Data: h.currentPage(r)}
	h.hub.Serve(w, r, operator(r).TelegramID, &initial)
}
