package handlers

import (
	"errors"
	"net/http"

	"pdf-podcaster/internal/actions"
)

const maxCoverArtBytes = 10 << 20

func (h *Handlers) PostApprove(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, r)(h.session(r).Approve(r.Context()))
}

func (h *Handlers) PostTextFiles(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, r)(h.session(r).GenerateTextFiles(r.Context()))
}

func (h *Handlers) PostAssets(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, r)(h.session(r).GenerateAssets(r.Context()))
}

// PostPublish takes the cover art and scheduled date as multipart form
// fields.
func (h *Handlers) PostPublish(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCoverArtBytes+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Bad request"})
		return
	}

	file, header, err := r.FormFile("coverArt")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Bad request"})
		return
	}
	date := r.FormValue("scheduledDate")
	if file == nil || date == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Missing required publishing information"})
		return
	}
	defer file.Close()

	h.writeView(w, r)(h.session(r).Publish(r.Context(), actions.PublishForm{
		CoverArt:            file,
		CoverArtFilename:    header.Filename,
		CoverArtContentType: header.Header.Get("Content-Type"),
		ScheduledDate:       date,
	}))
}
