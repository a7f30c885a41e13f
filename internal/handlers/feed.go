package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"pdf-podcaster/internal/feed"
)

const feedLimit = 100

// GetRSSFeed serves the preview feed. The token in the path is the only
// credential, so podcast players can subscribe.
func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if h.feedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.feedToken)) != 1 {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return
	}

	records, err := h.store.ListWithMasterAudio(r.Context(), feedLimit)
	if err != nil {
		h.log.WithError(err).Error("Error getting episodes for feed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rss, err := feed.GenerateRSS(feed.BaseURL(h.baseURL, r), token, records, time.Now())
	if err != nil {
		h.log.WithError(err).Error("Error generating RSS")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write([]byte(rss))
}
