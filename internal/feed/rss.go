package feed

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/eduncan911/podcast"
	"pdf-podcaster/internal/models"
)

// BaseURL prefers the configured public URL and falls back to the
// request's own scheme and host.
func BaseURL(configured string, r *http.Request) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}

	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "https"
		if r.Header.Get("X-Forwarded-Proto") != "" {
			scheme = r.Header.Get("X-Forwarded-Proto")
		}
	}

	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// GenerateRSS builds the preview feed of episodes whose master audio is
// ready. Records without a master audio link are skipped.
func GenerateRSS(baseURL, token string, records []models.WorkflowRecord, now time.Time) (string, error) {
	p := podcast.New(
		"PDF Podcaster preview",
		fmt.Sprintf("%s/rss/%s", baseURL, token),
		"Master audio of generated episodes, for review before publishing.",
		&now, &now,
	)

	for _, rec := range records {
		if !models.IsValidLink(rec.MasterAudio) {
			continue
		}
		pubDate := rec.CreatedAt
		item := podcast.Item{
			Title:       rec.EpisodeName,
			Description: description(rec),
			PubDate:     &pubDate,
			GUID:        rec.ID,
		}
		item.AddEnclosure(strings.TrimSpace(*rec.MasterAudio), podcast.MP3, 0)
		if _, err := p.AddItem(item); err != nil {
			return "", fmt.Errorf("failed to add %q to feed: %w", rec.EpisodeName, err)
		}
	}

	return p.String(), nil
}

func description(rec models.WorkflowRecord) string {
	d := fmt.Sprintf("Master audio for %s.", rec.EpisodeName)
	if models.IsValidLink(rec.PodcastStatus) {
		d += " Status: " + *rec.PodcastStatus + "."
	}
	if models.IsValidLink(rec.ShowNotes) {
		d += " Show notes: " + strings.TrimSpace(*rec.ShowNotes)
	}
	return d
}
