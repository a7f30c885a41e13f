package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdf-podcaster/pkg/tasks"
)

func TestSubmitEpisodeSendsMultipartAndParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Ep-100", r.FormValue("episodeName"))

		file, header, err := r.FormFile("pdfFile")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "interview.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.4", string(data))

		w.Write([]byte(`[{"id":5,"episode_interview_file_name":"Ep-100","episode_interview_script_1":"https://x/1"}]`))
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL, "").SubmitEpisode(context.Background(), "Ep-100", "interview.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "5", records[0].ID)
	assert.True(t, records[0].ScriptLinks().HasScript1())
}

func TestSubmitEpisodeEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL, "").SubmitEpisode(context.Background(), "Ep-100", "a.pdf", []byte("x"))
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestSubmitEpisodeStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow not active", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").SubmitEpisode(context.Background(), "Ep-100", "a.pdf", []byte("x"))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, "workflow not active", statusErr.Body)
}

func TestGenerateAudioPostsJSON(t *testing.T) {
	link := "https://x/4"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var p tasks.GenerateAudioPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "7", p.EpisodeID)
		assert.Equal(t, "generate_audio", p.Action)
		assert.Equal(t, link, *p.ScriptLinks["episode_interview_script_4"])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewClient("", srv.URL).GenerateAudio(context.Background(), tasks.GenerateAudioPayload{
		EpisodeID:   "7",
		EpisodeName: "Ep-100",
		ScriptLinks: map[string]*string{"episode_interview_script_4": &link},
		Action:      "generate_audio",
	})
	assert.NoError(t, err)
}

func TestGenerateAudioFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient("", srv.URL).GenerateAudio(context.Background(), tasks.GenerateAudioPayload{})
	assert.Error(t, err)
}
