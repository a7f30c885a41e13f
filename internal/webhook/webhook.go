// Package webhook calls the n8n automation endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"pdf-podcaster/internal/metrics"
	"pdf-podcaster/internal/models"
	"pdf-podcaster/pkg/tasks"
)

// maxResponseBytes bounds how much of a webhook reply is read.
const maxResponseBytes = 4 << 20

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Webhook string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s webhook returned status %d: %s", e.Webhook, e.Code, e.Body)
}

type Client struct {
	http      *http.Client
	submitURL string
	audioURL  string
}

// NewClient builds a client for both webhooks. Calls are bounded by the
// caller's context, not by a client timeout.
func NewClient(submitURL, audioURL string) *Client {
	return &Client{http: &http.Client{}, submitURL: submitURL, audioURL: audioURL}
}

// SubmitEpisode posts the episode name and PDF as multipart form data.
// The automation may answer with the created rows; an empty body yields
// no records.
func (c *Client) SubmitEpisode(ctx context.Context, episodeName, filename string, pdf []byte) ([]models.WorkflowRecord, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("episodeName", episodeName); err != nil {
		return nil, err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="pdfFile"; filename=%q`, filename))
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	data, err := c.do(req, "submit")
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return models.ParseRecords(data)
}

// GenerateAudio posts the audio request as JSON. Any 2xx reply is success.
func (c *Client) GenerateAudio(ctx context.Context, p tasks.GenerateAudioPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.audioURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	_, err = c.do(req, "audio")
	return err
}

func (c *Client) do(req *http.Request, name string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveWebhook(name, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s webhook request failed: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s webhook response: %w", name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Webhook: name, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}
