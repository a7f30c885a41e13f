package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ScriptStatus is the approval state of an episode's script drafts.
type ScriptStatus string

const (
	ScriptPending        ScriptStatus = "Pending"
	ScriptApproved       ScriptStatus = "Approved"
	ScriptAudioGenerated ScriptStatus = "Audio Generated"
)

// ParseScriptStatus maps a stored value onto a ScriptStatus. Anything
// unknown, including the empty string, is Pending.
func ParseScriptStatus(s string) ScriptStatus {
	switch ScriptStatus(strings.TrimSpace(s)) {
	case ScriptApproved:
		return ScriptApproved
	case ScriptAudioGenerated:
		return ScriptAudioGenerated
	default:
		return ScriptPending
	}
}

// ProcessStatus is the state of the text-files or podcast pipeline. The
// empty value means the pipeline has not been started.
type ProcessStatus string

const (
	ProcessNone           ProcessStatus = ""
	ProcessPending        ProcessStatus = "Pending"
	ProcessProcessing     ProcessStatus = "Processing"
	ProcessCompleted      ProcessStatus = "Completed"
	ProcessFailed         ProcessStatus = "Failed"
	ProcessReadyToPublish ProcessStatus = "Ready to Publish"
	ProcessPublishing     ProcessStatus = "Publishing"
)

// WorkflowRecord is one row of the autoworkflow table. The row is owned
// by the external automation; this service only reads it and writes the
// status and publishing columns.
type WorkflowRecord struct {
	ID          string    `db:"id" json:"id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	EpisodeName string    `db:"episode_interview_file_name" json:"episode_interview_file_name"`

	Script1    *string `db:"episode_interview_script_1" json:"episode_interview_script_1"`
	Script2    *string `db:"episode_interview_script_2" json:"episode_interview_script_2"`
	Script3    *string `db:"episode_interview_script_3" json:"episode_interview_script_3"`
	Script4    *string `db:"episode_interview_script_4" json:"episode_interview_script_4"`
	FullScript *string `db:"episode_interview_full_script" json:"episode_interview_full_script"`
	SourceFile *string `db:"episode_interview_file" json:"episode_interview_file"`

	ScriptStatus    *string `db:"episode_interview_script_status" json:"episode_interview_script_status"`
	TextFilesStatus *string `db:"episode_text_files_status" json:"episode_text_files_status"`
	PodcastStatus   *string `db:"podcast_status" json:"podcast_status"`

	EpisodeTitles          *string `db:"episode_titles" json:"episode_titles"`
	EpisodeDescription     *string `db:"episode_description" json:"episode_description"`
	EpisodeIntroTranscript *string `db:"episode_intro_transcript" json:"episode_intro_transcript"`
	LinkedInPost           *string `db:"linkedin_post" json:"linkedin_post"`
	XPost                  *string `db:"x_post" json:"x_post"`
	PodcastExcerpt         *string `db:"podcast_excerpt" json:"podcast_excerpt"`

	ShowNotes   *string `db:"show_notes" json:"show_notes"`
	IntroAudio  *string `db:"intro_audio" json:"intro_audio"`
	MasterAudio *string `db:"master_audio" json:"master_audio"`

	CoverArtURL   *string `db:"podbean_cover_art_url" json:"podbean_cover_art_url"`
	ScheduledDate *string `db:"podbean_scheduled_date" json:"podbean_scheduled_date"`
	UnixTimestamp *int64  `db:"podbean_timestamp" json:"podbean_timestamp"`
}

// ScriptLinks are the six script and source links of an episode. Keys
// match the column names so the map form can be sent to the automation
// unchanged.
type ScriptLinks struct {
	Script1    *string `json:"episode_interview_script_1"`
	Script2    *string `json:"episode_interview_script_2"`
	Script3    *string `json:"episode_interview_script_3"`
	Script4    *string `json:"episode_interview_script_4"`
	FullScript *string `json:"episode_interview_full_script"`
	SourceFile *string `json:"episode_interview_file"`
}

// TextFileLinks are the six text files produced after approval.
type TextFileLinks struct {
	EpisodeTitles          *string `json:"episode_titles"`
	EpisodeDescription     *string `json:"episode_description"`
	EpisodeIntroTranscript *string `json:"episode_intro_transcript"`
	LinkedInPost           *string `json:"linkedin_post"`
	XPost                  *string `json:"x_post"`
	PodcastExcerpt         *string `json:"podcast_excerpt"`
}

// AssetLinks are the show notes and audio files produced for an episode.
type AssetLinks struct {
	ShowNotes   *string `json:"show_notes"`
	IntroAudio  *string `json:"intro_audio"`
	MasterAudio *string `json:"master_audio"`
}

// IsValidLink reports whether a link is usable: non-nil and non-empty
// after trimming. Nil and "" are the same absent state.
func IsValidLink(link *string) bool {
	return link != nil && strings.TrimSpace(*link) != ""
}

// normalize turns empty links into nil.
func normalize(link *string) *string {
	if !IsValidLink(link) {
		return nil
	}
	v := *link
	return &v
}

func (r WorkflowRecord) ScriptLinks() ScriptLinks {
	return ScriptLinks{
		Script1:    normalize(r.Script1),
		Script2:    normalize(r.Script2),
		Script3:    normalize(r.Script3),
		Script4:    normalize(r.Script4),
		FullScript: normalize(r.FullScript),
		SourceFile: normalize(r.SourceFile),
	}
}

func (r WorkflowRecord) TextFileLinks() TextFileLinks {
	return TextFileLinks{
		EpisodeTitles:          normalize(r.EpisodeTitles),
		EpisodeDescription:     normalize(r.EpisodeDescription),
		EpisodeIntroTranscript: normalize(r.EpisodeIntroTranscript),
		LinkedInPost:           normalize(r.LinkedInPost),
		XPost:                  normalize(r.XPost),
		PodcastExcerpt:         normalize(r.PodcastExcerpt),
	}
}

func (r WorkflowRecord) AssetLinks() AssetLinks {
	return AssetLinks{
		ShowNotes:   normalize(r.ShowNotes),
		IntroAudio:  normalize(r.IntroAudio),
		MasterAudio: normalize(r.MasterAudio),
	}
}

// HasScript1 reports whether the first draft slot holds a valid link.
func (l ScriptLinks) HasScript1() bool { return IsValidLink(l.Script1) }

// HasScript4 reports whether the Summary slot holds a valid link. It is
// the only signal that script generation is complete.
func (l ScriptLinks) HasScript4() bool { return IsValidLink(l.Script4) }

// IsScriptGenerated reports whether any of the six links is valid.
func (l ScriptLinks) IsScriptGenerated() bool {
	for _, link := range []*string{l.Script1, l.Script2, l.Script3, l.Script4, l.FullScript, l.SourceFile} {
		if IsValidLink(link) {
			return true
		}
	}
	return false
}

// Map returns the links keyed by column name, nil for absent links.
func (l ScriptLinks) Map() map[string]*string {
	return map[string]*string{
		"episode_interview_script_1":    l.Script1,
		"episode_interview_script_2":    l.Script2,
		"episode_interview_script_3":    l.Script3,
		"episode_interview_script_4":    l.Script4,
		"episode_interview_full_script": l.FullScript,
		"episode_interview_file":        l.SourceFile,
	}
}

// wireRecord reads id and created_at loosely: rows serialized by Postgres
// (row_to_json, n8n responses) carry numeric ids and may carry timestamps
// without a zone.
type wireRecord struct {
	WorkflowRecord
	ID        json.RawMessage `json:"id"`
	CreatedAt string          `json:"created_at"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (w wireRecord) record() WorkflowRecord {
	rec := w.WorkflowRecord
	rec.ID = parseID(w.ID)
	rec.CreatedAt = parseTimestamp(w.CreatedAt)
	return rec
}

// ParseRecord decodes a single row serialized as a JSON object.
func ParseRecord(data []byte) (WorkflowRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return WorkflowRecord{}, fmt.Errorf("failed to decode workflow record: %w", err)
	}
	return w.record(), nil
}

// ParseRecords decodes a JSON array of rows.
func ParseRecords(data []byte) ([]WorkflowRecord, error) {
	var ws []wireRecord
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to decode workflow records: %w", err)
	}
	records := make([]WorkflowRecord, 0, len(ws))
	for _, w := range ws {
		records = append(records, w.record())
	}
	return records, nil
}
