// Package present renders a reconciled view into what the dashboard
// shows: badges, banner, link lists and button state.
package present

import (
	"pdf-podcaster/internal/models"
	"pdf-podcaster/internal/reconcile"
)

type Tone string

const (
	ToneGray   Tone = "gray"
	ToneYellow Tone = "yellow"
	ToneBlue   Tone = "blue"
	ToneGreen  Tone = "green"
	ToneRed    Tone = "red"
	TonePurple Tone = "purple"
)

const notStarted = "Not started"

type Badge struct {
	Text        string `json:"text"`
	Tone        Tone   `json:"tone"`
	Spinner     bool   `json:"spinner,omitempty"`
	Description string `json:"description"`
}

type Link struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	URL    string `json:"url,omitempty"`
	Action string `json:"action,omitempty"`
}

type Button struct {
	Text    string `json:"text"`
	Title   string `json:"title,omitempty"`
	Enabled bool   `json:"enabled"`
	// Requires names form fields that must also be filled in before the
	// action is accepted.
	Requires []string `json:"requires,omitempty"`
}

// Page is everything the dashboard renders for the selected episode.
type Page struct {
	Selected      bool   `json:"selected"`
	EpisodeName   string `json:"episodeName,omitempty"`
	EpisodeID     string `json:"episodeId,omitempty"`
	Submitting    bool   `json:"submitting"`
	Banner        string `json:"banner,omitempty"`
	UploadCleared bool   `json:"uploadCleared,omitempty"`

	ScriptStatus    Badge `json:"scriptStatus"`
	TextFilesStatus Badge `json:"textFilesStatus"`
	PodcastStatus   Badge `json:"podcastStatus"`

	ScriptLinks []Link `json:"scriptLinks"`
	TextFiles   []Link `json:"textFiles"`
	Assets      []Link `json:"assets"`

	GenerateAudio     Button `json:"generateAudio"`
	GenerateTextFiles Button `json:"generateTextFiles"`
	GenerateAssets    Button `json:"generateAssets"`
	Publish           Button `json:"publish"`
}

// Empty is the page shown when nothing is selected.
func Empty() Page {
	return Page{ScriptLinks: []Link{}, TextFiles: []Link{}, Assets: []Link{}}
}

// Render builds the page for a view.
func Render(v reconcile.View) Page {
	return Page{
		Selected:    true,
		EpisodeName: v.EpisodeName,
		EpisodeID:   v.EpisodeID,
		Submitting:  v.Submitting,
		Banner:      v.Banner(),

		ScriptStatus:    ScriptBadge(v.ScriptStatus),
		TextFilesStatus: TextFilesBadge(v.TextFilesStatus),
		PodcastStatus:   PodcastBadge(v.PodcastStatus),

		ScriptLinks: ScriptLinks(v.ScriptLinks),
		TextFiles:   TextFiles(v.TextFiles),
		Assets:      Assets(v.Assets),

		GenerateAudio: AudioButton(v),
		GenerateTextFiles: Button{
			Text:    "Generate Text Files",
			Enabled: v.CanGenerateTextFiles(),
		},
		GenerateAssets: Button{
			Text:    "Generate Episode Assets",
			Enabled: v.CanGenerateAssets(),
		},
		Publish: PublishButton(v.PodcastStatus),
	}
}

// RenderChange renders the view carried by a change.
func RenderChange(c reconcile.Change) Page {
	p := Render(c.View)
	p.UploadCleared = c.UploadCleared
	return p
}

func ScriptBadge(s models.ScriptStatus) Badge {
	switch s {
	case models.ScriptApproved:
		return Badge{Text: string(s), Tone: ToneGreen, Description: "Scripts have been approved and are ready for audio generation."}
	case models.ScriptAudioGenerated:
		return Badge{Text: string(s), Tone: TonePurple, Description: "Audio has been generated from the approved scripts."}
	default:
		return Badge{Text: string(models.ScriptPending), Tone: ToneYellow, Description: "Scripts have been generated but need approval."}
	}
}

func processBadge(s models.ProcessStatus) Badge {
	switch s {
	case models.ProcessNone:
		return Badge{Text: notStarted, Tone: ToneGray}
	case models.ProcessPending:
		return Badge{Text: string(s), Tone: ToneYellow}
	case models.ProcessProcessing:
		return Badge{Text: string(s), Tone: ToneBlue, Spinner: true}
	case models.ProcessCompleted:
		return Badge{Text: string(s), Tone: ToneGreen}
	case models.ProcessFailed:
		return Badge{Text: string(s), Tone: ToneRed}
	case models.ProcessReadyToPublish:
		return Badge{Text: string(s), Tone: TonePurple}
	case models.ProcessPublishing:
		return Badge{Text: string(s), Tone: ToneBlue, Spinner: true}
	default:
		return Badge{Text: string(s), Tone: ToneGray}
	}
}

var textFilesDescriptions = map[models.ProcessStatus]string{
	models.ProcessNone:       "Text files generation has not been started.",
	models.ProcessPending:    "Text files generation is queued.",
	models.ProcessProcessing: "Text files are being generated.",
	models.ProcessCompleted:  "All text files have been generated successfully.",
	models.ProcessFailed:     "There was an error generating text files.",
}

var podcastDescriptions = map[models.ProcessStatus]string{
	models.ProcessNone:           "Podcast assets generation has not been started.",
	models.ProcessPending:        "Podcast assets generation is queued.",
	models.ProcessProcessing:     "Podcast assets are being generated.",
	models.ProcessCompleted:      "All podcast assets have been generated.",
	models.ProcessReadyToPublish: "Podcast is ready to be published to Podbean.",
	models.ProcessPublishing:     "Podcast is being published to Podbean.",
	models.ProcessFailed:         "There was an error generating podcast assets.",
}

func TextFilesBadge(s models.ProcessStatus) Badge {
	b := processBadge(s)
	b.Description = textFilesDescriptions[s]
	return b
}

func PodcastBadge(s models.ProcessStatus) Badge {
	b := processBadge(s)
	b.Description = podcastDescriptions[s]
	return b
}

// AudioButton is the approve / generate-audio button. It is enabled only
// while the scripts wait for approval and the Summary draft exists.
func AudioButton(v reconcile.View) Button {
	b := Button{Enabled: v.CanApprove()}
	switch {
	case v.ScriptStatus == models.ScriptAudioGenerated:
		b.Text, b.Title = "Audio Generated", "Audio has been generated"
	case v.ScriptStatus == models.ScriptApproved:
		b.Text, b.Title = "Audio Generation In Progress", "Audio generation is in progress"
	case v.IsScriptGenerated() && !v.HasScript4():
		b.Text, b.Title = "Script #4 Required", "Script #4 - Summary is required for approval"
	default:
		b.Text, b.Title = "Generate Audio", "Generate audio for this episode"
	}
	return b
}

// PublishFields are the publish form fields the server insists on.
var PublishFields = []string{"coverArt", "scheduledDate"}

// PublishButton gates on the podcast status only. Enabled means the
// status allows publishing; the request is still refused until every
// field in Requires is set.
func PublishButton(s models.ProcessStatus) Button {
	if s == models.ProcessReadyToPublish {
		return Button{
			Text:     "Publish to Podbean",
			Title:    "Choose cover art and a scheduled date to publish",
			Enabled:  true,
			Requires: PublishFields,
		}
	}
	if s == models.ProcessPublishing {
		return Button{Text: "Publishing", Title: "Publishing is in progress"}
	}
	return Button{Text: "Publish to Podbean", Title: "Podcast must be Ready to Publish"}
}

type linkSpec struct {
	key, label, action string
	url                *string
}

func links(specs []linkSpec) []Link {
	out := make([]Link, 0, len(specs))
	for _, s := range specs {
		if !models.IsValidLink(s.url) {
			continue
		}
		out = append(out, Link{Key: s.key, Label: s.label, URL: *s.url, Action: s.action})
	}
	return out
}

// ScriptLinks lists the available script drafts and source files.
func ScriptLinks(l models.ScriptLinks) []Link {
	return links([]linkSpec{
		{key: "episode_interview_script_1", label: "Script #1", url: l.Script1},
		{key: "episode_interview_script_2", label: "Script #2", url: l.Script2},
		{key: "episode_interview_script_3", label: "Script #3", url: l.Script3},
		{key: "episode_interview_script_4", label: "Script #4", url: l.Script4},
		{key: "episode_interview_full_script", label: "Full Script", url: l.FullScript},
		{key: "episode_interview_file", label: "Interview File", url: l.SourceFile},
	})
}

const (
	actionEdit = "View or Update"
	actionView = "View Only"
)

func TextFiles(l models.TextFileLinks) []Link {
	return links([]linkSpec{
		{key: "episode_titles", label: "Episode Titles", action: actionEdit, url: l.EpisodeTitles},
		{key: "episode_description", label: "Episode Description", action: actionEdit, url: l.EpisodeDescription},
		{key: "episode_intro_transcript", label: "Episode Intro Transcript", action: actionEdit, url: l.EpisodeIntroTranscript},
		{key: "linkedin_post", label: "LinkedIn Post Copy", action: actionEdit, url: l.LinkedInPost},
		{key: "x_post", label: "X Post Copy", action: actionEdit, url: l.XPost},
		{key: "podcast_excerpt", label: "Podcast Excerpt", action: actionEdit, url: l.PodcastExcerpt},
	})
}

func Assets(l models.AssetLinks) []Link {
	return links([]linkSpec{
		{key: "show_notes", label: "Show Notes", action: actionEdit, url: l.ShowNotes},
		{key: "intro_audio", label: "Episode Intro Audio File", action: actionView, url: l.IntroAudio},
		{key: "master_audio", label: "Master Audio File", action: actionView, url: l.MasterAudio},
	})
}

// EpisodeRow is one entry of the episodes list.
type EpisodeRow struct {
	ID              string `json:"id"`
	EpisodeName     string `json:"episodeName"`
	CreatedAt       string `json:"createdAt"`
	ScriptStatus    Badge  `json:"scriptStatus"`
	TextFilesStatus Badge  `json:"textFilesStatus"`
	PodcastStatus   Badge  `json:"podcastStatus"`
}

func Episodes(records []models.WorkflowRecord) []EpisodeRow {
	rows := make([]EpisodeRow, 0, len(records))
	for _, rec := range records {
		v := reconcile.New(rec.EpisodeName)
		view := v.ApplyInitial(rec).View
		rows = append(rows, EpisodeRow{
			ID:              rec.ID,
			EpisodeName:     rec.EpisodeName,
			CreatedAt:       rec.CreatedAt.UTC().Format("2006-01-02 15:04"),
			ScriptStatus:    ScriptBadge(view.ScriptStatus),
			TextFilesStatus: TextFilesBadge(view.TextFilesStatus),
			PodcastStatus:   PodcastBadge(view.PodcastStatus),
		})
	}
	return rows
}
