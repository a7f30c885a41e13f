// Package reconcile merges the three sources of episode state (the
// snapshot handed over on selection, periodic polls and change
// notifications) into one view model.
//
// Merging is last-writer-wins by arrival, per field. A slow poll that
// lands after a newer push overwrites the newer values; there is no
// ordering between sources.
package reconcile

import (
	"sync"

	"pdf-podcaster/internal/models"
)

// Source identifies where an update came from.
type Source string

const (
	SourceInitial Source = "initial"
	SourcePoll    Source = "poll"
	SourcePush    Source = "push"
	SourceLocal   Source = "local"
)

// BannerScriptOneReady is shown while the first draft exists but the
// Summary draft does not.
const BannerScriptOneReady = "Script #1 has been generated, kindly wait for the other scripts to load."

// View is the current state of the selected episode.
type View struct {
	EpisodeName     string
	EpisodeID       string
	ScriptStatus    models.ScriptStatus
	TextFilesStatus models.ProcessStatus
	PodcastStatus   models.ProcessStatus
	ScriptLinks     models.ScriptLinks
	TextFiles       models.TextFileLinks
	Assets          models.AssetLinks
	Submitting      bool
}

func (v View) HasScript1() bool        { return v.ScriptLinks.HasScript1() }
func (v View) HasScript4() bool        { return v.ScriptLinks.HasScript4() }
func (v View) IsScriptGenerated() bool { return v.ScriptLinks.IsScriptGenerated() }

// Banner is the processing banner for the view.
func (v View) Banner() string {
	return Banner(v.HasScript1(), v.HasScript4(), v.Submitting)
}

// CanApprove gates both script approval and audio generation. Slot 4 is
// required regardless of the other links.
func (v View) CanApprove() bool {
	return v.IsScriptGenerated() && v.HasScript4() && v.ScriptStatus == models.ScriptPending
}

func (v View) CanGenerateTextFiles() bool { return v.IsScriptGenerated() }

func (v View) CanGenerateAssets() bool { return v.IsScriptGenerated() }

// Banner derives the processing banner. The first-draft notice shows
// while script #1 exists without #4, also after a reload that lost the
// submitting flag. Once #4 exists the banner is cleared whatever the
// submitting flag says.
func Banner(hasScript1, hasScript4, isSubmitting bool) string {
	switch {
	case hasScript4:
		return ""
	case hasScript1:
		return BannerScriptOneReady
	default:
		return ""
	}
}

// Update carries the fields one signal knows about. Nil fields are left
// untouched.
type Update struct {
	EpisodeID       *string
	ScriptStatus    *models.ScriptStatus
	TextFilesStatus *models.ProcessStatus
	PodcastStatus   *models.ProcessStatus
	ScriptLinks     *models.ScriptLinks
	TextFiles       *models.TextFileLinks
	Assets          *models.AssetLinks
	Submitting      *bool
}

// FromRecord builds the update a store row contributes. Link groups are
// always present; statuses only when the row carries a value.
func FromRecord(rec models.WorkflowRecord) Update {
	links := rec.ScriptLinks()
	textFiles := rec.TextFileLinks()
	assets := rec.AssetLinks()
	u := Update{ScriptLinks: &links, TextFiles: &textFiles, Assets: &assets}
	if rec.ID != "" {
		id := rec.ID
		u.EpisodeID = &id
	}
	if rec.ScriptStatus != nil && *rec.ScriptStatus != "" {
		s := models.ParseScriptStatus(*rec.ScriptStatus)
		u.ScriptStatus = &s
	}
	if rec.TextFilesStatus != nil && *rec.TextFilesStatus != "" {
		s := models.ProcessStatus(*rec.TextFilesStatus)
		u.TextFilesStatus = &s
	}
	if rec.PodcastStatus != nil && *rec.PodcastStatus != "" {
		s := models.ProcessStatus(*rec.PodcastStatus)
		u.PodcastStatus = &s
	}
	return u
}

// Change describes what an Apply did.
type Change struct {
	Source Source
	View   View
	// SubmittingCleared is set when this update completed script
	// generation while a submission was in flight.
	SubmittingCleared bool
	// UploadCleared asks the client to reset its PDF input.
	UploadCleared bool
}

// Reconciler owns the view of one episode.
type Reconciler struct {
	mu   sync.Mutex
	view View
}

// New starts a reconciler for an episode with an empty view.
func New(episodeName string) *Reconciler {
	return &Reconciler{view: View{EpisodeName: episodeName, ScriptStatus: models.ScriptPending}}
}

func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// ApplyInitial seeds the view from the snapshot handed over on selection.
func (r *Reconciler) ApplyInitial(rec models.WorkflowRecord) Change {
	return r.Apply(SourceInitial, FromRecord(rec))
}

func (r *Reconciler) ApplyPoll(rec models.WorkflowRecord) Change {
	return r.Apply(SourcePoll, FromRecord(rec))
}

func (r *Reconciler) ApplyPush(rec models.WorkflowRecord) Change {
	return r.Apply(SourcePush, FromRecord(rec))
}

// ApplyLocal merges the result of an operator action.
func (r *Reconciler) ApplyLocal(u Update) Change {
	return r.Apply(SourceLocal, u)
}

// SetSubmitting flips the submitting flag without touching other fields.
func (r *Reconciler) SetSubmitting(submitting bool) Change {
	return r.ApplyLocal(Update{Submitting: &submitting})
}

// Apply merges u into the view.
func (r *Reconciler) Apply(source Source, u Update) Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasSubmitting := r.view.Submitting
	v := &r.view
	if u.EpisodeID != nil {
		v.EpisodeID = *u.EpisodeID
	}
	if u.ScriptStatus != nil {
		v.ScriptStatus = *u.ScriptStatus
	}
	if u.TextFilesStatus != nil {
		v.TextFilesStatus = *u.TextFilesStatus
	}
	if u.PodcastStatus != nil {
		v.PodcastStatus = *u.PodcastStatus
	}
	if u.ScriptLinks != nil {
		v.ScriptLinks = *u.ScriptLinks
	}
	if u.TextFiles != nil {
		v.TextFiles = *u.TextFiles
	}
	if u.Assets != nil {
		v.Assets = *u.Assets
	}
	if u.Submitting != nil {
		v.Submitting = *u.Submitting
	}

	change := Change{Source: source}
	if wasSubmitting && v.Submitting && v.HasScript4() {
		v.Submitting = false
		change.SubmittingCleared = true
		change.UploadCleared = true
	}
	change.View = *v
	return change
}
