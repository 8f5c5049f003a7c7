package orchestrator

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"fetchbot/internal/history"
	"fetchbot/internal/job"
	"fetchbot/internal/media"
	"fetchbot/internal/services"
)

const helpText = "Send me a link to a video and I will offer the formats I can deliver.\n" +
	"/cancel stops the running download.\n" +
	"/settings changes file naming and how videos are sent.\n" +
	"/status shows what I am doing for you."

// messageFor returns the user-facing text for a classified error. limit is
// the size ceiling to quote for size errors; 0 omits it.
func messageFor(err error, limit int64) string {
	return messageForKind(services.KindOf(err), limit)
}

func messageForKind(kind services.Kind, limit int64) string {
	switch kind {
	case services.KindValidation:
		return "That does not look like a link I can fetch. Send a full http or https URL."
	case services.KindUnsupportedSource:
		return "That site is not supported."
	case services.KindResolution:
		return "I could not read the available formats for that link."
	case services.KindSizeLimitExceeded:
		if limit > 0 {
			return fmt.Sprintf("That file is larger than the %s upload limit. Pick a smaller format.", humanize.Bytes(uint64(limit)))
		}
		return "That file is larger than the upload limit. Pick a smaller format."
	case services.KindDownloadTransient:
		return "The download kept failing because of network errors."
	case services.KindDownloadPermanent:
		return "The source refused the download."
	case services.KindTranscodeTimeout:
		return "Converting the file took too long and was stopped."
	case services.KindTranscodePermanent:
		return "The file could not be converted."
	case services.KindUploadRateLimited:
		return "The chat service kept rate limiting the upload."
	case services.KindUploadPermanent:
		return "The chat service rejected the file."
	case services.KindSessionExpired:
		return "That choice has expired. Send the link again."
	case services.KindInvalidChoice:
		return "That option is not in the list. Use one of the buttons."
	case services.KindBusy:
		return "You already have a download in progress. Try again once it finishes, or /cancel it."
	case services.KindCapacityExceeded:
		return "I am at capacity right now. Please try again in a few minutes."
	case services.KindCancelled:
		return "Download cancelled."
	case services.KindNoActiveJob:
		return "There is nothing to cancel."
	case services.KindQuotaExceeded:
		return "There is not enough temporary storage for that file."
	case services.KindTimeout:
		return "A step took too long and was stopped."
	default:
		return "The download failed unexpectedly."
	}
}

func stageVerb(stage string) string {
	switch stage {
	case "download":
		return "Downloading"
	case "transcode":
		return "Converting"
	case "upload":
		return "Uploading"
	default:
		return "Working on"
	}
}

func progressText(snap job.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)", stageVerb(snap.Progress.Stage), snap.Title, snap.FormatLabel)
	p := snap.Progress
	switch {
	case p.Percent >= 0 && p.Total > 0:
		fmt.Fprintf(&b, "\n%.0f%% · %s of %s", p.Percent, humanize.Bytes(uint64(p.Bytes)), humanize.Bytes(uint64(p.Total)))
	case p.Percent >= 0:
		fmt.Fprintf(&b, "\n%.0f%%", p.Percent)
	case p.Bytes > 0:
		fmt.Fprintf(&b, "\n%s so far", humanize.Bytes(uint64(p.Bytes)))
	}
	return b.String()
}

func queuedText(snap job.Snapshot, position int) string {
	if position > 0 {
		return fmt.Sprintf("Queued %s (%s), position %d.", snap.Title, snap.FormatLabel, position)
	}
	return fmt.Sprintf("Queued %s (%s).", snap.Title, snap.FormatLabel)
}

func terminalText(snap job.Snapshot) string {
	switch snap.State {
	case job.StateSucceeded:
		return fmt.Sprintf("Delivered %s (%s).", snap.Title, snap.FormatLabel)
	case job.StateCancelled:
		if snap.LastError != nil && strings.Contains(snap.LastError.Message, services.ErrSessionExpired.Error()) {
			return "Download cancelled because the session expired."
		}
		return messageForKind(services.KindCancelled, 0)
	default:
		kind := services.KindInternal
		if snap.LastError != nil {
			kind = snap.LastError.Kind
		}
		return messageForKind(kind, snap.SizeLimitBytes)
	}
}

func formatPrompt(res media.Resolution) (string, []Choice) {
	choices := make([]Choice, 0, len(res.Options)+1)
	for _, opt := range res.Options {
		label := opt.Label
		if opt.SizeKnown() {
			label = fmt.Sprintf("%s (~%s)", label, humanize.Bytes(uint64(opt.EstimatedSizeBytes)))
		}
		choices = append(choices, Choice{Label: label, Action: ActionChooseFormat, Value: opt.ID})
	}
	return fmt.Sprintf("%s\nChoose a format:", res.Info.DisplayTitle()), choices
}

func settingsText(prefs history.Preferences) (string, []Choice) {
	sendAs := "video"
	if prefs.VideoAsDocument {
		sendAs = "document"
	}
	text := fmt.Sprintf("Settings\nFile name: %s\nSend videos as: %s", prefs.NamingTemplate, sendAs)
	return text, []Choice{
		{Label: "Change file name", Action: ActionToggleSetting, Value: string(SettingNamingTemplate)},
		{Label: "Toggle video as document", Action: ActionToggleSetting, Value: string(SettingVideoAsDocument)},
	}
}
