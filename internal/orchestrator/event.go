package orchestrator

// Event is an inbound user event. The set of variants is closed.
type Event interface {
	User() int64
	isEvent()
}

// URLSubmitted carries a link the user sent.
type URLSubmitted struct {
	UserID int64
	URL    string
}

// FormatChosen carries the user's pick from the offered formats.
type FormatChosen struct {
	UserID   int64
	FormatID string
}

// CancelRequested asks to stop the user's running job.
type CancelRequested struct {
	UserID int64
}

// SettingsRequested asks for the user's delivery preferences.
type SettingsRequested struct {
	UserID int64
}

// SettingToggled advances one preference.
type SettingToggled struct {
	UserID  int64
	Setting Setting
}

// StatusRequested asks what the user's session is doing.
type StatusRequested struct {
	UserID int64
}

// HelpRequested asks for usage instructions.
type HelpRequested struct {
	UserID int64
}

func (e URLSubmitted) User() int64      { return e.UserID }
func (e FormatChosen) User() int64      { return e.UserID }
func (e CancelRequested) User() int64   { return e.UserID }
func (e SettingsRequested) User() int64 { return e.UserID }
func (e SettingToggled) User() int64    { return e.UserID }
func (e StatusRequested) User() int64   { return e.UserID }
func (e HelpRequested) User() int64     { return e.UserID }

func (URLSubmitted) isEvent()      {}
func (FormatChosen) isEvent()      {}
func (CancelRequested) isEvent()   {}
func (SettingsRequested) isEvent() {}
func (SettingToggled) isEvent()    {}
func (StatusRequested) isEvent()   {}
func (HelpRequested) isEvent()     {}

// Setting names a user preference.
type Setting string

const (
	SettingNamingTemplate  Setting = "naming"
	SettingVideoAsDocument Setting = "video_document"
)
