package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fetchbot/internal/textutil"
)

// Preferences are the per-user settings toggled from chat.
type Preferences struct {
	UserID          int64
	NamingTemplate  string
	VideoAsDocument bool
	UpdatedAt       time.Time
}

// DefaultPreferences returns the settings of a user who never changed anything.
func DefaultPreferences(userID int64) Preferences {
	return Preferences{UserID: userID, NamingTemplate: textutil.DefaultNamingTemplate}
}

// GetPreferences loads the user's settings, falling back to defaults.
func (s *Store) GetPreferences(ctx context.Context, userID int64) (Preferences, error) {
	var (
		prefs      = DefaultPreferences(userID)
		template   string
		asDocument int
		updatedRaw sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT naming_template, video_as_document, updated_at FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&template, &asDocument, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("get preferences: %w", err)
	}
	if template != "" {
		prefs.NamingTemplate = template
	}
	prefs.VideoAsDocument = asDocument != 0
	prefs.UpdatedAt = parseTime(updatedRaw)
	return prefs, nil
}

// SavePreferences upserts the user's settings.
func (s *Store) SavePreferences(ctx context.Context, prefs Preferences) error {
	if prefs.NamingTemplate == "" {
		prefs.NamingTemplate = textutil.DefaultNamingTemplate
	}
	asDocument := 0
	if prefs.VideoAsDocument {
		asDocument = 1
	}
	err := s.exec(ctx,
		`INSERT INTO user_preferences (user_id, naming_template, video_as_document, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(user_id) DO UPDATE SET
             naming_template = excluded.naming_template,
             video_as_document = excluded.video_as_document,
             updated_at = excluded.updated_at`,
		prefs.UserID, prefs.NamingTemplate, asDocument, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
