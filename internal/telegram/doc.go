// Package telegram is the messaging-platform collaborator. It talks to the
// Bot API over HTTP, long-polls for updates and translates them into
// orchestrator events, delivers notifications (editing progress messages in
// place) and sends finished files for the upload stage.
package telegram
