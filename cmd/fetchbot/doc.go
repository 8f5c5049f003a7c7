// Command fetchbot runs the media-fetch bot daemon in the foreground and
// talks to a running daemon over its control socket to report status, list
// jobs and history, reclaim ephemeral files and send test notifications.
package main
