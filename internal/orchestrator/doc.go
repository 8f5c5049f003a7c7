// Package orchestrator is the single entry point for inbound user events.
//
// The transport hands normalized events to Facade.HandleIncomingEvent. The
// facade routes them to the session manager, watches job lifecycle callbacks
// from the scheduler and turns everything the user should see into
// Notifications for the transport to deliver.
package orchestrator
