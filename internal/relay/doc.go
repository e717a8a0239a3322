// Package relay owns the chat relay core.
//
// Ownership boundary:
// - name-claim handshake and session lifecycle
// - the registry of live sessions keyed by display name
// - broadcast/unicast routing and system notices
// - coordinated shutdown of the listener and every session worker
//
// Presentation (terminal UI, admin HTTP) consumes Controller and LogSink only.
package relay
