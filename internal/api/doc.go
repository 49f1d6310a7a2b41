// Package api implements the HTTP REST API and WebSocket server for Boardflow Core.
//
// This package provides:
//   - Rule authoring endpoints (create, read, update, delete, add actions)
//   - The rule execution log
//   - Card and list move endpoints that publish the resulting domain events
//   - A WebSocket hub broadcasting automation runs as they finish
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Move requests go through the board repository, which places the card or
// list with the ordering engine under a per-list lock. The resulting
// DomainEvents are handed to the transport publisher; the automation
// processor picks them up from the broker like any other event. Rule runs
// come back to clients through the hub, which the processor uses as its
// broadcaster.
//
// # Identity
//
// Authentication is out of scope. The acting user is taken from the
// X-User-ID header and recorded on events and new rules.
//
// # Graceful Degradation
//
// The server operates without a broker: rule authoring and moves work, but
// move events are not published.
package api
