// Package webchat is the session-scoped streaming gateway.
//
// Ownership model:
//   - session.Lifecycle decides whether a request creates, reuses or is refused a session.
//   - StreamCoordinator drives one generation per request against the session's engine and
//     commits the completed turn to the session history.
//   - ChatService composes both into the operations the HTTP layer (package webhttp) exposes.
//   - EventFeed relays lifecycle events from the event bus to websocket observers.
//
// Errors carry a Kind; only the transport converts kinds into HTTP statuses.
package webchat
