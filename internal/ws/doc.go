// Package ws provides the live WebSocket connection set and its message
// routing.
//
// The package implements:
//   - Hub: the set of live connections, with fan-out broadcast and
//     idempotent registration
//   - Client: a gorilla/websocket connection behind a bounded send queue
//   - Handler: upgrades requests and routes ping and chat messages
//
// Broadcast never waits on a slow client: Client.Send fails when the queue
// is full and the hub drops that client. Recent broadcasts are kept in a
// ring buffer and replayed to newly connected clients.
package ws
