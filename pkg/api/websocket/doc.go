// Package websocket provides real-time generation events via WebSocket.
//
// Clients connect to /api/v1/events/ws to receive lifecycle events for every
// generation, or pass ?generation_id=<id> to follow a single one.
package websocket
