// Package server implements the relaychat realtime core and its HTTP surface.
//
// The implementation is organized into specialized files: the hub (session
// registry and fan-out), sessions (per-connection pumps and dispatch), the
// connection authenticator, the message broadcast engine, presence tracking,
// the typing relay, and the account API.
package server
