// Package server implements the chat relay's connection and session
// management subsystem: the TCP accept loop, the shared client registry,
// the @-command dispatch protocol, the permission model, the rate limiter,
// ban-list persistence, and broadcast fan-out.
//
// The implementation is organized into specialized files for configuration,
// sessions, the registry, dispatch, persistence, and the WebSocket bridge
// to keep the codebase maintainable as the project grows.
package server
