// Package analyzer manages a long-lived rust-analyzer process over the LSP
// base protocol on stdio.
//
// A Session owns one analyzer process and everything attached to it: the
// framed JSON-RPC transport with request correlation, the open-document
// table with on-disk change detection, and the latest published diagnostics
// per file. Commands take exclusive ownership of the session for their whole
// multi-step exchange via Acquire/Release, while the read loop keeps
// consuming responses and notifications concurrently.
//
// When the process dies or its stream closes, every pending request fails
// with ErrSessionTerminated and the session refuses new work until Restart
// spawns a fresh process, redoes the handshake, and re-opens the previously
// open documents.
package analyzer
