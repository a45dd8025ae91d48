// Package vaulterrors defines the sentinel errors shared across the
// sync core, so callers can use errors.Is instead of string matching.
// Every package wraps one of these with fmt.Errorf("...: %w", Sentinel)
// to attach local context.
package vaulterrors

import "errors"

var (
	// InvalidPath is returned for empty paths, paths escaping the vault
	// root, and registry renames/deletes of a path with no entry. The
	// ignore/markdown filter does not return it; it reports a rejection
	// as a plain bool.
	InvalidPath = errors.New("invalid path")

	// OversizedFile is returned when a file body exceeds the 10MiB
	// single-document ceiling.
	OversizedFile = errors.New("file exceeds maximum size")

	// OversizedMessage is returned when a decoded protocol message body
	// exceeds the 50MiB wire ceiling.
	OversizedMessage = errors.New("message exceeds maximum size")

	// DecodeFailure is returned when a protocol frame or blob fails to
	// decode as well-formed gob or JSON.
	DecodeFailure = errors.New("decode failure")

	// CorruptBlob is returned when an on-disk document or registry blob
	// fails to gob-decode. Blobs carry no checksum.
	CorruptBlob = errors.New("corrupt blob")

	// IoFailure wraps an underlying filesystem error from the Filesystem
	// Bridge.
	IoFailure = errors.New("io failure")

	// TransportClosed is returned by Send/Receive once a transport's
	// underlying connection has been closed, and is the only liveness
	// signal membership uses when no active prober is wired in.
	TransportClosed = errors.New("transport closed")

	// DuplicateDial names a second dial to an already-connected or
	// already-dialing peer. No component returns it: the Sync Engine
	// suppresses such dials silently.
	DuplicateDial = errors.New("duplicate dial to already-connected peer")

	// NotInitialized is returned by Vault operations attempted before
	// Init has created the .sync/ directory and loaded settings.
	NotInitialized = errors.New("vault not initialized")
)
