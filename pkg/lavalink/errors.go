package lavalink

import (
	"errors"
	"fmt"
)

// Pool and node availability errors
var (
	ErrNodeNotAvailable     = errors.New("node is not available")
	ErrNoNodesAvailable     = errors.New("no nodes are available")
	ErrDuplicateNodeID      = errors.New("a node with that identifier already exists")
	ErrTrackInvalidPosition = errors.New("seek position must be between 0 and the track length")
	ErrVolumeOutOfRange     = errors.New("volume must be between 0 and 500")
)

// Filter errors
var (
	ErrFilterTagAlreadyInUse = errors.New("a filter with that tag is already in use")
	ErrFilterTagInvalid      = errors.New("a filter with that tag was not found")
)

// ConnectionError is a fatal connect-time failure: a bad password, a bad
// URI, an unreachable host. It is never retried automatically.
type ConnectionError struct {
	Identifier string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to node %q failed: %v", e.Identifier, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// VersionError is raised when a node reports a protocol version below the
// supported floor. Fatal at connect time.
type VersionError struct {
	Identifier string
	Version    Version
}

func (e *VersionError) Error() string {
	return fmt.Sprintf(
		"node %q runs version %s, minimum supported is %s",
		e.Identifier, e.Version, minimumVersion,
	)
}

// RestError carries a non-2xx REST response from a node.
type RestError struct {
	Status  int
	Message string
}

func (e *RestError) Error() string {
	return fmt.Sprintf("node REST request failed with status %d: %s", e.Status, e.Message)
}

// TrackLoadError is raised when a node reports a load failure, or when a
// track could not be resolved by any search attempt.
type TrackLoadError struct {
	Message  string
	Severity string
}

func (e *TrackLoadError) Error() string {
	if e.Severity != "" {
		return fmt.Sprintf("track load failed: %s [%s]", e.Message, e.Severity)
	}
	return fmt.Sprintf("track load failed: %s", e.Message)
}
