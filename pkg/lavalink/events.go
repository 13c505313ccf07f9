package lavalink

import "encoding/json"

// EventType enumerates the playback events a node can emit. The set is
// closed: unknown wire types are dropped by the receive loop.
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
	EventWebSocketOpen   EventType = "WebSocketOpenEvent"
)

// Event is a node-originated playback event surfaced to the caller.
type Event interface {
	Type() EventType
}

// EventHandler receives every playback event for players managed by a pool.
// Handlers run on the per-message dispatch goroutine; a slow handler delays
// only its own message.
type EventHandler func(player *Player, event Event)

// TrackStartEvent fires when a track has started playing.
type TrackStartEvent struct {
	Track *Track
}

func (TrackStartEvent) Type() EventType { return EventTrackStart }

// TrackEndEvent fires when a track has stopped playing, with the node's
// end reason ("finished", "replaced", "stopped", ...).
type TrackEndEvent struct {
	Track  *Track
	Reason string
}

func (TrackEndEvent) Type() EventType { return EventTrackEnd }

// TrackExceptionEvent fires when playback of a track failed. The track is
// the one that was ending when the node reported the error.
type TrackExceptionEvent struct {
	Track    *Track
	Message  string
	Severity string
	Cause    string
}

func (TrackExceptionEvent) Type() EventType { return EventTrackException }

// TrackStuckEvent fires when the node made no playback progress for longer
// than its configured threshold.
type TrackStuckEvent struct {
	Track       *Track
	ThresholdMs int64
}

func (TrackStuckEvent) Type() EventType { return EventTrackStuck }

// WebSocketClosedEvent fires when the node's own voice websocket to the
// gateway closed.
type WebSocketClosedEvent struct {
	Code     int
	Reason   string
	ByRemote bool
}

func (WebSocketClosedEvent) Type() EventType { return EventWebSocketClosed }

// WebSocketOpenEvent fires when the node's voice websocket to the gateway
// opened.
type WebSocketOpenEvent struct {
	Target string
	SSRC   int
}

func (WebSocketOpenEvent) Type() EventType { return EventWebSocketOpen }

// wireEvent is the superset of fields an "event" message can carry.
type wireEvent struct {
	Type    EventType `json:"type"`
	GuildID string    `json:"guildId"`

	// TrackEndEvent
	Reason string `json:"reason"`

	// TrackStuckEvent
	ThresholdMs int64 `json:"thresholdMs"`

	// TrackExceptionEvent; protocol v3 sends a bare error string, v4 an
	// exception object.
	Error     string `json:"error"`
	Exception struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
		Cause    string `json:"cause"`
	} `json:"exception"`

	// WebSocketClosedEvent
	Code     int  `json:"code"`
	ByRemote bool `json:"byRemote"`

	// WebSocketOpenEvent
	Target string `json:"target"`
	SSRC   int    `json:"ssrc"`
}

func decodeWireEvent(raw json.RawMessage) (*wireEvent, error) {
	var ev wireEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
