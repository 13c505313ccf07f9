package lavalink

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TrackInfo is the metadata shared by every track regardless of origin.
type TrackInfo struct {
	Source     TrackType
	Identifier string // source-native id, e.g. a YouTube video id
	Title      string
	Author     string
	URI        string
	ISRC       string
	ArtworkURL string
	Length     int64 // milliseconds
	IsStream   bool
	IsSeekable bool
	Position   int64 // start offset in milliseconds
	SearchHint SearchType
}

// Track is a playable unit. Tracks loaded straight from a node carry a
// playable token from the start. Provider-sourced tracks (Spotify, Apple
// Music) start with a placeholder token and must be resolved against a node
// before playback; resolution happens exactly once, in place, so repeated
// plays of the same track skip the search.
type Track struct {
	Info TrackInfo

	// Filters are applied to the player when this track starts, unless a
	// global filter is already active.
	Filters []*Filter

	// Attachment is an opaque caller-supplied value. The client never
	// inspects it, only carries it.
	Attachment any

	mu       sync.Mutex
	encoded  string
	resolved bool
}

// NewTrack builds a track from a node-issued token. The token is playable
// immediately.
func NewTrack(encoded string, info TrackInfo) *Track {
	if info.Source == TrackTypeYouTube && info.ArtworkURL == "" && info.Identifier != "" {
		info.ArtworkURL = fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", info.Identifier)
	}

	return &Track{
		Info:     info,
		encoded:  encoded,
		resolved: true,
	}
}

// NewUnresolvedTrack builds a provider-sourced track. Its token is a
// placeholder until the track is resolved against a node.
func NewUnresolvedTrack(info TrackInfo) *Track {
	return &Track{
		Info:    info,
		encoded: "unresolved:" + uuid.NewString(),
	}
}

// Encoded returns the track's current token. Only meaningful for playback
// once Resolved reports true.
func (t *Track) Encoded() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encoded
}

// Resolved reports whether the token is playable by a node.
func (t *Track) Resolved() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved
}

// markResolved swaps in the node-issued token. One-shot: later calls are
// no-ops so a concurrent retry cannot clobber a successful resolution.
func (t *Track) markResolved(encoded string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return
	}
	t.encoded = encoded
	t.resolved = true
}

func (t *Track) String() string {
	return t.Info.Title
}

// Playlist is an ordered set of tracks returned by a single resolution. A
// playlist returned from a successful resolution is never empty.
type Playlist struct {
	Name   string
	Tracks []*Track

	// SelectedIndex is the track highlighted by the source, -1 when unset.
	SelectedIndex int

	Source     PlaylistType
	URI        string
	ArtworkURL string
}

// SelectedTrack returns the highlighted track, or nil when none is set.
func (p *Playlist) SelectedTrack() *Track {
	if p.SelectedIndex < 0 || p.SelectedIndex >= len(p.Tracks) {
		return nil
	}
	return p.Tracks[p.SelectedIndex]
}

func (p *Playlist) String() string {
	return p.Name
}
