package lavalink

// SearchType represents the search prefix a node understands for free-text queries.
type SearchType string

const (
	SearchYouTube      SearchType = "ytsearch"
	SearchYouTubeMusic SearchType = "ytmsearch"
	SearchSoundCloud   SearchType = "scsearch"
)

func (s SearchType) String() string {
	return string(s)
}

// TrackType identifies where a track's metadata originally came from.
type TrackType string

const (
	TrackTypeYouTube    TrackType = "youtube"
	TrackTypeSoundCloud TrackType = "soundcloud"
	TrackTypeSpotify    TrackType = "spotify"
	TrackTypeAppleMusic TrackType = "apple_music"
	TrackTypeHTTP       TrackType = "http"
	TrackTypeLocal      TrackType = "local"
)

func (t TrackType) String() string {
	return string(t)
}

// Playable reports whether tracks of this type carry a node-issued token
// from the moment they are created. Provider-sourced tracks have to be
// resolved against a node before they can be played.
func (t TrackType) Playable() bool {
	return t != TrackTypeSpotify && t != TrackTypeAppleMusic
}

// PlaylistType identifies where a playlist's metadata originally came from.
type PlaylistType string

const (
	PlaylistTypeYouTube    PlaylistType = "youtube"
	PlaylistTypeSoundCloud PlaylistType = "soundcloud"
	PlaylistTypeSpotify    PlaylistType = "spotify"
	PlaylistTypeAppleMusic PlaylistType = "apple_music"
)

func (p PlaylistType) String() string {
	return string(p)
}

// Algorithm selects how Pool.GetBest picks a node.
type Algorithm int

const (
	// ByPing prefers the node with the lowest measured TCP round-trip latency.
	ByPing Algorithm = iota
	// ByPlayers prefers the node with the fewest bound players.
	ByPlayers
)

func (a Algorithm) String() string {
	switch a {
	case ByPing:
		return "by_ping"
	case ByPlayers:
		return "by_players"
	default:
		return "unknown"
	}
}

// RouteStrategy is the route planner strategy reported by a node.
type RouteStrategy string

const (
	RouteRotateOnBan        RouteStrategy = "RotatingIpRoutePlanner"
	RouteLoadBalance        RouteStrategy = "BalancingIpRoutePlanner"
	RouteNanoSwitch         RouteStrategy = "NanoIpRoutePlanner"
	RouteRotatingNanoSwitch RouteStrategy = "RotatingNanoIpRoutePlanner"
)

// RouteIPType is the IP block type reported by the route planner.
type RouteIPType string

const (
	RouteIPv4 RouteIPType = "Inet4Address"
	RouteIPv6 RouteIPType = "Inet6Address"
)
