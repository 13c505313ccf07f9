package lavalink

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// protocol captures the wire differences between node protocol majors.
// It is built once after version negotiation so call sites never branch on
// the raw version themselves.
type protocol struct {
	version Version
}

// endTimeOmitZero became the rule in 3.7.5: a zero end time must be omitted
// from the player update instead of being sent as "0".
var endTimeOmitZero = Version{Major: 3, Minor: 7, Fix: 5}

func newProtocol(v Version) protocol {
	return protocol{version: v}
}

func (p protocol) basePath() string {
	return fmt.Sprintf("/v%d", p.version.Major)
}

func (p protocol) websocketPath() string {
	return p.basePath() + "/websocket"
}

func (p protocol) playerPath(sessionID, guildID string) string {
	return fmt.Sprintf("%s/sessions/%s/players/%s", p.basePath(), sessionID, guildID)
}

func (p protocol) sessionPath(sessionID string) string {
	return fmt.Sprintf("%s/sessions/%s", p.basePath(), sessionID)
}

// applyEndTime writes the end-time field the way the negotiated version
// expects: stringified (zero included) before 3.7.5, integer-and-omitted-
// when-zero from 3.7.5 on.
func (p protocol) applyEndTime(update map[string]any, end int64) {
	if p.version.AtLeast(endTimeOmitZero) {
		if end > 0 {
			update["endTime"] = end
		}
		return
	}
	update["endTime"] = strconv.FormatInt(end, 10)
}

// resumePayload builds the session resume configuration body. Protocol v3
// keys resumption by a caller-chosen string, v4 by a plain flag.
func (p protocol) resumePayload(resumingKey string, timeoutSeconds int) map[string]any {
	if p.version.Major >= 4 {
		return map[string]any{
			"resuming": true,
			"timeout":  timeoutSeconds,
		}
	}
	return map[string]any{
		"resumingKey": resumingKey,
		"timeout":     timeoutSeconds,
	}
}

// loadType is the normalized classification of a loadtracks response.
type loadType int

const (
	loadTypeEmpty loadType = iota
	loadTypeError
	loadTypeTrack
	loadTypeSearch
	loadTypePlaylist
)

// wireTrack is a track as a node returns it. v4 uses "encoded", v3 "track".
type wireTrack struct {
	Encoded string        `json:"encoded"`
	TrackID string        `json:"track"`
	Info    wireTrackInfo `json:"info"`
}

func (w wireTrack) token() string {
	if w.Encoded != "" {
		return w.Encoded
	}
	return w.TrackID
}

type wireTrackInfo struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	URI        string `json:"uri"`
	ISRC       string `json:"isrc"`
	SourceName string `json:"sourceName"`
	ArtworkURL string `json:"artworkUrl"`
	Length     int64  `json:"length"`
	Position   int64  `json:"position"`
	IsStream   bool   `json:"isStream"`
	IsSeekable bool   `json:"isSeekable"`
}

type wirePlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

type wireException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// loadResponse is the normalized shape of a loadtracks response across
// protocol majors.
type loadResponse struct {
	Type      loadType
	Tracks    []wireTrack
	Playlist  wirePlaylistInfo
	Exception wireException
}

// decodeLoadResult normalizes a loadtracks body. v3 uses SHOUTY load types
// with top-level tracks; v4 uses lowercase load types with a polymorphic
// "data" field.
func (p protocol) decodeLoadResult(raw []byte) (*loadResponse, error) {
	if p.version.Major >= 4 {
		return decodeLoadResultV4(raw)
	}
	return decodeLoadResultV3(raw)
}

func decodeLoadResultV3(raw []byte) (*loadResponse, error) {
	var body struct {
		LoadType     string           `json:"loadType"`
		Tracks       []wireTrack      `json:"tracks"`
		PlaylistInfo wirePlaylistInfo `json:"playlistInfo"`
		Exception    wireException    `json:"exception"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	out := &loadResponse{
		Tracks:    body.Tracks,
		Playlist:  body.PlaylistInfo,
		Exception: body.Exception,
	}

	switch body.LoadType {
	case "NO_MATCHES":
		out.Type = loadTypeEmpty
	case "LOAD_FAILED":
		out.Type = loadTypeError
	case "TRACK_LOADED":
		out.Type = loadTypeTrack
	case "SEARCH_RESULT":
		out.Type = loadTypeSearch
	case "PLAYLIST_LOADED":
		out.Type = loadTypePlaylist
	default:
		return nil, fmt.Errorf("unknown load type %q", body.LoadType)
	}

	return out, nil
}

func decodeLoadResultV4(raw []byte) (*loadResponse, error) {
	var body struct {
		LoadType string          `json:"loadType"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	out := &loadResponse{}

	switch body.LoadType {
	case "empty":
		out.Type = loadTypeEmpty

	case "error":
		out.Type = loadTypeError
		if len(body.Data) > 0 {
			if err := json.Unmarshal(body.Data, &out.Exception); err != nil {
				return nil, err
			}
		}

	case "track":
		out.Type = loadTypeTrack
		var track wireTrack
		if err := json.Unmarshal(body.Data, &track); err != nil {
			return nil, err
		}
		out.Tracks = []wireTrack{track}

	case "search":
		out.Type = loadTypeSearch
		if err := json.Unmarshal(body.Data, &out.Tracks); err != nil {
			return nil, err
		}

	case "playlist":
		out.Type = loadTypePlaylist
		var playlist struct {
			Info   wirePlaylistInfo `json:"info"`
			Tracks []wireTrack      `json:"tracks"`
		}
		if err := json.Unmarshal(body.Data, &playlist); err != nil {
			return nil, err
		}
		out.Playlist = playlist.Info
		out.Tracks = playlist.Tracks

	default:
		return nil, fmt.Errorf("unknown load type %q", body.LoadType)
	}

	return out, nil
}

// trackTypeFromSource maps a node-reported source name onto a TrackType.
func trackTypeFromSource(sourceName string) TrackType {
	switch sourceName {
	case "youtube":
		return TrackTypeYouTube
	case "soundcloud":
		return TrackTypeSoundCloud
	case "local":
		return TrackTypeLocal
	default:
		return TrackTypeHTTP
	}
}
