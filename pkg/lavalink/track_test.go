package lavalink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrackYouTubeArtworkFallback(t *testing.T) {
	track := NewTrack("token", TrackInfo{
		Source:     TrackTypeYouTube,
		Identifier: "dQw4w9WgXcQ",
		Title:      "Song",
	})

	assert.True(t, track.Resolved())
	assert.Contains(t, track.Info.ArtworkURL, "dQw4w9WgXcQ")

	withArt := NewTrack("token", TrackInfo{
		Source:     TrackTypeYouTube,
		Identifier: "abc",
		ArtworkURL: "https://example.com/cover.jpg",
	})
	assert.Equal(t, "https://example.com/cover.jpg", withArt.Info.ArtworkURL)
}

func TestUnresolvedTrackLifecycle(t *testing.T) {
	track := NewUnresolvedTrack(TrackInfo{
		Source: TrackTypeSpotify,
		Title:  "Song",
		Author: "Artist",
	})

	assert.False(t, track.Resolved())
	assert.True(t, strings.HasPrefix(track.Encoded(), "unresolved:"))

	track.markResolved("real-token")
	assert.True(t, track.Resolved())
	assert.Equal(t, "real-token", track.Encoded())

	// Resolution is one-shot; a late retry cannot clobber the token.
	track.markResolved("other-token")
	assert.Equal(t, "real-token", track.Encoded())
}

func TestPlayableByType(t *testing.T) {
	assert.True(t, TrackTypeYouTube.Playable())
	assert.True(t, TrackTypeSoundCloud.Playable())
	assert.True(t, TrackTypeHTTP.Playable())
	assert.False(t, TrackTypeSpotify.Playable())
	assert.False(t, TrackTypeAppleMusic.Playable())
}

func TestPlaylistSelectedTrack(t *testing.T) {
	a := NewTrack("a", TrackInfo{Title: "A"})
	b := NewTrack("b", TrackInfo{Title: "B"})

	playlist := &Playlist{Name: "Mix", Tracks: []*Track{a, b}, SelectedIndex: 1}
	require.NotNil(t, playlist.SelectedTrack())
	assert.Same(t, b, playlist.SelectedTrack())

	playlist.SelectedIndex = -1
	assert.Nil(t, playlist.SelectedTrack())

	playlist.SelectedIndex = 5
	assert.Nil(t, playlist.SelectedTrack())
}

func TestQueryClassification(t *testing.T) {
	assert.True(t, IsURL("https://open.spotify.com/track/123"))
	assert.True(t, IsURL("http://example.com/song.mp3"))
	assert.False(t, IsURL("never gonna give you up"))

	assert.True(t, HasSearchPrefix("ytsearch:query"))
	assert.True(t, HasSearchPrefix("ytmsearch:query"))
	assert.True(t, HasSearchPrefix("scsearch:query"))
	assert.False(t, HasSearchPrefix("ytsearch:"))
	assert.False(t, HasSearchPrefix("plain query"))
}
