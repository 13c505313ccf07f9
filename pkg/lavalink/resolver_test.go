package lavalink

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	source  TrackType
	prefix  string
	result  *ProviderResult
	err     error
	lookups []string
}

func (s *stubProvider) Source() TrackType { return s.source }

func (s *stubProvider) Match(rawURL string) bool {
	return strings.HasPrefix(rawURL, s.prefix)
}

func (s *stubProvider) Lookup(_ context.Context, rawURL string) (*ProviderResult, error) {
	s.lookups = append(s.lookups, rawURL)
	return s.result, s.err
}

func TestResolveProviderURLNeverTouchesNode(t *testing.T) {
	provider := &stubProvider{
		source: TrackTypeSpotify,
		prefix: "https://open.spotify.com/",
		result: &ProviderResult{Track: &ProviderTrack{
			Title:  "Starlight",
			Author: "Muse",
			ISRC:   "GBAHT0500600",
			Length: 240_000,
		}},
	}
	resolver := NewResolver(WithProvider(provider), WithDefaultSearch(SearchYouTube))

	// A nil node would panic if the resolver routed a matched URL to it.
	result, err := resolver.Resolve(context.Background(), nil, "https://open.spotify.com/track/abc123")
	require.NoError(t, err)
	require.Len(t, result.Tracks, 1)
	require.Len(t, provider.lookups, 1)

	track := result.Tracks[0]
	assert.False(t, track.Resolved())
	assert.Equal(t, TrackTypeSpotify, track.Info.Source)
	assert.Equal(t, SearchYouTube, track.Info.SearchHint)
	assert.True(t, track.Info.IsSeekable)
}

func TestResolveUnmatchedURLGoesToNode(t *testing.T) {
	fake := newFakeNode(t)
	fake.setLoadResponse("https://youtu.be/dQw4w9WgXcQ", `{
		"loadType": "track",
		"data": {"encoded": "yt-token", "info": {"title": "Never Gonna Give You Up", "sourceName": "youtube", "identifier": "dQw4w9WgXcQ"}}
	}`)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	provider := &stubProvider{source: TrackTypeSpotify, prefix: "https://open.spotify.com/"}
	resolver := NewResolver(WithProvider(provider))

	result, err := resolver.Resolve(context.Background(), node, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, "yt-token", result.Tracks[0].Encoded())
	assert.Empty(t, provider.lookups)
}

func TestResolveFreeTextGetsDefaultSearchPrefix(t *testing.T) {
	fake := newFakeNode(t)
	fake.setLoadResponse("scsearch:lofi beats", `{
		"loadType": "search",
		"data": [{"encoded": "sc-token", "info": {"title": "lofi beats", "sourceName": "soundcloud"}}]
	}`)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	resolver := NewResolver(WithDefaultSearch(SearchSoundCloud))

	result, err := resolver.Resolve(context.Background(), node, "  lofi beats  ")
	require.NoError(t, err)
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, "sc-token", result.Tracks[0].Encoded())
}

func TestResolveKeepsExplicitSearchPrefix(t *testing.T) {
	fake := newFakeNode(t)
	fake.setLoadResponse("ytmsearch:synthwave", `{
		"loadType": "search",
		"data": [{"encoded": "ytm-token", "info": {"title": "synthwave", "sourceName": "youtube"}}]
	}`)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	// The default prefix must not be stacked on an explicit one.
	resolver := NewResolver(WithDefaultSearch(SearchSoundCloud))

	result, err := resolver.Resolve(context.Background(), node, "ytmsearch:synthwave")
	require.NoError(t, err)
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, "ytm-token", result.Tracks[0].Encoded())
}

func TestResolveProviderPlaylist(t *testing.T) {
	provider := &stubProvider{
		source: TrackTypeAppleMusic,
		prefix: "https://music.apple.com/",
		result: &ProviderResult{Playlist: &ProviderPlaylist{
			Name:          "Heavy Rotation",
			URI:           "https://music.apple.com/us/playlist/pl.123",
			SelectedIndex: -1,
			Tracks: []ProviderTrack{
				{Title: "One", Author: "A", ArtworkURL: "https://art.example/one.jpg"},
				{Title: "Two", Author: "B"},
			},
		}},
	}
	resolver := NewResolver(WithProvider(provider))

	result, err := resolver.Resolve(context.Background(), nil, "https://music.apple.com/us/playlist/pl.123")
	require.NoError(t, err)
	require.NotNil(t, result.Playlist)
	assert.Len(t, result.Playlist.Tracks, 2)
	assert.Equal(t, PlaylistType(TrackTypeAppleMusic), result.Playlist.Source)
	// Playlist artwork falls back to the first track.
	assert.Equal(t, "https://art.example/one.jpg", result.Playlist.ArtworkURL)
	assert.Equal(t, result.Tracks, result.Playlist.Tracks)
}

func TestResolveEmptyProviderPlaylistFails(t *testing.T) {
	provider := &stubProvider{
		source: TrackTypeSpotify,
		prefix: "https://open.spotify.com/",
		result: &ProviderResult{Playlist: &ProviderPlaylist{Name: "Empty", SelectedIndex: -1}},
	}
	resolver := NewResolver(WithProvider(provider))

	_, err := resolver.Resolve(context.Background(), nil, "https://open.spotify.com/playlist/empty")
	var loadErr *TrackLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Message, "Empty")
}
