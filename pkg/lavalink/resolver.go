package lavalink

import (
	"context"
	"fmt"
	"strings"
)

// LoadResult is the outcome of a successful load or resolution. Exactly one
// of the fields describes the result: a playlist load fills Playlist and
// mirrors its tracks into Tracks, anything else fills Tracks alone.
type LoadResult struct {
	Tracks   []*Track
	Playlist *Playlist
}

// ProviderTrack is a track as an external metadata provider describes it.
// It carries no playable token; the client builds an unresolved Track from
// it and fills the token in lazily.
type ProviderTrack struct {
	Identifier string
	Title      string
	Author     string
	URI        string
	ISRC       string
	ArtworkURL string
	Length     int64
	IsStream   bool
}

// ProviderPlaylist is a playlist or album as a provider describes it.
type ProviderPlaylist struct {
	Name       string
	URI        string
	ArtworkURL string
	Tracks     []ProviderTrack

	// SelectedIndex is the track the URL pointed into, -1 when none.
	SelectedIndex int
}

// ProviderResult is what a provider lookup yields: a single track or a
// playlist, never both.
type ProviderResult struct {
	Track    *ProviderTrack
	Playlist *ProviderPlaylist
}

// Provider turns URLs of one external catalog into track metadata.
type Provider interface {
	// Source identifies the catalog, e.g. TrackTypeSpotify.
	Source() TrackType

	// Match reports whether this provider understands the URL.
	Match(rawURL string) bool

	// Lookup fetches the metadata behind a matched URL.
	Lookup(ctx context.Context, rawURL string) (*ProviderResult, error)
}

// Resolver routes a raw query to the right backend: provider URLs go to
// their provider and come back as unresolved tracks, everything else goes
// to the node, with free text prefixed by the default search type.
type Resolver struct {
	providers     []Provider
	defaultSearch SearchType
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProvider registers an external metadata provider. Providers are
// consulted in registration order.
func WithProvider(p Provider) ResolverOption {
	return func(r *Resolver) {
		r.providers = append(r.providers, p)
	}
}

// WithDefaultSearch sets the search prefix applied to free-text queries
// and used as the search hint on provider-sourced tracks.
func WithDefaultSearch(s SearchType) ResolverOption {
	return func(r *Resolver) {
		r.defaultSearch = s
	}
}

// NewResolver builds a resolver. Without options it sends every query to
// the node, free text as a YouTube search.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{defaultSearch: SearchYouTube}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve turns a query into tracks via the given node. A provider URL
// never touches the node here; its tracks resolve lazily at play time.
func (r *Resolver) Resolve(ctx context.Context, node *Node, query string) (*LoadResult, error) {
	query = strings.TrimSpace(query)

	if IsURL(query) {
		for _, p := range r.providers {
			if p.Match(query) {
				return r.fromProvider(ctx, p, query)
			}
		}
		return node.LoadTracks(ctx, query)
	}

	if HasSearchPrefix(query) {
		return node.LoadTracks(ctx, query)
	}

	return node.LoadTracks(ctx, fmt.Sprintf("%s:%s", r.defaultSearch, query))
}

func (r *Resolver) fromProvider(ctx context.Context, p Provider, rawURL string) (*LoadResult, error) {
	result, err := p.Lookup(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if result.Playlist != nil {
		return r.fromProviderPlaylist(p, result.Playlist)
	}
	if result.Track != nil {
		track := r.unresolvedTrack(p, *result.Track)
		return &LoadResult{Tracks: []*Track{track}}, nil
	}
	return nil, nil
}

func (r *Resolver) fromProviderPlaylist(p Provider, wire *ProviderPlaylist) (*LoadResult, error) {
	if len(wire.Tracks) == 0 {
		return nil, &TrackLoadError{
			Message: fmt.Sprintf("playlist %q has no playable tracks", wire.Name),
		}
	}

	tracks := make([]*Track, 0, len(wire.Tracks))
	for _, t := range wire.Tracks {
		tracks = append(tracks, r.unresolvedTrack(p, t))
	}

	artwork := wire.ArtworkURL
	if artwork == "" {
		artwork = tracks[0].Info.ArtworkURL
	}

	playlist := &Playlist{
		Name:          wire.Name,
		Tracks:        tracks,
		SelectedIndex: wire.SelectedIndex,
		Source:        PlaylistType(p.Source()),
		URI:           wire.URI,
		ArtworkURL:    artwork,
	}
	return &LoadResult{Tracks: tracks, Playlist: playlist}, nil
}

func (r *Resolver) unresolvedTrack(p Provider, t ProviderTrack) *Track {
	return NewUnresolvedTrack(TrackInfo{
		Source:     p.Source(),
		Identifier: t.Identifier,
		Title:      t.Title,
		Author:     t.Author,
		URI:        t.URI,
		ISRC:       t.ISRC,
		ArtworkURL: t.ArtworkURL,
		Length:     t.Length,
		IsStream:   t.IsStream,
		IsSeekable: !t.IsStream,
		SearchHint: r.defaultSearch,
	})
}

// trackInfoFromWire maps a node-reported track info onto the client's
// metadata shape.
func trackInfoFromWire(w wireTrackInfo) TrackInfo {
	return TrackInfo{
		Source:     trackTypeFromSource(w.SourceName),
		Identifier: w.Identifier,
		Title:      w.Title,
		Author:     w.Author,
		URI:        w.URI,
		ISRC:       w.ISRC,
		ArtworkURL: w.ArtworkURL,
		Length:     w.Length,
		Position:   w.Position,
		IsStream:   w.IsStream,
		IsSeekable: w.IsSeekable,
	}
}

// mapLoadResponse turns a normalized loadtracks response into caller-facing
// tracks. No-match loads return (nil, nil); node-reported failures become a
// *TrackLoadError.
func mapLoadResponse(resp *loadResponse) (*LoadResult, error) {
	switch resp.Type {
	case loadTypeEmpty:
		return nil, nil

	case loadTypeError:
		message := resp.Exception.Message
		if message == "" {
			message = "track loading failed"
		}
		return nil, &TrackLoadError{Message: message, Severity: resp.Exception.Severity}

	case loadTypeTrack, loadTypeSearch:
		tracks := make([]*Track, 0, len(resp.Tracks))
		for _, wt := range resp.Tracks {
			tracks = append(tracks, NewTrack(wt.token(), trackInfoFromWire(wt.Info)))
		}
		return &LoadResult{Tracks: tracks}, nil

	case loadTypePlaylist:
		if len(resp.Tracks) == 0 {
			return nil, &TrackLoadError{
				Message: fmt.Sprintf("playlist %q has no playable tracks", resp.Playlist.Name),
			}
		}

		tracks := make([]*Track, 0, len(resp.Tracks))
		for _, wt := range resp.Tracks {
			tracks = append(tracks, NewTrack(wt.token(), trackInfoFromWire(wt.Info)))
		}

		selected := resp.Playlist.SelectedTrack
		if selected >= len(tracks) {
			selected = -1
		}

		first := tracks[0].Info
		playlist := &Playlist{
			Name:          resp.Playlist.Name,
			Tracks:        tracks,
			SelectedIndex: selected,
			Source:        PlaylistType(first.Source),
			ArtworkURL:    first.ArtworkURL,
		}
		return &LoadResult{Tracks: tracks, Playlist: playlist}, nil

	default:
		return nil, fmt.Errorf("unknown load result type %d", resp.Type)
	}
}
