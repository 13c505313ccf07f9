// Package spotify resolves Spotify URLs into track metadata through the
// Spotify Web API using the client-credentials flow. It returns catalog
// info only; playable tokens come from a node later.
package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/latoulicious/Kanade/pkg/lavalink"
)

const (
	grantURL   = "https://accounts.spotify.com/api/token"
	apiBaseURL = "https://api.spotify.com/v1"
)

var urlRegex = regexp.MustCompile(
	`https?://open\.spotify\.com/(?:[a-zA-Z0-9-]+/)?(?P<type>album|playlist|track|artist)/(?P<id>[a-zA-Z0-9]+)`,
)

// ErrInvalidURL is returned when a URL matched loosely but carries no
// recognizable entity type and id.
var ErrInvalidURL = errors.New("spotify: not a valid spotify url")

// Client talks to the Spotify Web API. It refreshes its bearer token
// transparently and is safe for concurrent use.
type Client struct {
	clientID   string
	authHeader string
	httpClient *http.Client
	log        *zap.Logger

	mu     sync.Mutex
	bearer string
	expiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger attaches a logger for request tracing.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a client from application credentials.
func New(clientID, clientSecret string, opts ...Option) *Client {
	basic := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	c := &Client{
		clientID:   clientID,
		authHeader: "Basic " + basic,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Source identifies this provider's catalog.
func (c *Client) Source() lavalink.TrackType {
	return lavalink.TrackTypeSpotify
}

// Match reports whether the URL points into the Spotify catalog.
func (c *Client) Match(rawURL string) bool {
	return urlRegex.MatchString(rawURL)
}

// Lookup fetches the metadata behind a Spotify URL. Tracks come back as a
// single entry; albums, playlists and artist pages come back as playlists.
// Artist URLs resolve to the artist's top tracks.
func (c *Client) Lookup(ctx context.Context, rawURL string) (*lavalink.ProviderResult, error) {
	match := urlRegex.FindStringSubmatch(rawURL)
	if match == nil {
		return nil, ErrInvalidURL
	}
	entity, id := match[1], match[2]

	switch entity {
	case "track":
		return c.lookupTrack(ctx, id)
	case "album":
		return c.lookupAlbum(ctx, id)
	case "artist":
		return c.lookupArtist(ctx, id)
	default:
		return c.lookupPlaylist(ctx, id)
	}
}

func (c *Client) lookupTrack(ctx context.Context, id string) (*lavalink.ProviderResult, error) {
	var track trackObject
	if err := c.getJSON(ctx, apiBaseURL+"/tracks/"+id, &track); err != nil {
		return nil, err
	}
	pt := track.toProviderTrack("")
	return &lavalink.ProviderResult{Track: &pt}, nil
}

func (c *Client) lookupAlbum(ctx context.Context, id string) (*lavalink.ProviderResult, error) {
	var album albumObject
	if err := c.getJSON(ctx, apiBaseURL+"/albums/"+id, &album); err != nil {
		return nil, err
	}

	artwork := firstImage(album.Images)
	tracks := make([]lavalink.ProviderTrack, 0, len(album.Tracks.Items))
	for _, t := range album.Tracks.Items {
		tracks = append(tracks, t.toProviderTrack(artwork))
	}

	// Albums paginate past 50 tracks.
	next := album.Tracks.Next
	for next != "" {
		var page trackPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, t := range page.Items {
			tracks = append(tracks, t.toProviderTrack(artwork))
		}
		next = page.Next
	}

	return &lavalink.ProviderResult{Playlist: &lavalink.ProviderPlaylist{
		Name:          album.Name,
		URI:           album.ExternalURLs["spotify"],
		ArtworkURL:    artwork,
		Tracks:        tracks,
		SelectedIndex: -1,
	}}, nil
}

func (c *Client) lookupArtist(ctx context.Context, id string) (*lavalink.ProviderResult, error) {
	var artist artistObject
	if err := c.getJSON(ctx, apiBaseURL+"/artists/"+id, &artist); err != nil {
		return nil, err
	}

	var top struct {
		Tracks []trackObject `json:"tracks"`
	}
	if err := c.getJSON(ctx, apiBaseURL+"/artists/"+id+"/top-tracks?market=US", &top); err != nil {
		return nil, err
	}

	artwork := firstImage(artist.Images)
	tracks := make([]lavalink.ProviderTrack, 0, len(top.Tracks))
	for _, t := range top.Tracks {
		tracks = append(tracks, t.toProviderTrack(artwork))
	}

	return &lavalink.ProviderResult{Playlist: &lavalink.ProviderPlaylist{
		Name:          "Top tracks for " + artist.Name,
		URI:           artist.ExternalURLs["spotify"],
		ArtworkURL:    artwork,
		Tracks:        tracks,
		SelectedIndex: -1,
	}}, nil
}

func (c *Client) lookupPlaylist(ctx context.Context, id string) (*lavalink.ProviderResult, error) {
	var playlist playlistObject
	if err := c.getJSON(ctx, apiBaseURL+"/playlists/"+id, &playlist); err != nil {
		return nil, err
	}

	tracks := collectPlaylistTracks(nil, playlist.Tracks.Items)

	next := playlist.Tracks.Next
	for next != "" {
		var page playlistPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		tracks = collectPlaylistTracks(tracks, page.Items)
		next = page.Next
	}

	return &lavalink.ProviderResult{Playlist: &lavalink.ProviderPlaylist{
		Name:          playlist.Name,
		URI:           playlist.ExternalURLs["spotify"],
		ArtworkURL:    firstImage(playlist.Images),
		Tracks:        tracks,
		SelectedIndex: -1,
	}}, nil
}

// TrackSearch runs a free-text track search against the catalog.
func (c *Client) TrackSearch(ctx context.Context, query string) ([]lavalink.ProviderTrack, error) {
	endpoint := apiBaseURL + "/search?q=" + url.QueryEscape(query) + "&type=track"

	var body struct {
		Tracks struct {
			Items []trackObject `json:"items"`
		} `json:"tracks"`
	}
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}

	tracks := make([]lavalink.ProviderTrack, 0, len(body.Tracks.Items))
	for _, t := range body.Tracks.Items {
		tracks = append(tracks, t.toProviderTrack(""))
	}
	return tracks, nil
}

// bearerToken returns a valid bearer header value, refreshing the token
// through the client-credentials grant when expired.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearer != "" && time.Now().Before(c.expiry) {
		return c.bearer, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, grantURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "building token request")
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetching bearer token")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("fetching bearer token: status %d", resp.StatusCode)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", errors.Wrap(err, "decoding token response")
	}

	c.bearer = "Bearer " + grant.AccessToken
	c.expiry = time.Now().Add(time.Duration(grant.ExpiresIn-10) * time.Second)
	c.log.Debug("refreshed spotify bearer token", zap.Time("expiry", c.expiry))
	return c.bearer, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	bearer, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "requesting %s", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("spotify api returned status %d for %s", resp.StatusCode, endpoint)
	}

	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response")
}

type imageObject struct {
	URL string `json:"url"`
}

func firstImage(images []imageObject) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

type trackObject struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	IsLocal    bool   `json:"is_local"`

	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`

	ExternalIDs  map[string]string `json:"external_ids"`
	ExternalURLs map[string]string `json:"external_urls"`

	Album struct {
		Images []imageObject `json:"images"`
	} `json:"album"`
}

func (t trackObject) toProviderTrack(fallbackArtwork string) lavalink.ProviderTrack {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	artwork := firstImage(t.Album.Images)
	if artwork == "" {
		artwork = fallbackArtwork
	}

	uri := t.ExternalURLs["spotify"]
	if t.IsLocal {
		uri = ""
	}

	return lavalink.ProviderTrack{
		Identifier: t.ID,
		Title:      t.Name,
		Author:     strings.Join(artists, ", "),
		URI:        uri,
		ISRC:       t.ExternalIDs["isrc"],
		ArtworkURL: artwork,
		Length:     t.DurationMS,
	}
}

type trackPage struct {
	Items []trackObject `json:"items"`
	Next  string        `json:"next"`
}

type albumObject struct {
	Name         string            `json:"name"`
	Images       []imageObject     `json:"images"`
	ExternalURLs map[string]string `json:"external_urls"`
	Tracks       trackPage         `json:"tracks"`
}

type artistObject struct {
	Name         string            `json:"name"`
	Images       []imageObject     `json:"images"`
	ExternalURLs map[string]string `json:"external_urls"`
}

type playlistItem struct {
	Track *trackObject `json:"track"`
}

type playlistPage struct {
	Items []playlistItem `json:"items"`
	Next  string         `json:"next"`
}

type playlistObject struct {
	Name         string            `json:"name"`
	Images       []imageObject     `json:"images"`
	ExternalURLs map[string]string `json:"external_urls"`
	Tracks       playlistPage      `json:"tracks"`
}

// collectPlaylistTracks appends the page's tracks, skipping entries the API
// nulls out (removed or region-locked tracks).
func collectPlaylistTracks(dst []lavalink.ProviderTrack, items []playlistItem) []lavalink.ProviderTrack {
	for _, item := range items {
		if item.Track == nil {
			continue
		}
		dst = append(dst, item.Track.toProviderTrack(""))
	}
	return dst
}
