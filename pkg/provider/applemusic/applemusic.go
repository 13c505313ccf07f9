// Package applemusic resolves Apple Music URLs into track metadata through
// the public catalog API. No application credentials are needed: the bearer
// token is scraped from the music.apple.com web player, the same token the
// browser uses.
package applemusic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/latoulicious/Kanade/pkg/lavalink"
)

const (
	webPlayerURL = "https://music.apple.com"
	apiBaseURL   = "https://api.music.apple.com"
)

var (
	urlRegex = regexp.MustCompile(
		`https?://music\.apple\.com/(?P<country>[a-zA-Z]{2})/(?P<type>album|playlist|song|artist)/(?P<name>[^/]+)/(?P<id>[^?/]+)`,
	)

	// Album links with ?i= point at one song inside the album.
	singleInAlbumRegex = regexp.MustCompile(`\?i=(?P<id2>\d+)`)

	// The web player embeds its API token in a fingerprinted asset bundle.
	scriptTagRegex = regexp.MustCompile(`<script[^>]*src="(/assets/index-[^"]+)"`)
	tokenRegex     = regexp.MustCompile(`"(eyJ[^"]+)"`)
)

// ErrInvalidURL is returned for URLs that do not point into the catalog.
var ErrInvalidURL = errors.New("applemusic: not a valid apple music url")

// Client talks to the Apple Music catalog API. It scrapes and caches the
// web player's bearer token, re-scraping when the token's JWT expires.
type Client struct {
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

// New builds a client. No credentials are required.
func New(opts ...Option) *Client {
	c := &Client{
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
	return lavalink.TrackTypeAppleMusic
}

// Match reports whether the URL points into the Apple Music catalog.
func (c *Client) Match(rawURL string) bool {
	return urlRegex.MatchString(rawURL)
}

// Lookup fetches the metadata behind an Apple Music URL. Songs come back
// as a single entry; albums, playlists and artist pages come back as
// playlists. Artist URLs resolve to the artist's top songs.
func (c *Client) Lookup(ctx context.Context, rawURL string) (*lavalink.ProviderResult, error) {
	match := urlRegex.FindStringSubmatch(rawURL)
	if match == nil {
		return nil, ErrInvalidURL
	}
	country, entity, id := match[1], match[2], match[4]

	// An album URL with ?i= is really a single song off that album.
	if entity == "album" {
		if single := singleInAlbumRegex.FindStringSubmatch(rawURL); single != nil {
			entity = "song"
			id = single[1]
		}
	}

	endpoint := apiBaseURL + "/v1/catalog/" + country + "/" + entity + "s/" + id

	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, errors.Errorf("applemusic: empty response for %s %s", entity, id)
	}

	switch entity {
	case "song":
		var song songObject
		if err := json.Unmarshal(body.Data[0], &song); err != nil {
			return nil, errors.Wrap(err, "decoding song")
		}
		track := song.toProviderTrack()
		return &lavalink.ProviderResult{Track: &track}, nil

	case "album":
		return c.mapAlbum(body.Data[0])

	case "artist":
		return c.mapArtist(ctx, endpoint, body.Data[0])

	default:
		return c.mapPlaylist(ctx, body.Data[0])
	}
}

func (c *Client) mapAlbum(raw json.RawMessage) (*lavalink.ProviderResult, error) {
	var album struct {
		Attributes    collectionAttributes `json:"attributes"`
		Relationships struct {
			Tracks songPage `json:"tracks"`
		} `json:"relationships"`
	}
	if err := json.Unmarshal(raw, &album); err != nil {
		return nil, errors.Wrap(err, "decoding album")
	}

	tracks := make([]lavalink.ProviderTrack, 0, len(album.Relationships.Tracks.Data))
	for _, song := range album.Relationships.Tracks.Data {
		tracks = append(tracks, song.toProviderTrack())
	}

	return &lavalink.ProviderResult{Playlist: &lavalink.ProviderPlaylist{
		Name:          album.Attributes.Name,
		URI:           album.Attributes.URL,
		ArtworkURL:    album.Attributes.Artwork.resolve(),
		Tracks:        tracks,
		SelectedIndex: -1,
	}}, nil
}

func (c *Client) mapArtist(ctx context.Context, endpoint string, raw json.RawMessage) (*lavalink.ProviderResult, error) {
	var artist struct {
		Attributes collectionAttributes `json:"attributes"`
	}
	if err := json.Unmarshal(raw, &artist); err != nil {
		return nil, errors.Wrap(err, "decoding artist")
	}

	var top songPage
	if err := c.getJSON(ctx, endpoint+"/view/top-songs", &top); err != nil {
		return nil, err
	}

	tracks := make([]lavalink.ProviderTrack, 0, len(top.Data))
	for _, song := range top.Data {
		tracks = append(tracks, song.toProviderTrack())
	}

	return &lavalink.ProviderResult{Playlist: &lavalink.ProviderPlaylist{
		Name:          "Top tracks for " + artist.Attributes.Name,
		URI:           artist.Attributes.URL,
		ArtworkURL:    artist.Attributes.Artwork.resolve(),
		Tracks:        tracks,
		SelectedIndex: -1,
	}}, nil
}

func (c *Client) mapPlaylist(ctx context.Context, raw json.RawMessage) (*lavalink.ProviderResult, error) {
	var playlist struct {
		Attributes    collectionAttributes `json:"attributes"`
		Relationships struct {
			Tracks songPage `json:"tracks"`
		} `json:"relationships"`
	}
	if err := json.Unmarshal(raw, &playlist); err != nil {
		return nil, errors.Wrap(err, "decoding playlist")
	}

	page := playlist.Relationships.Tracks
	tracks := make([]lavalink.ProviderTrack, 0, len(page.Data))
	for _, song := range page.Data {
		tracks = append(tracks, song.toProviderTrack())
	}

	// Playlists paginate past 100 songs.
	next := page.Next
	for next != "" {
		var more songPage
		if err := c.getJSON(ctx, apiBaseURL+next, &more); err != nil {
			return nil, err
		}
		for _, song := range more.Data {
			tracks = append(tracks, song.toProviderTrack())
		}
		next = more.Next
	}

	// Playlist covers are generated client-side, so borrow the first
	// song's artwork.
	artwork := playlist.Attributes.Artwork.resolve()
	if artwork == "" && len(tracks) > 0 {
		artwork = tracks[0].ArtworkURL
	}

	return &lavalink.ProviderResult{Playlist: &lavalink.ProviderPlaylist{
		Name:          playlist.Attributes.Name,
		URI:           playlist.Attributes.URL,
		ArtworkURL:    artwork,
		Tracks:        tracks,
		SelectedIndex: -1,
	}}, nil
}

// bearerToken returns a valid bearer header value, scraping the web player
// for a fresh token when the cached one has expired.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearer != "" && time.Now().Before(c.expiry) {
		return c.bearer, nil
	}

	page, err := c.getText(ctx, webPlayerURL)
	if err != nil {
		return "", errors.Wrap(err, "fetching web player page")
	}

	script := scriptTagRegex.FindStringSubmatch(page)
	if script == nil {
		return "", errors.New("applemusic: no asset bundle in web player page")
	}

	bundle, err := c.getText(ctx, webPlayerURL+script[1])
	if err != nil {
		return "", errors.Wrap(err, "fetching asset bundle")
	}

	token := tokenRegex.FindStringSubmatch(bundle)
	if token == nil {
		return "", errors.New("applemusic: no token in asset bundle")
	}

	expiry, err := jwtExpiry(token[1])
	if err != nil {
		return "", err
	}

	c.bearer = "Bearer " + token[1]
	c.expiry = expiry
	c.log.Debug("refreshed apple music bearer token", zap.Time("expiry", expiry))
	return c.bearer, nil
}

// jwtExpiry reads the exp claim out of the token without verifying it;
// the token is Apple's own, only its lifetime matters here.
func jwtExpiry(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, errors.New("applemusic: malformed token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, errors.Wrap(err, "decoding token payload")
	}

	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, errors.Wrap(err, "decoding token claims")
	}
	return time.Unix(claims.Exp, 0), nil
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
	req.Header.Set("Origin", "https://apple.com")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "requesting %s", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("apple music api returned status %d for %s", resp.StatusCode, endpoint)
	}

	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response")
}

func (c *Client) getText(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("status %d for %s", resp.StatusCode, endpoint)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// artworkObject carries Apple's templated artwork URL; width and height
// placeholders have to be substituted before use.
type artworkObject struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (a artworkObject) resolve() string {
	if a.URL == "" {
		return ""
	}
	size := "512x512"
	if a.Width > 0 && a.Height > 0 {
		size = strconv.Itoa(a.Width) + "x" + strconv.Itoa(a.Height)
	}
	return strings.Replace(a.URL, "{w}x{h}", size, 1)
}

type songObject struct {
	ID         string `json:"id"`
	Attributes struct {
		Name             string        `json:"name"`
		URL              string        `json:"url"`
		ISRC             string        `json:"isrc"`
		ArtistName       string        `json:"artistName"`
		DurationInMillis int64         `json:"durationInMillis"`
		Artwork          artworkObject `json:"artwork"`
	} `json:"attributes"`
}

func (s songObject) toProviderTrack() lavalink.ProviderTrack {
	return lavalink.ProviderTrack{
		Identifier: s.ID,
		Title:      s.Attributes.Name,
		Author:     s.Attributes.ArtistName,
		URI:        s.Attributes.URL,
		ISRC:       s.Attributes.ISRC,
		ArtworkURL: s.Attributes.Artwork.resolve(),
		Length:     s.Attributes.DurationInMillis,
	}
}

type songPage struct {
	Data []songObject `json:"data"`
	Next string       `json:"next"`
}

type collectionAttributes struct {
	Name    string        `json:"name"`
	URL     string        `json:"url"`
	Artwork artworkObject `json:"artwork"`
}
