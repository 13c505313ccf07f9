package lavalink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	clientName     = "Kanade"
	clientVersion  = "1.0.0"
	readyTimeout   = 10 * time.Second
	backoffBase    = 2 * time.Second
	dialTimeout    = 10 * time.Second
)

// NodeConfig describes how to reach one remote audio node.
type NodeConfig struct {
	Identifier string
	Host       string
	Port       int
	Password   string
	Secure     bool
}

func (c NodeConfig) restBaseURL() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

func (c NodeConfig) wsBaseURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Node owns exactly one authenticated REST + websocket session to a remote
// audio node. All REST commands and inbound websocket messages for players
// bound to this node cross through here.
type Node struct {
	cfg  NodeConfig
	pool *Pool
	log  *zap.Logger
	rest *restClient

	mu        sync.RWMutex
	conn      *websocket.Conn
	version   Version
	proto     protocol
	sessionID string
	available bool
	probed    bool

	playersMu sync.RWMutex
	players   map[string]*Player

	statsMu sync.RWMutex
	stats   *NodeStats

	backoff *backoff
	readyCh chan string

	closed    chan struct{}
	closeOnce sync.Once
}

func newNode(pool *Pool, cfg NodeConfig) *Node {
	return &Node{
		cfg:     cfg,
		pool:    pool,
		log:     pool.log.With(zap.String("node", cfg.Identifier)),
		rest:    newRestClient(cfg.restBaseURL(), cfg.Password, pool.httpClient),
		players: make(map[string]*Player),
		backoff: newBackoff(backoffBase),
		readyCh: make(chan string, 1),
		closed:  make(chan struct{}),
	}
}

// Identifier returns the node's unique key within its pool.
func (n *Node) Identifier() string {
	return n.cfg.Identifier
}

// Available reports whether the node has a live session and accepts calls.
func (n *Node) Available() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.available
}

// Version returns the negotiated protocol version.
func (n *Node) Version() Version {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.version
}

// SessionID returns the session id issued on the last ready handshake.
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Stats returns the last resource snapshot pushed by the node, or nil when
// none has arrived yet.
func (n *Node) Stats() *NodeStats {
	n.statsMu.RLock()
	defer n.statsMu.RUnlock()
	return n.stats
}

// Latency measures a TCP connect round trip against the node's host:port.
func (n *Node) Latency() (time.Duration, error) {
	return measureLatency(n.cfg.Host, n.cfg.Port)
}

// PlayerCount returns the number of players bound to this node.
func (n *Node) PlayerCount() int {
	n.playersMu.RLock()
	defer n.playersMu.RUnlock()
	return len(n.players)
}

// Player returns the bound player for a guild, or nil.
func (n *Node) Player(guildID string) *Player {
	n.playersMu.RLock()
	defer n.playersMu.RUnlock()
	return n.players[guildID]
}

// Players returns a snapshot of the bound players keyed by guild id.
func (n *Node) Players() map[string]*Player {
	n.playersMu.RLock()
	defer n.playersMu.RUnlock()

	out := make(map[string]*Player, len(n.players))
	for id, p := range n.players {
		out[id] = p
	}
	return out
}

func (n *Node) addPlayer(p *Player) {
	n.playersMu.Lock()
	defer n.playersMu.Unlock()
	n.players[p.guildID] = p
}

func (n *Node) removePlayer(guildID string) {
	n.playersMu.Lock()
	defer n.playersMu.Unlock()
	delete(n.players, guildID)
}

// connect runs the full handshake: version probe, websocket dial, receive
// loop start, and the wait for the node's ready message. The node is
// unavailable until every step has completed.
func (n *Node) connect(ctx context.Context) error {
	if err := n.probeVersion(ctx); err != nil {
		return err
	}
	return n.connectWS(ctx)
}

// probeVersion negotiates the protocol version over REST. Run once per
// node; reconnects keep the negotiated version.
func (n *Node) probeVersion(ctx context.Context) error {
	n.mu.RLock()
	probed := n.probed
	n.mu.RUnlock()
	if probed {
		return nil
	}

	raw, err := n.rest.Do(ctx, http.MethodGet, "/version", nil, nil)
	if err != nil {
		return &ConnectionError{Identifier: n.cfg.Identifier, Err: err}
	}

	version, err := ParseVersion(string(raw))
	if err != nil {
		return &ConnectionError{Identifier: n.cfg.Identifier, Err: err}
	}

	if version.Less(minimumVersion) {
		return &VersionError{Identifier: n.cfg.Identifier, Version: version}
	}

	n.mu.Lock()
	n.version = version
	n.proto = newProtocol(version)
	n.probed = true
	n.mu.Unlock()

	n.log.Info("negotiated node version", zap.String("version", version.String()))
	return nil
}

// connectWS performs the websocket handshake and waits for ready.
func (n *Node) connectWS(ctx context.Context) error {
	n.mu.RLock()
	proto := n.proto
	n.mu.RUnlock()

	header := http.Header{}
	header.Set("Authorization", n.cfg.Password)
	header.Set("User-Id", n.pool.userID)
	header.Set("Client-Name", fmt.Sprintf("%s/%s", clientName, clientVersion))

	// Drop any ready frame left over from a previous connection.
	select {
	case <-n.readyCh:
	default:
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, n.cfg.wsBaseURL()+proto.websocketPath(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			err = fmt.Errorf("invalid password: %w", err)
		}
		return &ConnectionError{Identifier: n.cfg.Identifier, Err: err}
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()

	go n.listen(conn)

	select {
	case sessionID := <-n.readyCh:
		n.mu.Lock()
		n.sessionID = sessionID
		n.available = true
		n.mu.Unlock()
		n.log.Info("node ready", zap.String("session_id", sessionID))
		return nil

	case <-time.After(readyTimeout):
		conn.Close()
		return &ConnectionError{
			Identifier: n.cfg.Identifier,
			Err:        fmt.Errorf("timed out waiting for ready"),
		}

	case <-ctx.Done():
		conn.Close()
		return &ConnectionError{Identifier: n.cfg.Identifier, Err: ctx.Err()}
	}
}

// listen is the single receive loop for one websocket connection. Each
// inbound message is handled on its own goroutine so a slow player handler
// cannot stall delivery for other guilds.
func (n *Node) listen(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-n.closed:
				return
			default:
			}

			n.log.Warn("node socket closed", zap.Error(err))
			n.handleDisconnect()
			return
		}

		go n.handleMessage(data)
	}
}

// handleMessage routes one inbound websocket message by opcode. Unknown
// opcodes and messages for unknown guilds are dropped.
func (n *Node) handleMessage(data []byte) {
	var base struct {
		Op        string          `json:"op"`
		GuildID   string          `json:"guildId"`
		SessionID string          `json:"sessionId"`
		State     json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		n.log.Warn("dropping undecodable node message", zap.Error(err))
		return
	}

	switch base.Op {
	case "ready":
		select {
		case n.readyCh <- base.SessionID:
		default:
		}

	case "stats":
		var stats NodeStats
		if err := json.Unmarshal(data, &stats); err != nil {
			n.log.Warn("dropping undecodable stats message", zap.Error(err))
			return
		}
		n.statsMu.Lock()
		n.stats = &stats
		n.statsMu.Unlock()

	case "playerUpdate":
		player := n.Player(base.GuildID)
		if player == nil {
			return
		}
		var state struct {
			Time      int64 `json:"time"`
			Position  int64 `json:"position"`
			Connected bool  `json:"connected"`
		}
		if err := json.Unmarshal(base.State, &state); err != nil {
			n.log.Warn("dropping undecodable player update", zap.Error(err))
			return
		}
		player.updateState(state.Position, state.Connected)

	case "event":
		player := n.Player(base.GuildID)
		if player == nil {
			return
		}
		ev, err := decodeWireEvent(data)
		if err != nil {
			n.log.Warn("dropping undecodable event", zap.Error(err))
			return
		}
		player.dispatchEvent(ev)
	}
}

// handleDisconnect reacts to an unexpected socket close: either migrate
// every bound player to a healthy sibling and retire this node, or keep
// reconnecting with backoff.
func (n *Node) handleDisconnect() {
	n.mu.Lock()
	n.available = false
	n.mu.Unlock()

	if n.pool.failover {
		if sibling := n.pool.healthySibling(n.cfg.Identifier); sibling != nil {
			n.migrateTo(sibling)
			n.pool.remove(n.cfg.Identifier)
			n.closeOnce.Do(func() { close(n.closed) })
			return
		}
		n.log.Warn("failover enabled but no healthy sibling, falling back to reconnect")
	}

	n.reconnect()
}

// migrateTo moves every bound player onto the sibling node, carrying the
// current track, position, volume and pause state.
func (n *Node) migrateTo(sibling *Node) {
	for guildID, player := range n.Players() {
		if err := player.SwapNode(context.Background(), sibling); err != nil {
			n.log.Error("player migration failed",
				zap.String("guild_id", guildID),
				zap.String("target", sibling.Identifier()),
				zap.Error(err),
			)
		}
	}
	n.log.Info("migrated players to sibling", zap.String("target", sibling.Identifier()))
}

// reconnect retries the websocket handshake forever with exponential
// backoff, unless the node is explicitly disconnected while waiting.
func (n *Node) reconnect() {
	for {
		delay := n.backoff.Delay()
		n.log.Info("scheduling node reconnect", zap.Duration("delay", delay))

		select {
		case <-n.closed:
			return
		case <-time.After(delay):
		}

		err := n.connectWS(context.Background())
		if err == nil {
			n.log.Info("node reconnected")
			return
		}

		n.log.Warn("node reconnect failed", zap.Error(err))
	}
}

// Disconnect tears the node down: destroys every bound player, closes the
// socket, and removes the node from its pool.
func (n *Node) Disconnect(ctx context.Context) error {
	for _, player := range n.Players() {
		if err := player.Destroy(ctx); err != nil {
			n.log.Warn("destroying player during disconnect failed",
				zap.String("guild_id", player.GuildID()),
				zap.Error(err),
			)
		}
	}

	n.closeOnce.Do(func() { close(n.closed) })

	n.mu.Lock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.available = false
	n.mu.Unlock()

	n.pool.remove(n.cfg.Identifier)
	n.log.Info("node disconnected")
	return nil
}

// request executes a REST call, failing fast when the node is unavailable.
func (n *Node) request(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
) ([]byte, error) {
	if !n.Available() {
		return nil, fmt.Errorf("node %q: %w", n.cfg.Identifier, ErrNodeNotAvailable)
	}
	return n.rest.Do(ctx, method, path, query, body)
}

func (n *Node) protocolNow() protocol {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.proto
}

// playerPath builds the REST path for a guild's player, bound to the
// current session id. Rebuilt per call so reconnects are picked up.
func (n *Node) playerPath(guildID string) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.proto.playerPath(n.sessionID, guildID)
}

// LoadTracks asks the node to load or search for tracks. A no-match
// response returns (nil, nil); a node-reported failure returns a
// *TrackLoadError.
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	query := url.Values{"identifier": {identifier}}

	raw, err := n.request(ctx, http.MethodGet, n.protocolNow().basePath()+"/loadtracks", query, nil)
	if err != nil {
		return nil, err
	}

	resp, err := n.protocolNow().decodeLoadResult(raw)
	if err != nil {
		return nil, err
	}

	return mapLoadResponse(resp)
}

// DecodeTrack rebuilds a Track from an opaque node token.
func (n *Node) DecodeTrack(ctx context.Context, encoded string) (*Track, error) {
	query := url.Values{"encodedTrack": {encoded}}

	raw, err := n.request(ctx, http.MethodGet, n.protocolNow().basePath()+"/decodetrack", query, nil)
	if err != nil {
		return nil, err
	}

	// v4 returns a full track object, v3 the bare info.
	var full wireTrack
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, err
	}
	info := full.Info
	if info.Title == "" {
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, err
		}
	}

	return NewTrack(encoded, trackInfoFromWire(info)), nil
}

// UpdateSession configures session resumption on the node, using the shape
// the negotiated protocol major expects.
func (n *Node) UpdateSession(ctx context.Context, resumingKey string, timeout time.Duration) error {
	proto := n.protocolNow()
	body := proto.resumePayload(resumingKey, int(timeout.Seconds()))

	n.mu.RLock()
	path := proto.sessionPath(n.sessionID)
	n.mu.RUnlock()

	_, err := n.request(ctx, http.MethodPatch, path, nil, body)
	return err
}

// resolveTrack performs lazy resolution for a provider-sourced track: an
// ISRC search first, then a plain "title - author" search, taking the
// first candidate. On success the track is resolved in place.
func (n *Node) resolveTrack(ctx context.Context, track *Track) error {
	hint := track.Info.SearchHint
	if hint == "" {
		hint = SearchYouTube
	}

	if track.Info.ISRC != "" {
		if result, err := n.LoadTracks(ctx, fmt.Sprintf("%s:%s", hint, track.Info.ISRC)); err == nil {
			if result != nil && len(result.Tracks) > 0 {
				track.markResolved(result.Tracks[0].Encoded())
				return nil
			}
		}
	}

	fuzzy := fmt.Sprintf("%s:%s - %s", hint, track.Info.Title, track.Info.Author)
	result, err := n.LoadTracks(ctx, fuzzy)
	if err == nil && result != nil && len(result.Tracks) > 0 {
		track.markResolved(result.Tracks[0].Encoded())
		return nil
	}

	return &TrackLoadError{
		Message: fmt.Sprintf("no equivalent track found for %q", strings.TrimSpace(track.Info.Title)),
	}
}
