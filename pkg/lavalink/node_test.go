package lavalink

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode is an in-process stand-in for a remote audio node: REST version
// probe, websocket handshake with a ready frame, and canned loadtracks
// responses keyed by identifier.
type fakeNode struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	version   string
	password  string
	sessionID string

	mu            sync.Mutex
	requests      []string // "METHOD path"
	wsHeaders     http.Header
	loadResponses map[string]string
	routeStatus   string
	conns         []*websocket.Conn
}

func newFakeNode(t *testing.T) *fakeNode {
	f := &fakeNode{
		t:             t,
		version:       "4.0.8",
		password:      "youshallnotpass",
		sessionID:     "fake-session",
		loadResponses: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(f.version))
	})
	mux.HandleFunc("/v4/websocket", f.serveWS)
	mux.HandleFunc("/v4/routeplanner/status", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		body := f.routeStatus
		f.mu.Unlock()
		if body == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
	mux.HandleFunc("/v4/loadtracks", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		identifier := r.URL.Query().Get("identifier")
		f.mu.Lock()
		body, ok := f.loadResponses[identifier]
		f.mu.Unlock()
		if !ok {
			body = `{"loadType": "empty"}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeNode) serveWS(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != f.password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	f.wsHeaders = r.Header.Clone()
	f.mu.Unlock()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()

	ready := map[string]any{"op": "ready", "resumed": false, "sessionId": f.sessionID}
	if err := conn.WriteJSON(ready); err != nil {
		return
	}

	// Hold the socket open until the client goes away.
	go func() {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (f *fakeNode) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
}

func (f *fakeNode) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

// dropConnections closes every accepted websocket from the server side,
// simulating a node crash.
func (f *fakeNode) dropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		conn.Close()
	}
	f.conns = nil
}

func (f *fakeNode) setLoadResponse(identifier, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadResponses[identifier] = body
}

func (f *fakeNode) config(identifier string) NodeConfig {
	host, portStr, err := net.SplitHostPort(f.server.Listener.Addr().String())
	require.NoError(f.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(f.t, err)

	return NodeConfig{
		Identifier: identifier,
		Host:       host,
		Port:       port,
		Password:   f.password,
	}
}

func TestNodeHandshake(t *testing.T) {
	fake := newFakeNode(t)
	pool := NewPool("user-123")

	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	assert.True(t, node.Available())
	assert.Equal(t, "fake-session", node.SessionID())
	assert.Equal(t, Version{4, 0, 8}, node.Version())
	assert.Equal(t, 1, pool.NodeCount())

	headers := fake.wsHeaders
	assert.Equal(t, "user-123", headers.Get("User-Id"))
	assert.Contains(t, headers.Get("Client-Name"), "/")
}

func TestNodeRejectsUnsupportedVersion(t *testing.T) {
	fake := newFakeNode(t)
	fake.version = "3.6.2"
	pool := NewPool("user-123")

	_, err := pool.CreateNode(context.Background(), fake.config("old"))
	var versionErr *VersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, Version{3, 6, 2}, versionErr.Version)
	assert.Equal(t, 0, pool.NodeCount(), "rejected node must not be registered")
}

func TestNodeRejectsBadPassword(t *testing.T) {
	fake := newFakeNode(t)
	pool := NewPool("user-123")

	cfg := fake.config("main")
	cfg.Password = "wrong"

	_, err := pool.CreateNode(context.Background(), cfg)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 0, pool.NodeCount())
}

func TestCreateNodeDuplicateIdentifier(t *testing.T) {
	fake := newFakeNode(t)
	pool := NewPool("user-123")

	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	_, err = pool.CreateNode(context.Background(), fake.config("main"))
	assert.ErrorIs(t, err, ErrDuplicateNodeID)
}

func TestLoadTracksEndToEnd(t *testing.T) {
	fake := newFakeNode(t)
	fake.setLoadResponse("ytsearch:hello", `{
		"loadType": "search",
		"data": [{"encoded": "tok-1", "info": {"title": "Hello", "author": "Adele", "sourceName": "youtube", "identifier": "vid1", "length": 295000}}]
	}`)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	result, err := node.LoadTracks(context.Background(), "ytsearch:hello")
	require.NoError(t, err)
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, "tok-1", result.Tracks[0].Encoded())
	assert.Equal(t, "Hello", result.Tracks[0].Info.Title)

	empty, err := node.LoadTracks(context.Background(), "ytsearch:nothing")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestLazyResolutionFallsBackToFuzzySearch(t *testing.T) {
	fake := newFakeNode(t)
	// The ISRC probe finds nothing; the fuzzy "title - author" search hits.
	fake.setLoadResponse("ytsearch:Song Title - Artist Name", `{
		"loadType": "search",
		"data": [{"encoded": "resolved-token", "info": {"title": "Song Title", "sourceName": "youtube"}}]
	}`)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	track := NewUnresolvedTrack(TrackInfo{
		Source: TrackTypeSpotify,
		Title:  "Song Title",
		Author: "Artist Name",
		ISRC:   "USUM71703861",
	})

	require.NoError(t, node.resolveTrack(context.Background(), track))
	assert.True(t, track.Resolved())
	assert.Equal(t, "resolved-token", track.Encoded())
}

func TestLazyResolutionPrefersISRC(t *testing.T) {
	fake := newFakeNode(t)
	fake.setLoadResponse("ytsearch:USUM71703861", `{
		"loadType": "search",
		"data": [{"encoded": "isrc-token", "info": {"title": "Exact", "sourceName": "youtube"}}]
	}`)
	fake.setLoadResponse("ytsearch:Song - Artist", `{
		"loadType": "search",
		"data": [{"encoded": "fuzzy-token", "info": {"title": "Close Enough", "sourceName": "youtube"}}]
	}`)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	track := NewUnresolvedTrack(TrackInfo{
		Source: TrackTypeSpotify,
		Title:  "Song",
		Author: "Artist",
		ISRC:   "USUM71703861",
	})

	require.NoError(t, node.resolveTrack(context.Background(), track))
	assert.Equal(t, "isrc-token", track.Encoded())
}

func TestLazyResolutionFailureLeavesTrackUnresolved(t *testing.T) {
	fake := newFakeNode(t)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	track := NewUnresolvedTrack(TrackInfo{
		Source: TrackTypeSpotify,
		Title:  "Obscure",
		Author: "Nobody",
	})

	err = node.resolveTrack(context.Background(), track)
	var loadErr *TrackLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.False(t, track.Resolved(), "a failed resolution must leave the track unresolved")
}

func TestVoiceUpdatePairing(t *testing.T) {
	fake := newFakeNode(t)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	player := node.NewPlayer("guild-1")
	before := len(fake.recorded())

	// Only one half buffered: no REST call yet.
	player.OnVoiceStateUpdate("channel-1", "voice-session")
	assert.Len(t, fake.recorded(), before, "half a voice update must not reach the node")

	// Second half completes the pair: exactly one player PATCH.
	player.OnVoiceServerUpdate("voice-token", "us-east.discord.media:443")

	require.Eventually(t, func() bool {
		return len(fake.recorded()) == before+1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "PATCH /v4/sessions/fake-session/players/guild-1", fake.recorded()[before])
}

func TestFailoverMigratesPlayersToSibling(t *testing.T) {
	primary := newFakeNode(t)
	backup := newFakeNode(t)
	pool := NewPool("user-123", WithFailover(true))

	nodeA, err := pool.CreateNode(context.Background(), primary.config("primary"))
	require.NoError(t, err)
	nodeB, err := pool.CreateNode(context.Background(), backup.config("backup"))
	require.NoError(t, err)
	defer nodeB.Disconnect(context.Background())

	player := nodeA.NewPlayer("guild-1")
	player.current = NewTrack("tok", TrackInfo{Title: "Song", Length: 300_000})

	primary.dropConnections()

	require.Eventually(t, func() bool {
		p := pool.Player("guild-1")
		return p != nil && p.Node() == nodeB
	}, 2*time.Second, 10*time.Millisecond, "player must land on the sibling node")

	assert.Equal(t, 1, pool.NodeCount(), "the dead node must be retired from the pool")
	assert.Equal(t, 1, nodeB.PlayerCount())
	assert.Equal(t, 0, nodeA.PlayerCount())
}

func TestReconnectWithoutFailover(t *testing.T) {
	fake := newFakeNode(t)
	pool := NewPool("user-123")

	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	fake.dropConnections()

	require.Eventually(t, func() bool {
		return !node.Available()
	}, time.Second, 5*time.Millisecond)

	// The reconnect loop re-runs the handshake against the same endpoint.
	require.Eventually(t, func() bool {
		return node.Available()
	}, 10*time.Second, 25*time.Millisecond)
	assert.Equal(t, "fake-session", node.SessionID())
	assert.Equal(t, 1, pool.NodeCount())
}

func TestPlayerUpdateMessageDrivesPosition(t *testing.T) {
	pool := NewPool("user-123")
	node := newNode(pool, NodeConfig{Identifier: "n", Host: "localhost", Port: 2333})
	player := node.NewPlayer("guild-1")
	player.current = NewTrack("tok", TrackInfo{Title: "Song", Length: 300_000})

	raw, err := json.Marshal(map[string]any{
		"op":      "playerUpdate",
		"guildId": "guild-1",
		"state":   map[string]any{"position": 42_000, "connected": true, "time": 0},
	})
	require.NoError(t, err)
	node.handleMessage(raw)

	assert.True(t, player.Connected())
	position := player.Position()
	assert.GreaterOrEqual(t, position, int64(42_000))
	assert.Less(t, position, int64(43_000))
}
