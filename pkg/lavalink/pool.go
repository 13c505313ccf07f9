package lavalink

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pool owns a set of node connections and answers "give me a node"
// queries. It is a plain value owned by the application and handed to
// players and resolvers, not shared global state.
type Pool struct {
	userID string

	mu    sync.RWMutex
	nodes map[string]*Node

	httpClient *http.Client
	log        *zap.Logger
	adapter    VoiceAdapter
	handler    EventHandler
	failover   bool

	rand *rand.Rand
}

// PoolOption configures a Pool at construction.
type PoolOption func(*Pool)

// WithLogger injects the zap logger used by the pool and its nodes.
func WithLogger(log *zap.Logger) PoolOption {
	return func(p *Pool) { p.log = log }
}

// WithHTTPClient injects the HTTP client shared by all node REST sessions.
func WithHTTPClient(client *http.Client) PoolOption {
	return func(p *Pool) { p.httpClient = client }
}

// WithFailover migrates players to a healthy sibling when a node's socket
// drops, instead of reconnecting the dropped node.
func WithFailover(enabled bool) PoolOption {
	return func(p *Pool) { p.failover = enabled }
}

// NewPool creates an empty pool for the given bot user id.
func NewPool(userID string, opts ...PoolOption) *Pool {
	p := &Pool{
		userID: userID,
		nodes:  make(map[string]*Node),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log:  zap.NewNop(),
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetVoiceAdapter wires the voice-gateway adapter players use to join and
// leave channels. Must be set before any Player.Connect call.
func (p *Pool) SetVoiceAdapter(adapter VoiceAdapter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adapter = adapter
}

func (p *Pool) voiceAdapter() VoiceAdapter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.adapter
}

// OnEvent registers the handler that receives every playback event from
// every player managed by this pool.
func (p *Pool) OnEvent(handler EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

func (p *Pool) eventHandler() EventHandler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handler
}

// CreateNode constructs and connects a node, registering it only after the
// full handshake succeeded. Duplicate identifiers are an error, never an
// overwrite.
func (p *Pool) CreateNode(ctx context.Context, cfg NodeConfig) (*Node, error) {
	if cfg.Identifier == "" {
		return nil, fmt.Errorf("node identifier must not be empty: %w", ErrDuplicateNodeID)
	}

	p.mu.Lock()
	if _, exists := p.nodes[cfg.Identifier]; exists {
		p.mu.Unlock()
		return nil, fmt.Errorf("node %q: %w", cfg.Identifier, ErrDuplicateNodeID)
	}
	p.mu.Unlock()

	node := newNode(p, cfg)
	if err := node.connect(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if _, exists := p.nodes[cfg.Identifier]; exists {
		p.mu.Unlock()
		node.Disconnect(ctx)
		return nil, fmt.Errorf("node %q: %w", cfg.Identifier, ErrDuplicateNodeID)
	}
	p.nodes[cfg.Identifier] = node
	p.mu.Unlock()

	p.log.Info("node registered", zap.String("node", cfg.Identifier))
	return node, nil
}

func (p *Pool) remove(identifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.nodes, identifier)
}

// availableNodes snapshots the currently available nodes.
func (p *Pool) availableNodes() []*Node {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Node
	for _, node := range p.nodes {
		if node.Available() {
			out = append(out, node)
		}
	}
	return out
}

// Get returns a uniformly random available node.
func (p *Pool) Get() (*Node, error) {
	nodes := p.availableNodes()
	if len(nodes) == 0 {
		return nil, ErrNoNodesAvailable
	}

	p.mu.Lock()
	i := p.rand.Intn(len(nodes))
	p.mu.Unlock()

	return nodes[i], nil
}

// GetByID returns the identified node if it is available.
func (p *Pool) GetByID(identifier string) (*Node, error) {
	p.mu.RLock()
	node := p.nodes[identifier]
	p.mu.RUnlock()

	if node == nil || !node.Available() {
		return nil, ErrNoNodesAvailable
	}
	return node, nil
}

// GetBest returns the best available node under the given algorithm. Ties
// break on the first minimum found in iteration order.
func (p *Pool) GetBest(algorithm Algorithm) (*Node, error) {
	nodes := p.orderedAvailableNodes()
	if len(nodes) == 0 {
		return nil, ErrNoNodesAvailable
	}

	switch algorithm {
	case ByPlayers:
		best := nodes[0]
		for _, node := range nodes[1:] {
			if node.PlayerCount() < best.PlayerCount() {
				best = node
			}
		}
		return best, nil

	case ByPing:
		var best *Node
		var bestLatency time.Duration
		for _, node := range nodes {
			latency, err := node.Latency()
			if err != nil {
				p.log.Warn("latency probe failed",
					zap.String("node", node.Identifier()),
					zap.Error(err),
				)
				continue
			}
			if best == nil || latency < bestLatency {
				best = node
				bestLatency = latency
			}
		}
		if best == nil {
			return nil, ErrNoNodesAvailable
		}
		return best, nil

	default:
		return nil, fmt.Errorf("unknown node algorithm %v", algorithm)
	}
}

// orderedAvailableNodes returns available nodes sorted by identifier so
// tie-breaks are deterministic.
func (p *Pool) orderedAvailableNodes() []*Node {
	nodes := p.availableNodes()

	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j].Identifier() < nodes[j-1].Identifier(); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
	return nodes
}

// healthySibling picks an available node other than the one given, used as
// a failover target.
func (p *Pool) healthySibling(exclude string) *Node {
	for _, node := range p.orderedAvailableNodes() {
		if node.Identifier() != exclude {
			return node
		}
	}
	return nil
}

// Player finds the player for a guild across every node in the pool.
func (p *Pool) Player(guildID string) *Player {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, node := range p.nodes {
		if player := node.Player(guildID); player != nil {
			return player
		}
	}
	return nil
}

// Nodes returns a snapshot of every registered node, available or not.
func (p *Pool) Nodes() []*Node {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Node, 0, len(p.nodes))
	for _, node := range p.nodes {
		out = append(out, node)
	}
	return out
}

// NodeCount returns how many nodes are registered, available or not.
func (p *Pool) NodeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.nodes)
}

// DisconnectAll tears down every available node in the pool.
func (p *Pool) DisconnectAll(ctx context.Context) {
	for _, node := range p.availableNodes() {
		if err := node.Disconnect(ctx); err != nil {
			p.log.Warn("node disconnect failed",
				zap.String("node", node.Identifier()),
				zap.Error(err),
			)
		}
	}
}
