package lavalink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Player is one guild's playback state machine. It reconciles two
// independent event sources: the voice-gateway adapter (connectivity) and
// the node (playback). All API calls and inbound-event handling for a
// player are serialized on its mutex.
type Player struct {
	guildID string

	mu        sync.Mutex
	node      *Node
	channelID string

	current   *Track
	ending    *Track
	volume    int
	paused    bool
	connected bool
	destroyed bool

	voice voiceState

	// Position anchor: the last node-reported position and the local
	// wall clock at the moment it arrived.
	lastPosition int64
	lastUpdate   time.Time

	filters *FilterSet
	log     *zap.Logger
}

// NewPlayer creates a player bound to this node and registers it in the
// node's player map.
func (n *Node) NewPlayer(guildID string) *Player {
	player := &Player{
		guildID: guildID,
		node:    n,
		volume:  100,
		filters: NewFilterSet(),
		log:     n.log.With(zap.String("guild_id", guildID)),
	}
	n.addPlayer(player)
	return player
}

// NewPlayer creates a player for the guild on a random available node.
func (p *Pool) NewPlayer(guildID string) (*Player, error) {
	node, err := p.Get()
	if err != nil {
		return nil, err
	}
	return node.NewPlayer(guildID), nil
}

// GuildID returns the guild this player belongs to.
func (p *Player) GuildID() string {
	return p.guildID
}

// ChannelID returns the voice channel the player last joined, if any.
func (p *Player) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

// Node returns the node connection this player is bound to.
func (p *Player) Node() *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.node
}

// Current returns the currently playing track, or nil.
func (p *Player) Current() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Connected reports the node's last known voice connectivity.
func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Volume returns the last volume set on the player.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Filters returns the player's active filter set.
func (p *Player) Filters() *FilterSet {
	return p.filters
}

// Playing reports whether a track is actively loaded while voice is up.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && p.current != nil
}

// Position returns the playback position in milliseconds: the anchored
// position while paused, the anchor plus elapsed wall clock while playing,
// and 0 when nothing is loaded. Always clamped to the track length.
func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || !p.connected {
		return 0
	}

	length := p.current.Info.Length
	if p.paused {
		return clamp(p.lastPosition, length)
	}

	elapsed := time.Since(p.lastUpdate).Milliseconds()
	return clamp(p.lastPosition+elapsed, length)
}

func clamp(position, length int64) int64 {
	if position < 0 {
		return 0
	}
	if length > 0 && position > length {
		return length
	}
	return position
}

// Connect asks the voice-gateway adapter to join a channel. Connectivity
// is confirmed later by the node's first playerUpdate with connected=true.
func (p *Player) Connect(channelID string, selfDeaf, selfMute bool) error {
	adapter := p.node.pool.voiceAdapter()
	if adapter == nil {
		return fmt.Errorf("no voice adapter configured")
	}

	p.mu.Lock()
	p.channelID = channelID
	p.mu.Unlock()

	return adapter.RequestConnect(p.guildID, channelID, selfDeaf, selfMute)
}

// MoveTo joins a different voice channel in the same guild. The buffered
// voice credentials are cleared first; playback resumes once the gateway
// delivers a fresh pair for the new channel.
func (p *Player) MoveTo(channelID string, selfDeaf, selfMute bool) error {
	if channelID == "" {
		return fmt.Errorf("channel id must not be empty")
	}

	p.mu.Lock()
	p.voice.clear()
	p.mu.Unlock()

	return p.Connect(channelID, selfDeaf, selfMute)
}

// Disconnect leaves voice without touching the node-side player resource.
func (p *Player) Disconnect() error {
	adapter := p.node.pool.voiceAdapter()

	p.mu.Lock()
	p.channelID = ""
	p.connected = false
	p.voice.clear()
	p.mu.Unlock()

	if adapter == nil {
		return nil
	}
	return adapter.RequestDisconnect(p.guildID)
}

// OnVoiceServerUpdate feeds the voice-server half of a voice update. The
// update is forwarded to the node only once both halves are buffered.
func (p *Player) OnVoiceServerUpdate(token, endpoint string) {
	p.mu.Lock()
	p.voice.token = token
	p.voice.endpoint = endpoint
	p.voice.hasEvent = true
	complete := p.voice.complete()
	p.mu.Unlock()

	if complete {
		if err := p.dispatchVoiceUpdate(context.Background()); err != nil {
			p.log.Error("voice update dispatch failed", zap.Error(err))
		}
	}
}

// OnVoiceStateUpdate feeds the voice-state half of a voice update. An
// update with no channel id means the bot was moved out of voice, which
// disconnects the player.
func (p *Player) OnVoiceStateUpdate(channelID, sessionID string) {
	if channelID == "" {
		if err := p.Disconnect(); err != nil {
			p.log.Warn("voice disconnect failed", zap.Error(err))
		}
		return
	}

	p.mu.Lock()
	p.channelID = channelID
	p.voice.sessionID = sessionID
	p.voice.hasSession = true
	complete := p.voice.complete()
	p.mu.Unlock()

	if complete {
		if err := p.dispatchVoiceUpdate(context.Background()); err != nil {
			p.log.Error("voice update dispatch failed", zap.Error(err))
		}
	}
}

// dispatchVoiceUpdate sends the buffered, complete voice state to the node.
func (p *Player) dispatchVoiceUpdate(ctx context.Context) error {
	p.mu.Lock()
	if !p.voice.complete() {
		p.mu.Unlock()
		return nil
	}
	body := map[string]any{"voice": p.voice.payload()}
	node := p.node
	p.mu.Unlock()

	_, err := node.request(ctx, http.MethodPatch, node.playerPath(p.guildID), nil, body)
	if err == nil {
		p.log.Debug("voice update dispatched")
	}
	return err
}

// PlayOptions tune a Play call.
type PlayOptions struct {
	// StartMs is the position to start from.
	StartMs int64
	// EndMs stops playback at this position; zero plays to the end.
	EndMs int64
	// IgnoreIfPlaying makes the node keep the current track instead of
	// replacing it.
	IgnoreIfPlaying bool
}

// Play starts a track. Provider-sourced tracks are resolved against the
// node first; if resolution fails the player is left untouched and the
// track stays unresolved. Preloaded filters from the previous track are
// stripped, and the new track's filters are applied unless a global filter
// is active.
func (p *Player) Play(ctx context.Context, track *Track, opts PlayOptions) error {
	if !track.Resolved() {
		if err := p.node.resolveTrack(ctx, track); err != nil {
			return err
		}
	}

	// Strip filters preloaded by the previous track.
	if p.filters.HasPreload() {
		for _, f := range p.filters.PreloadFilters() {
			if err := p.RemoveFilter(ctx, f.Tag, false); err != nil {
				return err
			}
		}
	}

	// Global filters take precedence over per-track filters.
	if len(track.Filters) > 0 && !p.filters.HasGlobal() {
		for _, f := range track.Filters {
			preloaded := &Filter{Tag: f.Tag, Preload: true, Payload: f.Payload}
			if err := p.AddFilter(ctx, preloaded, false); err != nil {
				return err
			}
		}
	}

	p.mu.Lock()
	node := p.node
	update := map[string]any{
		"encodedTrack": track.Encoded(),
		"position":     opts.StartMs,
	}
	node.protocolNow().applyEndTime(update, opts.EndMs)

	// Set the current track before the PATCH so events racing the
	// response still see it.
	p.current = track
	p.lastPosition = opts.StartMs
	p.lastUpdate = time.Now()
	p.mu.Unlock()

	query := url.Values{"noReplace": {strconv.FormatBool(opts.IgnoreIfPlaying)}}
	_, err := node.request(ctx, http.MethodPatch, node.playerPath(p.guildID), query, update)
	if err != nil {
		return err
	}

	p.log.Debug("playing track",
		zap.String("title", track.Info.Title),
		zap.String("uri", track.Info.URI),
		zap.Int64("length_ms", track.Info.Length),
	)
	return nil
}

// Stop clears the current track. Voice connectivity is untouched.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	node := p.node
	p.mu.Unlock()

	body := map[string]any{"encodedTrack": nil}
	_, err := node.request(ctx, http.MethodPatch, node.playerPath(p.guildID), nil, body)
	return err
}

// SetPaused pauses or resumes playback.
func (p *Player) SetPaused(ctx context.Context, paused bool) error {
	p.mu.Lock()
	node := p.node
	p.mu.Unlock()

	body := map[string]any{"paused": paused}
	_, err := node.request(ctx, http.MethodPatch, node.playerPath(p.guildID), nil, body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if !paused {
		// Resuming: restart the wall-clock anchor from the held position.
		p.lastUpdate = time.Now()
	} else {
		p.lastPosition = p.positionLocked()
	}
	p.paused = paused
	p.mu.Unlock()
	return nil
}

// positionLocked computes the live position with p.mu already held.
func (p *Player) positionLocked() int64 {
	if p.current == nil || !p.connected {
		return 0
	}
	if p.paused {
		return clamp(p.lastPosition, p.current.Info.Length)
	}
	elapsed := time.Since(p.lastUpdate).Milliseconds()
	return clamp(p.lastPosition+elapsed, p.current.Info.Length)
}

// SetVolume sets the player volume, 0 to 500.
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 500 {
		return ErrVolumeOutOfRange
	}

	p.mu.Lock()
	node := p.node
	p.mu.Unlock()

	body := map[string]any{"volume": volume}
	_, err := node.request(ctx, http.MethodPatch, node.playerPath(p.guildID), nil, body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return nil
}

// Seek moves playback to a position in the current track, validated
// against the track's length.
func (p *Player) Seek(ctx context.Context, positionMs int64) error {
	p.mu.Lock()
	current := p.current
	node := p.node
	p.mu.Unlock()

	if current == nil {
		return nil
	}
	if positionMs < 0 || positionMs > current.Info.Length {
		return ErrTrackInvalidPosition
	}

	body := map[string]any{"position": positionMs}
	_, err := node.request(ctx, http.MethodPatch, node.playerPath(p.guildID), nil, body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.lastPosition = positionMs
	p.lastUpdate = time.Now()
	p.mu.Unlock()
	return nil
}

// AddFilter applies a filter and re-sends the merged filter payload. With
// fastApply the player re-seeks to its current position so the node picks
// the filter up immediately instead of at the next track boundary.
func (p *Player) AddFilter(ctx context.Context, f *Filter, fastApply bool) error {
	if err := p.filters.Add(f); err != nil {
		return err
	}
	if err := p.sendFilters(ctx); err != nil {
		p.filters.Remove(f.Tag)
		return err
	}
	if fastApply {
		return p.Seek(ctx, p.Position())
	}
	return nil
}

// RemoveFilter removes a filter by tag and re-sends the merged payload.
func (p *Player) RemoveFilter(ctx context.Context, tag string, fastApply bool) error {
	if err := p.filters.Remove(tag); err != nil {
		return err
	}
	if err := p.sendFilters(ctx); err != nil {
		return err
	}
	if fastApply {
		return p.Seek(ctx, p.Position())
	}
	return nil
}

// ResetFilters clears every filter and re-sends an empty payload.
func (p *Player) ResetFilters(ctx context.Context, fastApply bool) error {
	p.filters.Reset()
	if err := p.sendFilters(ctx); err != nil {
		return err
	}
	if fastApply {
		return p.Seek(ctx, p.Position())
	}
	return nil
}

func (p *Player) sendFilters(ctx context.Context) error {
	p.mu.Lock()
	node := p.node
	p.mu.Unlock()

	body := map[string]any{"filters": p.filters.MergedPayload()}
	_, err := node.request(ctx, http.MethodPatch, node.playerPath(p.guildID), nil, body)
	return err
}

// Destroy disconnects voice, unbinds the player from its node and deletes
// the node-side player resource. Idempotent: a failed voice disconnect is
// swallowed and node cleanup proceeds.
func (p *Player) Destroy(ctx context.Context) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	node := p.node
	p.mu.Unlock()

	if err := p.Disconnect(); err != nil {
		p.log.Debug("voice disconnect during destroy failed", zap.Error(err))
	}

	node.removePlayer(p.guildID)

	if node.Available() {
		if _, err := node.request(ctx, http.MethodDelete, node.playerPath(p.guildID), nil, nil); err != nil {
			return err
		}
	}

	p.log.Debug("player destroyed")
	return nil
}

// SwapNode migrates the player onto another node: re-binds, re-sends the
// buffered voice update, and resumes the active track at its current
// position, volume and pause state. This is the one path where the player
// itself drives REST calls instead of reacting to a caller.
func (p *Player) SwapNode(ctx context.Context, newNode *Node) error {
	p.mu.Lock()
	oldNode := p.node
	current := p.current
	position := p.positionLocked()
	volume := p.volume
	paused := p.paused
	p.node = newNode
	p.log = newNode.log.With(zap.String("guild_id", p.guildID))
	p.mu.Unlock()

	oldNode.removePlayer(p.guildID)
	newNode.addPlayer(p)

	if err := p.dispatchVoiceUpdate(ctx); err != nil {
		return err
	}

	if current == nil {
		return nil
	}

	update := map[string]any{
		"encodedTrack": current.Encoded(),
		"position":     position,
		"volume":       volume,
		"paused":       paused,
	}
	_, err := newNode.request(ctx, http.MethodPatch, newNode.playerPath(p.guildID), nil, update)
	return err
}

// updateState applies a node playerUpdate message.
func (p *Player) updateState(positionMs int64, connected bool) {
	p.mu.Lock()
	p.lastPosition = positionMs
	p.lastUpdate = time.Now()
	p.connected = connected
	p.mu.Unlock()
}

// dispatchEvent turns a wire event into a typed Event, applies its state
// transition, and surfaces it to the pool's handler. The handler runs
// without the player lock held so it can call back into the player.
func (p *Player) dispatchEvent(wire *wireEvent) {
	var event Event

	p.mu.Lock()
	switch wire.Type {
	case EventTrackStart:
		p.ending = p.current
		event = TrackStartEvent{Track: p.current}

	case EventTrackEnd:
		track := p.ending
		if track == nil {
			track = p.current
		}
		if wire.Reason != "replaced" {
			p.current = nil
		}
		event = TrackEndEvent{Track: track, Reason: wire.Reason}

	case EventTrackException:
		message := wire.Exception.Message
		severity := wire.Exception.Severity
		if message == "" {
			message = wire.Error
		}
		event = TrackExceptionEvent{
			Track:    p.ending,
			Message:  message,
			Severity: severity,
			Cause:    wire.Exception.Cause,
		}

	case EventTrackStuck:
		event = TrackStuckEvent{Track: p.ending, ThresholdMs: wire.ThresholdMs}

	case EventWebSocketClosed:
		event = WebSocketClosedEvent{
			Code:     wire.Code,
			Reason:   wire.Reason,
			ByRemote: wire.ByRemote,
		}

	case EventWebSocketOpen:
		event = WebSocketOpenEvent{Target: wire.Target, SSRC: wire.SSRC}
	}
	handler := p.node.pool.eventHandler()
	p.mu.Unlock()

	if event == nil {
		// Unknown event types are dropped.
		return
	}

	if handler != nil {
		handler(p, event)
	}
}
