// Package bot wires the Discord session to the audio node pool: message
// commands, per-guild queues, and the play-next policy reacting to
// playback events.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/latoulicious/Kanade/pkg/lavalink"
	"github.com/latoulicious/Kanade/pkg/queue"
)

const commandTimeout = 15 * time.Second

// StatusUpdater is what the bot needs from the presence layer: a
// now-playing line while a track runs, and the default line otherwise.
type StatusUpdater interface {
	UpdateMusic(title string)
	ClearMusic()
}

// Bot glues discordgo, the node pool and per-guild queues together.
type Bot struct {
	session  *discordgo.Session
	pool     *lavalink.Pool
	resolver *lavalink.Resolver
	status   StatusUpdater
	log      *zap.Logger

	mu     sync.Mutex
	guilds map[string]*guildSession
}

// guildSession is one guild's queue plus the text channel to report into.
type guildSession struct {
	queue         *queue.Queue
	textChannelID string
}

// New builds the bot. Call Register before opening the Discord session.
func New(session *discordgo.Session, pool *lavalink.Pool, resolver *lavalink.Resolver, log *zap.Logger) *Bot {
	return &Bot{
		session:  session,
		pool:     pool,
		resolver: resolver,
		log:      log,
		guilds:   make(map[string]*guildSession),
	}
}

// Register hooks the message handler into discordgo and the playback event
// handler into the pool.
func (b *Bot) Register() {
	b.session.AddHandler(b.handleMessage)
	b.pool.OnEvent(b.handleEvent)
}

// SetStatusUpdater wires the presence layer in. Call before Register; a nil
// updater leaves the presence untouched.
func (b *Bot) SetStatusUpdater(status StatusUpdater) {
	b.status = status
}

func (b *Bot) guild(guildID string) *guildSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	gs, ok := b.guilds[guildID]
	if !ok {
		gs = &guildSession{queue: queue.New()}
		b.guilds[guildID] = gs
	}
	return gs
}

func (b *Bot) dropGuild(guildID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.guilds, guildID)
}

// handleEvent reacts to node playback events. Track boundaries drive the
// queue; everything else is reported to the guild's text channel.
func (b *Bot) handleEvent(player *lavalink.Player, event lavalink.Event) {
	gs := b.guild(player.GuildID())

	switch ev := event.(type) {
	case lavalink.TrackStartEvent:
		if b.status != nil && ev.Track != nil {
			b.status.UpdateMusic(ev.Track.Info.Title)
		}

	case lavalink.TrackEndEvent:
		// "replaced" means a skip or a new play already took over;
		// "stopped" means an explicit stop. Only natural ends advance
		// the queue.
		switch ev.Reason {
		case "finished", "loadFailed":
			b.playNext(player, gs)
		case "stopped":
			b.clearStatus()
		}

	case lavalink.TrackExceptionEvent:
		b.log.Warn("track playback failed",
			zap.String("guild_id", player.GuildID()),
			zap.String("message", ev.Message),
			zap.String("severity", ev.Severity),
		)
		if gs.textChannelID != "" {
			b.sendEmbed(gs.textChannelID, "❌ Playback Error", "Track failed to play, skipping.", 0xff0000)
		}
		b.playNext(player, gs)

	case lavalink.TrackStuckEvent:
		b.log.Warn("track stuck",
			zap.String("guild_id", player.GuildID()),
			zap.Int64("threshold_ms", ev.ThresholdMs),
		)
		b.playNext(player, gs)

	case lavalink.WebSocketClosedEvent:
		b.log.Warn("voice websocket closed",
			zap.String("guild_id", player.GuildID()),
			zap.Int("code", ev.Code),
			zap.String("reason", ev.Reason),
		)
	}
}

// playNext pulls the next queued track and plays it. An empty queue leaves
// the player idle in the channel.
func (b *Bot) playNext(player *lavalink.Player, gs *guildSession) {
	track, err := gs.queue.Get()
	if err != nil {
		b.clearStatus()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := player.Play(ctx, track, lavalink.PlayOptions{}); err != nil {
		b.log.Error("failed to play next track",
			zap.String("guild_id", player.GuildID()),
			zap.String("title", track.Info.Title),
			zap.Error(err),
		)
		if gs.textChannelID != "" {
			b.sendEmbed(gs.textChannelID, "❌ Error", "Failed to play **"+track.Info.Title+"**, skipping.", 0xff0000)
		}
		// Skip the bad track rather than stalling the queue.
		b.playNext(player, gs)
		return
	}

	if gs.textChannelID != "" {
		b.sendEmbed(gs.textChannelID, "🎶 Now Playing", "**"+track.Info.Title+"** by "+track.Info.Author, 0x00ff00)
	}
}

func (b *Bot) clearStatus() {
	if b.status != nil {
		b.status.ClearMusic()
	}
}

// userVoiceChannel finds the voice channel the user currently sits in.
func (b *Bot) userVoiceChannel(guildID, userID string) string {
	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

func (b *Bot) sendEmbed(channelID, title, description string, color int) {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.log.Warn("failed to send embed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if d < time.Hour {
		return fmt.Sprintf("%d:%02d", minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d:%02d", minutes/60, minutes%60, seconds)
}
