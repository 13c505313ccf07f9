package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/latoulicious/Kanade/pkg/lavalink"
	"github.com/latoulicious/Kanade/pkg/queue"
)

// handleMessage routes "!" prefixed messages to their commands.
func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	if !strings.HasPrefix(m.Content, "!") {
		return
	}

	args := strings.Fields(m.Content)
	command := strings.TrimPrefix(args[0], "!")

	switch command {
	case "play":
		b.playCommand(m, args[1:])
	case "skip":
		b.skipCommand(m)
	case "pause":
		b.pauseCommand(m, true)
	case "resume":
		b.pauseCommand(m, false)
	case "queue":
		b.queueCommand(m)
	case "nowplaying", "np":
		b.nowPlayingCommand(m)
	case "volume":
		b.volumeCommand(m, args[1:])
	case "loop":
		b.loopCommand(m, args[1:])
	case "shuffle":
		b.shuffleCommand(m)
	case "leave", "stop":
		b.leaveCommand(m)
	case "help":
		b.helpCommand(m)
	}
}

func (b *Bot) playCommand(m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.sendEmbed(m.ChannelID, "❌ Usage Error", "Provide a URL or a search query: `!play <query>`", 0xff0000)
		return
	}

	channelID := b.userVoiceChannel(m.GuildID, m.Author.ID)
	if channelID == "" {
		b.sendEmbed(m.ChannelID, "❌ Error", "Join a voice channel first.", 0xff0000)
		return
	}

	gs := b.guild(m.GuildID)
	gs.textChannelID = m.ChannelID

	player, err := b.player(m.GuildID)
	if err != nil {
		b.sendEmbed(m.ChannelID, "❌ Error", "No audio node is available right now.", 0xff0000)
		return
	}

	switch current := player.ChannelID(); {
	case current == "":
		err = player.Connect(channelID, true, false)
	case current != channelID:
		err = player.MoveTo(channelID, true, false)
	}
	if err != nil {
		b.log.Error("voice connect failed", zap.String("guild_id", m.GuildID), zap.Error(err))
		b.sendEmbed(m.ChannelID, "❌ Error", "Could not join your voice channel.", 0xff0000)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := b.resolver.Resolve(ctx, player.Node(), strings.Join(args, " "))
	if err != nil {
		var loadErr *lavalink.TrackLoadError
		if errors.As(err, &loadErr) {
			b.sendEmbed(m.ChannelID, "❌ Load Error", loadErr.Message, 0xff0000)
		} else {
			b.log.Error("resolve failed", zap.String("guild_id", m.GuildID), zap.Error(err))
			b.sendEmbed(m.ChannelID, "❌ Error", "Failed to load that query.", 0xff0000)
		}
		return
	}
	if result == nil || len(result.Tracks) == 0 {
		b.sendEmbed(m.ChannelID, "🔍 No Results", "Nothing found for that query.", 0x808080)
		return
	}

	if result.Playlist != nil {
		for _, track := range result.Playlist.Tracks {
			track.Attachment = m.Author.Username
			if err := gs.queue.Put(track); err != nil {
				b.sendEmbed(m.ChannelID, "❌ Queue Full", "The queue cannot take more tracks.", 0xff0000)
				break
			}
		}
		description := fmt.Sprintf("✅ Queued **%s** (%d tracks)", result.Playlist.Name, len(result.Playlist.Tracks))
		b.sendEmbed(m.ChannelID, "🎵 Playlist Added", description, 0x00ff00)
	} else {
		track := result.Tracks[0]
		track.Attachment = m.Author.Username
		if err := gs.queue.Put(track); err != nil {
			b.sendEmbed(m.ChannelID, "❌ Queue Full", "The queue cannot take more tracks.", 0xff0000)
			return
		}
		description := fmt.Sprintf("✅ Added **%s** to queue (position %d)", track.Info.Title, gs.queue.Size())
		b.sendEmbed(m.ChannelID, "🎵 Song Added", description, 0x00ff00)
	}

	if !player.Playing() {
		b.playNext(player, gs)
	}
}

// player returns the guild's existing player or binds a new one.
func (b *Bot) player(guildID string) (*lavalink.Player, error) {
	if p := b.pool.Player(guildID); p != nil {
		return p, nil
	}
	return b.pool.NewPlayer(guildID)
}

func (b *Bot) skipCommand(m *discordgo.MessageCreate) {
	player := b.pool.Player(m.GuildID)
	if player == nil || player.Current() == nil {
		b.sendEmbed(m.ChannelID, "🔇 Nothing Playing", "There is nothing to skip.", 0x808080)
		return
	}

	gs := b.guild(m.GuildID)

	// Playing the next track replaces the current one; the resulting
	// TrackEnd arrives with reason "replaced" and does not double-advance.
	if track, err := gs.queue.Get(); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := player.Play(ctx, track, lavalink.PlayOptions{}); err != nil {
			b.sendEmbed(m.ChannelID, "❌ Error", "Failed to play the next track.", 0xff0000)
			return
		}
		b.sendEmbed(m.ChannelID, "⏭️ Skipped", "Now playing **"+track.Info.Title+"**", 0x00ff00)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := player.Stop(ctx); err != nil {
		b.sendEmbed(m.ChannelID, "❌ Error", "Failed to stop playback.", 0xff0000)
		return
	}
	b.sendEmbed(m.ChannelID, "⏭️ Skipped", "Queue is empty, playback stopped.", 0x00ff00)
}

func (b *Bot) pauseCommand(m *discordgo.MessageCreate, paused bool) {
	player := b.pool.Player(m.GuildID)
	if player == nil || player.Current() == nil {
		b.sendEmbed(m.ChannelID, "🔇 Nothing Playing", "There is nothing to pause or resume.", 0x808080)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := player.SetPaused(ctx, paused); err != nil {
		b.sendEmbed(m.ChannelID, "❌ Error", "Failed to update playback state.", 0xff0000)
		return
	}

	if paused {
		b.sendEmbed(m.ChannelID, "⏸️ Paused", "Playback paused.", 0x00ff00)
	} else {
		b.sendEmbed(m.ChannelID, "▶️ Resumed", "Playback resumed.", 0x00ff00)
	}
}

func (b *Bot) queueCommand(m *discordgo.MessageCreate) {
	gs := b.guild(m.GuildID)
	tracks := gs.queue.Tracks()
	if len(tracks) == 0 {
		b.sendEmbed(m.ChannelID, "📋 Queue", "The queue is empty.", 0x808080)
		return
	}

	var sb strings.Builder
	shown := len(tracks)
	if shown > 10 {
		shown = 10
	}
	for i := 0; i < shown; i++ {
		track := tracks[i]
		fmt.Fprintf(&sb, "%d. **%s** by %s `[%s]`\n",
			i+1, track.Info.Title, track.Info.Author, formatDuration(track.Info.Length))
	}
	if len(tracks) > shown {
		fmt.Fprintf(&sb, "…and %d more", len(tracks)-shown)
	}

	title := fmt.Sprintf("📋 Queue (%d tracks, loop: %s)", len(tracks), gs.queue.LoopMode())
	b.sendEmbed(m.ChannelID, title, sb.String(), 0x00ff00)
}

func (b *Bot) nowPlayingCommand(m *discordgo.MessageCreate) {
	player := b.pool.Player(m.GuildID)
	if player == nil || player.Current() == nil {
		b.sendEmbed(m.ChannelID, "🎵 Now Playing", "Nothing is currently playing.", 0x808080)
		return
	}

	track := player.Current()
	description := fmt.Sprintf("**%s** by %s\n`%s / %s`",
		track.Info.Title,
		track.Info.Author,
		formatDuration(player.Position()),
		formatDuration(track.Info.Length),
	)
	if requester, ok := track.Attachment.(string); ok && requester != "" {
		description += "\nRequested by " + requester
	}
	b.sendEmbed(m.ChannelID, "🎵 Now Playing", description, 0x00ff00)
}

func (b *Bot) volumeCommand(m *discordgo.MessageCreate, args []string) {
	player := b.pool.Player(m.GuildID)
	if player == nil {
		b.sendEmbed(m.ChannelID, "🔇 Nothing Playing", "No active player in this guild.", 0x808080)
		return
	}

	if len(args) == 0 {
		b.sendEmbed(m.ChannelID, "🔊 Volume", fmt.Sprintf("Current volume: **%d**", player.Volume()), 0x00ff00)
		return
	}

	volume, err := strconv.Atoi(args[0])
	if err != nil {
		b.sendEmbed(m.ChannelID, "❌ Usage Error", "Volume must be a number between 0 and 500.", 0xff0000)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := player.SetVolume(ctx, volume); err != nil {
		if errors.Is(err, lavalink.ErrVolumeOutOfRange) {
			b.sendEmbed(m.ChannelID, "❌ Usage Error", "Volume must be between 0 and 500.", 0xff0000)
		} else {
			b.sendEmbed(m.ChannelID, "❌ Error", "Failed to set volume.", 0xff0000)
		}
		return
	}
	b.sendEmbed(m.ChannelID, "🔊 Volume", fmt.Sprintf("Volume set to **%d**", volume), 0x00ff00)
}

func (b *Bot) loopCommand(m *discordgo.MessageCreate, args []string) {
	gs := b.guild(m.GuildID)

	if len(args) == 0 {
		b.sendEmbed(m.ChannelID, "🔁 Loop", fmt.Sprintf("Loop mode: **%s**", gs.queue.LoopMode()), 0x00ff00)
		return
	}

	switch strings.ToLower(args[0]) {
	case "none", "off":
		gs.queue.DisableLoop()
	case "track":
		gs.queue.SetLoopMode(queue.LoopTrack)
	case "queue":
		gs.queue.SetLoopMode(queue.LoopQueue)
	default:
		b.sendEmbed(m.ChannelID, "❌ Usage Error", "Loop mode must be `none`, `track`, or `queue`.", 0xff0000)
		return
	}
	b.sendEmbed(m.ChannelID, "🔁 Loop", fmt.Sprintf("Loop mode set to **%s**", gs.queue.LoopMode()), 0x00ff00)
}

func (b *Bot) shuffleCommand(m *discordgo.MessageCreate) {
	gs := b.guild(m.GuildID)
	if gs.queue.IsEmpty() {
		b.sendEmbed(m.ChannelID, "📋 Queue", "The queue is empty.", 0x808080)
		return
	}
	gs.queue.Shuffle()
	b.sendEmbed(m.ChannelID, "🔀 Shuffled", fmt.Sprintf("Shuffled %d tracks.", gs.queue.Size()), 0x00ff00)
}

func (b *Bot) leaveCommand(m *discordgo.MessageCreate) {
	player := b.pool.Player(m.GuildID)
	if player == nil {
		b.sendEmbed(m.ChannelID, "🔇 Not Connected", "I am not in a voice channel.", 0x808080)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := player.Destroy(ctx); err != nil {
		b.log.Warn("player destroy failed", zap.String("guild_id", m.GuildID), zap.Error(err))
	}
	b.dropGuild(m.GuildID)
	b.clearStatus()
	b.sendEmbed(m.ChannelID, "👋 Left", "Disconnected and cleared the queue.", 0x00ff00)
}

func (b *Bot) helpCommand(m *discordgo.MessageCreate) {
	help := strings.Join([]string{
		"`!play <query>` — play a URL or search",
		"`!skip` — skip to the next track",
		"`!pause` / `!resume` — pause or resume",
		"`!queue` — show the queue",
		"`!nowplaying` — show the current track",
		"`!volume <0-500>` — set volume",
		"`!loop <none|track|queue>` — set loop mode",
		"`!shuffle` — shuffle the queue",
		"`!leave` — disconnect and clear the queue",
	}, "\n")
	b.sendEmbed(m.ChannelID, "📖 Commands", help, 0x00ff00)
}
