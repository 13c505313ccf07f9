package lavalink

import (
	"github.com/bwmarrin/discordgo"
)

// VoiceAdapter is the outbound half of the voice-gateway contract: the
// client asks the host platform to join or leave voice channels through it.
// The inbound half is the pair of Player callbacks OnVoiceServerUpdate and
// OnVoiceStateUpdate.
type VoiceAdapter interface {
	RequestConnect(guildID, channelID string, selfDeaf, selfMute bool) error
	RequestDisconnect(guildID string) error
}

// voiceState buffers the two halves of a voice update. The node only
// accepts an update once both the voice-state session id and the
// voice-server event (token + endpoint) have arrived; partial state is held
// here and never sent.
type voiceState struct {
	sessionID  string
	hasSession bool

	token    string
	endpoint string
	hasEvent bool
}

func (v *voiceState) complete() bool {
	return v.hasSession && v.hasEvent
}

func (v *voiceState) clear() {
	*v = voiceState{}
}

// payload builds the "voice" object for the player update REST call.
func (v *voiceState) payload() map[string]any {
	return map[string]any{
		"token":     v.token,
		"endpoint":  v.endpoint,
		"sessionId": v.sessionID,
	}
}

// DiscordAdapter bridges a discordgo session to the pool: it forwards the
// bot's own voice-state and voice-server updates to the owning player, and
// issues join/leave requests over the gateway without letting discordgo
// manage its own voice connection.
type DiscordAdapter struct {
	session *discordgo.Session
	pool    *Pool
}

// NewDiscordAdapter registers gateway handlers on the session and returns
// the adapter. Pass the adapter to players via Pool options before calling
// Player.Connect.
func NewDiscordAdapter(session *discordgo.Session, pool *Pool) *DiscordAdapter {
	adapter := &DiscordAdapter{session: session, pool: pool}

	session.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
		player := pool.Player(e.GuildID)
		if player == nil {
			return
		}
		player.OnVoiceServerUpdate(e.Token, e.Endpoint)
	})

	session.AddHandler(func(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
		if s.State.User == nil || e.UserID != s.State.User.ID {
			return
		}
		player := pool.Player(e.GuildID)
		if player == nil {
			return
		}
		player.OnVoiceStateUpdate(e.ChannelID, e.SessionID)
	})

	return adapter
}

// RequestConnect asks the gateway to join a voice channel. The voice-server
// and voice-state events this triggers flow back through the handlers above.
func (a *DiscordAdapter) RequestConnect(guildID, channelID string, selfDeaf, selfMute bool) error {
	return a.session.ChannelVoiceJoinManual(guildID, channelID, selfMute, selfDeaf)
}

// RequestDisconnect asks the gateway to leave voice in the guild.
func (a *DiscordAdapter) RequestDisconnect(guildID string) error {
	return a.session.ChannelVoiceJoinManual(guildID, "", false, false)
}
