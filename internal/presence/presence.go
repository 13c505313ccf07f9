// Package presence keeps the bot's Discord status line in sync with what
// the audio nodes are doing, on a cron schedule.
package presence

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/latoulicious/Kanade/pkg/lavalink"
)

// Manager updates the bot presence periodically with pool statistics, and
// immediately when a track starts or stops.
type Manager struct {
	session *discordgo.Session
	pool    *lavalink.Pool
	log     *zap.Logger
	cron    *cron.Cron

	mu      sync.Mutex
	showing string // "default" or "music"
}

// NewManager builds a presence manager. Call Start after the Discord
// session is open.
func NewManager(session *discordgo.Session, pool *lavalink.Pool, log *zap.Logger) *Manager {
	return &Manager{
		session: session,
		pool:    pool,
		log:     log,
		cron:    cron.New(),
	}
}

// Start sets the initial presence and schedules periodic refreshes.
func (m *Manager) Start() error {
	m.UpdateDefault()

	_, err := m.cron.AddFunc("@every 5m", func() {
		m.mu.Lock()
		showing := m.showing
		m.mu.Unlock()
		// Leave the now-playing line alone.
		if showing != "music" {
			m.UpdateDefault()
		}
	})
	if err != nil {
		return err
	}

	m.cron.Start()
	return nil
}

// Stop halts the refresh schedule.
func (m *Manager) Stop() {
	m.cron.Stop()
}

// UpdateDefault shows pool-wide statistics in the status line.
func (m *Manager) UpdateDefault() {
	playing := 0
	for _, node := range m.pool.Nodes() {
		if stats := node.Stats(); stats != nil {
			playing += stats.PlayingPlayers
		}
	}

	status := discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  fmt.Sprintf("%d tracks", playing),
				Type:  discordgo.ActivityTypeListening,
				State: fmt.Sprintf("on %d nodes", m.pool.NodeCount()),
			},
		},
	}

	if err := m.session.UpdateStatusComplex(status); err != nil {
		m.log.Warn("failed to update presence", zap.Error(err))
	}

	m.mu.Lock()
	m.showing = "default"
	m.mu.Unlock()
}

// UpdateMusic shows the given track title as the status line.
func (m *Manager) UpdateMusic(title string) {
	status := discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  "to",
				Type:  discordgo.ActivityTypeListening,
				State: title,
			},
		},
	}

	if err := m.session.UpdateStatusComplex(status); err != nil {
		m.log.Warn("failed to update presence", zap.Error(err))
	}

	m.mu.Lock()
	m.showing = "music"
	m.mu.Unlock()
}

// ClearMusic drops the now-playing line and restores the default status.
func (m *Manager) ClearMusic() {
	m.UpdateDefault()
}
