package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/latoulicious/Kanade/internal/bot"
	"github.com/latoulicious/Kanade/internal/config"
	"github.com/latoulicious/Kanade/internal/logger"
	"github.com/latoulicious/Kanade/internal/presence"
	"github.com/latoulicious/Kanade/pkg/lavalink"
	"github.com/latoulicious/Kanade/pkg/provider/applemusic"
	"github.com/latoulicious/Kanade/pkg/provider/spotify"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFile,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		zlog.Fatal("failed to create discord session", zap.Error(err))
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent

	if err := dg.Open(); err != nil {
		zlog.Fatal("failed to open discord session", zap.Error(err))
	}
	defer dg.Close()

	pool := lavalink.NewPool(dg.State.User.ID,
		lavalink.WithLogger(zlog),
		lavalink.WithFailover(true),
	)
	pool.SetVoiceAdapter(lavalink.NewDiscordAdapter(dg, pool))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	node, err := pool.CreateNode(ctx, lavalink.NodeConfig{
		Identifier: cfg.Node.Identifier,
		Host:       cfg.Node.Host,
		Port:       cfg.Node.Port,
		Password:   cfg.Node.Password,
		Secure:     cfg.Node.Secure,
	})
	cancel()
	if err != nil {
		zlog.Fatal("failed to connect audio node", zap.Error(err))
	}
	zlog.Info("audio node connected",
		zap.String("node", node.Identifier()),
		zap.String("version", node.Version().String()),
	)

	resolverOpts := []lavalink.ResolverOption{
		lavalink.WithDefaultSearch(lavalink.SearchYouTube),
		lavalink.WithProvider(applemusic.New(applemusic.WithLogger(zlog))),
	}
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		resolverOpts = append(resolverOpts,
			lavalink.WithProvider(spotify.New(cfg.SpotifyClientID, cfg.SpotifyClientSecret, spotify.WithLogger(zlog))),
		)
	}
	resolver := lavalink.NewResolver(resolverOpts...)

	pm := presence.NewManager(dg, pool, zlog)

	b := bot.New(dg, pool, resolver, zlog)
	b.SetStatusUpdater(pm)
	b.Register()

	if err := pm.Start(); err != nil {
		zlog.Warn("failed to start presence updates", zap.Error(err))
	}
	defer pm.Stop()

	zlog.Info("bot is running, press ctrl-c to exit")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	pool.DisconnectAll(shutdownCtx)
}
