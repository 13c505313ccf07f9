// Package config loads the bot's configuration from environment
// variables, with a .env file honored when present.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// ErrDiscordTokenNotSet means DISCORD_TOKEN is missing or empty.
var ErrDiscordTokenNotSet = errors.New("config: DISCORD_TOKEN is not set")

// NodeConfig is one audio node's connection settings.
type NodeConfig struct {
	Identifier string
	Host       string
	Port       int
	Password   string
	Secure     bool
}

// Config is everything the bot needs at startup.
type Config struct {
	DiscordToken string

	Node NodeConfig

	SpotifyClientID     string
	SpotifyClientSecret string

	LogLevel string
	LogFile  string
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first if it exists; real environment
// variables win over it.
func LoadConfig() (*Config, error) {
	// Missing .env is fine, the environment may carry everything.
	_ = godotenv.Load()

	discordToken := os.Getenv("DISCORD_TOKEN")
	if discordToken == "" {
		return nil, ErrDiscordTokenNotSet
	}

	node, err := loadNodeConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		DiscordToken:        discordToken,
		Node:                node,
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFile:             os.Getenv("LOG_FILE"),
	}, nil
}

func loadNodeConfig() (NodeConfig, error) {
	port := 2333
	if raw := os.Getenv("NODE_PORT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return NodeConfig{}, errors.Wrapf(err, "config: invalid NODE_PORT %q", raw)
		}
		port = parsed
	}

	secure := false
	if raw := os.Getenv("NODE_SECURE"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return NodeConfig{}, errors.Wrapf(err, "config: invalid NODE_SECURE %q", raw)
		}
		secure = parsed
	}

	return NodeConfig{
		Identifier: getEnv("NODE_IDENTIFIER", "main"),
		Host:       getEnv("NODE_HOST", "127.0.0.1"),
		Port:       port,
		Password:   os.Getenv("NODE_PASSWORD"),
		Secure:     secure,
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
