package main

import (
	"fmt"
	"os"
	"time"

	"notesync/internal/notes"
	"notesync/internal/pagecache"
)

// serverConfig is read from the environment.
type serverConfig struct {
	Port     string
	MongoURI string
	MongoDB  string
	// RedisURL selects the Redis cache backend; empty means in-process memory.
	RedisURL string
	CacheTTL time.Duration
	Tokens   map[string]string
}

func loadConfig() (serverConfig, error) {
	return configFrom(os.Getenv)
}

func configFrom(lookup func(string) string) (serverConfig, error) {
	getEnv := func(key, defaultVal string) string {
		if val := lookup(key); val != "" {
			return val
		}
		return defaultVal
	}

	ttl, err := time.ParseDuration(getEnv("CACHE_TTL", pagecache.DefaultTTL.String()))
	if err != nil || ttl <= 0 {
		return serverConfig{}, fmt.Errorf("CACHE_TTL: must be a positive duration")
	}

	tokens, err := notes.ParseTokens(getEnv("NOTES_API_TOKENS", ""))
	if err != nil {
		return serverConfig{}, fmt.Errorf("NOTES_API_TOKENS: %w", err)
	}

	return serverConfig{
		Port:     getEnv("PORT", "7521"),
		MongoURI: getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGODB_DB", "notesync"),
		RedisURL: getEnv("REDIS_URL", ""),
		CacheTTL: ttl,
		Tokens:   tokens,
	}, nil
}
