package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// LiveKit credentials. All three are required to resolve
	// connections; a missing value is a deployment defect and is
	// reported as such, never defaulted.
	LiveKitURL       string `mapstructure:"livekit_url" yaml:"livekit_url"`
	LiveKitAPIKey    string `mapstructure:"livekit_api_key" yaml:"livekit_api_key"`
	LiveKitAPISecret string `mapstructure:"livekit_api_secret" yaml:"livekit_api_secret"`

	// Room lifecycle tuning.
	RoomEmptyTimeout    time.Duration `mapstructure:"room_empty_timeout" yaml:"room_empty_timeout"`
	RoomMaxParticipants int           `mapstructure:"room_max_participants" yaml:"room_max_participants"`
	TokenTTL            time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	DeleteSettleDelay   time.Duration `mapstructure:"delete_settle_delay" yaml:"delete_settle_delay"`
	SetupLockGrace      time.Duration `mapstructure:"setup_lock_grace" yaml:"setup_lock_grace"`

	// Per-user connection rate limiting (fixed window).
	RateLimit       int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window" yaml:"rate_limit_window"`

	// Conversation memory store. Empty disables memory and admin routes.
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`

	// Shared secret the voice agent presents on /api/memory and
	// /api/agent routes. Empty disables those routes.
	AgentAPIKey string `mapstructure:"agent_api_key" yaml:"agent_api_key"`

	// Admin API. AdminPassword may be plaintext or a bcrypt hash.
	AdminPassword string `mapstructure:"admin_password" yaml:"admin_password"`
	JWTSecret     string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer     string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience   string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// LiveKit webhook receiver.
	WebhookEnabled bool `mapstructure:"webhook_enabled" yaml:"webhook_enabled"`

	// Optional LightRAG knowledge store. Empty URL disables mirroring.
	LightRAGURL    string `mapstructure:"lightrag_url" yaml:"lightrag_url"`
	LightRAGAPIKey string `mapstructure:"lightrag_api_key" yaml:"lightrag_api_key"`

	// Optional Gemini summarizer for finished sessions.
	GeminiAPIKey string `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model" yaml:"gemini_model"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",

		RoomEmptyTimeout:    5 * time.Minute,
		RoomMaxParticipants: 10,
		TokenTTL:            15 * time.Minute,
		DeleteSettleDelay:   500 * time.Millisecond,
		SetupLockGrace:      10 * time.Second,

		RateLimit:       10,
		RateLimitWindow: time.Minute,

		JWTIssuer:   "vidya-server",
		JWTAudience: "vidya-admin",

		WebhookEnabled: true,

		GeminiModel: "gemini-2.0-flash",
	}
}

// MissingLiveKitVar reports the env var name of the first unset LiveKit
// credential, or "" when all are present.
func (c *Config) MissingLiveKitVar() string {
	switch {
	case c.LiveKitURL == "":
		return "VIDYA_LIVEKIT_URL"
	case c.LiveKitAPIKey == "":
		return "VIDYA_LIVEKIT_API_KEY"
	case c.LiveKitAPISecret == "":
		return "VIDYA_LIVEKIT_API_SECRET"
	}
	return ""
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LiveKitURL != "" {
		c.LiveKitURL = other.LiveKitURL
	}
	if other.LiveKitAPIKey != "" {
		c.LiveKitAPIKey = other.LiveKitAPIKey
	}
	if other.LiveKitAPISecret != "" {
		c.LiveKitAPISecret = other.LiveKitAPISecret
	}
	if other.DatabaseURL != "" {
		c.DatabaseURL = other.DatabaseURL
	}
}
