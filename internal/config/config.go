// ==============================================
// Configuration System for Campus Chat
// Environment driven, no config files
// ==============================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ==============================================
// Main Configuration Structure
// ==============================================

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Session  SessionConfig
	Calls    CallsConfig
	Spotify  SpotifyConfig
	Media    MediaConfig
	Store    StoreConfig
}

// ==============================================
// Application Configuration
// ==============================================

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Domain      string
	BaseURL     string
	Debug       bool
}

// ==============================================
// Server Configuration
// ==============================================

type ServerConfig struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
}

type HTTPConfig struct {
	Port           string
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     bool
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

// ==============================================
// Database Configuration
// ==============================================

type DatabaseConfig struct {
	MongoDB MongoConfig
	Redis   RedisConfig
}

type MongoConfig struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        time.Duration
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
	Channel  string
}

// ==============================================
// Security Configuration
// ==============================================

type SecurityConfig struct {
	JWT       JWTConfig
	RateLimit RateLimitConfig
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	ExpiryHour int
}

type RateLimitConfig struct {
	Enabled        bool
	RequestsPerSec float64
	Burst          int
	LoginPerMin    int
	MessagesPerSec float64
	IdleTTL        time.Duration
}

// ==============================================
// Session Configuration
// ==============================================

type SessionConfig struct {
	SingleDevice    bool
	MagicLinkTTL    time.Duration
	RedirectTimeout time.Duration
	MessengerURL    string
}

// ==============================================
// Calls Configuration
// ==============================================

type CallsConfig struct {
	RingTimeout   time.Duration
	SweepSchedule string
	TypingTTL     time.Duration
	STUNServers   []string
	TURNServers   []string
	TURNSecret    string
	TURNTTL       time.Duration
}

// ==============================================
// Spotify Configuration
// ==============================================

type SpotifyConfig struct {
	ClientID      string
	ClientSecret  string
	TokenURL      string
	APIURL        string
	Market        string
	CacheTTL      time.Duration
	PurgeSchedule string
	Timeout       time.Duration
}

// ==============================================
// Media Configuration
// ==============================================

type MediaConfig struct {
	UploadURL    string
	UploadPreset string
	Folder       string
	MaxSize      int64
	AllowedTypes []string
	Timeout      time.Duration
}

// ==============================================
// Store Configuration
// ==============================================

type StoreConfig struct {
	Driver string // mongo | memory
}

func Load() *Config {
	return &Config{
		App:      loadAppConfig(),
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Security: loadSecurityConfig(),
		Session:  loadSessionConfig(),
		Calls:    loadCallsConfig(),
		Spotify:  loadSpotifyConfig(),
		Media:    loadMediaConfig(),
		Store:    StoreConfig{Driver: strings.ToLower(getEnv("STORE_DRIVER", "mongo"))},
	}
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Name:        getEnv("APP_NAME", "Campus Chat"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Domain:      getEnv("APP_DOMAIN", "localhost"),
		BaseURL:     strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		Debug:       getEnvAsBool("DEBUG", false),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		HTTP: HTTPConfig{
			Port:           getEnv("HTTP_PORT", "8080"),
			Host:           getEnv("HTTP_HOST", "0.0.0.0"),
			ReadTimeout:    getEnvAsDuration("HTTP_READ_TIMEOUT", "30s"),
			WriteTimeout:   getEnvAsDuration("HTTP_WRITE_TIMEOUT", "30s"),
			IdleTimeout:    getEnvAsDuration("HTTP_IDLE_TIMEOUT", "60s"),
			MaxHeaderBytes: getEnvAsInt("HTTP_MAX_HEADER_BYTES", 1048576),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER", 1024),
			CheckOrigin:     getEnvAsBool("WS_CHECK_ORIGIN", true),
			PingPeriod:      getEnvAsDuration("WS_PING_PERIOD", "54s"),
			PongWait:        getEnvAsDuration("WS_PONG_WAIT", "60s"),
			WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", "10s"),
			MaxMessageSize:  getEnvAsInt64("WS_MAX_MESSAGE_SIZE", 65536),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvAsSlice("CORS_ORIGINS", "http://localhost:3000"),
			AllowCredentials: getEnvAsBool("CORS_CREDENTIALS", true),
		},
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MongoDB: MongoConfig{
			URI:                    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:               getEnv("MONGODB_DATABASE", "campuschat"),
			MaxPoolSize:            getEnvAsUint64("MONGODB_MAX_POOL_SIZE", 100),
			MinPoolSize:            getEnvAsUint64("MONGODB_MIN_POOL_SIZE", 5),
			MaxConnIdleTime:        getEnvAsDuration("MONGODB_MAX_IDLE_TIME", "30m"),
			ConnectTimeout:         getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", "10s"),
			ServerSelectionTimeout: getEnvAsDuration("MONGODB_SERVER_SELECTION_TIMEOUT", "5s"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
			Channel:  getEnv("REDIS_CHANNEL", "campuschat"),
		},
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Issuer:     getEnv("JWT_ISSUER", "campuschat"),
			ExpiryHour: getEnvAsInt("JWT_EXPIRY_HOURS", 24*30),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSec: getEnvAsFloat64("RATE_LIMIT_RPS", 20),
			Burst:          getEnvAsInt("RATE_LIMIT_BURST", 40),
			LoginPerMin:    getEnvAsInt("RATE_LIMIT_LOGIN_PER_MIN", 10),
			MessagesPerSec: getEnvAsFloat64("RATE_LIMIT_MESSAGES_PER_SEC", 5),
			IdleTTL:        getEnvAsDuration("RATE_LIMIT_IDLE_TTL", "3m"),
		},
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		SingleDevice:    getEnvAsBool("SESSION_SINGLE_DEVICE", true),
		MagicLinkTTL:    getEnvAsDuration("MAGIC_LINK_TTL", "24h"),
		RedirectTimeout: getEnvAsDuration("MAGIC_LINK_REDIRECT_TIMEOUT", "3s"),
		MessengerURL:    getEnv("MESSENGER_URL", "https://wa.me/"),
	}
}

func loadCallsConfig() CallsConfig {
	return CallsConfig{
		RingTimeout:   getEnvAsDuration("CALL_RING_TIMEOUT", "60s"),
		SweepSchedule: getEnv("CALL_SWEEP_SCHEDULE", "@every 15s"),
		TypingTTL:     getEnvAsDuration("TYPING_TTL", "10s"),
		STUNServers:   getEnvAsSlice("STUN_SERVERS", "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"),
		TURNServers:   getEnvAsSlice("TURN_SERVERS", ""),
		TURNSecret:    getEnv("TURN_SECRET", ""),
		TURNTTL:       getEnvAsDuration("TURN_CREDENTIAL_TTL", "12h"),
	}
}

func loadSpotifyConfig() SpotifyConfig {
	return SpotifyConfig{
		ClientID:      getEnv("SPOTIFY_CLIENT_ID", ""),
		ClientSecret:  getEnv("SPOTIFY_CLIENT_SECRET", ""),
		TokenURL:      getEnv("SPOTIFY_TOKEN_URL", "https://accounts.spotify.com/api/token"),
		APIURL:        strings.TrimRight(getEnv("SPOTIFY_API_URL", "https://api.spotify.com/v1"), "/"),
		Market:        getEnv("SPOTIFY_MARKET", "US"),
		CacheTTL:      getEnvAsDuration("SPOTIFY_CACHE_TTL", "24h"),
		PurgeSchedule: getEnv("SPOTIFY_CACHE_PURGE_SCHEDULE", "@daily"),
		Timeout:       getEnvAsDuration("SPOTIFY_TIMEOUT", "10s"),
	}
}

func loadMediaConfig() MediaConfig {
	return MediaConfig{
		UploadURL:    getEnv("MEDIA_UPLOAD_URL", ""),
		UploadPreset: getEnv("MEDIA_UPLOAD_PRESET", ""),
		Folder:       getEnv("MEDIA_FOLDER", "campuschat"),
		MaxSize:      getEnvAsInt64("MEDIA_MAX_SIZE", 5<<20),
		AllowedTypes: getEnvAsSlice("MEDIA_ALLOWED_TYPES", "image/jpeg,image/png,image/gif,image/webp"),
		Timeout:      getEnvAsDuration("MEDIA_TIMEOUT", "30s"),
	}
}

// ==============================================
// Helper Functions
// ==============================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ==============================================
// Configuration Validation
// ==============================================

func (c *Config) Validate() error {
	var errs []error

	if c.Security.JWT.Secret == "" {
		if c.App.Environment == "production" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		} else {
			c.Security.JWT.Secret = "dev-secret-change-me"
		}
	}
	if c.Security.JWT.ExpiryHour <= 0 {
		errs = append(errs, fmt.Errorf("JWT_EXPIRY_HOURS must be positive, got %d", c.Security.JWT.ExpiryHour))
	}
	if c.Session.MagicLinkTTL <= 0 {
		errs = append(errs, errors.New("MAGIC_LINK_TTL must be positive"))
	}
	if c.Spotify.CacheTTL <= 0 {
		errs = append(errs, errors.New("SPOTIFY_CACHE_TTL must be positive"))
	}
	if c.Calls.RingTimeout < 0 {
		errs = append(errs, errors.New("CALL_RING_TIMEOUT must not be negative"))
	}
	switch c.Store.Driver {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	return errors.Join(errs...)
}

// ==============================================
// Environment-specific Configuration
// ==============================================

func (c *Config) ApplyEnvironmentOverrides() {
	switch c.App.Environment {
	case "development":
		c.App.Debug = true
		c.Server.CORS.AllowedOrigins = append(c.Server.CORS.AllowedOrigins, "http://localhost:3001")
	case "test":
		c.Store.Driver = "memory"
		c.Security.RateLimit.Enabled = false
	case "production":
		c.App.Debug = false
		c.Server.WebSocket.CheckOrigin = true
	}
}
