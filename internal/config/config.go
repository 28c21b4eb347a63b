package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"identity-service/internal/keys"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	// DatabaseURL empty selects the in-memory user store.
	DatabaseURL       string
	DBMaxConns        int
	DBMinConns        int
	DBConnectAttempts int

	JWTKeySource      keys.Source
	JWTSecret         string
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTAccessTTL      time.Duration
	JWTRefreshTTL     time.Duration

	HashWorkers       int
	Argon2MemoryKB    int
	Argon2Iterations  int
	Argon2Parallelism int

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the socket peer is the client.
	TrustedProxies []netip.Prefix

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	source, err := keys.ParseSource(getEnv("JWT_KEY_SOURCE", string(keys.SourceSymmetric)))
	if err != nil {
		return nil, fmt.Errorf("JWT_KEY_SOURCE: %w", err)
	}

	trusted, err := parsePrefixes(splitCSV(getEnv("TRUSTED_PROXIES", "")))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 15*time.Second),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              getInt("DB_MAX_CONNS", 10),
		DBMinConns:              getInt("DB_MIN_CONNS", 1),
		DBConnectAttempts:       getInt("DB_CONNECT_ATTEMPTS", 5),
		JWTKeySource:            source,
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTPrivateKeyPath:       getEnv("JWT_PRIVATE_KEY_PATH", ""),
		JWTPublicKeyPath:        getEnv("JWT_PUBLIC_KEY_PATH", ""),
		JWTAccessTTL:            getDuration("JWT_ACCESS_TTL", 30*time.Minute),
		JWTRefreshTTL:           getDuration("JWT_REFRESH_TTL", 24*time.Hour),
		HashWorkers:             getInt("HASH_WORKERS", 0),
		Argon2MemoryKB:          getInt("ARGON2_MEMORY_KB", 64*1024),
		Argon2Iterations:        getInt("ARGON2_ITERATIONS", 1),
		Argon2Parallelism:       getInt("ARGON2_PARALLELISM", 4),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 10),
		TrustedProxies:          trusted,
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:               strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// KeyConfig returns the settings the signing key provider is built from.
func (c *Config) KeyConfig() keys.Config {
	return keys.Config{
		Source:         c.JWTKeySource,
		Secret:         c.JWTSecret,
		PrivateKeyPath: c.JWTPrivateKeyPath,
		PublicKeyPath:  c.JWTPublicKeyPath,
	}
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	switch c.JWTKeySource {
	case keys.SourceSymmetric:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required for the symmetric key source")
		}
	case keys.SourceAsymmetric:
		if c.JWTPrivateKeyPath == "" || c.JWTPublicKeyPath == "" {
			return fmt.Errorf("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH are required for the asymmetric key source")
		}
	default:
		return fmt.Errorf("JWT_KEY_SOURCE %q is not supported", c.JWTKeySource)
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}

	if c.JWTRefreshTTL < c.JWTAccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL must not be shorter than JWT_ACCESS_TTL")
	}

	if c.Argon2MemoryKB < 8*c.Argon2Parallelism {
		return fmt.Errorf("ARGON2_MEMORY_KB must be at least 8 * ARGON2_PARALLELISM")
	}

	if c.Argon2Iterations < 1 {
		return fmt.Errorf("ARGON2_ITERATIONS must be at least 1")
	}

	if c.Argon2Parallelism < 1 || c.Argon2Parallelism > 255 {
		return fmt.Errorf("ARGON2_PARALLELISM must be between 1 and 255")
	}

	if c.DatabaseURL != "" {
		if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS and DB_MAX_CONNS must satisfy 0 <= min <= max, max >= 1")
		}
		if c.DBConnectAttempts < 1 {
			return fmt.Errorf("DB_CONNECT_ATTEMPTS must be at least 1")
		}
	}

	switch c.LogFormat {
	case "pretty", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be pretty or json")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}

// parsePrefixes accepts CIDRs and bare addresses; a bare address becomes a
// single-host prefix.
func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, entry := range raw {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%q is neither a CIDR nor an IP address", entry)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return out, nil
}
