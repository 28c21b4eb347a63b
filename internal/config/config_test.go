package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-service/internal/keys"
)

// chdirEmpty keeps Load from picking up a stray .env in the package dir.
func chdirEmpty(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	chdirEmpty(t)
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JWT_KEY_SOURCE", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, keys.SourceSymmetric, cfg.JWTKeySource)
	assert.Equal(t, 30*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, 64*1024, cfg.Argon2MemoryKB)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_TrustedProxies(t *testing.T) {
	chdirEmpty(t)
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JWT_KEY_SOURCE", "")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7 ,fd00::/8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("fd00::/8"),
	}, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,proxy.internal")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTED_PROXIES")
}

func TestLoad_Overrides(t *testing.T) {
	chdirEmpty(t)
	t.Setenv("JWT_KEY_SOURCE", "RSA")
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/keys/private.pem")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/keys/public.pem")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("HASH_WORKERS", "3")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("RATE_LIMIT_RPM", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, keys.SourceAsymmetric, cfg.JWTKeySource)
	assert.Equal(t, 5*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 3, cfg.HashWorkers)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 100, cfg.RateLimitRPM)

	kc := cfg.KeyConfig()
	assert.Equal(t, "/keys/private.pem", kc.PrivateKeyPath)
	assert.Equal(t, "/keys/public.pem", kc.PublicKeyPath)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SERVER_PORT=9191\nJWT_SECRET=from-dotenv-from-dotenv-from-dotenv\n"), 0o600))
	t.Setenv("SERVER_PORT", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_KEY_SOURCE", "")
	os.Unsetenv("SERVER_PORT")
	os.Unsetenv("JWT_SECRET")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9191", cfg.ServerPort)
	assert.Equal(t, "from-dotenv-from-dotenv-from-dotenv", cfg.JWTSecret)
}

func TestLoad_UnknownKeySource(t *testing.T) {
	chdirEmpty(t)
	t.Setenv("JWT_KEY_SOURCE", "vault")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_KEY_SOURCE")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerPort:        "8080",
			RequestTimeout:    time.Second,
			JWTKeySource:      keys.SourceSymmetric,
			JWTSecret:         "secret",
			JWTAccessTTL:      time.Minute,
			JWTRefreshTTL:     time.Hour,
			Argon2MemoryKB:    1024,
			Argon2Iterations:  1,
			Argon2Parallelism: 1,
			LogFormat:         "pretty",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"asymmetric without paths", func(c *Config) { c.JWTKeySource = keys.SourceAsymmetric }, "JWT_PRIVATE_KEY_PATH"},
		{"unknown source", func(c *Config) { c.JWTKeySource = "vault" }, "not supported"},
		{"refresh shorter than access", func(c *Config) { c.JWTRefreshTTL = time.Second }, "JWT_REFRESH_TTL"},
		{"argon2 memory too small", func(c *Config) { c.Argon2MemoryKB = 4 }, "ARGON2_MEMORY_KB"},
		{"bad pool bounds", func(c *Config) {
			c.DatabaseURL = "postgres://localhost/identity"
			c.DBMaxConns = 1
			c.DBMinConns = 2
			c.DBConnectAttempts = 1
		}, "DB_MIN_CONNS"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
