// Package keys resolves the key material used to sign and verify tokens.
//
// A Provider is configured with exactly one Source. Key material is loaded
// and parsed once, when the Provider is built; afterwards only an explicit
// Reload touches the key store again.
package keys

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"

	"identity-service/internal/model"
)

// Source selects where signing keys come from and, with that, the algorithm.
type Source string

const (
	// SourceSymmetric signs and verifies with one shared secret (HS256).
	SourceSymmetric Source = "symmetric"
	// SourceAsymmetric signs with an RSA private key and verifies with its
	// public key (RS256), both read from PEM files.
	SourceAsymmetric Source = "asymmetric"
)

const minSecretLength = 32

// ParseSource accepts "symmetric" or "asymmetric". The values "hmac" and
// "rsa" are accepted as aliases.
func ParseSource(raw string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "symmetric", "hmac":
		return SourceSymmetric, nil
	case "asymmetric", "rsa":
		return SourceAsymmetric, nil
	default:
		return "", fmt.Errorf("unknown key source %q: expected symmetric or asymmetric", raw)
	}
}

func (s Source) String() string {
	return string(s)
}

// Method returns the JWT signing method implied by the source.
func (s Source) Method() jwt.SigningMethod {
	if s == SourceAsymmetric {
		return jwt.SigningMethodRS256
	}
	return jwt.SigningMethodHS256
}

type Config struct {
	Source         Source
	Secret         string
	PrivateKeyPath string
	PublicKeyPath  string
}

type keySet struct {
	signing      any
	verification any
}

type Provider struct {
	cfg  Config
	keys atomic.Pointer[keySet]
}

// New validates cfg and loads its key material. Failures wrap
// model.ErrKeyLoad (the key store could not be read) or model.ErrKeyFormat
// (the content is not a usable key).
func New(cfg Config) (*Provider, error) {
	if cfg.Source != SourceSymmetric && cfg.Source != SourceAsymmetric {
		return nil, fmt.Errorf("%w: unknown key source %q", model.ErrKeyFormat, cfg.Source)
	}

	p := &Provider{cfg: cfg}
	set, err := p.load()
	if err != nil {
		return nil, err
	}
	p.keys.Store(set)

	return p, nil
}

// Reload re-reads the configured key material. On failure the keys loaded
// previously stay in use.
func (p *Provider) Reload() error {
	set, err := p.load()
	if err != nil {
		return err
	}
	p.keys.Store(set)
	slog.Info("signing keys reloaded", "source", p.cfg.Source.String())
	return nil
}

func (p *Provider) Source() Source {
	return p.cfg.Source
}

func (p *Provider) Method() jwt.SigningMethod {
	return p.cfg.Source.Method()
}

// SigningKey returns the secret bytes or the *rsa.PrivateKey.
func (p *Provider) SigningKey() any {
	return p.keys.Load().signing
}

// VerificationKey returns the secret bytes or the *rsa.PublicKey.
func (p *Provider) VerificationKey() any {
	return p.keys.Load().verification
}

func (p *Provider) load() (*keySet, error) {
	if p.cfg.Source == SourceAsymmetric {
		return loadRSA(p.cfg.PrivateKeyPath, p.cfg.PublicKeyPath)
	}
	return loadSecret(p.cfg.Secret)
}

func loadSecret(secret string) (*keySet, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: symmetric source requires a secret", model.ErrKeyLoad)
	}
	if len(secret) < minSecretLength {
		slog.Warn("symmetric signing secret is shorter than recommended", "min_length", minSecretLength)
	}

	key := []byte(secret)
	return &keySet{signing: key, verification: key}, nil
}

func loadRSA(privatePath string, publicPath string) (*keySet, error) {
	privatePEM, err := readKeyFile("private", privatePath)
	if err != nil {
		return nil, err
	}
	publicPEM, err := readKeyFile("public", publicPath)
	if err != nil {
		return nil, err
	}

	private, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not an RSA PEM key", model.ErrKeyFormat)
	}
	public, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not an RSA PEM key", model.ErrKeyFormat)
	}
	if !public.Equal(private.Public()) {
		return nil, fmt.Errorf("%w: public key does not match private key", model.ErrKeyFormat)
	}

	return &keySet{signing: private, verification: public}, nil
}

func readKeyFile(kind string, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: %s key path is not configured", model.ErrKeyLoad, kind)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s key: %w", model.ErrKeyLoad, kind, err)
	}
	return data, nil
}
