package earthengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Scope is the OAuth scope of the Earth Engine API.
const Scope = "https://www.googleapis.com/auth/earthengine"

const (
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL   = time.Hour
	// Tokens are refreshed this long before they expire.
	refreshMargin = time.Minute
)

// ErrNoCredentials is returned when neither a token nor a service account
// key is configured.
var ErrNoCredentials = errors.New("earthengine: no credentials configured")

// TokenSource supplies OAuth access tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed access token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredentials
	}
	return string(s), nil
}

// ServiceAccountConfig is a service-account key.
type ServiceAccountConfig struct {
	ClientEmail  string
	PrivateKeyID string
	PrivateKey   string // PEM
	TokenURI     string
}

// ServiceAccount exchanges a signed JWT assertion for an access token and
// caches it until shortly before expiry.
type ServiceAccount struct {
	cfg        ServiceAccountConfig
	httpClient *http.Client
	clock      clockwork.Clock

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewServiceAccount creates a token source from a service-account key.
func NewServiceAccount(cfg ServiceAccountConfig, httpClient *http.Client, clock clockwork.Clock) (*ServiceAccount, error) {
	if cfg.ClientEmail == "" || cfg.PrivateKey == "" || cfg.TokenURI == "" {
		return nil, ErrNoCredentials
	}
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey)); err != nil {
		return nil, fmt.Errorf("earthengine: parsing private key: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ServiceAccount{cfg: cfg, httpClient: httpClient, clock: clock}, nil
}

// Token returns a cached token or fetches a new one.
func (s *ServiceAccount) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.clock.Now().Before(s.expires.Add(-refreshMargin)) {
		return s.token, nil
	}

	assertion, err := s.assertion()
	if err != nil {
		return "", err
	}
	token, ttl, err := s.exchange(ctx, assertion)
	if err != nil {
		return "", err
	}

	s.token = token
	s.expires = s.clock.Now().Add(ttl)
	return token, nil
}

func (s *ServiceAccount) assertion() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.cfg.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("earthengine: parsing private key: %w", err)
	}

	now := s.clock.Now()
	claims := jwt.MapClaims{
		"iss":   s.cfg.ClientEmail,
		"scope": Scope,
		"aud":   s.cfg.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.cfg.PrivateKeyID != "" {
		t.Header["kid"] = s.cfg.PrivateKeyID
	}
	return t.SignedString(key)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (s *ServiceAccount) exchange(ctx context.Context, assertion string) (string, time.Duration, error) {
	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, fmt.Errorf("token endpoint: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, errors.New("token endpoint returned no access token")
	}
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = assertionTTL
	}
	return tr.AccessToken, ttl, nil
}
