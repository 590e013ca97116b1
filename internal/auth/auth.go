// Package auth provides Google OAuth2 credentials for the Gmail API.
//
// It reads the client secret downloaded from the Google Cloud Console and a
// token.json in the google-auth authorized-user format, so tokens created by
// other Google client tools work without re-authentication. When no usable
// token exists it runs the installed-app loopback flow and saves the result in
// the same format.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// DefaultScopes grants read-only mailbox access.
var DefaultScopes = []string{gmail.GmailReadonlyScope}

// ErrNoCredentials is returned when no client secret file matches.
var ErrNoCredentials = errors.New("client secret file not found")

// tokenExpiryLayout is how google-auth writes token expiry.
const tokenExpiryLayout = "2006-01-02T15:04:05.999999Z"

// tokenFile is the google-auth authorized-user token.json format.
type tokenFile struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       string   `json:"expiry"`
}

// AuthorizeFunc obtains a fresh token interactively.
type AuthorizeFunc func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

// Manager loads, refreshes and persists OAuth tokens.
type Manager struct {
	configDir         string
	credentialPattern string
	scopes            []string
	authorize         AuthorizeFunc
	logger            zerolog.Logger
}

// NewManager returns a credential manager that keeps token.json in configDir
// and finds the client secret by globbing credentialPattern inside it.
func NewManager(configDir, credentialPattern string, logger zerolog.Logger) *Manager {
	return &Manager{
		configDir:         configDir,
		credentialPattern: credentialPattern,
		scopes:            DefaultScopes,
		authorize:         LoopbackFlow,
		logger:            logger.With().Str("component", "auth").Logger(),
	}
}

// WithAuthorizer replaces the interactive flow.
func (m *Manager) WithAuthorizer(fn AuthorizeFunc) *Manager {
	m.authorize = fn
	return m
}

// TokenPath returns where the token is stored.
func (m *Manager) TokenPath() string {
	return filepath.Join(m.configDir, "token.json")
}

// OAuthConfig reads the client secret file and returns an OAuth2 config.
func (m *Manager) OAuthConfig() (*oauth2.Config, error) {
	matches, err := filepath.Glob(filepath.Join(m.configDir, m.credentialPattern))
	if err != nil {
		return nil, fmt.Errorf("glob credentials: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w in %s (download it from the Google Cloud Console)", ErrNoCredentials, m.configDir)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("read credentials from %s: %w", matches[0], err)
	}

	config, err := google.ConfigFromJSON(data, m.scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return config, nil
}

// Authenticate runs the interactive flow unconditionally and saves the token.
func (m *Manager) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	config, err := m.OAuthConfig()
	if err != nil {
		return nil, err
	}
	return m.authenticate(ctx, config)
}

func (m *Manager) authenticate(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	token, err := m.authorize(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	if err := saveTokenFile(m.TokenPath(), token, config, m.scopes); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return token, nil
}

// Token returns a valid token: the stored one, refreshed if expired, or a
// freshly authorized one when no usable token is on disk.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	ts, err := m.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return ts.Token()
}

// TokenSource returns a token source that refreshes and persists tokens.
func (m *Manager) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	config, err := m.OAuthConfig()
	if err != nil {
		return nil, err
	}

	token, err := loadTokenFile(m.TokenPath())
	if err != nil {
		m.logger.Info().Err(err).Str("path", m.TokenPath()).Msg("no usable token, starting authorization")
		token, err = m.authenticate(ctx, config)
		if err != nil {
			return nil, err
		}
	} else {
		m.logger.Debug().Str("path", m.TokenPath()).Bool("valid", token.Valid()).Msg("loaded token")
	}

	pts := &persistentTokenSource{
		source:    config.TokenSource(ctx, token),
		config:    config,
		scopes:    m.scopes,
		tokenPath: m.TokenPath(),
		lastToken: token,
		logger:    m.logger,
	}
	// Refresh eagerly so an expired token is replaced on disk right away.
	if _, err := pts.Token(); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return pts, nil
}

// HTTPClient returns an authenticated HTTP client.
func (m *Manager) HTTPClient(ctx context.Context) (*http.Client, error) {
	ts, err := m.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// GmailService returns an authenticated Gmail API service.
func (m *Manager) GmailService(ctx context.Context) (*gmail.Service, error) {
	client, err := m.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("get oauth client: %w", err)
	}
	return gmail.NewService(ctx, option.WithHTTPClient(client))
}

// persistentTokenSource saves refreshed tokens back in google-auth format.
type persistentTokenSource struct {
	mu        sync.Mutex
	source    oauth2.TokenSource
	config    *oauth2.Config
	scopes    []string
	tokenPath string
	lastToken *oauth2.Token
	logger    zerolog.Logger
}

func (p *persistentTokenSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, err := p.source.Token()
	if err != nil {
		return nil, err
	}

	if token.AccessToken != p.lastToken.AccessToken {
		if err := saveTokenFile(p.tokenPath, token, p.config, p.scopes); err != nil {
			// The token is still valid in memory.
			p.logger.Warn().Err(err).Msg("could not save refreshed token")
		} else {
			p.logger.Info().Msg("token refreshed")
		}
		p.lastToken = token
	}
	return token, nil
}

// loadTokenFile reads a token.json file in google-auth format.
func loadTokenFile(tokenPath string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	var pt tokenFile
	if err := json.Unmarshal(data, &pt); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if pt.Token == "" && pt.RefreshToken == "" {
		return nil, fmt.Errorf("parse token: no access or refresh token in %s", tokenPath)
	}

	// google-auth writes ISO 8601 with microseconds.
	var expiry time.Time
	if pt.Expiry != "" {
		for _, layout := range []string{
			tokenExpiryLayout,
			"2006-01-02T15:04:05Z",
			time.RFC3339,
			time.RFC3339Nano,
		} {
			if t, err := time.Parse(layout, pt.Expiry); err == nil {
				expiry = t
				break
			}
		}
	}

	return &oauth2.Token{
		AccessToken:  pt.Token,
		RefreshToken: pt.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}, nil
}

// saveTokenFile writes a token in google-auth format with 0600 permissions.
func saveTokenFile(tokenPath string, token *oauth2.Token, config *oauth2.Config, scopes []string) error {
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	pt := tokenFile{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     config.Endpoint.TokenURL,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       scopes,
	}
	if !token.Expiry.IsZero() {
		pt.Expiry = token.Expiry.UTC().Format(tokenExpiryLayout)
	}

	data, err := json.MarshalIndent(pt, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath, data, 0o600)
}
