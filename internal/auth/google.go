package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// GoogleScopes are requested on every authorization redirect.
var GoogleScopes = []string{"openid", "email", "profile"}

// GoogleConfig holds the OAuth client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	DiscoveryURL string
	HTTPClient   *http.Client
}

// GoogleProvider drives the OAuth2 authorization-code flow against an
// OpenID provider described by a discovery document.
type GoogleProvider struct {
	cfg    GoogleConfig
	client *http.Client
}

// UserInfo is the subset of the userinfo response used for sign-in.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
}

type discoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// NewGoogleProvider creates a provider. The discovery document is fetched on
// every flow step.
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleProvider{cfg: cfg, client: client}
}

// AuthCodeURL returns the provider URL the browser is sent to.
func (p *GoogleProvider) AuthCodeURL(ctx context.Context, state, redirectURL string) (string, error) {
	doc, err := p.discover(ctx)
	if err != nil {
		return "", err
	}
	return p.oauthConfig(doc, redirectURL).AuthCodeURL(state), nil
}

// Exchange trades an authorization code for the signed-in user's profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code, redirectURL string) (*UserInfo, error) {
	doc, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	cfg := p.oauthConfig(doc, redirectURL)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	resp, err := cfg.Client(ctx, token).Get(doc.UserinfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &info, nil
}

func (p *GoogleProvider) oauthConfig(doc *discoveryDocument, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       GoogleScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  doc.AuthorizationEndpoint,
			TokenURL: doc.TokenEndpoint,
		},
	}
}

func (p *GoogleProvider) discover(ctx context.Context) (*discoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.DiscoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery document returned %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" || doc.UserinfoEndpoint == "" {
		return nil, fmt.Errorf("discovery document is missing endpoints")
	}
	return &doc, nil
}
