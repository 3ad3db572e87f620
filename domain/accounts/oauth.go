package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// Identity is what a provider tells us about the signed-in person.
type Identity struct {
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
}

// Provider is one OAuth sign-in option.
type Provider interface {
	AuthURL(ctx context.Context, state string) (string, error)
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// Providers holds the configured providers by name.
type Providers map[string]Provider

// NewProviders builds a provider for every configured client.
func NewProviders(cfg *config.Config, log *slog.Logger) Providers {
	log = log.With(logger.Scope("accounts.oauth"))
	out := Providers{}
	if cfg.OAuth.GoogleEnabled() {
		out[ProviderGoogle] = &googleProvider{
			issuer:       cfg.OAuth.GoogleIssuer,
			clientID:     cfg.OAuth.GoogleClientID,
			clientSecret: cfg.OAuth.GoogleClientSecret,
			redirectURI:  callbackURL(cfg, ProviderGoogle),
		}
	}
	if cfg.OAuth.GitHubEnabled() {
		out[ProviderGitHub] = newGitHubProvider(&oauth2.Config{
			ClientID:     cfg.OAuth.GitHubClientID,
			ClientSecret: cfg.OAuth.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  callbackURL(cfg, ProviderGitHub),
			Scopes:       []string{"read:user", "user:email"},
		}, "https://api.github.com")
	}
	for name := range out {
		log.Info("oauth provider enabled", slog.String("provider", name))
	}
	return out
}

func callbackURL(cfg *config.Config, provider string) string {
	return cfg.App.APIURL("/api/auth/oauth/" + provider + "/callback")
}

// googleProvider signs in through Google's OpenID Connect endpoints. Discovery
// runs on first use so a Google outage does not block startup.
type googleProvider struct {
	issuer       string
	clientID     string
	clientSecret string
	redirectURI  string

	mu    sync.Mutex
	party rp.RelyingParty
}

func (g *googleProvider) relyingParty(ctx context.Context) (rp.RelyingParty, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.party != nil {
		return g.party, nil
	}
	party, err := rp.NewRelyingPartyOIDC(ctx, g.issuer, g.clientID, g.clientSecret, g.redirectURI,
		[]string{oidc.ScopeOpenID, oidc.ScopeEmail, oidc.ScopeProfile})
	if err != nil {
		return nil, fmt.Errorf("google discovery: %w", err)
	}
	g.party = party
	return party, nil
}

func (g *googleProvider) AuthURL(ctx context.Context, state string) (string, error) {
	party, err := g.relyingParty(ctx)
	if err != nil {
		return "", err
	}
	return rp.AuthURL(state, party), nil
}

func (g *googleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	party, err := g.relyingParty(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, party)
	if err != nil {
		return nil, fmt.Errorf("google code exchange: %w", err)
	}
	claims := tokens.IDTokenClaims
	return &Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: bool(claims.EmailVerified),
	}, nil
}

// githubProvider uses the plain OAuth2 flow and the REST API for the profile.
type githubProvider struct {
	conf    *oauth2.Config
	apiBase string
}

func newGitHubProvider(conf *oauth2.Config, apiBase string) *githubProvider {
	return &githubProvider{conf: conf, apiBase: strings.TrimRight(apiBase, "/")}
}

func (p *githubProvider) AuthURL(_ context.Context, state string) (string, error) {
	return p.conf.AuthCodeURL(state), nil
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *githubProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github code exchange: %w", err)
	}
	client := p.conf.Client(ctx, tok)

	var u githubUser
	if err := p.get(ctx, client, "/user", &u); err != nil {
		return nil, err
	}
	var emails []githubEmail
	if err := p.get(ctx, client, "/user/emails", &emails); err != nil {
		return nil, err
	}

	id := &Identity{Subject: strconv.FormatInt(u.ID, 10), Name: u.Name}
	if id.Name == "" {
		id.Name = u.Login
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			id.Email = e.Email
			id.EmailVerified = true
			break
		}
	}
	return id, nil
}

func (p *githubProvider) get(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("github %s: decode: %w", path, err)
	}
	return nil
}
