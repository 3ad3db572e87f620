package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/vaguinhas/vaguinhas/domain/email"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/catalog"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/jobs"
	"github.com/vaguinhas/vaguinhas/internal/server"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
)

type fakeUsers struct {
	mu   sync.Mutex
	byID map[string]*users.User
	seq  int
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, addr string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr = users.NormalizeEmail(addr)
	for _, u := range f.byID {
		if u.Email == addr {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Create(_ context.Context, u *users.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.Email = users.NormalizeEmail(u.Email)
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return users.ErrEmailTaken
		}
	}
	f.seq++
	u.ID = fmt.Sprintf("user-%d", f.seq)
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) Update(_ context.Context, u *users.User, _ ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) UpsertOAuth(_ context.Context, addr, name, provider, subject string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr = users.NormalizeEmail(addr)
	for _, u := range f.byID {
		if u.Email == addr {
			if !u.Confirmed {
				u.PasswordHash = nil
			}
			u.Confirmed = true
			return u, nil
		}
	}
	f.seq++
	u := &users.User{ID: fmt.Sprintf("user-%d", f.seq), Email: addr, Name: &name, Confirmed: true, OAuthProvider: &provider, OAuthSubject: &subject}
	f.byID[u.ID] = u
	return u, nil
}

type fakeLinks struct {
	mu    sync.Mutex
	links map[string]*MagicLink
}

func (f *fakeLinks) CreateMagicLink(_ context.Context, l *MagicLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.ID = fmt.Sprintf("link-%d", len(f.links)+1)
	f.links[l.TokenHash] = l
	return nil
}

func (f *fakeLinks) ConsumeMagicLink(_ context.Context, hash string, now time.Time) (*MagicLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[hash]
	if !ok || l.Used || !l.ExpiresAt.After(now) {
		return nil, nil
	}
	l.Used = true
	l.UsedAt = &now
	return l, nil
}

func (f *fakeLinks) DeleteStaleMagicLinks(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, l := range f.links {
		if l.Used || l.ExpiresAt.Before(now) {
			delete(f.links, k)
			n++
		}
	}
	return n, nil
}

type fakeConfirmer struct {
	calls []string
	err   error
}

func (f *fakeConfirmer) RefreshConfirmation(_ context.Context, u *users.User, template, _ string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.calls = append(f.calls, template+":"+u.ID)
	return true, nil
}

// fakeTx drops users created by failed work, as a rollback would.
type fakeTx struct {
	users *fakeUsers
}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.users.mu.Lock()
	before := make(map[string]bool, len(f.users.byID))
	for id := range f.users.byID {
		before[id] = true
	}
	f.users.mu.Unlock()

	err := fn(ctx)
	if err != nil {
		f.users.mu.Lock()
		for id := range f.users.byID {
			if !before[id] {
				delete(f.users.byID, id)
			}
		}
		f.users.mu.Unlock()
	}
	return err
}

type fakeMail struct {
	sent []email.Message
}

func (f *fakeMail) Enqueue(_ context.Context, msg email.Message) (*jobs.Job, bool, error) {
	f.sent = append(f.sent, msg)
	return &jobs.Job{ID: "job"}, true, nil
}

type fakeProvider struct {
	identity *Identity
	err      error
	codes    []string
}

func (f *fakeProvider) AuthURL(_ context.Context, state string) (string, error) {
	return "https://provider.test/authorize?state=" + state, nil
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*Identity, error) {
	f.codes = append(f.codes, code)
	return f.identity, f.err
}

type fixture struct {
	svc       *Service
	users     *fakeUsers
	links     *fakeLinks
	confirmer *fakeConfirmer
	mail      *fakeMail
	provider  *fakeProvider
	cfg       *config.Config
	issuer    *auth.Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.SessionTTL = time.Hour
	cfg.Auth.SessionCookie = "vaguinhas_session"
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.Auth.MagicLinkTTL = 15 * time.Minute
	cfg.App.FrontendURL = "https://vaguinhas.test"

	issuer, err := auth.NewIssuer(cfg)
	require.NoError(t, err)

	f := &fixture{
		users:     &fakeUsers{byID: map[string]*users.User{}},
		links:     &fakeLinks{links: map[string]*MagicLink{}},
		confirmer: &fakeConfirmer{},
		mail:      &fakeMail{},
		provider:  &fakeProvider{},
		cfg:       cfg,
		issuer:    issuer,
	}
	f.svc = NewService(ServiceParams{
		Users:     f.users,
		Links:     f.links,
		Confirmer: f.confirmer,
		Tx:        &fakeTx{users: f.users},
		Mail:      f.mail,
		Issuer:    issuer,
		Providers: Providers{"github": f.provider},
		Config:    cfg,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func requireAppError(t *testing.T, err error, status int, code string) {
	t.Helper()
	appErr, ok := apperror.As(err)
	require.True(t, ok, "expected app error, got %v", err)
	assert.Equal(t, status, appErr.HTTPStatus)
	if code != "" {
		assert.Equal(t, code, appErr.Code)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, &RegisterRequest{Email: "Ana@Example.com", Password: "s3nha-forte"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	require.NotNil(t, user.PasswordHash)
	assert.NotEqual(t, "s3nha-forte", *user.PasswordHash)
	assert.Equal(t, []string{"confirmation:" + user.ID}, f.confirmer.calls)

	_, err = f.svc.Register(ctx, &RegisterRequest{Email: "ana@example.com", Password: "outra-senha"})
	requireAppError(t, err, http.StatusConflict, "")

	_, err = f.svc.Login(ctx, &LoginRequest{Email: "ana@example.com", Password: "s3nha-forte"})
	requireAppError(t, err, http.StatusForbidden, "email_not_confirmed")

	user.Confirmed = true
	_, err = f.svc.Login(ctx, &LoginRequest{Email: "ana@example.com", Password: "errada123"})
	requireAppError(t, err, http.StatusUnauthorized, "invalid_credentials")

	_, err = f.svc.Login(ctx, &LoginRequest{Email: "nobody@example.com", Password: "s3nha-forte"})
	requireAppError(t, err, http.StatusUnauthorized, "invalid_credentials")

	sess, err := f.svc.Login(ctx, &LoginRequest{Email: "ANA@example.com", Password: "s3nha-forte"})
	require.NoError(t, err)
	claims, err := f.issuer.Parse(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, "ana@example.com", sess.User.Email)
}

func TestRegister_ConfirmationFailureKeepsNoAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmer.err = apperror.NewInternal("failed to queue confirmation email", errors.New("queue down"))

	_, err := f.svc.Register(ctx, &RegisterRequest{Email: "ana@example.com", Password: "s3nha-forte"})
	requireAppError(t, err, http.StatusInternalServerError, "")
	assert.Empty(t, f.users.byID)

	f.confirmer.err = nil
	user, err := f.svc.Register(ctx, &RegisterRequest{Email: "ana@example.com", Password: "s3nha-forte"})
	require.NoError(t, err)
	assert.Equal(t, []string{"confirmation:" + user.ID}, f.confirmer.calls)
}

func TestLogin_NoPassword(t *testing.T) {
	f := newFixture(t)
	f.users.byID["u1"] = &users.User{ID: "u1", Email: "ana@example.com", Confirmed: true}

	_, err := f.svc.Login(context.Background(), &LoginRequest{Email: "ana@example.com", Password: "whatever1"})
	requireAppError(t, err, http.StatusUnauthorized, "invalid_credentials")
}

func magicToken(t *testing.T, msg email.Message) string {
	t.Helper()
	raw, ok := msg.Data["loginUrl"].(string)
	require.True(t, ok)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestMagicLink_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.users.byID["u1"] = &users.User{ID: "u1", Email: "ana@example.com"}

	require.NoError(t, f.svc.RequestMagicLink(ctx, "nobody@example.com"))
	assert.Empty(t, f.mail.sent)

	require.NoError(t, f.svc.RequestMagicLink(ctx, "ana@example.com"))
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "magic-link", f.mail.sent[0].Template)
	assert.Equal(t, 15, f.mail.sent[0].Data["expiresMinutes"])
	token := magicToken(t, f.mail.sent[0])

	sess, err := f.svc.VerifyMagicLink(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.User.ID)
	assert.True(t, f.users.byID["u1"].Confirmed)

	_, err = f.svc.VerifyMagicLink(ctx, token)
	requireAppError(t, err, http.StatusUnauthorized, "invalid_magic_link")

	_, err = f.svc.VerifyMagicLink(ctx, "never-issued")
	requireAppError(t, err, http.StatusUnauthorized, "invalid_magic_link")
}

func TestMagicLink_ConcurrentVerifyOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.users.byID["u1"] = &users.User{ID: "u1", Email: "ana@example.com", Confirmed: true}
	require.NoError(t, f.svc.RequestMagicLink(ctx, "ana@example.com"))
	token := magicToken(t, f.mail.sent[0])

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.VerifyMagicLink(ctx, token); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMagicLink_ExpiredAndCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.users.byID["u1"] = &users.User{ID: "u1", Email: "ana@example.com", Confirmed: true}
	require.NoError(t, f.svc.RequestMagicLink(ctx, "ana@example.com"))
	token := magicToken(t, f.mail.sent[0])

	f.svc.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	_, err := f.svc.VerifyMagicLink(ctx, token)
	requireAppError(t, err, http.StatusUnauthorized, "invalid_magic_link")

	n, err := f.svc.CleanupMagicLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOAuthCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.OAuthCallback(ctx, "myspace", "code")
	requireAppError(t, err, http.StatusNotFound, "unknown_provider")

	f.provider.identity = &Identity{Subject: "42", Email: "ana@example.com", Name: "Ana"}
	_, err = f.svc.OAuthCallback(ctx, "github", "code")
	requireAppError(t, err, http.StatusForbidden, "email_not_verified")

	f.provider.identity.EmailVerified = true
	sess, err := f.svc.OAuthCallback(ctx, "github", "code")
	require.NoError(t, err)
	assert.True(t, sess.User.Confirmed)
	require.NotNil(t, sess.User.OAuthProvider)
	assert.Equal(t, "github", *sess.User.OAuthProvider)

	f.provider.err = errors.New("bad code")
	_, err = f.svc.OAuthCallback(ctx, "github", "code")
	requireAppError(t, err, http.StatusUnauthorized, "")
}

func testHandler(t *testing.T, f *fixture) (*Handler, *echo.Echo) {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	v, err := server.NewValidator(cat)
	require.NoError(t, err)
	e := echo.New()
	e.Validator = v
	mw := auth.NewMiddleware(f.issuer, f.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewHandler(f.svc, mw, f.cfg, slog.New(slog.NewTextHandler(io.Discard, nil))), e
}

func TestHandler_MagicLinkAlwaysAccepted(t *testing.T) {
	f := newFixture(t)
	h, e := testHandler(t, f)

	for _, addr := range []string{"nobody@example.com", "ana@example.com"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/magic-link", strings.NewReader(`{"email":"`+addr+`"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		require.NoError(t, h.RequestMagicLink(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	}
}

func TestHandler_LoginSetsCookie(t *testing.T) {
	f := newFixture(t)
	h, e := testHandler(t, f)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3nha-forte"), bcrypt.MinCost)
	require.NoError(t, err)
	hashed := string(hash)
	f.users.byID["u1"] = &users.User{ID: "u1", Email: "ana@example.com", Confirmed: true, PasswordHash: &hashed}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"ana@example.com","password":"s3nha-forte"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Login(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "vaguinhas_session=")
	assert.Contains(t, rec.Body.String(), `"token"`)
}

func TestHandler_OAuthFlow(t *testing.T) {
	f := newFixture(t)
	h, e := testHandler(t, f)
	f.provider.identity = &Identity{Subject: "42", Email: "ana@example.com", EmailVerified: true}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/oauth/github/start", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("provider")
	c.SetParamValues("github")
	require.NoError(t, h.OAuthStart(c))
	assert.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "github."+state, cookies[0].Value)

	// Wrong state is rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/oauth/github/callback?state=forged&code=abc", nil)
	req.AddCookie(cookies[0])
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("provider")
	c.SetParamValues("github")
	err = h.OAuthCallback(c)
	requireAppError(t, err, http.StatusBadRequest, "")
	assert.Empty(t, f.provider.codes)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/oauth/github/callback?state="+state+"&code=abc", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("provider")
	c.SetParamValues("github")
	require.NoError(t, h.OAuthCallback(c))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://vaguinhas.test/", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, []string{"abc"}, f.provider.codes)

	var session bool
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "vaguinhas_session" && ck.Value != "" {
			session = true
		}
	}
	assert.True(t, session)
}

func TestGitHubProvider_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login/oauth/access_token":
			_, _ = io.WriteString(w, `{"access_token":"gh-token","token_type":"bearer"}`)
		case "/user":
			assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"id":42,"login":"ana","name":""}`)
		case "/user/emails":
			_, _ = io.WriteString(w, `[{"email":"old@example.com","primary":false,"verified":true},{"email":"ana@example.com","primary":true,"verified":true}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := newGitHubProvider(&oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		},
		RedirectURL: "https://api.vaguinhas.test/api/auth/oauth/github/callback",
	}, srv.URL+"/")

	authURL, err := p.AuthURL(context.Background(), "st4te")
	require.NoError(t, err)
	assert.Contains(t, authURL, "state=st4te")

	id, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, &Identity{Subject: "42", Email: "ana@example.com", Name: "ana", EmailVerified: true}, id)
}

func TestNewProviders(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.PublicURL = "https://api.vaguinhas.test"
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Empty(t, NewProviders(cfg, log))

	cfg.OAuth.GitHubClientID = "id"
	cfg.OAuth.GitHubClientSecret = "secret"
	cfg.OAuth.GoogleClientID = "gid"
	cfg.OAuth.GoogleClientSecret = "gsecret"
	ps := NewProviders(cfg, log)
	assert.Len(t, ps, 2)
	gh := ps[ProviderGitHub].(*githubProvider)
	assert.Equal(t, "https://api.vaguinhas.test/api/auth/oauth/github/callback", gh.conf.RedirectURL)
}

func TestMagicLink_DropsPasswordOfUnconfirmedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Someone registers an address they do not own.
	_, err := f.svc.Register(ctx, &RegisterRequest{Email: "vitima@example.com", Password: "senha-alheia"})
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestMagicLink(ctx, "vitima@example.com"))
	sess, err := f.svc.VerifyMagicLink(ctx, magicToken(t, f.mail.sent[0]))
	require.NoError(t, err)
	assert.True(t, sess.User.Confirmed)

	_, err = f.svc.Login(ctx, &LoginRequest{Email: "vitima@example.com", Password: "senha-alheia"})
	requireAppError(t, err, http.StatusUnauthorized, "invalid_credentials")
}

func TestMagicLink_KeepsPasswordOfConfirmedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, &RegisterRequest{Email: "ana@example.com", Password: "s3nha-forte"})
	require.NoError(t, err)
	user.Confirmed = true

	require.NoError(t, f.svc.RequestMagicLink(ctx, "ana@example.com"))
	_, err = f.svc.VerifyMagicLink(ctx, magicToken(t, f.mail.sent[0]))
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, &LoginRequest{Email: "ana@example.com", Password: "s3nha-forte"})
	require.NoError(t, err)
}

func TestOAuthCallback_DropsPasswordOfUnconfirmedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, &RegisterRequest{Email: "vitima@example.com", Password: "senha-alheia"})
	require.NoError(t, err)

	f.provider.identity = &Identity{Subject: "7", Email: "vitima@example.com", EmailVerified: true}
	sess, err := f.svc.OAuthCallback(ctx, "github", "code")
	require.NoError(t, err)
	assert.True(t, sess.User.Confirmed)

	_, err = f.svc.Login(ctx, &LoginRequest{Email: "vitima@example.com", Password: "senha-alheia"})
	requireAppError(t, err, http.StatusUnauthorized, "invalid_credentials")
}
