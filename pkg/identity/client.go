package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
	"golang.org/x/sync/singleflight"

	"github.com/telekom/azauth/pkg/authflow"
	"github.com/telekom/azauth/pkg/version"
)

// minValidity is how long a cached access token must still be valid to be
// returned without a refresh.
const minValidity = 2 * time.Minute

// DeviceCodePrompt is what the user needs to complete a device code login.
type DeviceCodePrompt struct {
	UserCode        string
	VerificationURI string
	Message         string
	ExpiresIn       time.Duration
}

// InteractiveRequest configures an interactive or broker login.
type InteractiveRequest struct {
	Scopes     []string
	Account    *Account
	Claims     string
	PromptHint string
	Domain     string
}

// Client is the token acquisition surface the strategies consume.
type Client interface {
	Accounts(ctx context.Context, domain string) ([]Account, error)
	Silent(ctx context.Context, scopes []string, account *Account) (*authflow.Token, error)
	Interactive(ctx context.Context, req InteractiveRequest) (*authflow.Token, error)
	DeviceCode(ctx context.Context, scopes []string, prompt func(DeviceCodePrompt)) (*authflow.Token, error)
	IntegratedWindows(ctx context.Context, scopes []string) (*authflow.Token, error)
	Broker(ctx context.Context, req InteractiveRequest) (*authflow.Token, error)
	ClearCache() error
}

// Config configures an OIDCClient.
type Config struct {
	ClientID string
	TenantID string
	// Authority is an OIDC issuer URL. When empty the Azure AD v2 endpoints
	// of TenantID are used.
	Authority       string
	CAFile          string
	InsecureSkipTLS bool
	// NoBrowser prints the login URL instead of opening a browser.
	NoBrowser bool
	// DevicePollInterval overrides the polling interval announced by the
	// device authorization endpoint.
	DevicePollInterval time.Duration
	// PromptOutput receives the messages shown to the user. Defaults to stderr.
	PromptOutput io.Writer
}

// OIDCClient implements Client with OAuth2 grants against an OIDC provider.
type OIDCClient struct {
	cfg        Config
	log        *zap.SugaredLogger
	store      Store
	httpClient *http.Client
	rest       *resty.Client

	discovery singleflight.Group
	mu        sync.Mutex
	resolved  *oauth2.Endpoint

	cacheMu sync.Mutex

	// openBrowser is replaced in tests.
	openBrowser func(url string) error
	now         func() time.Time
}

// NewOIDCClient validates cfg and returns a client using store as token cache.
func NewOIDCClient(log *zap.SugaredLogger, cfg Config, store Store) (*OIDCClient, error) {
	if cfg.ClientID == "" || cfg.TenantID == "" {
		return nil, errors.New("client and tenant are required")
	}
	if store == nil {
		return nil, errors.New("token store is required")
	}
	httpClient, err := newHTTPClient(cfg.CAFile, cfg.InsecureSkipTLS)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.PromptOutput == nil {
		cfg.PromptOutput = os.Stderr
	}
	if !cfg.NoBrowser && strings.EqualFold(os.Getenv("AZAUTH_NO_BROWSER"), "true") {
		cfg.NoBrowser = true
	}
	return &OIDCClient{
		cfg:         cfg,
		log:         log.With("client", cfg.ClientID, "tenant", cfg.TenantID),
		store:       store,
		httpClient:  httpClient,
		rest:        resty.NewWithClient(httpClient).SetHeader("User-Agent", version.UserAgent()),
		openBrowser: openBrowser,
		now:         time.Now,
	}, nil
}

// Partition is the cache partition and lock key of this client registration.
func (c *OIDCClient) Partition() string {
	return c.cfg.TenantID + "_" + c.cfg.ClientID
}

// endpoints resolves the provider endpoints once. Concurrent callers share a
// single discovery request.
func (c *OIDCClient) endpoints(ctx context.Context) (*oauth2.Endpoint, error) {
	c.mu.Lock()
	if c.resolved != nil {
		defer c.mu.Unlock()
		return c.resolved, nil
	}
	c.mu.Unlock()

	if c.cfg.Authority == "" {
		ep := microsoft.AzureADEndpoint(c.cfg.TenantID)
		if ep.DeviceAuthURL == "" {
			ep.DeviceAuthURL = strings.TrimSuffix(ep.TokenURL, "/token") + "/devicecode"
		}
		return c.storeEndpoints(&ep), nil
	}

	v, err, _ := c.discovery.Do(c.cfg.Authority, func() (interface{}, error) {
		return c.discover(ctx)
	})
	if err != nil {
		return nil, err
	}
	return c.storeEndpoints(v.(*oauth2.Endpoint)), nil
}

func (c *OIDCClient) storeEndpoints(ep *oauth2.Endpoint) *oauth2.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved == nil {
		c.resolved = ep
	}
	return c.resolved
}

func (c *OIDCClient) discover(ctx context.Context) (*oauth2.Endpoint, error) {
	c.log.Debugw("Discovering OIDC provider", "authority", c.cfg.Authority)
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), c.cfg.Authority)
	if err != nil {
		return nil, authflow.NewAuthError(authflow.KindService, "discovery", fmt.Errorf("failed to discover OIDC provider: %w", err))
	}
	ep := provider.Endpoint()
	if ep.DeviceAuthURL == "" {
		var extra struct {
			DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
		}
		if err := provider.Claims(&extra); err == nil {
			ep.DeviceAuthURL = extra.DeviceAuthorizationEndpoint
		}
	}
	return &ep, nil
}

func (c *OIDCClient) oauthConfig(ep *oauth2.Endpoint, scopes []string, redirectURL string) oauth2.Config {
	return oauth2.Config{
		ClientID:    c.cfg.ClientID,
		Endpoint:    *ep,
		RedirectURL: redirectURL,
		Scopes:      withOIDCScopes(scopes),
	}
}

// withOIDCScopes adds the scopes needed for an ID token and a refresh token.
func withOIDCScopes(scopes []string) []string {
	out := append([]string(nil), scopes...)
	for _, s := range []string{oidc.ScopeOpenID, "profile", oidc.ScopeOfflineAccess} {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func (c *OIDCClient) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Accounts lists cached accounts of this client registration whose user
// name ends in "@<domain>". An empty domain matches all accounts.
func (c *OIDCClient) Accounts(_ context.Context, domain string) ([]Account, error) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	cache, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load token cache: %w", err)
	}
	suffix := ""
	if domain = strings.TrimSpace(domain); domain != "" {
		suffix = "@" + strings.ToLower(strings.TrimPrefix(domain, "@"))
	}
	var accounts []Account
	for _, e := range cache.Partition(c.Partition()) {
		if suffix != "" && !strings.HasSuffix(strings.ToLower(e.Account.Username), suffix) {
			continue
		}
		accounts = append(accounts, e.Account)
	}
	return accounts, nil
}

// ClearCache drops every cached token of this client registration.
func (c *OIDCClient) ClearCache() error {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	cache, err := c.store.Load()
	if err != nil {
		return err
	}
	prefix := c.Partition() + "/"
	for k := range cache.Entries {
		if strings.HasPrefix(k, prefix) {
			delete(cache.Entries, k)
		}
	}
	return c.store.Save(cache)
}

func (c *OIDCClient) lookup(account *Account) (CacheEntry, bool, error) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	cache, err := c.store.Load()
	if err != nil {
		return CacheEntry{}, false, err
	}
	e, ok := cache.Entries[cacheKey(c.Partition(), account.Username)]
	return e, ok, nil
}

func (c *OIDCClient) remember(entry CacheEntry) error {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	cache, err := c.store.Load()
	if err != nil {
		// saving over an unreadable cache would drop every other account
		return fmt.Errorf("token cache left unchanged: %w", err)
	}
	cache.Entries[cacheKey(c.Partition(), entry.Account.Username)] = entry
	return c.store.Save(cache)
}

// finish turns a token endpoint response into a cached entry and the
// returned token.
func (c *OIDCClient) finish(tok *oauth2.Token, scopes []string, previous *CacheEntry, authType authflow.AuthType) (*authflow.Token, error) {
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" && previous != nil {
		idToken = previous.IDToken
	}
	var claims Claims
	if idToken != "" {
		if parsed, err := ParseClaims(idToken); err == nil {
			claims = parsed
		} else {
			c.log.Debugw("Could not read ID token claims", "error", err)
		}
	}
	if parsed, err := ParseClaims(tok.AccessToken); err == nil {
		claims = claims.merge(parsed)
	}
	if claims.Username == "" && previous != nil {
		claims.Username = previous.Account.Username
	}

	entry := CacheEntry{
		Account: Account{
			Username: claims.Username,
			Name:     claims.Name,
			ObjectID: claims.ObjectID,
			TenantID: claims.TenantID,
		},
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		IDToken:      idToken,
		Scopes:       scopes,
	}
	if entry.RefreshToken == "" && previous != nil {
		entry.RefreshToken = previous.RefreshToken
	}
	if entry.Account.Username != "" {
		if err := c.remember(entry); err != nil {
			c.log.Warnw("Failed to update token cache", "location", c.store.Location(), "error", err)
		}
	}
	return tokenFromEntry(entry, claims.SID, authType), nil
}

func tokenFromEntry(e CacheEntry, sid string, authType authflow.AuthType) *authflow.Token {
	if sid == "" && e.IDToken != "" {
		if claims, err := ParseClaims(e.IDToken); err == nil {
			sid = claims.SID
		}
	}
	return &authflow.Token{
		AccessToken: e.AccessToken,
		IDToken:     e.IDToken,
		TokenType:   e.TokenType,
		ExpiresOn:   e.Expiry,
		User:        e.Account.Username,
		DisplayName: e.Account.Name,
		SID:         sid,
		ObjectID:    e.Account.ObjectID,
		AuthType:    authType,
	}
}

func sameScopes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[strings.ToLower(s)]; !ok {
			return false
		}
	}
	return true
}

// Silent returns a cached access token for account, refreshing it when it
// expires within two minutes.
func (c *OIDCClient) Silent(ctx context.Context, scopes []string, account *Account) (*authflow.Token, error) {
	const op = "silent"
	if account == nil || account.Username == "" {
		return nil, authflow.NewAuthError(authflow.KindUIRequired, op, ErrNoAccount)
	}
	entry, ok, err := c.lookup(account)
	if err != nil {
		return nil, fmt.Errorf("load token cache: %w", err)
	}
	if !ok {
		return nil, authflow.NewAuthError(authflow.KindUIRequired, op, fmt.Errorf("%w for %s", ErrNoAccount, account.Username))
	}
	if entry.AccessToken != "" && sameScopes(entry.Scopes, scopes) && entry.Expiry.Sub(c.now()) > minValidity {
		c.log.Debugw("Using cached access token", "user", entry.Account.Username, "expiry", entry.Expiry)
		return tokenFromEntry(entry, "", authflow.AuthTypeSilent), nil
	}
	if entry.RefreshToken == "" {
		return nil, authflow.NewAuthError(authflow.KindUIRequired, op, errors.New("token expired and no refresh token available"))
	}

	ep, err := c.endpoints(ctx)
	if err != nil {
		return nil, classify(op, err)
	}
	cfg := c.oauthConfig(ep, scopes, "")
	src := cfg.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: entry.RefreshToken})
	refreshed, err := src.Token()
	if err != nil {
		return nil, classify(op, err)
	}
	c.log.Debugw("Refreshed access token", "user", entry.Account.Username)
	return c.finish(refreshed, scopes, &entry, authflow.AuthTypeSilent)
}

// IntegratedWindows is not available without a native Windows auth binding.
func (c *OIDCClient) IntegratedWindows(context.Context, []string) (*authflow.Token, error) {
	return nil, authflow.NewAuthError(authflow.KindUnsupported, "iwa", errors.New("integrated windows authentication is not supported by this client"))
}

// Broker is not available without a native platform broker binding.
func (c *OIDCClient) Broker(context.Context, InteractiveRequest) (*authflow.Token, error) {
	return nil, authflow.NewAuthError(authflow.KindUnsupported, "broker", errors.New("the platform authentication broker is not supported by this client"))
}
