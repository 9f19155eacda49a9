// Package oauth authorizes the Strava API client and keeps its token on disk.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ilardm/strvup/pkg/http/rate"
	"golang.org/x/oauth2"
)

// StravaEndpoint is the Strava OAuth2 endpoint.
var StravaEndpoint = oauth2.Endpoint{
	AuthURL:   "https://www.strava.com/oauth/authorize",
	TokenURL:  "https://www.strava.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// StravaScopes are requested during authorization. Strava expects a single
// comma separated scope list.
var StravaScopes = []string{"read,activity:write"}

type ClientProvider interface {
	Client(ctx context.Context) (*http.Client, error)
}

type Config struct {
	*oauth2.Config
	State               string
	RateLimiter         rate.AdjustableLimiter
	InstrumentTransport func(http.RoundTripper) http.RoundTripper
	tokenCache          TokenCache
	tokenSource         oauth2.TokenSource
	mutex               sync.Mutex
}

// NewConfig builds a Strava OAuth configuration from the on-disk file config.
func NewConfig(fc *FileConfig) *Config {
	return &Config{
		Config: &oauth2.Config{
			ClientID:     fc.ClientID,
			ClientSecret: fc.ClientSecret,
			RedirectURL:  fc.RedirectURI,
			Scopes:       StravaScopes,
			Endpoint:     StravaEndpoint,
		},
	}
}

func (o *Config) Authorize(ctx context.Context, authCode string) error {
	tok, err := o.Exchange(ctx, authCode, oauth2.AccessTypeOffline)
	if err != nil {
		return fmt.Errorf("error exchanging token: %v", err)
	}
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.setToken(ctx, tok)
	if o.tokenCache == nil {
		return nil
	}
	if err := o.tokenCache.Refresh(tok); err != nil {
		return fmt.Errorf("error refreshing token cache: %w", err)
	}
	return nil
}

// setToken installs a refreshing token source. Token refreshes outlive the
// request that triggered the authorization, so ctx cancellation is dropped.
func (o *Config) setToken(ctx context.Context, tok *oauth2.Token) {
	o.tokenSource = &persistingTokenSource{
		source: o.TokenSource(context.WithoutCancel(ctx), tok),
		cache:  o.tokenCache,
		last:   tok.AccessToken,
	}
}

func (o *Config) IsAuthorized() bool {
	tok, err := o.Token()
	if err != nil {
		return false
	}
	return tok.Valid()
}

func (o *Config) IsStateValid(state string) bool {
	return state != "" && o.State == state
}

func (o *Config) Token() (*oauth2.Token, error) {
	if o.tokenSource == nil {
		return nil, fmt.Errorf("client not yet authorized")
	}
	return o.tokenSource.Token()
}

func (o *Config) Client(ctx context.Context) (*http.Client, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.tokenSource == nil {
		return nil, fmt.Errorf("error getting token: client not yet authorized")
	}
	client := oauth2.NewClient(ctx, o.tokenSource)
	if o.RateLimiter != nil {
		transport := rate.NewTransport(
			o.RateLimiter,
			client.Transport,
		)
		client.Transport = transport
	}
	if o.InstrumentTransport != nil {
		client.Transport = o.InstrumentTransport(client.Transport)
	}
	return client, nil
}

// SetTokenCache attaches cache and resumes from its token, if it holds one.
func (o *Config) SetTokenCache(ctx context.Context, cache TokenCache) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.tokenCache = cache
	tok, err := cache.Token()
	if err == errNoToken {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error getting token from cache: %w", err)
	}
	o.setToken(ctx, tok)
	return nil
}
