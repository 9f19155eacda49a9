package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ilardm/strvup/pkg/atomicfile"
	"golang.org/x/oauth2"
)

// FileConfig is the on-disk OAuth configuration. The token obtained by the
// authorization flow is stored next to the client credentials.
type FileConfig struct {
	ClientID     string        `json:"client_id"`
	ClientSecret string        `json:"client_secret"`
	RedirectURI  string        `json:"redirect_uri"`
	Token        *oauth2.Token `json:"token,omitempty"`
}

// LoadFileConfig reads the OAuth configuration at path.
func LoadFileConfig(path string) (*FileConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading oauth config: %w", err)
	}
	defer file.Close()
	var fc FileConfig
	if err := json.NewDecoder(file).Decode(&fc); err != nil {
		return nil, fmt.Errorf("error unmarshaling oauth config: %w", err)
	}
	if fc.ClientID == "" || fc.RedirectURI == "" {
		return nil, fmt.Errorf("oauth config %s needs client_id and redirect_uri", path)
	}
	return &fc, nil
}

type TokenCache interface {
	oauth2.TokenSource
	Refresh(*oauth2.Token) error
}

var errNoToken = errors.New("no token cached")

// NewJSONFileTokenCache caches the token inside the OAuth config file at
// filePath, leaving the client credentials untouched.
func NewJSONFileTokenCache(filePath string) (TokenCache, error) {
	cache := &jsonFileTokenCache{
		filePath: filePath,
	}
	if err := cache.load(); err != nil {
		return nil, fmt.Errorf("error loading token: %w", err)
	}
	return cache, nil
}

type jsonFileTokenCache struct {
	filePath string
	config   FileConfig
	mutex    sync.Mutex
}

func (t *jsonFileTokenCache) Token() (*oauth2.Token, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.config.Token == nil {
		return nil, errNoToken
	}
	return t.config.Token, nil
}

func (t *jsonFileTokenCache) Refresh(tok *oauth2.Token) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.config.Token = tok

	return atomicfile.Write(t.filePath, 0o600, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(t.config); err != nil {
			return fmt.Errorf("error marshaling json token: %w", err)
		}
		return nil
	})
}

func (t *jsonFileTokenCache) load() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	file, err := os.Open(t.filePath)
	if err != nil {
		return fmt.Errorf("error reading token file: %w", err)
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(&t.config); err != nil {
		return fmt.Errorf("error unmarshaling json token: %w", err)
	}
	return nil
}

// persistingTokenSource writes every newly issued token back to the cache,
// so refreshed tokens survive the process.
type persistingTokenSource struct {
	source oauth2.TokenSource
	cache  TokenCache
	mutex  sync.Mutex
	last   string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.source.Token()
	if err != nil {
		return nil, err
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if tok.AccessToken != p.last && p.cache != nil {
		if err := p.cache.Refresh(tok); err != nil {
			return nil, fmt.Errorf("error refreshing token cache: %w", err)
		}
	}
	p.last = tok.AccessToken
	return tok, nil
}
