package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/ilardm/strvup/pkg/http/handler"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

// Opener presents the authorization URL to the user.
type Opener func(url string) error

// BrowserOpener opens the URL in the default browser.
func BrowserOpener(url string) error {
	return browser.OpenURL(url)
}

// EnsureAuthorized makes config usable for API calls. A cached token that is
// still valid or can be refreshed is used as is, otherwise the interactive
// flow of AuthorizeInteractive runs.
func EnsureAuthorized(ctx context.Context, config *Config, open Opener) error {
	tok, err := config.Token()
	if err == nil && tok.Valid() {
		slog.Debug("using cached token", "expiry", tok.Expiry)
		return nil
	}
	if err != nil {
		slog.Info("no usable token, starting authorization", "reason", err)
	}
	return AuthorizeInteractive(ctx, config, open)
}

// AuthorizeInteractive runs the authorization code flow: it opens the
// authorization page and serves a single redirect on the host and port of the
// configured redirect URL.
func AuthorizeInteractive(ctx context.Context, config *Config, open Opener) error {
	redirect, err := url.Parse(config.RedirectURL)
	if err != nil {
		return fmt.Errorf("error parsing redirect url: %w", err)
	}
	if redirect.Host == "" {
		return fmt.Errorf("redirect url %q has no host", config.RedirectURL)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("error listening for oauth redirect: %w", err)
	}

	config.State = uuid.NewString()
	results := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle(path, handler.CallbackHandler(config, results))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// the code exchange inherits values like oauth2.HTTPClient from ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("error serving oauth redirect", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Debug("error shutting down redirect server", "error", err)
		}
	}()

	authURL := config.AuthCodeURL(config.State, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("approval_prompt", "auto"))
	slog.Info("waiting for authorization", "url", authURL, "redirect", config.RedirectURL)
	if err := open(authURL); err != nil {
		slog.Warn("could not open browser, visit the url manually", "url", authURL, "error", err)
	}

	select {
	case err := <-results:
		return err
	case <-ctx.Done():
		return fmt.Errorf("error waiting for authorization: %w", ctx.Err())
	}
}
