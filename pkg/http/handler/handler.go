// Package handler serves the OAuth redirect of the local authorization flow.
package handler

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed templates/*.html
var templatesFS embed.FS
var templates = template.Must(
	template.ParseFS(templatesFS, "templates/*.html"),
)

// Authorizer completes an authorization with the code of the redirect.
type Authorizer interface {
	IsStateValid(state string) bool
	Authorize(ctx context.Context, authCode string) error
}

type callbackPage struct {
	Scopes []string
	Error  string
}

// CallbackHandler handles the OAuth redirect. The outcome of a request, nil on
// success, is sent to results unless a previous outcome is still pending.
func CallbackHandler(config Authorizer, results chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := callbackPage{}
		if scope := r.FormValue("scope"); scope != "" {
			page.Scopes = strings.Split(scope, ",")
		}
		err := callback(config, r)
		if err != nil {
			slog.Error("oauth callback failed", "error", err)
			page.Error = err.Error()
			w.WriteHeader(http.StatusBadRequest)
		}
		if terr := templates.ExecuteTemplate(w, "callback.tpl.html", page); terr != nil {
			slog.Error("error while executing template", "error", terr)
		}
		select {
		case results <- err:
		default:
		}
	}
}

func callback(config Authorizer, r *http.Request) error {
	if msg := r.FormValue("error"); msg != "" {
		return fmt.Errorf("authorization denied: %s", msg)
	}
	if !config.IsStateValid(r.FormValue("state")) {
		return fmt.Errorf("state does not match")
	}
	code := r.FormValue("code")
	if code == "" {
		return fmt.Errorf("no authorization code in redirect")
	}
	if err := config.Authorize(r.Context(), code); err != nil {
		return fmt.Errorf("unable to authorize oauth2 client: %w", err)
	}
	return nil
}
