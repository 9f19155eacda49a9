package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthorizer struct {
	state string
	err   error
	code  string
}

func (f *fakeAuthorizer) IsStateValid(state string) bool {
	return state == f.state
}

func (f *fakeAuthorizer) Authorize(_ context.Context, code string) error {
	f.code = code
	return f.err
}

func TestCallbackHandler(t *testing.T) {
	tests := map[string]struct {
		query      string
		authErr    error
		wantStatus int
		wantErr    string
		wantBody   string
	}{
		"success": {
			query:      "?state=s&code=c&scope=read,activity:write",
			wantStatus: http.StatusOK,
			wantBody:   "read, activity:write",
		},
		"state mismatch": {
			query:      "?state=x&code=c",
			wantStatus: http.StatusBadRequest,
			wantErr:    "state does not match",
		},
		"denied": {
			query:      "?state=s&error=access_denied",
			wantStatus: http.StatusBadRequest,
			wantErr:    "access_denied",
		},
		"missing code": {
			query:      "?state=s",
			wantStatus: http.StatusBadRequest,
			wantErr:    "no authorization code",
		},
		"exchange failure": {
			query:      "?state=s&code=c",
			authErr:    errors.New("boom"),
			wantStatus: http.StatusBadRequest,
			wantErr:    "boom",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			auth := &fakeAuthorizer{state: "s", err: tt.authErr}
			results := make(chan error, 1)
			rec := httptest.NewRecorder()

			CallbackHandler(auth, results)(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			require.Len(t, results, 1)
			err := <-results
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "c", auth.code)
				assert.Contains(t, rec.Body.String(), tt.wantBody)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Contains(t, rec.Body.String(), "Authorization failed")
		})
	}
}

func TestCallbackHandlerDoesNotBlock(t *testing.T) {
	results := make(chan error, 1)
	h := CallbackHandler(&fakeAuthorizer{state: "s"}, results)
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?state=s&code=c", nil))
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?state=s&code=c", nil))
	assert.Len(t, results, 1)
}
