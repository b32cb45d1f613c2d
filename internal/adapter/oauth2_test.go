package adapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupEnvFromMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestNewOAuth2RESTFailsOnMissingCreds(t *testing.T) {
	_, err := NewOAuth2REST("sys-a", "sierra_rest", "Sys A", "https://x", "https://x",
		OAuth2Credentials{ClientKeyEnvVar: "KEY", ClientSecretEnvVar: "SECRET", TokenURL: "https://x/token"},
		lookupEnvFromMap(map[string]string{}), http.DefaultClient)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, TypeOf(err))
}

func TestOAuth2RESTSearchUsesCachedToken(t *testing.T) {
	tokenCalls := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenCalls++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok123","token_type":"bearer","expires_in":3600}`))
		case "/items":
			_, _ = w.Write([]byte(`{"entries":[{"barcode":"b1","callNumber":"FIC GAT","location":"Main","status":"Available"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
		_ = srv
	}))
	defer srv.Close()

	o, err := NewOAuth2REST("sys-a", "sierra_rest", "Sys A", srv.URL, srv.URL,
		OAuth2Credentials{ClientKeyEnvVar: "KEY", ClientSecretEnvVar: "SECRET", TokenURL: srv.URL + "/token"},
		lookupEnvFromMap(map[string]string{"KEY": "k", "SECRET": "s"}), srv.Client())
	require.NoError(t, err)

	out1, err := o.Search(t.Context(), "9780306406157")
	require.NoError(t, err)
	require.Len(t, out1.Holdings, 1)

	_, err = o.Search(t.Context(), "9780306406157")
	require.NoError(t, err)

	assert.Equal(t, 1, tokenCalls)
}
