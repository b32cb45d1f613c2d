package adapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACRESTSignsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("PolarisDate") == "" || r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ItemsAvailable":[{"BranchName":"Main","CallNumber":"FIC GAT","Status":"Available"}]}`))
	}))
	defer srv.Close()

	h, err := NewHMACREST("polaris-a", "polaris_papi", "Polaris A", srv.URL, srv.URL,
		HMACCredentials{AccessKeyEnvVar: "ACCESS", SecretEnvVar: "SECRET"},
		lookupEnvFromMap(map[string]string{"ACCESS": "key", "SECRET": "shh"}), srv.Client())
	require.NoError(t, err)

	out, err := h.Search(t.Context(), "9780306406157")
	require.NoError(t, err)
	require.Len(t, out.Holdings, 1)
	assert.Equal(t, "Main", out.Holdings[0].BranchName)
}

func TestHMACRESTMissingCredsFailsConstruction(t *testing.T) {
	_, err := NewHMACREST("polaris-a", "polaris_papi", "Polaris A", "https://x", "https://x",
		HMACCredentials{AccessKeyEnvVar: "ACCESS", SecretEnvVar: "SECRET"},
		lookupEnvFromMap(map[string]string{}), http.DefaultClient)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, TypeOf(err))
}
