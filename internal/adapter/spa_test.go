package adapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spaSearchFixture = `<!DOCTYPE html>
<html><head><script>
  var other = 1;
  window.csrfToken = "tok-abc123";
</script></head>
<body>
  <table>
    <tr data-barcode="B1"><td class="branch">Main</td></tr>
    <tr data-barcode="B2"><td class="branch">Annex</td></tr>
  </table>
</body></html>`

func TestSPASearchExtractsCSRFAndJoinsXHRResults(t *testing.T) {
	var gotCSRFHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/search":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(spaSearchFixture))
		case r.Method == http.MethodPost && r.URL.Path == "/xhr/tok-abc123":
			gotCSRFHeader = r.Header.Get("X-CSRF-Token")
			_, _ = w.Write([]byte(`{"items":[
				{"barcode":"B1","status":"Available","callNumber":"FIC GAT"},
				{"barcode":"B2","status":"Checked out","callNumber":"FIC GAT 2"}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s, err := NewSPA("sys-a", "bibliocommons_scrape", "Sys A", srv.URL, srv.URL,
		"/search?isbn=%s", "/xhr/%s", "window.csrfToken", srv.Client().Transport)
	require.NoError(t, err)

	out, err := s.Search(t.Context(), "9780306406157")
	require.NoError(t, err)
	require.Len(t, out.Holdings, 2)

	assert.Equal(t, "tok-abc123", gotCSRFHeader)
	assert.Equal(t, "Main", out.Holdings[0].BranchName)
	assert.Equal(t, "available", string(out.Holdings[0].Status))
	assert.Equal(t, "Annex", out.Holdings[1].BranchName)
	assert.Equal(t, "checked_out", string(out.Holdings[1].Status))
	assert.Equal(t, "9780306406157", out.Holdings[0].ISBN)
}

func TestSPASearchUnknownBranchWhenBarcodeNotInHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/search":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(spaSearchFixture))
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"items":[{"barcode":"B9","status":"Available","callNumber":""}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s, err := NewSPA("sys-a", "bibliocommons_scrape", "Sys A", srv.URL, srv.URL,
		"/search?isbn=%s", "/xhr/%s", "window.csrfToken", srv.Client().Transport)
	require.NoError(t, err)

	out, err := s.Search(t.Context(), "9780306406157")
	require.NoError(t, err)
	require.Len(t, out.Holdings, 1)
	assert.Equal(t, "Unknown", out.Holdings[0].BranchName)
}

func TestSPASearchMissingCSRFTokenIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>no token here</body></html>`))
	}))
	defer srv.Close()

	s, err := NewSPA("sys-a", "bibliocommons_scrape", "Sys A", srv.URL, srv.URL,
		"/search?isbn=%s", "/xhr/%s", "window.csrfToken", srv.Client().Transport)
	require.NoError(t, err)

	_, err = s.Search(t.Context(), "9780306406157")
	assert.Error(t, err)
}

func TestSPASearchNonOKStatusOnSearchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewSPA("sys-a", "bibliocommons_scrape", "Sys A", srv.URL, srv.URL,
		"/search?isbn=%s", "/xhr/%s", "window.csrfToken", srv.Client().Transport)
	require.NoError(t, err)

	_, err = s.Search(t.Context(), "9780306406157")
	assert.Error(t, err)
}
