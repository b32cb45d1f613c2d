package adapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sruFixture = `<?xml version="1.0"?>
<searchRetrieveResponse>
  <records>
    <record>
      <recordData>
        <record>
          <datafield tag="952">
            <subfield code="a">Main</subfield>
            <subfield code="o">FIC GAT</subfield>
            <subfield code="c">Fiction</subfield>
            <subfield code="7">0</subfield>
          </datafield>
          <datafield tag="952">
            <subfield code="a">Annex</subfield>
            <subfield code="o">FIC GAT 2</subfield>
            <subfield code="7">1</subfield>
          </datafield>
        </record>
      </recordData>
    </record>
  </records>
</searchRetrieveResponse>`

func TestSRUSearchParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(sruFixture))
	}))
	defer srv.Close()

	s := NewSRU("koha-a", "koha_sru", "Koha Library", srv.URL, srv.URL, srv.Client())

	out, err := s.Search(t.Context(), "9780306406157")
	require.NoError(t, err)
	require.Len(t, out.Holdings, 2)
	assert.Equal(t, "Main", out.Holdings[0].BranchName)
	assert.Equal(t, "available", string(out.Holdings[0].Status))
	assert.Equal(t, "checked_out", string(out.Holdings[1].Status))
}

func TestSRUSearchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSRU("koha-a", "koha_sru", "Koha Library", srv.URL, srv.URL, srv.Client())
	_, err := s.Search(t.Context(), "9780306406157")
	assert.Error(t, err)
}

func TestSRUSearchNoItemsYieldsUnknownHolding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<searchRetrieveResponse><records><record><recordData><record>
			<datafield tag="050"><subfield code="a">PS3563</subfield></datafield>
		</record></recordData></record></records></searchRetrieveResponse>`))
	}))
	defer srv.Close()

	s := NewSRU("koha-a", "koha_sru", "Koha Library", srv.URL, srv.URL, srv.Client())
	out, err := s.Search(t.Context(), "9780306406157")
	require.NoError(t, err)
	require.Len(t, out.Holdings, 1)
	assert.Equal(t, "unknown", string(out.Holdings[0].Status))
	assert.Equal(t, "Unknown", out.Holdings[0].BranchName)
}
