package probe

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type place struct {
	Name     string `json:"place name"`
	PostCode string `json:"post code,omitempty"`
	State    string `json:"state,omitempty"`
}

type lookup struct {
	Country      string  `json:"country"`
	Abbreviation string  `json:"country abbreviation"`
	State        string  `json:"state,omitempty"`
	PostCode     string  `json:"post code,omitempty"`
	Places       []place `json:"places"`
}

// zippopotamTwin serves a small part of the postal code api. delay slows
// every answer down.
type zippopotamTwin struct {
	delay    atomic.Int64
	requests atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

var postalCodes = map[string]lookup{
	"de/70597": {Country: "Germany", Abbreviation: "DE", PostCode: "70597", Places: []place{
		{Name: "Stuttgart Degerloch", State: "Baden-Württemberg"},
		{Name: "Stuttgart", State: "Baden-Württemberg"},
	}},
	"us/90210": {Country: "United States", Abbreviation: "US", PostCode: "90210", Places: []place{
		{Name: "Beverly Hills", State: "California"},
	}},
	"fr/75008": {Country: "France", Abbreviation: "FR", PostCode: "75008", Places: []place{
		{Name: "Paris 08", State: "Île-de-France"},
	}},
	"nl/1012": {Country: "Netherlands", Abbreviation: "NL", PostCode: "1012", Places: []place{
		{Name: "Amsterdam", State: "Noord-Holland"},
	}},
}

func (z *zippopotamTwin) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			z.requests.Add(1)
			n := z.inFlight.Add(1)
			defer z.inFlight.Add(-1)
			for {
				p := z.peak.Load()
				if n <= p || z.peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Duration(z.delay.Load()))
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/de/bw/stuttgart", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, lookup{
			Country:      "Germany",
			Abbreviation: "DE",
			State:        "Baden-Württemberg",
			Places: []place{
				{Name: "Stuttgart", PostCode: "70173"},
				{Name: "Stuttgart Degerloch", PostCode: "70597"},
			},
		})
	})
	r.Get("/{country}/{code}", func(w http.ResponseWriter, req *http.Request) {
		l, ok := postalCodes[strings.ToLower(chi.URLParam(req, "country"))+"/"+chi.URLParam(req, "code")]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("{}"))
			return
		}
		writeJSON(w, l)
	})
	r.Get("/html", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	})
	r.Get("/broken", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{not json"))
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTwin(t *testing.T) (*zippopotamTwin, *httptest.Server) {
	t.Helper()
	z := &zippopotamTwin{}
	srv := httptest.NewServer(z.router())
	t.Cleanup(srv.Close)
	return z, srv
}
