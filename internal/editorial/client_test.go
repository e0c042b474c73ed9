package editorial_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hopper/internal/editorial"
)

func newServer(t *testing.T, handler http.HandlerFunc) *editorial.HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return editorial.NewHTTPClient(server.URL, "test-key", time.Second)
}

func TestJournalByISSN(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/journals" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Token test-key" {
			t.Errorf("authorization header = %q", got)
		}
		if r.URL.Query().Get("issn") != "0100-879X" {
			_ = json.NewEncoder(w).Encode([]editorial.Journal{})
			return
		}
		_ = json.NewEncoder(w).Encode([]editorial.Journal{{Ref: "j1", Title: "BJMBR", ISSNPrint: "0100-879X"}})
	})

	journal, err := client.JournalByISSN(context.Background(), "0100-879X")
	if err != nil {
		t.Fatalf("JournalByISSN: %v", err)
	}
	if journal == nil || journal.Ref != "j1" {
		t.Fatalf("journal = %+v", journal)
	}

	missing, err := client.JournalByISSN(context.Background(), "9999-9999")
	if err != nil {
		t.Fatalf("JournalByISSN: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown ISSN, got %+v", missing)
	}
}

func TestFindIssuePassesCriteria(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("volume") != "32" || query.Get("number") != "9" {
			t.Errorf("unexpected criteria: %v", query)
		}
		if query.Has("suppl_volume") {
			t.Error("empty criteria should not be sent")
		}
		_ = json.NewEncoder(w).Encode([]editorial.Issue{{Ref: "i1", Label: "v32n9", MonthStart: 9}})
	})

	issue, err := client.FindIssue(context.Background(), "j1", editorial.IssueCriteria{Volume: "32", Number: "9"})
	if err != nil {
		t.Fatalf("FindIssue: %v", err)
	}
	if issue == nil || issue.Ref != "i1" {
		t.Fatalf("issue = %+v", issue)
	}
}

func TestIsRegisteredDOI(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path == "/doi/10.1590%2Fknown" || r.URL.Path == "/doi/10.1590/known" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	registered, err := client.IsRegisteredDOI(context.Background(), "10.1590/known")
	if err != nil {
		t.Fatalf("IsRegisteredDOI: %v", err)
	}
	if !registered {
		t.Error("known doi reported unregistered")
	}

	registered, err = client.IsRegisteredDOI(context.Background(), "10.1590/unknown")
	if err != nil {
		t.Fatalf("IsRegisteredDOI: %v", err)
	}
	if registered {
		t.Error("unknown doi reported registered")
	}
}
