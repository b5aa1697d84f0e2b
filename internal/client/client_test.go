package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"almanac/internal/content"
	"almanac/internal/editsession"
)

func testDoc(text string) content.Doc {
	return content.Doc{{Type: "paragraph", Content: []content.Node{{Type: "text", Text: text}}}}
}

func TestSaveSendsPayloadAndDecodesSnapshot(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/pages/page_1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"page": map[string]any{
				"id":         "page_1",
				"title":      "Trip",
				"content":    testDoc("saved body"),
				"location":   map[string]any{"lat": 59.3, "lng": 18.1, "zoom": 10.0},
				"customDate": "2026-08-31",
			},
		})
	}))
	defer server.Close()

	c := New(server.URL)
	c.SetTokens("access-token", "refresh-token")

	snap, err := c.Save(context.Background(), "page_1", editsession.SaveRequest{
		Title:      "Trip",
		Content:    testDoc("saved body"),
		Location:   &editsession.Location{Lat: 59.3, Lng: 18.1, Zoom: 10},
		CustomDate: "2026-08-31",
		SessionID:  "edit_abc",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if gotAuth != "Bearer access-token" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody["sessionId"] != "edit_abc" {
		t.Fatalf("sessionId on the wire = %v", gotBody["sessionId"])
	}
	if _, present := gotBody["firstSave"]; present {
		t.Fatal("firstSave must be omitted when false")
	}
	if snap.Title != "Trip" || snap.CustomDate != "2026-08-31" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Location == nil || snap.Location.Lat != 59.3 {
		t.Fatalf("snapshot location = %+v", snap.Location)
	}
	if !content.Equal(snap.Content, testDoc("saved body")) {
		t.Fatal("snapshot content does not match the response")
	}
}

func TestLoadInitialNotFoundHydratesAsNewDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "NOT_FOUND", "error": "Page not found"})
	}))
	defer server.Close()

	c := New(server.URL)
	doc, err := c.LoadInitial(context.Background(), "page_fresh")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !doc.IsNew {
		t.Fatal("404 must hydrate in new mode")
	}
	if doc.ID != "page_fresh" {
		t.Fatalf("id = %q", doc.ID)
	}
	if !doc.Content.IsBlank() {
		t.Fatalf("content = %+v, want blank", doc.Content)
	}
}

func TestLoadInitialDecodesExistingDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"page": map[string]any{
				"id":      "page_1",
				"title":   "Existing",
				"content": testDoc("body"),
			},
		})
	}))
	defer server.Close()

	c := New(server.URL)
	doc, err := c.LoadInitial(context.Background(), "page_1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.IsNew {
		t.Fatal("existing document hydrated in new mode")
	}
	if doc.Title != "Existing" || doc.Location != nil {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestErrorKindMapping(t *testing.T) {
	status := int32(http.StatusUnauthorized)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(atomic.LoadInt32(&status))
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "X", "error": "nope"})
	}))
	defer server.Close()

	c := New(server.URL)

	_, err := c.Save(context.Background(), "page_1", editsession.SaveRequest{Title: "T"})
	if editsession.KindOf(err) != editsession.KindAuthExpired {
		t.Fatalf("401 mapped to %v, want auth-expired", editsession.KindOf(err))
	}

	atomic.StoreInt32(&status, http.StatusUnprocessableEntity)
	_, err = c.Save(context.Background(), "page_1", editsession.SaveRequest{Title: "T"})
	if editsession.KindOf(err) != editsession.KindServerRejected {
		t.Fatalf("422 mapped to %v, want server-rejected", editsession.KindOf(err))
	}
	var se *editsession.SaveError
	if !errors.As(err, &se) || se.Message != "nope" {
		t.Fatalf("rejection must carry the server message, got %v", err)
	}

	server.Close()
	_, err = c.Save(context.Background(), "page_1", editsession.SaveRequest{Title: "T"})
	if editsession.KindOf(err) != editsession.KindNetwork {
		t.Fatalf("transport failure mapped to %v, want network", editsession.KindOf(err))
	}
	if !errors.As(err, &se) || se.Message != "Could not reach the server." {
		t.Fatalf("network failure message = %v", err)
	}
}

func TestReauthenticateRotatesTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/session/refresh" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refreshToken"] != "old-refresh" {
			t.Errorf("refresh token on the wire = %q", body["refreshToken"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":        "new-access",
			"refreshToken": "new-refresh",
		})
	}))
	defer server.Close()

	c := New(server.URL)
	c.SetTokens("old-access", "old-refresh")
	if err := c.Reauthenticate(context.Background()); err != nil {
		t.Fatalf("reauthenticate: %v", err)
	}

	// Next request must carry the rotated access token.
	var gotAuth string
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"page": map[string]any{"id": "p"}})
	}))
	defer page.Close()
	c.baseURL = page.URL
	if _, err := c.LoadInitial(context.Background(), "p"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotAuth != "Bearer new-access" {
		t.Fatalf("authorization after rotation = %q", gotAuth)
	}
}

func TestReauthenticateWithoutRefreshTokenFailsAsAuthExpired(t *testing.T) {
	c := New("http://localhost:0")
	err := c.Reauthenticate(context.Background())
	if editsession.KindOf(err) != editsession.KindAuthExpired {
		t.Fatalf("kind = %v, want auth-expired", editsession.KindOf(err))
	}
}
