package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/vaheed/fresco/pkg/types"
)

func TestUpsertItemsAndGet(t *testing.T) {
	s, st := newTestServer(t)
	router := s.Router()

	body := []byte(`[
		{"external_id":"e5","name":"Echo","genres":["games"],"locales":["EN-US"]},
		{"external_id":"f6","genres":["music"]}
	]`)
	req := httptest.NewRequest(http.MethodPut, "/api/v2/items", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upsert items failed: %d %s", w.Code, w.Body.String())
	}
	var resp map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["count"] != 2 {
		t.Fatalf("expected count 2, got %d", resp["count"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v2/items/e5", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get item failed: %d %s", w.Code, w.Body.String())
	}
	var item types.Item
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.Name != "Echo" {
		t.Fatalf("expected name Echo, got %q", item.Name)
	}
	if !reflect.DeepEqual(item.Locales, []string{"en-us"}) {
		t.Fatalf("expected normalized locales, got %v", item.Locales)
	}

	// missing names fall back like the dump loader does
	got, err := st.GetItem(context.Background(), "f6")
	if err != nil {
		t.Fatalf("get f6: %v", err)
	}
	if got.Name != "NO NAME" {
		t.Fatalf("expected NO NAME fallback, got %q", got.Name)
	}

	// normalized locale lands in the registry
	locales, err := st.ListLocales(context.Background())
	if err != nil {
		t.Fatalf("list locales: %v", err)
	}
	found := false
	for _, loc := range locales {
		if loc.String() == "en-us" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected en-us in locale registry, got %v", locales)
	}
}

func TestUpsertItemsValidation(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	cases := []struct {
		name string
		body string
	}{
		{"empty list", `[]`},
		{"bad id", `[{"external_id":"NOT-HEX"}]`},
		{"bad locale", `[{"external_id":"e5","locales":["english"]}]`},
		{"trailing data", `[{"external_id":"e5"}] garbage`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPut, "/api/v2/items", bytes.NewReader([]byte(tc.body)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d %s", tc.name, w.Code, w.Body.String())
		}
	}
}

func TestGetItemNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v2/items/dead", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
