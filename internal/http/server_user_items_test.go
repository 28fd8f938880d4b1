package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vaheed/fresco/pkg/types"
)

func TestUserItemsFlow(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	// first contact creates the user
	body := []byte(`{"item_id":"a1","acquired":"2014-01-02T15:04:05Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/users/ee/items", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("add item failed: %d %s", w.Code, w.Body.String())
	}
	var entry types.InventoryEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.UserID != "ee" || entry.ItemID != "a1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	want := time.Date(2014, 1, 2, 15, 4, 5, 0, time.UTC)
	if !entry.AcquiredAt.Equal(want) {
		t.Fatalf("expected acquired %v, got %v", want, entry.AcquiredAt)
	}

	// list
	req = httptest.NewRequest(http.MethodGet, "/api/v2/users/ee/items", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list items failed: %d %s", w.Code, w.Body.String())
	}
	var entries []types.InventoryEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].ItemID != "a1" {
		t.Fatalf("expected one a1 entry, got %+v", entries)
	}

	// drop
	req = httptest.NewRequest(http.MethodDelete, "/api/v2/users/ee/items/a1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("drop item failed: %d %s", w.Code, w.Body.String())
	}

	// dropped entries leave the active inventory
	req = httptest.NewRequest(http.MethodGet, "/api/v2/users/ee/items", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list after drop failed: %d", w.Code)
	}
	entries = nil
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty inventory, got %+v", entries)
	}
}

func TestAddUserItemDefaultsAcquired(t *testing.T) {
	s, st := newTestServer(t)
	body := []byte(`{"item_id":"b2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/users/bb/items", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("add item failed: %d %s", w.Code, w.Body.String())
	}
	entries, err := st.ListInventory(req.Context(), "bb", false)
	if err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	for _, e := range entries {
		if e.ItemID == "b2" {
			if e.AcquiredAt.IsZero() {
				t.Fatalf("expected acquired timestamp to be set")
			}
			return
		}
	}
	t.Fatalf("expected b2 in inventory, got %+v", entries)
}

func TestAddUserItemUnknownItem(t *testing.T) {
	s, _ := newTestServer(t)
	body := []byte(`{"item_id":"ffff"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/users/aa/items", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", w.Code, w.Body.String())
	}
}

func TestAddUserItemRejectsUnknownFields(t *testing.T) {
	s, _ := newTestServer(t)
	body := []byte(`{"item_id":"a1","bogus":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/users/aa/items", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", w.Code, w.Body.String())
	}
}

func TestListUserItemsUnknownUser(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v2/users/9e/items", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDropUserItemMissing(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/api/v2/users/aa/items/c3", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRecommendReflectsInventoryChanges(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v2/recommend/5/bb/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var before types.Recommendation
	if err := json.Unmarshal(w.Body.Bytes(), &before); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(before.Recommendations) == 0 || before.Recommendations[0] != "b2" {
		t.Fatalf("expected b2 first, got %v", before.Recommendations)
	}

	// acquiring the top recommendation removes it from the next response
	body := []byte(`{"item_id":"b2"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v2/users/bb/items", bytes.NewReader(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("add item failed: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v2/recommend/5/bb/", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var after types.Recommendation
	if err := json.Unmarshal(w.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, id := range after.Recommendations {
		if id == "b2" {
			t.Fatalf("owned item b2 still recommended: %v", after.Recommendations)
		}
	}
}
