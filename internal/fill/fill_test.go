package fill

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vaheed/fresco/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func defaultDump(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "items/404299.json",
		`{"item": true, "external_id": "404299", "name": "Twitter", "genres": ["social"], "locales": ["en-us", "invalid-locale"]}`)
	writeFile(t, dir, "items/500.json",
		`{"item": true, "external_id": "500", "name": {"en-US": "Facebook"}, "default_locale": "en-US", "genres": "social", "locales": ["pt-br"]}`)
	writeFile(t, dir, "items/600.json",
		`{"item": true, "external_id": "600"}`)
	writeFile(t, dir, "users/aa.json",
		`{"user": true, "external_id": "aa", "items": [`+
			`{"external_id": "404299", "acquired": "2013-12-02T18:30:00"},`+
			`{"external_id": "999", "acquired": "2013-12-02T18:30:00"},`+
			`{"external_id": "500", "acquired": "bogus"},`+
			`{"external_id": "600", "acquired": "2013-11-01T08:00:00", "dropped": "2014-01-05T10:00:00"}]}`)
	writeFile(t, dir, "notes.txt", "not a dump file")
	return dir
}

func TestLoadDirDefaultMapping(t *testing.T) {
	ctx := context.Background()
	dir := defaultDump(t)
	st := store.NewMemory()

	stats, err := New(st, DefaultMapping()).LoadDir(ctx, KindItems, dir)
	if err != nil {
		t.Fatalf("load items: %v", err)
	}
	if stats.Files != 4 || stats.Items != 3 {
		t.Fatalf("stats = %+v, want 4 files and 3 items", stats)
	}
	if stats.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1 (the malformed locale)", stats.Skipped)
	}

	it, err := st.GetItem(ctx, "404299")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if it.Name != "Twitter" || len(it.Genres) != 1 || it.Genres[0] != "social" {
		t.Fatalf("item 404299 = %+v", it)
	}
	if len(it.Locales) != 1 || it.Locales[0] != "en-us" {
		t.Fatalf("locales = %v, want [en-us]", it.Locales)
	}
	if it, _ := st.GetItem(ctx, "500"); it.Name != "Facebook" {
		t.Fatalf("localized name = %q, want Facebook", it.Name)
	}
	if it, _ := st.GetItem(ctx, "600"); it.Name != "NO NAME" {
		t.Fatalf("fallback name = %q, want NO NAME", it.Name)
	}
	locales, err := st.ListLocales(ctx)
	if err != nil {
		t.Fatalf("list locales: %v", err)
	}
	if len(locales) != 2 {
		t.Fatalf("locales = %v, want en-us and pt-br", locales)
	}

	stats, err = New(st, DefaultMapping()).LoadDir(ctx, KindUsers, dir)
	if err != nil {
		t.Fatalf("load users: %v", err)
	}
	if stats.Users != 1 || stats.Inventory != 2 {
		t.Fatalf("stats = %+v, want 1 user and 2 inventory rows", stats)
	}
	if stats.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2 (unknown item, bad date)", stats.Skipped)
	}

	all, err := st.ListInventory(ctx, "aa", true)
	if err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("inventory = %+v, want 2 entries", all)
	}
	active, err := st.ListInventory(ctx, "aa", false)
	if err != nil {
		t.Fatalf("list active inventory: %v", err)
	}
	if len(active) != 1 || active[0].ItemID != "404299" {
		t.Fatalf("active inventory = %+v, want only 404299", active)
	}
	want := time.Date(2013, 12, 2, 18, 30, 0, 0, time.UTC)
	if !active[0].AcquiredAt.Equal(want) {
		t.Fatalf("acquired = %v, want %v", active[0].AcquiredAt, want)
	}
}

func TestLoadDirMozillaMapping(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "apps/404299.json",
		`{"app_type": "hosted", "id": 404299, "name": {"en-US": "Evernote"}, "default_locale": "en-US", "categories": ["productivity"], "supported_locales": ["en-US", "pt-BR"]}`)
	writeFile(t, dir, "users/3b.json",
		`{"user": "3b9972d1c07bb1f0b47bbc3f4a0fef46e63d315e", "installed_apps": [{"id": 404299, "installed": "2013-06-14T13:42:19"}]}`)
	st := store.NewMemory()

	if _, err := New(st, MozillaMapping()).LoadDir(ctx, KindItems, dir); err != nil {
		t.Fatalf("load items: %v", err)
	}
	it, err := st.GetItem(ctx, "404299")
	if err != nil {
		t.Fatalf("numeric id should be stringified: %v", err)
	}
	if it.Name != "Evernote" {
		t.Fatalf("name = %q", it.Name)
	}
	if len(it.Locales) != 2 || it.Locales[0] != "en-us" || it.Locales[1] != "pt-br" {
		t.Fatalf("locales = %v, want lowercased [en-us pt-br]", it.Locales)
	}

	stats, err := New(st, MozillaMapping()).LoadDir(ctx, KindUsers, dir)
	if err != nil {
		t.Fatalf("load users: %v", err)
	}
	if stats.Users != 1 || stats.Inventory != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if _, err := st.GetUser(ctx, "3b9972d1c07bb1f0b47bbc3f4a0fef46e63d315e"); err != nil {
		t.Fatalf("get user: %v", err)
	}
}

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestLoadURLRetriesAndSkipsHiddenMembers(t *testing.T) {
	tarball := buildTarball(t, map[string]string{
		"apps/404299.json": `{"item": true, "external_id": "404299", "name": "Twitter"}`,
		".hidden.json":     `{"item": true, "external_id": "666"}`,
		"README.txt":       "not json",
	})
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(tarball)
	}))
	defer srv.Close()

	ctx := context.Background()
	st := store.NewMemory()
	stats, err := New(st, DefaultMapping()).LoadURL(ctx, KindItems, srv.URL+"/dump.tgz")
	if err != nil {
		t.Fatalf("load url: %v", err)
	}
	if stats.Items != 1 {
		t.Fatalf("items = %d, want 1", stats.Items)
	}
	if _, err := st.GetItem(ctx, "666"); err == nil {
		t.Fatalf("hidden member must not be loaded")
	}
	if hits != 2 {
		t.Fatalf("hits = %d, want 2 (one retry)", hits)
	}
}

func TestMozillaURL(t *testing.T) {
	day := time.Date(2014, 3, 10, 0, 0, 0, 0, time.UTC)
	dev, err := MozillaURL("dev", day)
	if err != nil {
		t.Fatalf("dev url: %v", err)
	}
	if dev != "https://marketplace-dev-cdn.allizom.org/dumped-apps/tarballs/2014-03-10.tgz" {
		t.Fatalf("dev url = %q", dev)
	}
	prod, err := MozillaURL("prod", day)
	if err != nil {
		t.Fatalf("prod url: %v", err)
	}
	if prod != "https://marketplace.cdn.mozilla.net/dumped-apps/tarballs/2014-03-10.tgz" {
		t.Fatalf("prod url = %q", prod)
	}
	if _, err := MozillaURL("staging", day); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestResolveDate(t *testing.T) {
	now := time.Date(2014, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		arg  string
		want string
	}{
		{"", "2014-03-09"},
		{"yesterday", "2014-03-09"},
		{"today", "2014-03-10"},
		{"2014-01-31", "2014-01-31"},
	}
	for _, tc := range cases {
		got, err := ResolveDate(tc.arg, now)
		if err != nil {
			t.Fatalf("resolve %q: %v", tc.arg, err)
		}
		if got.Format("2006-01-02") != tc.want {
			t.Fatalf("resolve %q = %s, want %s", tc.arg, got.Format("2006-01-02"), tc.want)
		}
	}
	if _, err := ResolveDate("31/01/2014", now); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}
