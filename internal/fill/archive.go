package fill

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vaheed/fresco/internal/util"
	"go.uber.org/zap"
)

const downloadRetryTimeout = 2 * time.Minute

// fetchArchive downloads the .tgz at url into a fresh temp dir and extracts
// its JSON members there. The caller removes the returned dir.
func (l *Loader) fetchArchive(ctx context.Context, url string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "fresco-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	archive := filepath.Join(tmpDir, "tmp.tgz")
	err = util.Retry(downloadRetryTimeout, func() (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err := l.download(ctx, url, archive); err != nil {
			l.log.Warn("dump download failed", zap.String("url", url), zap.Error(err))
			return true, err
		}
		return false, nil
	})
	if err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	if err := extractJSON(archive, tmpDir); err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("extract %s: %w", url, err)
	}
	return tmpDir, nil
}

func (l *Loader) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// extractJSON unpacks the .json members of a gzipped tarball into destDir.
// Hidden members (base name starting with a dot) and entries that would
// escape destDir are skipped.
func extractJSON(archive, destDir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		base := filepath.Base(hdr.Name)
		if !strings.EqualFold(filepath.Ext(base), ".json") || strings.HasPrefix(base, ".") {
			continue
		}
		rel := filepath.Clean(hdr.Name)
		if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			continue
		}
		dest := filepath.Join(destDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		out, err := os.Create(dest)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}
