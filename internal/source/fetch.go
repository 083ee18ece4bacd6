package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "ttcal/internal/log"
)

const (
	cacheMetaFile = "meta.json"
	cacheBodyFile = "body"
)

// cachedDoc is the HTTP validator state kept next to a cached document.
type cachedDoc struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetched is a remote document body and whether it came from the disk cache.
type Fetched struct {
	Body      []byte
	FromCache bool
}

// Fetcher downloads remote event-record documents. Responses are cached on
// disk per URL and revalidated with If-None-Match / If-Modified-Since; when
// the server is unreachable or answers with an error, the cached body is used.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/source-cache"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch returns the body of url. id only labels log lines.
func (f *Fetcher) Fetch(ctx context.Context, id, url string) (Fetched, error) {
	if url == "" {
		return Fetched{}, errors.New("source: empty url")
	}
	dir := f.cacheDirFor(url)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Fetched{}, fmt.Errorf("source: cache dir: %w", err)
	}

	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, cacheBodyFile))
	fallback := func(reason error) (Fetched, error) {
		if len(cached) == 0 {
			return Fetched{}, reason
		}
		appLog.Error("source fetch failed, using cached body", reason, "unit", id, "url", redactURL(url))
		return Fetched{Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Fetched{}, fmt.Errorf("source: request: %w", err)
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("source fetch start", "unit", id, "url", redactURL(url))
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Fetched{}, ctx.Err()
		}
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(err)
		}
		next := cachedDoc{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := saveCache(dir, next, body); err != nil {
			appLog.Error("source cache save failed", err, "unit", id, "url", redactURL(url))
		}
		appLog.Info("source fetched", "unit", id, "url", redactURL(url), "bytes", len(body))
		return Fetched{Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Fetched{}, errors.New("source: 304 Not Modified without a cached body")
		}
		appLog.Debug("source not modified", "unit", id, "url", redactURL(url))
		return Fetched{Body: cached, FromCache: true}, nil

	default:
		return fallback(fmt.Errorf("source: unexpected status %s", resp.Status))
	}
}

func (f *Fetcher) cacheDirFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cachedDoc, error) {
	var meta cachedDoc
	data, err := os.ReadFile(filepath.Join(dir, cacheMetaFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cachedDoc{}, err
	}
	return meta, nil
}

// saveCache writes the body before the metadata so the validators never
// describe a body that is not on disk.
func saveCache(dir string, meta cachedDoc, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, cacheBodyFile), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, cacheMetaFile), data, 0o600)
}

// redactURL keeps scheme and host only, since document URLs may carry tokens.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/...(redacted)"
}
