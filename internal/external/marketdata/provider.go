package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/pkg/httputil"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

// maxSnapshotBytes caps a snapshot document
const maxSnapshotBytes = 4 << 20

// ErrSnapshotUnavailable the snapshot source could not be read
var ErrSnapshotUnavailable = errors.New("market snapshot unavailable")

// =============================================================================
// Decoding
// =============================================================================

// Decode accepts either {"assets": [...], "asOf": ...} or a bare [...] of observations
func Decode(data []byte) (*contracts.MarketSnapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrSnapshotUnavailable)
	}

	snapshot := &contracts.MarketSnapshot{}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &snapshot.Assets); err != nil {
			return nil, fmt.Errorf("failed to decode observations: %w", err)
		}
		return snapshot, nil
	}

	if err := json.Unmarshal(trimmed, snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snapshot, nil
}

// =============================================================================
// Static
// =============================================================================

// StaticProvider always returns the same snapshot
type StaticProvider struct {
	snapshot *contracts.MarketSnapshot
}

// NewStaticProvider wraps an in-memory snapshot
func NewStaticProvider(snapshot *contracts.MarketSnapshot) *StaticProvider {
	return &StaticProvider{snapshot: snapshot}
}

// Snapshot returns a copy so callers cannot mutate the shared assets
func (p *StaticProvider) Snapshot(ctx context.Context) (*contracts.MarketSnapshot, error) {
	if p.snapshot == nil {
		return nil, fmt.Errorf("%w: no snapshot configured", ErrSnapshotUnavailable)
	}
	return copySnapshot(p.snapshot), nil
}

// =============================================================================
// File
// =============================================================================

// FileProvider reads a snapshot from a JSON file on every call
type FileProvider struct {
	path string
}

// NewFileProvider creates a file-backed provider
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Snapshot reads and decodes the file. AsOf defaults to the file's mtime.
func (p *FileProvider) Snapshot(ctx context.Context) (*contracts.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	snapshot, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.path, err)
	}
	if snapshot.AsOf.IsZero() {
		snapshot.AsOf = info.ModTime().UTC()
	}
	return snapshot, nil
}

// =============================================================================
// HTTP
// =============================================================================

// HTTPProvider fetches a snapshot document with GET
type HTTPProvider struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	url        string
}

// NewHTTPProvider creates an HTTP-backed provider
func NewHTTPProvider(url string, httpClient *httputil.Client, log *logger.Logger) *HTTPProvider {
	return &HTTPProvider{
		httpClient: httpClient,
		logger:     log.Component("market-data"),
		url:        url,
	}
}

// Snapshot fetches and decodes the current snapshot
func (p *HTTPProvider) Snapshot(ctx context.Context) (*contracts.MarketSnapshot, error) {
	resp, err := p.httpClient.Get(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrSnapshotUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	snapshot, err := Decode(body)
	if err != nil {
		return nil, err
	}
	if snapshot.AsOf.IsZero() {
		snapshot.AsOf = time.Now().UTC()
	}

	p.logger.WithFields(map[string]interface{}{
		"assets": snapshot.Len(),
		"as_of":  snapshot.AsOf,
	}).Debug("Market snapshot fetched")

	return snapshot, nil
}
