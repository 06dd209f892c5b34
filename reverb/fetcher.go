// SPDX-License-Identifier: EPL-2.0

package reverb

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// maxAssetSize caps the size of a fetched impulse response.
const maxAssetSize = 64 << 20

// Fetcher retrieves the raw bytes of an asset path.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// FSFetcher reads assets from a file system, typically os.DirFS or an
// embed.FS.
type FSFetcher struct {
	FS fs.FS
}

func (f FSFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(f.FS, path.Clean(strings.TrimPrefix(name, "/")))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return data, nil
}

// HTTPFetcher downloads assets relative to BaseURL.
type HTTPFetcher struct {
	BaseURL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	u, err := url.JoinPath(f.BaseURL, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: %s", ErrFetch, u, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if len(data) > maxAssetSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFetch, u, maxAssetSize)
	}
	return data, nil
}
