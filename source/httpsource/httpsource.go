// Package httpsource implements the source client interface for items
// whose content locator is an HTTP(S) URL.
//
// Listing and authentication against the source site are out of scope
// here; an external lister produces the catalogue, and any required
// session cookies or headers come in through the injected http.Client.
package httpsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/afero"

	syncerrors "github.com/shelfsync/shelfsync/errors"
	"github.com/shelfsync/shelfsync/synctypes"
)

// DefaultTimeout bounds each download when no client is injected.
const DefaultTimeout = 5 * time.Minute

// Client downloads item bytes over HTTP.
type Client struct {
	http *http.Client
	fs   afero.Fs
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects the HTTP client used for downloads, e.g. one
// carrying an authenticated cookie jar.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithFs writes downloads to fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(c *Client) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// New creates an HTTP source client.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: DefaultTimeout},
		fs:   afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download implements synctypes.Source. The HTTP status code is carried
// in the error text on failure so fault classification can distinguish
// rate limiting and server errors from permanent ones.
func (c *Client) Download(ctx context.Context, item synctypes.ItemRecord, destPath string) error {
	if item.Locator == "" {
		return syncerrors.NewItemError("download", item.ID, syncerrors.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.Locator, nil)
	if err != nil {
		return syncerrors.NewItemError("download", item.ID, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return syncerrors.NewItemError("download", item.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return syncerrors.NewItemError("download", item.ID,
			fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, item.Locator))
	}

	f, err := c.fs.Create(destPath)
	if err != nil {
		return syncerrors.NewItemError("download", item.ID, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		c.fs.Remove(destPath)
		return syncerrors.NewItemError("download", item.ID, err)
	}
	return nil
}
