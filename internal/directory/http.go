package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/megabot/resolution-core/internal/store"
	"github.com/megabot/resolution-core/pkg/models"
)

// HTTPDirectory resolves networks, users, and channels from the external
// directory services over HTTP. Lookups are idempotent GETs, so transient
// failures are retried with a short exponential backoff; a 404 maps to
// store.ErrNotFound and is never retried.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client

	maxRetries uint64
}

// NewHTTPDirectory creates a directory client against baseURL
// (e.g. "http://directory:8080").
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDirectory{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		maxRetries: 2,
	}
}

func (d *HTTPDirectory) GetNetworkByID(ctx context.Context, networkID string) (*models.Network, error) {
	var n models.Network
	if err := d.getJSON(ctx, "/api/v1/networks/"+networkID, "network", networkID, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (d *HTTPDirectory) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := d.getJSON(ctx, "/api/v1/users/"+userID, "user", userID, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *HTTPDirectory) GetChannelByID(ctx context.Context, channelID string) (*models.Channel, error) {
	var c models.Channel
	if err := d.getJSON(ctx, "/api/v1/channels/"+channelID, "channel", channelID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *HTTPDirectory) getJSON(ctx context.Context, path, entity, key string, out any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return err // transient, retry
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(&store.ErrNotFound{Entity: entity, Key: key})
		case resp.StatusCode >= 500:
			return fmt.Errorf("directory %s lookup: status %d", entity, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("directory %s lookup: status %d", entity, resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", entity, err))
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		log.Warn().Err(err).Str("entity", entity).Str("key", key).Msg("Directory lookup failed")
		return err
	}
	return nil
}
