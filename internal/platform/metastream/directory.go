package metastream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// DirectoryClient fetches aggregator display metadata.
type DirectoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDirectoryClient creates a directory client for baseURL, e.g.
// "https://hyperevm.internal.oogabooga.io".
func NewDirectoryClient(baseURL string, timeout time.Duration) *DirectoryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DirectoryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchAggregators returns every aggregator the server knows about. Any
// non-2xx response is an error.
func (c *DirectoryClient) FetchAggregators(ctx context.Context) ([]domain.ProviderMeta, error) {
	body, err := c.doGet(ctx, AggregatorsPath)
	if err != nil {
		return nil, fmt.Errorf("metastream/directory: fetch aggregators: %w", err)
	}

	var metas []domain.ProviderMeta
	if err := json.Unmarshal(body, &metas); err != nil {
		return nil, fmt.Errorf("metastream/directory: decode aggregators: %w", err)
	}
	return metas, nil
}

func (c *DirectoryClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
