package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client calls the ledger service over HTTP. All requests target one
// ledger, named at construction.
type Client struct {
	BaseURL  string
	LedgerID string
	Token    string
	HTTP     *http.Client
}

// NewClient creates a client for the given ledger.
func NewClient(baseURL, ledgerID, token string) *Client {
	return &Client{
		BaseURL:  baseURL,
		LedgerID: ledgerID,
		Token:    token,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Partitions lists the partition names of the ledger.
func (c *Client) Partitions(ctx context.Context) ([]string, error) {
	var out struct {
		Partitions []string `json:"partitions"`
	}
	if err := c.do(ctx, http.MethodGet, c.url("partitions"), nil, &out); err != nil {
		return nil, err
	}
	return out.Partitions, nil
}

// CreatePartition creates a named partition.
func (c *Client) CreatePartition(ctx context.Context, name string) error {
	body := map[string]string{"name": name}
	return c.do(ctx, http.MethodPost, c.url("partitions"), body, nil)
}

// WriteRow writes values at an explicit range.
func (c *Client) WriteRow(ctx context.Context, partition, rng string, values []string) error {
	body := map[string]interface{}{"range": rng, "values": values}
	return c.do(ctx, http.MethodPut, c.url("partitions", partition, "rows"), body, nil)
}

// AppendRow appends values after the last occupied row.
func (c *Client) AppendRow(ctx context.Context, partition string, values []string) error {
	body := map[string]interface{}{"values": values}
	return c.do(ctx, http.MethodPost, c.url("partitions", partition, "rows"), body, nil)
}

// ReadRange returns the rows in the range. A 404 from the service means
// the partition does not exist and maps to ErrPartitionNotFound.
func (c *Client) ReadRange(ctx context.Context, partition, rng string) ([][]string, error) {
	var out struct {
		Rows [][]string `json:"rows"`
	}
	u := c.url("partitions", partition, "rows") + "?range=" + url.QueryEscape(rng)
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

func (c *Client) url(parts ...string) string {
	u := c.BaseURL + "/v1/ledgers/" + url.PathEscape(c.LedgerID)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("ledger service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return ErrPartitionNotFound
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ledger service error %s: %s", resp.Status, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode ledger response: %w", err)
		}
	}
	return nil
}
