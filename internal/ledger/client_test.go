package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPartitions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ledgers/book-1/partitions", r.URL.Path)
		assert.Equal(t, "Bearer cred", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"partitions": []string{"2025_12_08", "2025_12_09"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "book-1", "cred")
	names, err := c.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2025_12_08", "2025_12_09"}, names)
}

func TestClientAppendRow(t *testing.T) {
	var got struct {
		Values []string `json:"values"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/ledgers/book-1/partitions/2025_12_09/rows", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "book-1", "cred")
	err := c.AppendRow(context.Background(), "2025_12_09", []string{"Juan", "22-0001", "11", "A", "t"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Juan", "22-0001", "11", "A", "t"}, got.Values)
}

func TestClientReadRangeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "book-1", "cred")
	_, err := c.ReadRange(context.Background(), "2099_01_01", "A:E")
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestClientServerErrorIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "book-1", "cred")
	err := c.CreatePartition(context.Background(), "2025_12_09")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPartitionNotFound)
}

func TestClientReadRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "A:E", r.URL.Query().Get("range"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rows": [][]string{Header, {"Juan", "22-0001", "11", "A", "t"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "book-1", "cred")
	rows, err := c.ReadRange(context.Background(), "2025_12_09", "A:E")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Header, rows[0])
}
