// Package client provides a Go SDK for talking to the distributed KV store.
//
// Big idea:
//
// A naive client would always talk to one fixed server and let that server
// forward the request to whoever owns the key. This client is "smart"
// instead: it caches the cluster's RoutingTable, computes the owner of a
// key locally using the same hash the servers use, and talks to that owner
// directly. A successful response that carries a fresher routing table
// (piggybacked because the client's version header was stale) updates the
// cache, so the client's view of the cluster converges the same way a
// node's does. A table piggybacked on an error response (such as 403 for a
// non-owner) is not applied, and a failed request is not retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"distributed-kvstore/internal/cluster"
	"distributed-kvstore/internal/config"
)

// ErrNotFound is returned when a key does not exist on its owner.
var ErrNotFound = fmt.Errorf("key not found")

// APIError carries the HTTP status and message from a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Client is a routing-aware SDK talking to an entire cluster, not one node.
type Client struct {
	httpClient *http.Client

	mu      sync.Mutex
	table   *cluster.RoutingTable
	version uint64
}

// New creates a Client and immediately bootstraps its routing table from
// bootstrapAddr ("host:port"). Matches original_source/client.py's
// SmartClient, whose constructor calls bootstrap_join before anything else.
func New(ctx context.Context, bootstrapAddr string, timeout time.Duration) (*Client, error) {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
	if err := c.Refresh(ctx, bootstrapAddr); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh re-fetches the routing table from addr and replaces the local
// cache with it. Used both at construction time and for the REPL's
// "refresh" command.
func (c *Client) Refresh(ctx context.Context, addr string) error {
	endpoint := fmt.Sprintf("http://%s/routing_table", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch routing table from %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var table cluster.SerializedTable
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return fmt.Errorf("decode routing table: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.table == nil {
		// A throwaway self-entry — ReplaceWith immediately discards it and
		// rebuilds node_map/virtual_nodes from table.Nodes only. What
		// matters here is ReplicaFactor, which must match the cluster-wide
		// constant (spec §9: R is part of the wire contract).
		c.table = cluster.NewRoutingTable("client", 0, config.VirtualNodeReplicas)
	}
	c.table.ReplaceWith(table)
	c.version = table.Version
	return nil
}

// ownerFor resolves the node currently responsible for key, from the cached
// table.
func (c *Client) ownerFor(key string) (cluster.NodeMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.table == nil {
		return cluster.NodeMeta{}, fmt.Errorf("routing table not loaded")
	}
	return c.table.GetResponsibleNode(key)
}

// maybeAdoptRoutingTable applies a piggybacked routing table if it is
// strictly newer than what the client already has.
func (c *Client) maybeAdoptRoutingTable(table *cluster.SerializedTable) {
	if table == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.table == nil || table.Version <= c.version {
		return
	}
	c.table.ReplaceWith(*table)
	c.version = table.Version
}

// Version returns the routing version the client currently believes in.
func (c *Client) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Nodes returns the physical nodes in the cached routing table, used by the
// REPL's show_ring command (original_source/client.py's show_ring).
func (c *Client) Nodes() []cluster.NodeMeta {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.table == nil {
		return nil
	}
	return c.table.Nodes()
}

////////////////////////////////////////////////////////////////////////////////
// DATA PLANE
////////////////////////////////////////////////////////////////////////////////

// PutResponse is returned after a successful write.
type PutResponse struct {
	Status       string                   `json:"status"`
	Message      string                   `json:"message"`
	RoutingTable *cluster.SerializedTable `json:"routing_table,omitempty"`
}

// Put resolves key's owner and issues the write directly to it.
func (c *Client) Put(ctx context.Context, key, value string) (*PutResponse, error) {
	owner, err := c.ownerFor(key)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]string{"key": key, "value": value})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("http://%s/kv", owner.NodeID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Routing-Version", fmt.Sprintf("%d", c.Version()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PUT request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result PutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	c.maybeAdoptRoutingTable(result.RoutingTable)
	return &result, nil
}

// GetResponse is returned after a successful read.
type GetResponse struct {
	Key          string                   `json:"key"`
	Value        string                   `json:"value"`
	RoutingTable *cluster.SerializedTable `json:"routing_table,omitempty"`
}

// Get resolves key's owner and reads directly from it.
func (c *Client) Get(ctx context.Context, key string) (*GetResponse, error) {
	owner, err := c.ownerFor(key)
	if err != nil {
		return nil, err
	}

	query := url.Values{"key": {key}}.Encode()
	endpoint := fmt.Sprintf("http://%s/kv?%s", owner.NodeID, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Routing-Version", fmt.Sprintf("%d", c.Version()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result GetResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	c.maybeAdoptRoutingTable(result.RoutingTable)
	return &result, nil
}

////////////////////////////////////////////////////////////////////////////////
// ERRORS
////////////////////////////////////////////////////////////////////////////////

// checkStatus converts a non-2xx HTTP response into an APIError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
