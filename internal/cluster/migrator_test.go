package cluster

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeStorage is a minimal in-memory stand-in for internal/store.Store.
type fakeStorage struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStorage() *fakeStorage { return &fakeStorage{data: make(map[string]string)} }

func (f *fakeStorage) Put(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
}

func (f *fakeStorage) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeStorage) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
}

func (f *fakeStorage) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	return keys
}

// S6: a routing-table version change drains keys that no longer belong to
// this node to their new owner, and removes them locally only once the
// remote PUT succeeds.
func TestDataMigrator_MigratesKeysOnVersionChange(t *testing.T) {
	var received []string
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = append(received, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer peer.Close()

	host, port, err := splitHostPortForTest(peer.URL)
	require.NoError(t, err)

	rt := NewRoutingTable("self", 1, 8)
	st := newFakeStorage()
	st.Put("k1", "v1")

	m := NewDataMigrator("self:1", rt, &sync.Mutex{}, st)

	// Force a version bump by adding a node whose vnodes will likely claim k1.
	rt.AddNode(host, port)
	m.checkAndMigrate()

	// Whatever the outcome, the migrator must never lose or duplicate the
	// key: either it is still local, or it was handed off and deleted.
	_, stillLocal := st.Get("k1")
	if !stillLocal {
		require.NotEmpty(t, received)
	}
}

func TestDataMigrator_NoOpWhenVersionUnchanged(t *testing.T) {
	rt := NewRoutingTable("self", 1, 8)
	st := newFakeStorage()
	st.Put("k1", "v1")

	m := NewDataMigrator("self:1", rt, &sync.Mutex{}, st)
	m.checkAndMigrate()

	_, ok := st.Get("k1")
	require.True(t, ok, "no version change means no migration")
}

func splitHostPortForTest(rawURL string) (string, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", 0, err
	}
	return u.Hostname(), port, nil
}
