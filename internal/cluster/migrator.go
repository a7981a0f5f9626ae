package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"distributed-kvstore/internal/config"
)

// storage is the subset of internal/store.Store the migrator needs. Kept as
// an interface so the migrator doesn't import the store package directly —
// the same shape a Node exposes for its own local storage.
type storage interface {
	Keys() []string
	Get(key string) (string, bool)
	Delete(key string)
}

// DataMigrator reconciles a node's local storage with the current routing
// table: whenever the table's version changes, any key that now belongs to
// a different owner is drained to that owner and removed locally.
//
// Migration is idempotent — a second PUT of the same (key, value) just
// overwrites, and the local delete only happens after the remote
// acknowledges, so there is no distributed lock and no at-most-once
// guarantee beyond "eventually moved, eventually deleted".
type DataMigrator struct {
	selfNodeID   string
	routingTable *RoutingTable
	tableMu      sync.Locker // the same lock GossipManager guards RoutingTable with
	store        storage
	httpClient   *http.Client

	mu          sync.Mutex
	lastVersion uint64
	running     bool
	stop        chan struct{}
}

// NewDataMigrator creates a migrator pinned to rt's current version, so the
// first pass after construction is a no-op unless the table has already
// changed.
func NewDataMigrator(selfNodeID string, rt *RoutingTable, tableMu sync.Locker, store storage) *DataMigrator {
	return &DataMigrator{
		selfNodeID:   selfNodeID,
		routingTable: rt,
		tableMu:      tableMu,
		store:        store,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		lastVersion:  rt.Version,
		stop:         make(chan struct{}),
	}
}

// Start launches the background migration loop.
func (m *DataMigrator) Start() {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	go m.loop()
}

// Stop halts the loop.
func (m *DataMigrator) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	close(m.stop)
}

func (m *DataMigrator) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *DataMigrator) loop() {
	ticker := time.NewTicker(config.MigrationInterval)
	defer ticker.Stop()
	for m.isRunning() {
		select {
		case <-ticker.C:
			m.checkAndMigrate()
		case <-m.stop:
			return
		}
	}
}

// checkAndMigrate is one pass: §4.4 step 1-2 under the table lock, then the
// actual transfers outside it so a slow peer can't hold up routing-table
// readers.
func (m *DataMigrator) checkAndMigrate() {
	m.tableMu.Lock()
	current := m.routingTable.Version
	if current == m.lastVersion {
		m.tableMu.Unlock()
		return
	}
	previous := m.lastVersion
	m.lastVersion = current

	type transfer struct {
		key   string
		value string
		owner NodeMeta
	}
	var toMove []transfer
	for _, key := range m.store.Keys() {
		value, ok := m.store.Get(key)
		if !ok {
			continue
		}
		owner, err := m.routingTable.GetResponsibleNode(key)
		if err != nil {
			continue
		}
		if owner.NodeID != m.selfNodeID {
			toMove = append(toMove, transfer{key: key, value: value, owner: owner})
		}
	}
	version := m.routingTable.Version
	m.tableMu.Unlock()

	if len(toMove) == 0 {
		log.Printf("[migrator] routing version %d -> %d, nothing to migrate", previous, current)
		return
	}
	log.Printf("[migrator] routing version change detected, %d keys need to move", len(toMove))

	for _, t := range toMove {
		if err := m.migrateKey(t.key, t.value, t.owner, version); err != nil {
			log.Printf("[migrator] failed to migrate %q to %s: %v", t.key, t.owner.NodeID, err)
			continue
		}
		m.store.Delete(t.key)
		log.Printf("[migrator] migrated %q to %s", t.key, t.owner.NodeID)
	}
}

// migrateKey PUTs (key, value) to owner with the routing version that
// justified the move. A single attempt — on failure the key stays put and
// the next periodic pass will see the same discrepancy and retry.
func (m *DataMigrator) migrateKey(key, value string, owner NodeMeta, version uint64) error {
	body, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrTransport, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/kv", owner.NodeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Routing-Version", fmt.Sprintf("%d", version))

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: owner returned HTTP %d", ErrTransport, resp.StatusCode)
	}
	return nil
}
