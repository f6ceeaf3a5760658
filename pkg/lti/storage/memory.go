// pkg/lti/storage/memory.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
)

/*
Process local stores for development and tests.

MemoryLaunchStore keeps launch claims and nonces with a TTL and purges
expired entries opportunistically on writes. MemoryRegistry holds
registrations and deployments added at startup.

Neither survives a restart or is shared between replicas; use the SQL
registry and the Redis launch store in production.
*/

// Default lifetimes for launch state.
const (
	DefaultLaunchTTL = 2 * time.Hour
	DefaultNonceTTL  = 10 * time.Minute
)

type entry struct {
	value []byte
	until time.Time
}

// nonceEntry stays until its TTL ends; used marks a consumed nonce.
type nonceEntry struct {
	until time.Time
	used  bool
}

// MemoryLaunchStore implements lti.LaunchStateStore and lti.NonceConsumer.
type MemoryLaunchStore struct {
	LaunchTTL time.Duration
	NonceTTL  time.Duration

	mu       sync.Mutex
	launches map[string]entry
	nonces   map[string]nonceEntry
	writes   uint64
	purgeN   uint64
	now      func() time.Time
}

// NewMemoryLaunchStore creates an in-memory store. purgeEvery controls how
// often (every N writes) expired entries are dropped; <= 0 means 1024.
func NewMemoryLaunchStore(purgeEvery int) *MemoryLaunchStore {
	if purgeEvery <= 0 {
		purgeEvery = 1024
	}
	return &MemoryLaunchStore{
		LaunchTTL: DefaultLaunchTTL,
		NonceTTL:  DefaultNonceTTL,
		launches:  make(map[string]entry),
		nonces:    make(map[string]nonceEntry),
		purgeN:    uint64(purgeEvery),
		now:       time.Now,
	}
}

func (m *MemoryLaunchStore) GetLaunchClaims(_ context.Context, launchID string) (map[string]any, error) {
	m.mu.Lock()
	e, ok := m.launches[launchID]
	m.mu.Unlock()
	if !ok || !e.until.After(m.now()) {
		return nil, fmt.Errorf("launch %s: %w", launchID, lti.ErrNotFound)
	}
	var claims map[string]any
	if err := json.Unmarshal(e.value, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *MemoryLaunchStore) PutLaunchClaims(_ context.Context, launchID string, claims map[string]any) error {
	b, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wroteLocked()
	m.launches[launchID] = entry{value: b, until: m.now().Add(m.LaunchTTL)}
	return nil
}

func (m *MemoryLaunchStore) RecordNonce(_ context.Context, nonce string) error {
	if nonce == "" {
		return fmt.Errorf("storage: empty nonce")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wroteLocked()
	now := m.now()
	if e, ok := m.nonces[nonce]; ok && e.until.After(now) {
		return fmt.Errorf("storage: nonce already recorded")
	}
	m.nonces[nonce] = nonceEntry{until: now.Add(m.NonceTTL)}
	return nil
}

func (m *MemoryLaunchStore) HasNonce(_ context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.nonces[nonce]
	return ok && !e.used && e.until.After(m.now()), nil
}

// ConsumeNonce reports whether nonce was live and marks it used. The entry
// is kept until it expires so the nonce cannot be recorded again.
func (m *MemoryLaunchStore) ConsumeNonce(_ context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.nonces[nonce]
	if !ok || e.used || !e.until.After(m.now()) {
		return false, nil
	}
	e.used = true
	m.nonces[nonce] = e
	return true, nil
}

func (m *MemoryLaunchStore) wroteLocked() {
	m.writes++
	if m.writes%m.purgeN != 0 {
		return
	}
	now := m.now()
	for k, e := range m.launches {
		if !e.until.After(now) {
			delete(m.launches, k)
		}
	}
	for k, e := range m.nonces {
		if !e.until.After(now) {
			delete(m.nonces, k)
		}
	}
}

// MemoryRegistry implements lti.RegistrationStore from a fixed set.
type MemoryRegistry struct {
	mu          sync.RWMutex
	regs        []lti.Registration
	deployments map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{deployments: make(map[string]struct{})}
}

// Add registers reg and the deployment ids that belong to it.
func (m *MemoryRegistry) Add(reg lti.Registration, deploymentIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs = append(m.regs, reg)
	for _, d := range deploymentIDs {
		m.deployments[reg.Issuer+"|"+d] = struct{}{}
	}
}

func (m *MemoryRegistry) FindRegistration(_ context.Context, issuer, clientID string) (lti.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.regs {
		if r.Issuer != issuer {
			continue
		}
		if clientID == "" || r.ClientID == clientID {
			return r, nil
		}
	}
	return lti.Registration{}, fmt.Errorf("registration %s/%s: %w", issuer, clientID, lti.ErrNotFound)
}

func (m *MemoryRegistry) FindDeployment(_ context.Context, issuer, deploymentID string) (lti.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.deployments[issuer+"|"+deploymentID]; !ok {
		return lti.Deployment{}, fmt.Errorf("deployment %s/%s: %w", issuer, deploymentID, lti.ErrNotFound)
	}
	return lti.Deployment{DeploymentID: deploymentID}, nil
}
