package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/vectorstore"
)

// Outcome reports what the integrity check had to do before a sync can
// proceed, so the sync engine knows whether to treat the prior
// last-synced commit as still valid.
type Outcome struct {
	Name               string
	Created            bool
	ValidationRecreate bool
	WipeRecovery       bool
}

// RequiresFullReindex is true when the effective last-synced commit must
// be treated as none, forcing the diff planner to enumerate every
// currently-tracked file as added (spec §4.4 step 4).
func (o Outcome) RequiresFullReindex() bool {
	return o.ValidationRecreate || o.WipeRecovery
}

// Manager owns per-(repo,branch) locks and runs the integrity checks of
// spec §4.3 against a vectorstore.Store before every sync.
type Manager struct {
	store    vectorstore.Store
	prefix   string
	dim      int
	logger   *slog.Logger
	locksMu  sync.Mutex
	locks    map[string]*sync.Mutex
}

// NewManager constructs an integrity manager backed by store, naming
// collections with the given prefix and expecting vectors of dimension
// dim.
func NewManager(store vectorstore.Store, prefix string, dim int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		prefix: prefix,
		dim:    dim,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// CollectionName returns the stable collection name for (repo, branch).
func (m *Manager) CollectionName(repo, branch string) string {
	return Name(m.prefix, repo, branch)
}

// Lock returns the mutex serializing syncs of a single (repo, branch) pair.
// Distinct pairs get distinct mutexes so unrelated syncs proceed in parallel
// (spec §5).
func (m *Manager) Lock(repo, branch string) *sync.Mutex {
	key := repo + "\x00" + branch
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Ensure runs the three integrity checks of spec §4.3 for (repo, branch)
// against lastSyncedCommit (empty if never synced). It creates the
// collection if missing, recreates it on dimension mismatch, and reports
// wipe recovery when the collection is unexpectedly empty.
func (m *Manager) Ensure(ctx context.Context, repo, branch, lastSyncedCommit string) (Outcome, error) {
	name := m.CollectionName(repo, branch)

	info, err := m.store.CollectionInfo(ctx, name)
	if err != nil {
		return Outcome{}, errors.VectorStoreError(fmt.Sprintf("check collection %q", name), err)
	}

	if !info.Exists {
		if err := m.store.CreateCollection(ctx, name, m.dim, Cosine); err != nil {
			return Outcome{}, errors.VectorStoreError(fmt.Sprintf("create collection %q", name), err)
		}
		m.logger.Info("created collection", slog.String("collection", name))
		return Outcome{Name: name, Created: true}, nil
	}

	if info.Dimension != m.dim {
		m.logger.Warn("dimension mismatch, recreating collection",
			slog.String("collection", name), slog.Int("have", info.Dimension), slog.Int("want", m.dim))
		if err := m.store.DeleteCollection(ctx, name); err != nil {
			return Outcome{}, errors.VectorStoreError(fmt.Sprintf("delete collection %q for recreate", name), err)
		}
		if err := m.store.CreateCollection(ctx, name, m.dim, Cosine); err != nil {
			return Outcome{}, errors.VectorStoreError(fmt.Sprintf("recreate collection %q", name), err)
		}
		return Outcome{Name: name, ValidationRecreate: true}, nil
	}

	if info.PointCount == 0 && lastSyncedCommit != "" {
		m.logger.Warn("collection empty despite prior sync, triggering wipe recovery",
			slog.String("collection", name), slog.String("last_synced_commit", lastSyncedCommit))
		return Outcome{Name: name, WipeRecovery: true}, nil
	}

	return Outcome{Name: name}, nil
}
