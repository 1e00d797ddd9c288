package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/metrics"
	"github.com/formsnapper/backend/pkg/logger"
)

// Manager owns the active backend. Saves and retrieves against a failing
// remote backend transparently fall back to local; deletes never do, so a
// failed delete cannot silently orphan remote data. Mode switches are
// serialized behind in-flight operations.
type Manager struct {
	mu     sync.RWMutex
	mode   Mode
	local  Backend
	remote Backend
	modes  ModeStore
}

func NewManager(local Backend, remote Backend, modes ModeStore, defaultMode Mode) (*Manager, error) {
	m := &Manager{
		local:  local,
		remote: remote,
		modes:  modes,
		mode:   defaultMode,
	}
	if m.mode == "" {
		m.mode = ModeLocal
	}

	persisted, ok, err := modes.LoadMode()
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted storage mode: %w", err)
	}
	if ok {
		m.mode = persisted
	}

	if m.mode == ModeRemote && remote == nil {
		logger.Warn("Remote storage mode persisted but no remote backend configured, using local")
		m.mode = ModeLocal
	}

	logger.Info("Storage manager initialized", zap.String("mode", string(m.mode)))
	return m, nil
}

func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Ping checks the active backend.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active().Ping(ctx)
}

// active resolves the backend at call time. Caller holds at least a read
// lock.
func (m *Manager) active() Backend {
	if m.mode == ModeRemote && m.remote != nil {
		return m.remote
	}
	return m.local
}

func (m *Manager) Save(ctx context.Context, doc *Document) (*SaveResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	backend := m.active()
	result, err := backend.Save(ctx, doc)
	observeOp(backend, "save", err)
	if err == nil {
		return result, nil
	}
	if backend.Location() != LocationRemote {
		return nil, err
	}

	logger.Warn("Remote save failed, falling back to local storage",
		zap.String("document_id", doc.DocumentID),
		zap.Error(err),
	)
	metrics.StorageFallbacks.WithLabelValues("save").Inc()

	result, localErr := m.local.Save(ctx, doc)
	observeOp(m.local, "save", localErr)
	if localErr != nil {
		return nil, fmt.Errorf("remote save failed (%v), local fallback failed: %w", err, localErr)
	}
	return result, nil
}

func (m *Manager) Retrieve(ctx context.Context, userID, documentID string) ([]Chunk, []DocumentMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	backend := m.active()
	chunks, metas, err := backend.Retrieve(ctx, userID, documentID)
	observeOp(backend, "retrieve", err)
	if err == nil || backend.Location() != LocationRemote {
		return chunks, metas, err
	}

	// Not-found on the remote is an answer, not an outage.
	if errors.Is(err, ErrDocumentNotFound) {
		return nil, nil, err
	}

	logger.Warn("Remote retrieve failed, falling back to local storage",
		zap.String("user_id", userID),
		zap.Error(err),
	)
	metrics.StorageFallbacks.WithLabelValues("retrieve").Inc()

	chunks, metas, localErr := m.local.Retrieve(ctx, userID, documentID)
	observeOp(m.local, "retrieve", localErr)
	if localErr != nil {
		return nil, nil, fmt.Errorf("remote retrieve failed (%v), local fallback failed: %w", err, localErr)
	}
	return chunks, metas, nil
}

// Delete surfaces failures directly; there is no fallback because deleting
// from the wrong backend would leave orphaned data behind.
func (m *Manager) Delete(ctx context.Context, userID, fileName string) (*DeleteResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	backend := m.active()
	result, err := backend.Delete(ctx, userID, fileName)
	observeOp(backend, "delete", err)
	return result, err
}

func (m *Manager) Usage(ctx context.Context, userID string) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	backend := m.active()
	stats, err := backend.Stats(ctx, userID)
	if err == nil || backend.Location() != LocationRemote {
		return stats, err
	}

	logger.Warn("Remote stats failed, falling back to local storage", zap.Error(err))
	return m.local.Stats(ctx, userID)
}

// SetMode switches the authoritative backend. The new mode is persisted
// first, then the old backend is cleaned up: local data is cleared entirely
// when leaving local, and remote data is deleted best-effort when leaving
// remote. A partial remote cleanup is logged but never fails the switch.
func (m *Manager) SetMode(ctx context.Context, newMode Mode, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newMode == ModeRemote && m.remote == nil {
		return fmt.Errorf("remote storage backend is not configured")
	}

	oldMode := m.mode
	if newMode == oldMode {
		return nil
	}

	if err := m.modes.StoreMode(newMode); err != nil {
		return fmt.Errorf("failed to persist storage mode: %w", err)
	}
	m.mode = newMode

	logger.Info("Storage mode switched",
		zap.String("from", string(oldMode)),
		zap.String("to", string(newMode)),
	)
	metrics.ModeSwitches.WithLabelValues(string(newMode)).Inc()

	switch {
	case oldMode == ModeLocal && newMode == ModeRemote:
		if _, err := m.local.Purge(ctx, ""); err != nil {
			// The mode is already authoritative; leftover local data is
			// unreachable because retrieval targets the active backend.
			logger.Warn("Failed to clear local storage after mode switch", zap.Error(err))
		}
	case oldMode == ModeRemote && newMode == ModeLocal:
		if _, err := m.remote.Purge(ctx, userID); err != nil {
			logger.Warn("Best-effort remote cleanup after mode switch was partial", zap.Error(err))
		}
	}

	return nil
}

func observeOp(backend Backend, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StorageOps.WithLabelValues(string(backend.Location()), operation, status).Inc()
}
