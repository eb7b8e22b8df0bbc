package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/lib/pq"
)

// GrantsChangedChannel is the NOTIFY channel fired by the grants trigger
const GrantsChangedChannel = "grants_changed"

// RevisionManager tracks the grant revision for decision cache consistency across instances.
// It uses PostgreSQL LISTEN/NOTIFY for instant synchronization when grants change.
// The tracked revision only moves forward, whatever order notifications and
// database reads complete in.
type RevisionManager struct {
	mu          sync.RWMutex
	revision    int64
	loaded      bool
	db          *sql.DB
	refreshTTL  time.Duration
	lastRefresh time.Time
	listener    *pq.Listener
	connStr     string
	stopCh      chan struct{}
	stopped     bool
}

// NewRevisionManager creates a new RevisionManager.
// connStr is the PostgreSQL connection string for LISTEN/NOTIFY.
// refreshTTL is the fallback interval for re-reading the revision from DB.
func NewRevisionManager(db *sql.DB, connStr string, refreshTTL time.Duration) *RevisionManager {
	return &RevisionManager{
		db:         db,
		connStr:    connStr,
		refreshTTL: refreshTTL,
		stopCh:     make(chan struct{}),
	}
}

// Start fetches the initial revision and starts the LISTEN/NOTIFY listener.
func (m *RevisionManager) Start(ctx context.Context) error {
	if _, err := m.refreshFromDB(ctx); err != nil {
		return fmt.Errorf("failed to fetch initial revision: %w", err)
	}

	if err := m.startListener(); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	return nil
}

// Stop stops the RevisionManager and closes the listener.
func (m *RevisionManager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.stopCh)
	m.mu.Unlock()

	if m.listener != nil {
		return m.listener.Close()
	}
	return nil
}

// CurrentRevision returns the current grant revision.
// A revision older than refreshTTL is re-read from the database.
func (m *RevisionManager) CurrentRevision(ctx context.Context) (string, error) {
	m.mu.RLock()
	revision := m.revision
	needsRefresh := !m.loaded || time.Since(m.lastRefresh) > m.refreshTTL
	m.mu.RUnlock()

	// Testing mode
	if m.db == nil {
		return strconv.FormatInt(revision, 10), nil
	}

	if needsRefresh {
		return m.refreshFromDB(ctx)
	}

	return strconv.FormatInt(revision, 10), nil
}

// Invalidate re-reads the revision after a local grant mutation so the
// writer observes its own change without waiting for the notification.
func (m *RevisionManager) Invalidate(ctx context.Context) error {
	if m.db == nil {
		m.mu.Lock()
		m.revision++
		m.loaded = true
		m.lastRefresh = time.Now()
		m.mu.Unlock()
		return nil
	}

	_, err := m.refreshFromDB(ctx)
	return err
}

// SetRevision overrides the current revision, including moving it backwards.
// This is primarily used for testing.
func (m *RevisionManager) SetRevision(revision int64) {
	m.mu.Lock()
	m.revision = revision
	m.loaded = true
	m.lastRefresh = time.Now()
	m.mu.Unlock()
}

// advance moves the revision to n unless a newer one is already known
// and returns the resulting revision.
func (m *RevisionManager) advance(n int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded || n > m.revision {
		m.revision = n
	}
	m.loaded = true
	m.lastRefresh = time.Now()
	return m.revision
}

// applyNotification records the revision carried by a NOTIFY payload.
func (m *RevisionManager) applyNotification(payload string) {
	n, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		log.Printf("RevisionManager ignoring malformed notification %q: %v", payload, err)
		m.markStale()
		return
	}
	m.advance(n)
}

// markStale forces the next CurrentRevision to re-read the database.
func (m *RevisionManager) markStale() {
	m.mu.Lock()
	m.lastRefresh = time.Time{}
	m.mu.Unlock()
}

func (m *RevisionManager) refreshFromDB(ctx context.Context) (string, error) {
	revision, err := m.fetchLatestRevision(ctx)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(m.advance(revision), 10), nil
}

// fetchLatestRevision reads the committed grant revision.
func (m *RevisionManager) fetchLatestRevision(ctx context.Context) (int64, error) {
	var revision int64
	err := m.db.QueryRowContext(ctx,
		`SELECT revision FROM grant_revision WHERE singleton`,
	).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch grant revision: %w", err)
	}

	return revision, nil
}

func (m *RevisionManager) startListener() error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			// TTL fallback keeps revisions fresh while reconnecting
			log.Printf("RevisionManager listener error: %v", err)
		}
	}

	m.listener = pq.NewListener(m.connStr, 10*time.Second, time.Minute, reportProblem)

	if err := m.listener.Listen(GrantsChangedChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", GrantsChangedChannel, err)
	}

	go m.handleNotifications()

	return nil
}

func (m *RevisionManager) handleNotifications() {
	for {
		select {
		case <-m.stopCh:
			return
		case notification := <-m.listener.Notify:
			if notification == nil {
				// Connection lost; the listener reconnects on its own
				m.markStale()
				continue
			}
			m.applyNotification(notification.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := m.listener.Ping(); err != nil {
					log.Printf("RevisionManager ping error: %v", err)
				}
			}()
		}
	}
}
