// Package credentials hands out live OAuth credentials, refreshing them shortly before they expire.
//
// Refreshes and writes for one (platform, subject) pair are serialized by a dedicated mutex, so two concurrent
// callers never both spend a refresh token or clobber each other's write. Unrelated pairs never wait on each other.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
)

// DefaultRefreshMargin is how long before expiry a credential is refreshed.
const DefaultRefreshMargin = 5 * time.Minute

// Store is the persistence the manager reads and writes credentials through.
type Store interface {
	Get(platform models.Platform, subject string) (*models.Credential, error)
	Save(cred *models.Credential) error
	Delete(platform models.Platform, subject string) error
	List(subject string) ([]*models.Credential, error)
}

// Refreshers looks up the token refresher of a platform. [*services.Registry] implements it.
type Refreshers interface {
	Refresher(p models.Platform) (services.Refresher, error)
}

// Connection describes the stored credential of one platform.
type Connection struct {
	Platform  models.Platform `json:"platform"`
	Connected bool            `json:"connected"`
	Usable    bool            `json:"usable"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// Manager implements the token lifecycle on top of a [Store].
type Manager struct {
	store      Store
	refreshers Refreshers
	margin     time.Duration
	logger     *log.Logger
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a [Manager].
type Option func(*Manager)

// WithMargin sets the refresh margin.
func WithMargin(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.margin = d
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager over store that refreshes through refreshers.
func NewManager(store Store, refreshers Refreshers, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		refreshers: refreshers,
		margin:     DefaultRefreshMargin,
		logger:     log.Default(),
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lock(p models.Platform, subject string) *sync.Mutex {
	key := string(p) + "\x00" + subject

	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// LiveCredential returns a credential for platform and subject that is valid for at least the refresh margin.
//
// It fails with [shared.ErrNotConnected] when nothing is stored and with [shared.ErrRefreshFailed] when a refresh
// fails or the token has expired without a refresh token. A token inside the margin with no refresh token is
// returned until it actually expires.
func (m *Manager) LiveCredential(ctx context.Context, p models.Platform, subject string) (*models.Credential, error) {
	cred, err := m.store.Get(p, subject)
	if err != nil {
		return nil, err
	}
	if !cred.ExpiresWithin(m.margin, m.now()) {
		return cred, nil
	}

	l := m.lock(p, subject)
	l.Lock()
	defer l.Unlock()

	// Another caller may have refreshed while we waited.
	cred, err = m.store.Get(p, subject)
	if err != nil {
		return nil, err
	}
	if !cred.ExpiresWithin(m.margin, m.now()) {
		return cred, nil
	}

	return m.refresh(ctx, cred)
}

// refresh must be called with the pair's lock held.
func (m *Manager) refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	logger := shared.WithLogger(m.logger, "platform", cred.Platform, "subject", cred.Subject)

	if !cred.CanRefresh() && m.now().Before(cred.ExpiresAt) {
		logger.Debug("credential expires soon and has no refresh token, using it as is", "expires_at", cred.ExpiresAt)
		return cred, nil
	}
	if !cred.CanRefresh() {
		logger.Warn("credential expired and has no refresh token", "expires_at", cred.ExpiresAt)
		return nil, fmt.Errorf("%w: %w: %s expires at %s", shared.ErrRefreshFailed, shared.ErrNoRefreshToken,
			cred.Platform, cred.ExpiresAt.Format(time.RFC3339))
	}

	refresher, err := m.refreshers.Refresher(cred.Platform)
	if err != nil {
		logger.Warn("no refresher for platform", "error", err)
		return nil, asRefreshFailed(err)
	}

	next, err := refresher.Refresh(ctx, cred)
	if err != nil {
		logger.Warn("token refresh failed", "error", err)
		return nil, asRefreshFailed(err)
	}

	next.ID = cred.ID
	next.Platform = cred.Platform
	next.Subject = cred.Subject
	next.CreatedAt = cred.CreatedAt
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}

	if err := m.store.Save(next); err != nil {
		logger.Error("failed to persist refreshed credential", "error", err)
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrRefreshFailed, cred.Platform, err)
	}

	logger.Info("refreshed credential", "expires_at", next.ExpiresAt)
	return next, nil
}

func asRefreshFailed(err error) error {
	if errors.Is(err, shared.ErrRefreshFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
}

// LiveConnections lists the platforms whose credential for subject is unexpired or refreshable.
func (m *Manager) LiveConnections(ctx context.Context, subject string) ([]models.Platform, error) {
	creds, err := m.store.List(subject)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var out []models.Platform
	for _, c := range creds {
		if c.Usable(now) {
			out = append(out, c.Platform)
		}
	}
	return out, nil
}

// Connections reports the stored credential of every supported platform for subject.
func (m *Manager) Connections(subject string) ([]Connection, error) {
	creds, err := m.store.List(subject)
	if err != nil {
		return nil, err
	}

	byPlatform := make(map[models.Platform]*models.Credential, len(creds))
	for _, c := range creds {
		byPlatform[c.Platform] = c
	}

	now := m.now()
	out := make([]Connection, 0, len(models.Platforms))
	for _, p := range models.Platforms {
		conn := Connection{Platform: p}
		if c, ok := byPlatform[p]; ok {
			conn.Connected = true
			conn.Usable = c.Usable(now)
			if !c.ExpiresAt.IsZero() {
				exp := c.ExpiresAt
				conn.ExpiresAt = &exp
			}
			updated := c.UpdatedAt
			conn.UpdatedAt = &updated
		}
		out = append(out, conn)
	}
	return out, nil
}

// Connect stores a freshly authorized credential, replacing any previous one for the pair.
func (m *Manager) Connect(cred *models.Credential) error {
	l := m.lock(cred.Platform, cred.Subject)
	l.Lock()
	defer l.Unlock()
	return m.store.Save(cred)
}

// Disconnect forgets the credential for platform and subject.
func (m *Manager) Disconnect(p models.Platform, subject string) error {
	l := m.lock(p, subject)
	l.Lock()
	defer l.Unlock()
	return m.store.Delete(p, subject)
}
