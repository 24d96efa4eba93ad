package agenda

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/audit"
	"github.com/hackgods/clinicdesk/internal/session"
)

// DefaultIdleTTL is how long an agenda nobody asked for is kept refreshing.
const DefaultIdleTTL = 30 * time.Minute

// Book holds one Agenda per desk and refreshes them in the background with
// the last session each desk presented.
type Book struct {
	src     Source
	log     *zap.Logger
	audit   *audit.Recorder
	now     func() time.Time
	idleTTL time.Duration

	mu      sync.Mutex
	agendas map[string]*Agenda
}

// NewBook creates an empty book. Agendas idle for longer than idleTTL are
// dropped by the background refresh; zero selects DefaultIdleTTL.
func NewBook(src Source, rec *audit.Recorder, log *zap.Logger, idleTTL time.Duration) *Book {
	if log == nil {
		log = zap.NewNop()
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Book{
		src:     src,
		log:     log,
		audit:   rec,
		now:     time.Now,
		idleTTL: idleTTL,
		agendas: map[string]*Agenda{},
	}
}

// For returns the agenda of the desk behind sess, creating it on first use.
// Desks are keyed by token, never by the claimed subject.
func (b *Book) For(sess session.Session) *Agenda {
	key := sess.Key()

	b.mu.Lock()
	a, ok := b.agendas[key]
	if !ok {
		a = &Agenda{src: b.src, log: b.log, audit: b.audit, now: b.now}
		b.agendas[key] = a
	}
	b.mu.Unlock()

	a.touch(sess)
	return a
}

// Len is the number of agendas held.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.agendas)
}

// RefreshAll refreshes every agenda whose session is still valid and that was
// used within the idle TTL, and drops the others.
func (b *Book) RefreshAll(ctx context.Context) {
	now := b.now()
	cutoff := now.Add(-b.idleTTL)

	b.mu.Lock()
	live := make([]*Agenda, 0, len(b.agendas))
	for key, a := range b.agendas {
		if a.currentSession().Expired(now) || a.idleSince().Before(cutoff) {
			delete(b.agendas, key)
			continue
		}
		live = append(live, a)
	}
	b.mu.Unlock()

	for _, a := range live {
		if err := a.Refresh(ctx); err != nil {
			b.log.Warn("background agenda refresh failed", zap.Error(err))
		}
	}
}

// Run refreshes every interval until ctx is cancelled.
func (b *Book) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.log.Info("agenda refresher started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			b.log.Info("agenda refresher stopped")
			return
		case <-ticker.C:
			b.RefreshAll(ctx)
		}
	}
}
