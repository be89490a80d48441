package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/tradepost/internal/auditctx"
	"github.com/charlesng35/tradepost/internal/models"
	"github.com/charlesng35/tradepost/pkg/logger"
	"github.com/charlesng35/tradepost/pkg/metrics"
	"github.com/charlesng35/tradepost/pkg/sanitize"
)

const (
	defaultSecurityLogBuffer  = 256
	defaultSecurityLogTimeout = 5 * time.Second
	defaultRecentLimit        = 20
	maxRecentLimit            = 100
)

// SecurityRecorder is the write side of the security log used by workflow services.
type SecurityRecorder interface {
	Record(ctx context.Context, userID, targetUserID string, event SecurityEvent)
}

// SecurityLogOptions tunes the asynchronous writer.
type SecurityLogOptions struct {
	BufferSize   int
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

type securityLogJob struct {
	entry *models.SecurityLogEntry
	done  chan struct{}
}

// SecurityLog is an append-only sink for security events. Writes are queued and persisted by a
// single background goroutine so that callers never block on, or fail because of, audit storage.
type SecurityLog struct {
	db      *gorm.DB
	log     *zap.Logger
	timeout time.Duration
	queue   chan securityLogJob
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewSecurityLog constructs the security log and starts its writer.
func NewSecurityLog(db *gorm.DB, opts SecurityLogOptions) (*SecurityLog, error) {
	if db == nil {
		return nil, errors.New("security log: db is required")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultSecurityLogBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultSecurityLogTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithModule("security_log")
	}

	s := &SecurityLog{
		db:      db,
		log:     opts.Logger,
		timeout: opts.WriteTimeout,
		queue:   make(chan securityLogJob, opts.BufferSize),
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Record queues an event. It never blocks: when the queue is full the entry is dropped and the
// loss is logged and counted.
func (s *SecurityLog) Record(ctx context.Context, userID, targetUserID string, event SecurityEvent) {
	if s == nil || event == nil {
		return
	}

	entry, err := buildSecurityLogEntry(ensureContext(ctx), userID, targetUserID, event)
	if err != nil {
		metrics.SecurityLogWrites.WithLabelValues("error").Inc()
		s.log.Warn("security log entry rejected", zap.String("event_type", event.EventType()), zap.Error(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		metrics.SecurityLogWrites.WithLabelValues("dropped").Inc()
		s.log.Warn("security log closed, entry dropped", zap.String("event_type", entry.EventType))
		return
	}

	select {
	case s.queue <- securityLogJob{entry: entry}:
	default:
		metrics.SecurityLogWrites.WithLabelValues("dropped").Inc()
		s.log.Warn("security log queue full, entry dropped", zap.String("event_type", entry.EventType))
	}
}

// Flush blocks until every entry queued before the call has been written or ctx is done.
func (s *SecurityLog) Flush(ctx context.Context) error {
	ctx = ensureContext(ctx)
	done := make(chan struct{})

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.queue <- securityLogJob{done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for queued entries to be written.
func (s *SecurityLog) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Recent returns the newest entries recorded for userID, newest first. Only entries whose actor is
// userID are returned.
func (s *SecurityLog) Recent(ctx context.Context, userID string, limit int) ([]models.SecurityLogEntry, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("security log: user id is required")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	var entries []models.SecurityLogEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("security log: list recent: %w", err)
	}
	return entries, nil
}

// PurgeOlderThan removes entries created before cutoff. It is only invoked by the retention job.
func (s *SecurityLog) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.SecurityLogEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("security log: purge entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *SecurityLog) run() {
	defer s.wg.Done()

	for job := range s.queue {
		if job.entry != nil {
			s.write(job.entry)
		}
		if job.done != nil {
			close(job.done)
		}
	}
}

func (s *SecurityLog) write(entry *models.SecurityLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		metrics.SecurityLogWrites.WithLabelValues("error").Inc()
		s.log.Error("failed to persist security log entry",
			zap.String("event_type", entry.EventType),
			zap.Error(err),
		)
		return
	}
	metrics.SecurityLogWrites.WithLabelValues("ok").Inc()
}

func buildSecurityLogEntry(ctx context.Context, userID, targetUserID string, event SecurityEvent) (*models.SecurityLogEntry, error) {
	payload, err := json.Marshal(event.metadata())
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	entry := &models.SecurityLogEntry{
		EventType:    event.EventType(),
		UserID:       stringPtr(userID),
		TargetUserID: stringPtr(targetUserID),
		Metadata:     datatypes.JSON(payload),
		CreatedAt:    time.Now().UTC(),
	}

	if actor, ok := auditctx.FromContext(ctx); ok {
		entry.IPAddress = strings.TrimSpace(actor.IPAddress)
		entry.UserAgent = sanitize.Truncate(strings.TrimSpace(actor.UserAgent), 512)
	}

	return entry, nil
}
