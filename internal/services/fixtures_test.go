package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/tradepost/internal/database/testutil"
	"github.com/charlesng35/tradepost/internal/models"
	"github.com/charlesng35/tradepost/internal/ratelimit"
)

const (
	alice = "user-alice"
	bob   = "user-bob"
	carol = "user-carol"
)

func seedProfiles() []models.Profile {
	return []models.Profile{
		{UserID: alice, DisplayName: "Alice", Rating: 4.8, ReviewCount: 12, Phone: "+1 (555) 010-2000", Address: "12 Market Street\nSpringfield"},
		{UserID: bob, DisplayName: "Bob", Rating: 4.1, ReviewCount: 3, Phone: "+44 20 7946 0000"},
		{UserID: carol, DisplayName: "Carol"},
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvent struct {
	UserID   string
	TargetID string
	Event    SecurityEvent
}

type recordingSecurityLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingSecurityLog) Record(_ context.Context, userID, targetUserID string, event SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{UserID: userID, TargetID: targetUserID, Event: event})
}

func (r *recordingSecurityLog) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Event.EventType())
	}
	return out
}

func (r *recordingSecurityLog) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingSecurityLog) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type publishedEvent struct {
	UserID string
	Event  string
	Data   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(userID, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{UserID: userID, Event: event, Data: data})
}

func (p *recordingPublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type fixture struct {
	db        *gorm.DB
	clock     *testClock
	store     *PermissionStore
	profiles  *ProfileService
	limiter   *ratelimit.MemoryLimiter
	security  *recordingSecurityLog
	publisher *recordingPublisher
	workflow  *ContactPermissionService
	resolver  *ProfileResolver
	views     *ProfileViewService
}

type fixtureOption func(*ContactPermissionOptions, *ProfileResolverOptions)

func withDefaultGrantTTL(ttl time.Duration) fixtureOption {
	return func(o *ContactPermissionOptions, _ *ProfileResolverOptions) {
		o.DefaultGrantTTL = ttl
	}
}

func withProfileAccessLimit(limit int) fixtureOption {
	return func(_ *ContactPermissionOptions, o *ProfileResolverOptions) {
		o.AccessLimit = limit
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithProfiles(seedProfiles()...))
	clock := newTestClock()

	store, err := NewPermissionStore(db)
	require.NoError(t, err)
	profiles, err := NewProfileService(db)
	require.NoError(t, err)

	limiter := ratelimit.NewMemoryLimiter(ratelimit.WithClock(clock.Now))
	security := &recordingSecurityLog{}
	publisher := &recordingPublisher{}

	workflowOpts := ContactPermissionOptions{Clock: clock.Now}
	resolverOpts := ProfileResolverOptions{Clock: clock.Now}
	for _, opt := range opts {
		opt(&workflowOpts, &resolverOpts)
	}

	workflow, err := NewContactPermissionService(store, profiles, limiter, security, publisher, workflowOpts)
	require.NoError(t, err)
	resolver, err := NewProfileResolver(profiles, store, limiter, security, resolverOpts)
	require.NoError(t, err)
	views, err := NewProfileViewService(resolver, workflow)
	require.NoError(t, err)

	return &fixture{
		db:        db,
		clock:     clock,
		store:     store,
		profiles:  profiles,
		limiter:   limiter,
		security:  security,
		publisher: publisher,
		workflow:  workflow,
		resolver:  resolver,
		views:     views,
	}
}

func (f *fixture) countPermissions(t *testing.T, ownerID, requesterID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, f.db.Model(&models.ContactPermission{}).
		Where("owner_id = ? AND requester_id = ?", ownerID, requesterID).
		Count(&count).Error)
	return count
}

func (f *fixture) mustRequest(t *testing.T, requesterID, ownerID string) *models.ContactPermission {
	t.Helper()

	result, err := f.workflow.Request(context.Background(), requesterID, RequestInput{OwnerID: ownerID})
	require.NoError(t, err)
	require.Equal(t, RequestOutcomeRequested, result.Status)
	require.NotNil(t, result.Permission)
	return result.Permission
}
