package services

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sync"
	"time"

	"teamup/internal/database"
	"teamup/internal/docstore"
	"teamup/internal/models"

	"github.com/google/uuid"
)

// FeedKind names what a subscription watches
type FeedKind string

const (
	FeedProject             FeedKind = "project"
	FeedProjectApplications FeedKind = "project_applications"
	FeedUserApplications    FeedKind = "user_applications"
	FeedUser                FeedKind = "user"
)

// Valid reports whether k is a known subscription kind
func (k FeedKind) Valid() bool {
	switch k {
	case FeedProject, FeedProjectApplications, FeedUserApplications, FeedUser:
		return true
	}
	return false
}

// ErrFeedClosed is returned when subscribing to a closed feed
var ErrFeedClosed = errors.New("change feed closed")

// ProjectSnapshot is the current state of one project. Project is nil when
// the project does not exist.
type ProjectSnapshot struct {
	Version uint64          `json:"version"`
	Project *models.Project `json:"project"`
}

// ApplicationsSnapshot is the full current set of matching applications,
// newest first.
type ApplicationsSnapshot struct {
	Version      uint64               `json:"version"`
	Applications []models.Application `json:"applications"`
}

// UserSnapshot is the current state of one user profile
type UserSnapshot struct {
	Version uint64              `json:"version"`
	Profile *models.UserProfile `json:"profile"`
}

const (
	feedRetryMin = 500 * time.Millisecond
	feedRetryMax = 30 * time.Second
)

// ChangeFeed delivers live snapshots of projects, applications and user
// profiles. Each subscription runs one goroutine, so its callback is never
// invoked concurrently and versions only increase.
type ChangeFeed struct {
	store docstore.Store
	opts  options

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
	wg     sync.WaitGroup
}

// Subscription is a live watch. Unsubscribe stops it.
type Subscription struct {
	ID   string
	Kind FeedKind
	Key  string

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewChangeFeed creates a change feed over store
func NewChangeFeed(store docstore.Store, opts ...Option) *ChangeFeed {
	return &ChangeFeed{
		store: store,
		opts:  newOptions(opts),
		subs:  make(map[string]*Subscription),
	}
}

// SubscribeProject watches one project by id
func (f *ChangeFeed) SubscribeProject(ctx context.Context, projectID string, fn func(ProjectSnapshot)) (*Subscription, error) {
	if projectID == "" {
		return nil, missingField("project_id")
	}
	var version uint64
	return f.start(ctx, FeedProject, projectID, func(ctx context.Context) error {
		return f.store.WatchDoc(ctx, projectRef(projectID), func(snap docstore.DocSnapshot) {
			out := ProjectSnapshot{}
			if snap.Exists {
				var p models.Project
				if err := snap.DataTo(&p); err != nil {
					slog.Error("failed to decode project snapshot", "project_id", projectID, "error", err)
					return
				}
				out.Project = &p
			}
			version++
			out.Version = version
			fn(out)
		})
	})
}

// SubscribeApplicationsByProject watches the applications to projectID
func (f *ChangeFeed) SubscribeApplicationsByProject(ctx context.Context, projectID string, fn func(ApplicationsSnapshot)) (*Subscription, error) {
	if projectID == "" {
		return nil, missingField("project_id")
	}
	return f.watchApplications(ctx, FeedProjectApplications, projectID, docstore.Eq("projectId", projectID), fn)
}

// SubscribeApplicationsByUser watches the applications made by userID
func (f *ChangeFeed) SubscribeApplicationsByUser(ctx context.Context, userID string, fn func(ApplicationsSnapshot)) (*Subscription, error) {
	if userID == "" {
		return nil, missingField("user_id")
	}
	return f.watchApplications(ctx, FeedUserApplications, userID, docstore.Eq("applicantId", userID), fn)
}

func (f *ChangeFeed) watchApplications(ctx context.Context, kind FeedKind, key string, filter docstore.Filter, fn func(ApplicationsSnapshot)) (*Subscription, error) {
	var version uint64
	return f.start(ctx, kind, key, func(ctx context.Context) error {
		return f.store.WatchQuery(ctx, database.CollectionApplications, []docstore.Filter{filter}, func(snap docstore.QuerySnapshot) {
			apps := []models.Application{}
			if err := snap.DataTo(&apps); err != nil {
				slog.Error("failed to decode applications snapshot", "kind", kind, "key", key, "error", err)
				return
			}
			models.SortApplicationsByAppliedAt(apps)
			version++
			fn(ApplicationsSnapshot{Version: version, Applications: apps})
		})
	})
}

// SubscribeUser watches one user profile, including its wishlist
func (f *ChangeFeed) SubscribeUser(ctx context.Context, userID string, fn func(UserSnapshot)) (*Subscription, error) {
	if userID == "" {
		return nil, missingField("user_id")
	}
	var version uint64
	return f.start(ctx, FeedUser, userID, func(ctx context.Context) error {
		return f.store.WatchDoc(ctx, userRef(userID), func(snap docstore.DocSnapshot) {
			out := UserSnapshot{}
			if snap.Exists {
				var p models.UserProfile
				if err := snap.DataTo(&p); err != nil {
					slog.Error("failed to decode user snapshot", "user_id", userID, "error", err)
					return
				}
				out.Profile = &p
			}
			version++
			out.Version = version
			fn(out)
		})
	})
}

// start runs watch in its own goroutine until the subscription is cancelled,
// re-establishing it with backoff when the store fails.
func (f *ChangeFeed) start(parent context.Context, kind FeedKind, key string, watch func(ctx context.Context) error) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFeedClosed
	}

	ctx, cancel := context.WithCancel(parent)
	sub := &Subscription{
		ID:     uuid.New().String(),
		Kind:   kind,
		Key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	f.subs[sub.ID] = sub
	f.wg.Add(1)
	f.opts.metrics.RecordSubscribe()

	go func() {
		defer f.wg.Done()
		defer close(sub.done)
		defer f.remove(sub.ID)
		f.run(ctx, sub, watch)
	}()

	log.Printf("📡 [FEED] Subscribe: kind=%s key=%s sub=%s", kind, key, sub.ID)
	return sub, nil
}

func (f *ChangeFeed) run(ctx context.Context, sub *Subscription, watch func(ctx context.Context) error) {
	backoff := feedRetryMin
	for {
		err := watch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// The store ended the watch without an error; start over
			backoff = feedRetryMin
			continue
		}

		slog.Warn("feed watch failed, retrying", "kind", sub.Kind, "key", sub.Key, "sub", sub.ID, "retry_in", backoff, "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > feedRetryMax {
			backoff = feedRetryMax
		}
	}
}

func (f *ChangeFeed) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; ok {
		delete(f.subs, id)
		f.opts.metrics.RecordUnsubscribe()
	}
}

// Active returns the number of live subscriptions
func (f *ChangeFeed) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close stops every subscription and waits for their goroutines
func (f *ChangeFeed) Close() {
	f.mu.Lock()
	f.closed = true
	subs := make([]*Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	f.wg.Wait()
	log.Printf("📡 [FEED] Closed %d subscriptions", len(subs))
}

// Unsubscribe stops the subscription and waits until its callback can no
// longer be invoked. Calling it more than once is safe; calling it from the
// subscription's own callback deadlocks.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		log.Printf("📡 [FEED] Unsubscribe: kind=%s key=%s sub=%s", s.Kind, s.Key, s.ID)
	})
}

// Done is closed once the subscription has stopped
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
