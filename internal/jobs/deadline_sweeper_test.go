package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"teamup/internal/docstore"
	"teamup/internal/models"
	"teamup/internal/services"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newProjectStore(t *testing.T, c *clock, wrap func(docstore.Store) docstore.Store) *services.ProjectStore {
	t.Helper()
	mem, err := docstore.NewMemoryStore(docstore.WithClock(c.Now))
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}
	var store docstore.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	return services.NewProjectStore(store, 0, services.WithClock(c.Now), services.WithLocation(time.UTC))
}

func createProject(t *testing.T, projects *services.ProjectStore, id, lastDate string) {
	t.Helper()
	p := &models.Project{
		ID:          id,
		Title:       "Project " + id,
		Description: "desc",
		Roles: []models.Role{{
			RoleName:         "Backend",
			Responsibilities: []string{"APIs"},
			Requirements:     []string{"Go"},
			MembersRequired:  1,
		}},
		LastDate:  lastDate,
		CreatorID: "owner",
	}
	if err := projects.Create(context.Background(), p); err != nil {
		t.Fatalf("Failed to create project %s: %v", id, err)
	}
}

func status(t *testing.T, projects *services.ProjectStore, id string) models.ProjectStatus {
	t.Helper()
	p, err := projects.Get(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("Failed to read project %s: %v", id, err)
	}
	return p.Status
}

func TestDeadlineSweeper_ClosesExpiredOnce(t *testing.T) {
	c := &clock{now: time.Date(2023, 12, 30, 9, 0, 0, 0, time.UTC)}
	projects := newProjectStore(t, c, nil)
	createProject(t, projects, "expired", "2024-01-01")
	createProject(t, projects, "today", "2024-01-05")
	createProject(t, projects, "future", "2024-02-01")
	if status(t, projects, "expired") != models.ProjectStatusOpen {
		t.Fatal("Expected project to start open")
	}

	c.Set(time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC))
	sweeper := NewDeadlineSweeper(projects, 4, time.UTC, nil).WithClock(c.Now)

	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.UpdatedCount != 1 || result.Checked != 3 {
		t.Errorf("Expected checked=3 updated=1, got %+v", result)
	}
	if status(t, projects, "expired") != models.ProjectStatusClosed {
		t.Error("Expected expired project closed")
	}
	for _, id := range []string{"today", "future"} {
		if status(t, projects, id) != models.ProjectStatusOpen {
			t.Errorf("Expected %s to stay open", id)
		}
	}

	again, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}
	if again.UpdatedCount != 0 {
		t.Errorf("Expected second sweep to close nothing, got %d", again.UpdatedCount)
	}
}

func TestDeadlineSweeper_SkipsMalformedDeadlines(t *testing.T) {
	c := &clock{now: time.Date(2023, 12, 30, 9, 0, 0, 0, time.UTC)}
	mem, err := docstore.NewMemoryStore(docstore.WithClock(c.Now))
	if err != nil {
		t.Fatal(err)
	}
	projects := services.NewProjectStore(mem, 0, services.WithClock(c.Now), services.WithLocation(time.UTC))
	createProject(t, projects, "good", "2024-01-01")

	// Written directly; the project store refuses unparsable deadlines
	for id, lastDate := range map[string]string{"bad": "someday", "empty": ""} {
		err := mem.Upsert(context.Background(), docstore.Doc("projects", id), docstore.Fields{
			"lastDate": lastDate,
			"status":   "open",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	c.Set(time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC))
	result, err := NewDeadlineSweeper(projects, 2, time.UTC, nil).WithClock(c.Now).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Malformed deadlines must not fail the sweep: %v", err)
	}
	if result.UpdatedCount != 1 || result.Skipped != 2 || result.Failed != 0 {
		t.Errorf("Expected updated=1 skipped=2 failed=0, got %+v", result)
	}
	if status(t, projects, "bad") != models.ProjectStatusOpen {
		t.Error("Malformed deadline must be left alone")
	}
}

func TestDeadlineSweeper_ManyProjects(t *testing.T) {
	c := &clock{now: time.Date(2023, 12, 1, 9, 0, 0, 0, time.UTC)}
	projects := newProjectStore(t, c, nil)
	const n = 50
	for i := 0; i < n; i++ {
		createProject(t, projects, fmt.Sprintf("p%02d", i), "2023-12-15")
	}

	c.Set(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	result, err := NewDeadlineSweeper(projects, 8, time.UTC, nil).WithClock(c.Now).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.UpdatedCount != n {
		t.Errorf("Expected %d closed, got %d", n, result.UpdatedCount)
	}
}

func TestDeadlineSweeper_ConcurrentCallers(t *testing.T) {
	c := &clock{now: time.Date(2023, 12, 30, 9, 0, 0, 0, time.UTC)}
	projects := newProjectStore(t, c, nil)
	createProject(t, projects, "p1", "2024-01-01")
	c.Set(time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper := NewDeadlineSweeper(projects, 2, time.UTC, nil).WithClock(c.Now)
			if _, err := sweeper.Sweep(context.Background()); err != nil {
				t.Errorf("Sweep failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if status(t, projects, "p1") != models.ProjectStatusClosed {
		t.Error("Expected project closed")
	}
}

// failingUpdates fails Update for the listed document ids
type failingUpdates struct {
	docstore.Store
	ids map[string]bool
}

func (s *failingUpdates) Update(ctx context.Context, ref docstore.Ref, fields docstore.Fields) error {
	if s.ids[ref.ID] {
		return fmt.Errorf("%w: injected", docstore.ErrUnavailable)
	}
	return s.Store.Update(ctx, ref, fields)
}

func TestDeadlineSweeper_ReportsFailures(t *testing.T) {
	c := &clock{now: time.Date(2023, 12, 30, 9, 0, 0, 0, time.UTC)}
	projects := newProjectStore(t, c, func(s docstore.Store) docstore.Store {
		return &failingUpdates{Store: s, ids: map[string]bool{"broken": true}}
	})
	createProject(t, projects, "broken", "2024-01-01")
	createProject(t, projects, "fine", "2024-01-01")
	c.Set(time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC))

	result, err := NewDeadlineSweeper(projects, 2, time.UTC, nil).WithClock(c.Now).Sweep(context.Background())
	if !errors.Is(err, services.ErrStoreUnavailable) {
		t.Fatalf("Expected ErrStoreUnavailable, got %v", err)
	}
	if result.UpdatedCount != 1 || result.Failed != 1 {
		t.Errorf("Expected updated=1 failed=1, got %+v", result)
	}
	if status(t, projects, "fine") != models.ProjectStatusClosed {
		t.Error("A failure must not stop the other updates")
	}
}
