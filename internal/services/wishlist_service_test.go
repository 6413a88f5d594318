package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"teamup/internal/models"
)

func TestToggleSave_TwiceRestoresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")

	saved, err := f.wishlist.ToggleSave(ctx, "u1", "p1", nil)
	if err != nil {
		t.Fatalf("ToggleSave failed: %v", err)
	}
	if !saved {
		t.Error("First toggle should save")
	}
	if is, _ := f.wishlist.IsSaved(ctx, "u1", "p1"); !is {
		t.Error("Expected project in wishlist")
	}

	saved, err = f.wishlist.ToggleSave(ctx, "u1", "p1", nil)
	if err != nil {
		t.Fatalf("ToggleSave failed: %v", err)
	}
	if saved {
		t.Error("Second toggle should unsave")
	}
	if is, _ := f.wishlist.IsSaved(ctx, "u1", "p1"); is {
		t.Error("Expected project removed from wishlist")
	}
}

func TestToggleSave_KnownState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	notSaved := false
	saved, err := f.wishlist.ToggleSave(ctx, "u1", "p1", &notSaved)
	if err != nil || !saved {
		t.Fatalf("Expected save with known=false, got %v (err %v)", saved, err)
	}

	isSaved := true
	saved, err = f.wishlist.ToggleSave(ctx, "u1", "p1", &isSaved)
	if err != nil || saved {
		t.Fatalf("Expected unsave with known=true, got %v (err %v)", saved, err)
	}
}

func TestSaveProject_ConcurrentAddsConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 25
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.wishlist.SaveProject(ctx, "u1", "p1")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("SaveProject failed: %v", err)
		}
	}

	p := f.profile(t, "u1")
	if len(p.Wishlist) != 1 || p.Wishlist[0] != "p1" {
		t.Errorf("Expected exactly one membership, got %v", p.Wishlist)
	}

	var index models.ProjectSavers
	if err := f.store.Get(ctx, saversRef("p1"), &index); err != nil {
		t.Fatalf("Expected savers index: %v", err)
	}
	if len(index.UserIDs) != 1 || index.UserIDs[0] != "u1" {
		t.Errorf("Expected savers index [u1], got %v", index.UserIDs)
	}
}

func TestSaveProject_ManyUsersOneProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := f.wishlist.SaveProject(ctx, fmt.Sprintf("u%d", i), "p1"); err != nil {
				t.Errorf("SaveProject failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var index models.ProjectSavers
	if err := f.store.Get(ctx, saversRef("p1"), &index); err != nil {
		t.Fatal(err)
	}
	if len(index.UserIDs) != 10 {
		t.Errorf("Expected 10 savers, got %d", len(index.UserIDs))
	}
}

func TestUnsaveProject_AbsentIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.wishlist.UnsaveProject(ctx, "u1", "p1"); err != nil {
		t.Fatalf("UnsaveProject failed: %v", err)
	}
	if err := f.wishlist.SaveProject(ctx, "u1", "p2"); err != nil {
		t.Fatal(err)
	}
	if err := f.wishlist.UnsaveProject(ctx, "u1", "p1"); err != nil {
		t.Fatal(err)
	}
	p := f.profile(t, "u1")
	if len(p.Wishlist) != 1 || p.Wishlist[0] != "p2" {
		t.Errorf("Expected [p2], got %v", p.Wishlist)
	}
}

func TestWishlist_MissingFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.wishlist.SaveProject(ctx, "", "p1"); !errors.Is(err, ErrMissingField) {
		t.Errorf("Expected ErrMissingField, got %v", err)
	}
	if _, err := f.wishlist.ToggleSave(ctx, "u1", "", nil); !errors.Is(err, ErrMissingField) {
		t.Errorf("Expected ErrMissingField, got %v", err)
	}
}

func TestGetSavedProjects_SkipsMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")
	f.clock.Advance(time.Second)
	f.createProject(t, "p2", "owner", "2024-02-01")

	for _, id := range []string{"p1", "ghost", "p2"} {
		if err := f.wishlist.SaveProject(ctx, "u1", id); err != nil {
			t.Fatal(err)
		}
	}

	projects, err := f.wishlist.GetSavedProjects(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSavedProjects must not fail on dangling ids: %v", err)
	}
	if ids := projectIDs(projects); !equalStrings(ids, []string{"p2", "p1"}) {
		t.Errorf("Expected [p2 p1], got %v", ids)
	}

	empty, err := f.wishlist.GetSavedProjects(ctx, "stranger")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected no projects for unknown user, got %v (err %v)", empty, err)
	}
}

func TestResolveAll(t *testing.T) {
	known := map[string]int{"a": 1, "c": 3}
	get := func(_ context.Context, id string) (*int, error) {
		if id == "boom" {
			return nil, ErrStoreUnavailable
		}
		if v, ok := known[id]; ok {
			return &v, nil
		}
		return nil, nil
	}

	found, missing, err := resolveAll(context.Background(), []string{"a", "b", "c"}, get)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 || found[0] != 1 || found[1] != 3 {
		t.Errorf("Expected [1 3], got %v", found)
	}
	if len(missing) != 1 || missing[0] != "b" {
		t.Errorf("Expected missing [b], got %v", missing)
	}

	if _, _, err := resolveAll(context.Background(), []string{"a", "boom"}, get); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected store errors to propagate, got %v", err)
	}
}
