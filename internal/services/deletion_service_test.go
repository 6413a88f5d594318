package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"teamup/internal/database"
	"teamup/internal/docstore"
	"teamup/internal/models"
)

func TestDeleteProjectCompletely(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")
	f.createProject(t, "p2", "owner", "2024-02-01")

	const applicants, savers = 4, 3
	var appIDs []string
	for i := 0; i < applicants; i++ {
		res, err := f.apps.ApplyForProject(ctx, "p1", identity(fmt.Sprintf("a%d", i)))
		if err != nil {
			t.Fatal(err)
		}
		appIDs = append(appIDs, res.ApplicationID)
	}
	keep, _ := f.apps.ApplyForProject(ctx, "p2", identity("a0"))
	for i := 0; i < savers; i++ {
		userID := fmt.Sprintf("s%d", i)
		f.wishlist.SaveProject(ctx, userID, "p1")
		f.wishlist.SaveProject(ctx, userID, "p2")
	}

	result, err := f.deletion.DeleteProjectCompletely(ctx, "p1")
	if err != nil {
		t.Fatalf("DeleteProjectCompletely failed: %v", err)
	}
	if result.DeletedApplicationCount != applicants {
		t.Errorf("Expected %d deleted applications, got %d", applicants, result.DeletedApplicationCount)
	}
	if result.ScrubbedWishlistCount != savers {
		t.Errorf("Expected %d scrubbed wishlists, got %d", savers, result.ScrubbedWishlistCount)
	}

	if apps, _ := f.apps.GetApplicationsByProject(ctx, "p1"); len(apps) != 0 {
		t.Errorf("Expected no applications left, got %d", len(apps))
	}
	for i, id := range appIDs {
		if _, found := f.mirror(t, fmt.Sprintf("a%d", i), id); found {
			t.Errorf("Mirror %s survived deletion", id)
		}
	}
	for i := 0; i < savers; i++ {
		p := f.profile(t, fmt.Sprintf("s%d", i))
		if p.HasSaved("p1") {
			t.Errorf("User s%d still has p1 in wishlist", i)
		}
		if !p.HasSaved("p2") {
			t.Errorf("User s%d lost unrelated p2", i)
		}
	}
	if p, _ := f.projects.Get(ctx, "p1"); p != nil {
		t.Error("Expected project to be absent")
	}
	var index models.ProjectSavers
	if err := f.store.Get(ctx, saversRef("p1"), &index); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Expected savers index removed, got %v", err)
	}

	// Unrelated data survives
	if p, _ := f.projects.Get(ctx, "p2"); p == nil {
		t.Error("Unrelated project deleted")
	}
	if _, found := f.mirror(t, "a0", keep.ApplicationID); !found {
		t.Error("Unrelated mirror deleted")
	}
}

func TestDeleteProjectCompletely_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")
	f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	f.wishlist.SaveProject(ctx, "u1", "p1")

	if _, err := f.deletion.DeleteProjectCompletely(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	again, err := f.deletion.DeleteProjectCompletely(ctx, "p1")
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if again.DeletedApplicationCount != 0 || again.ScrubbedWishlistCount != 0 {
		t.Errorf("Expected retry to find nothing, got %+v", again)
	}
}

func TestDeleteProjectCompletely_ScansWithoutIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")

	// Wishlist entries written without the savers index
	for _, userID := range []string{"u1", "u2"} {
		err := f.store.Upsert(ctx, userRef(userID), docstore.Fields{"wishlist": docstore.ArrayUnion("p1", "p9")})
		if err != nil {
			t.Fatal(err)
		}
	}

	result, err := f.deletion.DeleteProjectCompletely(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if result.ScrubbedWishlistCount != 2 {
		t.Errorf("Expected 2 scrubbed wishlists, got %d", result.ScrubbedWishlistCount)
	}
	for _, userID := range []string{"u1", "u2"} {
		p := f.profile(t, userID)
		if p.HasSaved("p1") || !p.HasSaved("p9") {
			t.Errorf("Unexpected wishlist for %s: %v", userID, p.Wishlist)
		}
	}
}

func TestDeleteProjectCompletely_StaleIndexEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")
	f.wishlist.SaveProject(ctx, "u1", "p1")

	// Index names a user with no document and a user who no longer holds the id
	err := f.store.Upsert(ctx, saversRef("p1"), docstore.Fields{"userIds": docstore.ArrayUnion("ghost", "u2")})
	if err != nil {
		t.Fatal(err)
	}
	f.store.Upsert(ctx, userRef("u2"), docstore.Fields{"wishlist": []string{}})

	result, err := f.deletion.DeleteProjectCompletely(ctx, "p1")
	if err != nil {
		t.Fatalf("DeleteProjectCompletely failed: %v", err)
	}
	if result.ScrubbedWishlistCount != 1 {
		t.Errorf("Expected only u1 scrubbed, got %d", result.ScrubbedWishlistCount)
	}
	if p, _ := f.users.GetProfile(ctx, "ghost"); p != nil {
		t.Error("Deletion must not create documents for stale index entries")
	}
}

// failingStore fails the Nth Commit and delegates everything else
type failingStore struct {
	docstore.Store
	failOn  int
	commits int
}

func (s *failingStore) Commit(ctx context.Context, b *docstore.Batch) error {
	s.commits++
	if s.commits == s.failOn {
		return fmt.Errorf("%w: injected", docstore.ErrUnavailable)
	}
	return s.Store.Commit(ctx, b)
}

func TestDeleteProjectCompletely_PartialFailure(t *testing.T) {
	failing := &failingStore{}
	f := newFixtureWithStore(t, func(s docstore.Store) docstore.Store {
		failing.Store = s
		return failing
	})
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")
	f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	f.wishlist.SaveProject(ctx, "u2", "p1")

	// The application batch commits; the wishlist/project batch fails
	failing.failOn = failing.commits + 2
	_, err := f.deletion.DeleteProjectCompletely(ctx, "p1")

	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("Expected PartialFailureError, got %v", err)
	}
	if len(partial.Completed) != 1 || partial.Completed[0] != "applications" {
		t.Errorf("Expected completed [applications], got %v", partial.Completed)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable in chain, got %v", err)
	}

	// Project remains without applications
	if p, _ := f.projects.Get(ctx, "p1"); p == nil {
		t.Error("Expected project to remain after partial failure")
	}
	var apps []models.Application
	f.store.Query(ctx, database.CollectionApplications, nil, &apps)
	if len(apps) != 0 {
		t.Errorf("Expected applications gone, got %d", len(apps))
	}

	// Retry completes
	result, err := f.deletion.DeleteProjectCompletely(ctx, "p1")
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if result.DeletedApplicationCount != 0 || result.ScrubbedWishlistCount != 1 {
		t.Errorf("Unexpected retry result %+v", result)
	}
	if p, _ := f.projects.Get(ctx, "p1"); p != nil {
		t.Error("Expected project deleted on retry")
	}
}

func TestDeleteProjectCompletely_MissingID(t *testing.T) {
	f := newFixture(t)
	if _, err := f.deletion.DeleteProjectCompletely(context.Background(), ""); !errors.Is(err, ErrMissingField) {
		t.Errorf("Expected ErrMissingField, got %v", err)
	}
}
