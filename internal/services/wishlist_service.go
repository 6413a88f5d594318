package services

import (
	"context"
	"errors"
	"log/slog"

	"teamup/internal/database"
	"teamup/internal/docstore"
	"teamup/internal/models"
)

// WishlistService toggles project ids in a user's wishlist and keeps the
// project_savers inverted index in step with it.
type WishlistService struct {
	store    docstore.Store
	projects *ProjectStore
	opts     options
}

// NewWishlistService creates a wishlist service
func NewWishlistService(store docstore.Store, projects *ProjectStore, opts ...Option) *WishlistService {
	return &WishlistService{
		store:    store,
		projects: projects,
		opts:     newOptions(opts),
	}
}

func userRef(userID string) docstore.Ref {
	return docstore.Doc(database.CollectionUsers, userID)
}

func saversRef(projectID string) docstore.Ref {
	return docstore.Doc(database.CollectionProjectSavers, projectID)
}

// SaveProject adds projectID to userID's wishlist. Saving twice is a no-op.
func (s *WishlistService) SaveProject(ctx context.Context, userID, projectID string) error {
	if err := requireWishlistArgs(userID, projectID); err != nil {
		return err
	}
	batch := docstore.NewBatch().
		Upsert(userRef(userID), docstore.Fields{"wishlist": docstore.ArrayUnion(projectID)}).
		Upsert(saversRef(projectID), docstore.Fields{"userIds": docstore.ArrayUnion(userID)})
	if err := s.store.Commit(ctx, batch); err != nil {
		return storeErr("failed to save project", err)
	}
	s.opts.metrics.RecordWishlistToggle(true)
	return nil
}

// UnsaveProject removes projectID from userID's wishlist. Removing an
// absent id is a no-op.
func (s *WishlistService) UnsaveProject(ctx context.Context, userID, projectID string) error {
	if err := requireWishlistArgs(userID, projectID); err != nil {
		return err
	}
	batch := docstore.NewBatch().
		Upsert(userRef(userID), docstore.Fields{"wishlist": docstore.ArrayRemove(projectID)}).
		Upsert(saversRef(projectID), docstore.Fields{"userIds": docstore.ArrayRemove(userID)})
	if err := s.store.Commit(ctx, batch); err != nil {
		return storeErr("failed to unsave project", err)
	}
	s.opts.metrics.RecordWishlistToggle(false)
	return nil
}

// ToggleSave flips projectID's membership in userID's wishlist and returns
// the new membership. When known is nil the current membership is read
// first; that read is not atomic with the write.
func (s *WishlistService) ToggleSave(ctx context.Context, userID, projectID string, known *bool) (bool, error) {
	if err := requireWishlistArgs(userID, projectID); err != nil {
		return false, err
	}

	saved := false
	if known != nil {
		saved = *known
	} else {
		var err error
		if saved, err = s.IsSaved(ctx, userID, projectID); err != nil {
			return false, err
		}
	}

	if saved {
		return false, s.UnsaveProject(ctx, userID, projectID)
	}
	return true, s.SaveProject(ctx, userID, projectID)
}

// IsSaved reports whether projectID is in userID's wishlist
func (s *WishlistService) IsSaved(ctx context.Context, userID, projectID string) (bool, error) {
	profile, err := s.wishlistOf(ctx, userID)
	if err != nil || profile == nil {
		return false, err
	}
	return profile.HasSaved(projectID), nil
}

// GetSavedProjects returns the live projects in userID's wishlist, newest
// first. Ids whose project no longer exists are skipped.
func (s *WishlistService) GetSavedProjects(ctx context.Context, userID string) ([]models.Project, error) {
	if userID == "" {
		return nil, missingField("user_id")
	}
	profile, err := s.wishlistOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return []models.Project{}, nil
	}

	projects, missing, err := resolveAll(ctx, profile.Wishlist, s.projects.GetCached)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		slog.Debug("wishlist references deleted projects", "user_id", userID, "missing", missing)
		s.opts.metrics.RecordInconsistency("wishlist")
	}
	models.SortProjectsByCreatedAt(projects)
	return projects, nil
}

func (s *WishlistService) wishlistOf(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.store.Get(ctx, userRef(userID), &profile)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to read wishlist", err)
	}
	return &profile, nil
}

func requireWishlistArgs(userID, projectID string) error {
	if userID == "" {
		return missingField("user_id")
	}
	if projectID == "" {
		return missingField("project_id")
	}
	return nil
}

// resolveAll looks up every id with get and skips the ones that resolve to
// nothing. The skipped ids are returned so callers can report them.
func resolveAll[T any](ctx context.Context, ids []string, get func(context.Context, string) (*T, error)) ([]T, []string, error) {
	found := make([]T, 0, len(ids))
	var missing []string
	for _, id := range ids {
		item, err := get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if item == nil {
			missing = append(missing, id)
			continue
		}
		found = append(found, *item)
	}
	return found, missing, nil
}
