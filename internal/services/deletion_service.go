package services

import (
	"context"
	"errors"

	"teamup/internal/database"
	"teamup/internal/docstore"
	"teamup/internal/logging"
	"teamup/internal/models"
)

// DeletionService removes a project together with everything that refers
// to it: applications, their mirrors and wishlist entries.
type DeletionService struct {
	store    docstore.Store
	projects *ProjectStore
	apps     *ApplicationService
	opts     options
}

// NewDeletionService creates a deletion coordinator
func NewDeletionService(store docstore.Store, projects *ProjectStore, apps *ApplicationService, opts ...Option) *DeletionService {
	return &DeletionService{
		store:    store,
		projects: projects,
		apps:     apps,
		opts:     newOptions(opts),
	}
}

// DeleteProjectCompletely deletes projectID in two batches: first every
// application root and mirror, then every wishlist entry together with the
// savers index and the project itself. It is idempotent; a failure in the
// second batch is reported as a PartialFailureError and a retry finishes
// the job.
func (s *DeletionService) DeleteProjectCompletely(ctx context.Context, projectID string) (*models.DeleteResult, error) {
	if projectID == "" {
		return nil, missingField("project_id")
	}
	logger := logging.WithProject(projectID)
	result := &models.DeleteResult{}

	apps := docstore.NewBatch()
	n, err := s.apps.StageProjectDeletion(ctx, projectID, apps)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		if err := s.store.Commit(ctx, apps); err != nil {
			logger.Error("failed to delete applications", "count", n, "error", err)
			return nil, storeErr("failed to delete applications", err)
		}
	}
	result.DeletedApplicationCount = n

	savers, err := s.savers(ctx, projectID)
	if err != nil {
		return nil, s.partial(projectID, n, err)
	}

	final := docstore.NewBatch()
	for _, userID := range savers {
		final.Update(userRef(userID), docstore.Fields{"wishlist": docstore.ArrayRemove(projectID)})
	}
	final.Delete(saversRef(projectID))
	final.Delete(projectRef(projectID))

	err = s.store.Commit(ctx, final)
	s.projects.Invalidate(projectID)
	if err != nil {
		logger.Error("failed to scrub wishlists and delete project",
			"deleted_applications", n, "savers", len(savers), "error", err)
		return nil, s.partial(projectID, n, storeErr("failed to delete project", err))
	}
	result.ScrubbedWishlistCount = len(savers)

	logger.Info("project deleted",
		"deleted_applications", result.DeletedApplicationCount,
		"scrubbed_wishlists", result.ScrubbedWishlistCount)
	s.opts.metrics.RecordProjectDeleted()
	return result, nil
}

// savers returns the users whose wishlist currently holds projectID. The
// project_savers index narrows the candidates to the users who saved it;
// without an index document every user whose wishlist contains the id is
// found by query.
func (s *DeletionService) savers(ctx context.Context, projectID string) ([]string, error) {
	var index models.ProjectSavers
	err := s.store.Get(ctx, saversRef(projectID), &index)
	if errors.Is(err, docstore.ErrNotFound) {
		return s.scanSavers(ctx, projectID)
	}
	if err != nil {
		return nil, storeErr("failed to read savers index", err)
	}

	// The index can name users whose document was removed or who already
	// unsaved through an older path; only current holders are scrubbed.
	var userIDs []string
	for _, userID := range index.UserIDs {
		var profile models.UserProfile
		err := s.store.Get(ctx, userRef(userID), &profile)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeErr("failed to read saver", err)
		}
		if profile.HasSaved(projectID) {
			userIDs = append(userIDs, userID)
		}
	}
	return userIDs, nil
}

func (s *DeletionService) scanSavers(ctx context.Context, projectID string) ([]string, error) {
	var profiles []models.UserProfile
	err := s.store.Query(ctx, database.CollectionUsers, []docstore.Filter{docstore.ArrayContains("wishlist", projectID)}, &profiles)
	if err != nil {
		return nil, storeErr("failed to scan wishlists", err)
	}
	userIDs := make([]string, 0, len(profiles))
	for _, p := range profiles {
		userIDs = append(userIDs, p.ID)
	}
	return userIDs, nil
}

func (s *DeletionService) partial(projectID string, deletedApps int, err error) error {
	var completed []string
	if deletedApps > 0 {
		completed = append(completed, "applications")
	}
	return &PartialFailureError{
		Op:        "delete project " + projectID,
		Completed: completed,
		Err:       err,
	}
}
