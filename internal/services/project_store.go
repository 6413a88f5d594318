package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"teamup/internal/database"
	"teamup/internal/docstore"
	"teamup/internal/logging"
	"teamup/internal/models"

	"github.com/go-playground/validator/v10"
	cache "github.com/patrickmn/go-cache"
)

// ProjectStore handles CRUD for projects and owns the canonical status field
type ProjectStore struct {
	store docstore.Store
	cache *cache.Cache // nil when caching is disabled
	opts  options
}

// NewProjectStore creates a project store. A positive cacheTTL enables a
// read-through cache behind GetCached. Other instances may change a project
// without touching this cache, so Get always reads the store.
func NewProjectStore(store docstore.Store, cacheTTL time.Duration, opts ...Option) *ProjectStore {
	s := &ProjectStore{
		store: store,
		opts:  newOptions(opts),
	}
	if cacheTTL > 0 {
		s.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

func projectRef(projectID string) docstore.Ref {
	return docstore.Doc(database.CollectionProjects, projectID)
}

// Create writes a new project under the caller-supplied id. Status is
// forced to open, or closed when the deadline has already passed.
func (s *ProjectStore) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		return missingField("id")
	}
	if project.CreatorID == "" {
		return missingField("creator_id")
	}
	if err := models.ValidateProject(project); err != nil {
		return validationErr(err)
	}
	if _, ok := ParseDeadline(project.LastDate, s.opts.location); !ok {
		return fmt.Errorf("%w: unparsable last_date %q", ErrInvalidInput, project.LastDate)
	}

	now := s.opts.now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	project.Status = s.statusFor(project.LastDate, models.ProjectStatusOpen)

	if err := s.store.Create(ctx, projectRef(project.ID), project); err != nil {
		return storeErr("failed to create project", err)
	}
	logging.WithProject(project.ID).Info("project created", "creator_id", project.CreatorID, "status", project.Status)
	return nil
}

// Get returns a project by id, or nil when it does not exist. It always
// reads the store, so existence, status and ownership checks see writes
// made by every instance.
func (s *ProjectStore) Get(ctx context.Context, projectID string) (*models.Project, error) {
	if projectID == "" {
		return nil, missingField("project_id")
	}
	project, err := s.load(ctx, projectID)
	if err != nil || project == nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetDefault(projectID, project.Clone())
	}
	return project, nil
}

// GetCached is Get served from the read cache when possible. A project
// changed or deleted by another instance can be seen for up to the cache
// TTL, so it is only for display reads such as saved-project listings.
func (s *ProjectStore) GetCached(ctx context.Context, projectID string) (*models.Project, error) {
	if projectID == "" {
		return nil, missingField("project_id")
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(projectID); ok {
			p := cached.(models.Project).Clone()
			return &p, nil
		}
	}
	return s.Get(ctx, projectID)
}

func (s *ProjectStore) load(ctx context.Context, projectID string) (*models.Project, error) {
	var project models.Project
	err := s.store.Get(ctx, projectRef(projectID), &project)
	if errors.Is(err, docstore.ErrNotFound) {
		s.Invalidate(projectID)
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to get project", err)
	}
	return &project, nil
}

// ListAll returns every project, newest first
func (s *ProjectStore) ListAll(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := s.store.Query(ctx, database.CollectionProjects, nil, &projects); err != nil {
		return nil, storeErr("failed to list projects", err)
	}
	models.SortProjectsByCreatedAt(projects)
	return projects, nil
}

// ListByCreator returns the projects created by userID, newest first
func (s *ProjectStore) ListByCreator(ctx context.Context, userID string) ([]models.Project, error) {
	if userID == "" {
		return nil, missingField("user_id")
	}
	var projects []models.Project
	if err := s.store.Query(ctx, database.CollectionProjects, []docstore.Filter{docstore.Eq("creatorId", userID)}, &projects); err != nil {
		return nil, storeErr("failed to list projects by creator", err)
	}
	models.SortProjectsByCreatedAt(projects)
	return projects, nil
}

// Update merges a partial edit into a project and refreshes updatedAt.
// A status of open is rewritten to closed when the effective deadline has
// passed.
func (s *ProjectStore) Update(ctx context.Context, projectID string, update *models.ProjectUpdate) error {
	if projectID == "" {
		return missingField("project_id")
	}
	if err := models.ValidateProjectUpdate(update); err != nil {
		return validationErr(err)
	}
	fields := update.Fields()
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}

	if update.LastDate != nil || update.Status != nil {
		current, err := s.Get(ctx, projectID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("failed to update project: %w", ErrNotFound)
		}
		lastDate, status := current.LastDate, current.Status
		if update.LastDate != nil {
			if _, ok := ParseDeadline(*update.LastDate, s.opts.location); !ok {
				return fmt.Errorf("%w: unparsable last_date %q", ErrInvalidInput, *update.LastDate)
			}
			lastDate = *update.LastDate
		}
		if update.Status != nil {
			status = *update.Status
		}
		fields["status"] = string(s.statusFor(lastDate, status))
	}

	return s.write(ctx, projectID, fields)
}

// SetStatus overwrites a project's status. Used by the deadline sweeper.
func (s *ProjectStore) SetStatus(ctx context.Context, projectID string, status models.ProjectStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown project status %q", ErrInvalidInput, status)
	}
	return s.write(ctx, projectID, map[string]interface{}{"status": string(status)})
}

func (s *ProjectStore) write(ctx context.Context, projectID string, fields map[string]interface{}) error {
	update := docstore.Fields{"updatedAt": docstore.ServerTimestamp}
	for k, v := range fields {
		update[k] = v
	}
	err := s.store.Update(ctx, projectRef(projectID), update)
	s.Invalidate(projectID)
	if err != nil {
		return storeErr("failed to update project", err)
	}
	slog.Debug("project updated", "project_id", projectID, "fields", len(fields))
	return nil
}

// Invalidate drops a cached project
func (s *ProjectStore) Invalidate(projectID string) {
	if s.cache != nil {
		s.cache.Delete(projectID)
	}
}

// statusFor applies the deadline rule: once the deadline's day is behind
// today the status is closed regardless of what the owner asked for.
func (s *ProjectStore) statusFor(lastDate string, requested models.ProjectStatus) models.ProjectStatus {
	if passed, ok := DeadlinePassed(lastDate, s.opts.now(), s.opts.location); ok && passed {
		return models.ProjectStatusClosed
	}
	return requested
}

// validationErr converts validator output into the service taxonomy
func validationErr(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return missingField(fe.Field())
			}
		}
		return fmt.Errorf("%w: %s failed %q", ErrInvalidInput, verrs[0].Field(), verrs[0].Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
