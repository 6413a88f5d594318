package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"teamup/internal/database"
	"teamup/internal/docstore"
	"teamup/internal/logging"
	"teamup/internal/models"
)

const userApplications = "applications"

// ApplicationService owns application roots and their per-user mirrors
type ApplicationService struct {
	store docstore.Store
	opts  options
}

// NewApplicationService creates an application service
func NewApplicationService(store docstore.Store, opts ...Option) *ApplicationService {
	return &ApplicationService{
		store: store,
		opts:  newOptions(opts),
	}
}

// ApplicationID derives the id of the single application a user may hold
// for a project. Concurrent applies for the same pair target the same
// document, so the store's conditional create rejects all but one.
func ApplicationID(projectID, applicantID string) string {
	sum := sha256.Sum256([]byte(projectID + "\x00" + applicantID))
	return hex.EncodeToString(sum[:])
}

func applicationRef(applicationID string) docstore.Ref {
	return docstore.Doc(database.CollectionApplications, applicationID)
}

func mirrorRef(applicantID, applicationID string) docstore.Ref {
	return docstore.Doc(docstore.SubCollection(database.CollectionUsers, applicantID, userApplications), applicationID)
}

// mirrorFields is the full mirror content derived from a root
func mirrorFields(app *models.Application) docstore.Fields {
	return docstore.Fields{
		"applicationId": app.ID,
		"projectId":     app.ProjectID,
		"projectRef":    projectRef(app.ProjectID).String(),
		"status":        string(app.Status),
		"appliedAt":     app.AppliedAt,
	}
}

// ApplyForProject records applicant's application to projectID. Applying
// again returns the existing application with AlreadyApplied set. The root
// and the mirror are committed in one batch.
func (s *ApplicationService) ApplyForProject(ctx context.Context, projectID string, applicant models.Identity) (*models.ApplyResult, error) {
	if projectID == "" {
		return nil, missingField("project_id")
	}
	if applicant.UserID == "" {
		return nil, missingField("applicant_id")
	}

	existing, err := s.HasUserApplied(ctx, applicant.UserID, projectID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.ensureMirror(ctx, existing); err != nil {
			return nil, err
		}
		s.opts.metrics.RecordApply(true)
		return &models.ApplyResult{ApplicationID: existing.ID, AlreadyApplied: true}, nil
	}

	app := &models.Application{
		ID:                ApplicationID(projectID, applicant.UserID),
		ProjectID:         projectID,
		ApplicantID:       applicant.UserID,
		ApplicantName:     applicant.Name,
		ApplicantUsername: applicant.Username,
		ApplicantImage:    applicant.Image,
		AppliedAt:         s.opts.now().UTC(),
		Status:            models.ApplicationStatusPending,
	}
	logger := logging.WithApplication(app.ID, projectID, applicant.UserID)

	batch := docstore.NewBatch().
		Create(applicationRef(app.ID), app).
		Upsert(mirrorRef(app.ApplicantID, app.ID), mirrorFields(app))

	err = s.store.Commit(ctx, batch)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		// Lost the race against a concurrent apply for the same pair
		winner, getErr := s.GetApplication(ctx, app.ID)
		if getErr != nil {
			return nil, getErr
		}
		if winner == nil {
			return nil, fmt.Errorf("failed to apply: %w", ErrNotFound)
		}
		if err := s.ensureMirror(ctx, winner); err != nil {
			return nil, err
		}
		logger.Info("concurrent apply resolved to existing application")
		s.opts.metrics.RecordApply(true)
		return &models.ApplyResult{ApplicationID: winner.ID, AlreadyApplied: true}, nil
	}
	if err != nil {
		logger.Error("failed to write application", "error", err)
		return nil, storeErr("failed to apply", err)
	}

	logger.Info("application created")
	s.opts.metrics.RecordApply(false)
	return &models.ApplyResult{ApplicationID: app.ID}, nil
}

// ensureMirror writes the mirror of app when it is missing, e.g. after a
// crash between two writes of an older deployment or a manual cleanup.
func (s *ApplicationService) ensureMirror(ctx context.Context, app *models.Application) error {
	var mirror models.ApplicationMirror
	err := s.store.Get(ctx, mirrorRef(app.ApplicantID, app.ID), &mirror)
	if err == nil {
		return nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return storeErr("failed to read application mirror", err)
	}

	logging.WithApplication(app.ID, app.ProjectID, app.ApplicantID).
		Warn("application mirror missing, rewriting from root", "error", ErrInconsistent)
	s.opts.metrics.RecordInconsistency("mirror_missing")
	if err := s.store.Upsert(ctx, mirrorRef(app.ApplicantID, app.ID), mirrorFields(app)); err != nil {
		return storeErr("failed to repair application mirror", err)
	}
	s.opts.metrics.RecordMirrorRepair()
	return nil
}

// CheckTransition decides whether an application may move from one status
// to another. Every transition between known statuses is allowed, including
// backwards moves.
func CheckTransition(from, to models.ApplicationStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown application status %q", ErrInvalidInput, to)
	}
	return nil
}

// UpdateApplicationStatus sets the status of an application on its root and
// its mirror in one batch.
func (s *ApplicationService) UpdateApplicationStatus(ctx context.Context, applicationID string, status models.ApplicationStatus) error {
	if applicationID == "" {
		return missingField("application_id")
	}
	if status == "" {
		return missingField("status")
	}

	app, err := s.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("failed to update application status: %w", ErrNotFound)
	}
	if err := CheckTransition(app.Status, status); err != nil {
		return err
	}

	previous := app.Status
	app.Status = status
	batch := docstore.NewBatch().
		Update(applicationRef(app.ID), docstore.Fields{"status": string(status)}).
		Upsert(mirrorRef(app.ApplicantID, app.ID), mirrorFields(app))

	logger := logging.WithApplication(app.ID, app.ProjectID, app.ApplicantID)
	if err := s.store.Commit(ctx, batch); err != nil {
		logger.Error("failed to update application status", "from", previous, "to", status, "error", err)
		return storeErr("failed to update application status", err)
	}

	logger.Info("application status updated", "from", previous, "to", status)
	s.opts.metrics.RecordStatusUpdate()
	return nil
}

// GetApplication returns an application root, or nil when absent
func (s *ApplicationService) GetApplication(ctx context.Context, applicationID string) (*models.Application, error) {
	if applicationID == "" {
		return nil, missingField("application_id")
	}
	var app models.Application
	err := s.store.Get(ctx, applicationRef(applicationID), &app)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to get application", err)
	}
	return &app, nil
}

// HasUserApplied returns userID's application to projectID, or nil
func (s *ApplicationService) HasUserApplied(ctx context.Context, userID, projectID string) (*models.Application, error) {
	if userID == "" {
		return nil, missingField("user_id")
	}
	if projectID == "" {
		return nil, missingField("project_id")
	}

	var apps []models.Application
	err := s.store.Query(ctx, database.CollectionApplications, []docstore.Filter{
		docstore.Eq("projectId", projectID),
		docstore.Eq("applicantId", userID),
	}, &apps)
	if err != nil {
		return nil, storeErr("failed to check application", err)
	}
	if len(apps) == 0 {
		return nil, nil
	}
	if len(apps) > 1 {
		// Duplicates can only predate deterministic ids; the oldest one wins
		slog.Warn("duplicate applications for one applicant",
			"project_id", projectID, "applicant_id", userID, "count", len(apps), "error", ErrInconsistent)
		s.opts.metrics.RecordInconsistency("duplicate_application")
	}
	models.SortApplicationsByAppliedAt(apps)
	oldest := apps[len(apps)-1]
	return &oldest, nil
}

// GetApplicationsByProject returns every application to projectID, newest first
func (s *ApplicationService) GetApplicationsByProject(ctx context.Context, projectID string) ([]models.Application, error) {
	if projectID == "" {
		return nil, missingField("project_id")
	}
	return s.query(ctx, "failed to list applications by project", docstore.Eq("projectId", projectID))
}

// GetApplicationsByUser returns every application made by userID, newest first
func (s *ApplicationService) GetApplicationsByUser(ctx context.Context, userID string) ([]models.Application, error) {
	if userID == "" {
		return nil, missingField("user_id")
	}
	return s.query(ctx, "failed to list applications by user", docstore.Eq("applicantId", userID))
}

// GetMirrors returns the per-user application mirrors of userID, newest first
func (s *ApplicationService) GetMirrors(ctx context.Context, userID string) ([]models.ApplicationMirror, error) {
	if userID == "" {
		return nil, missingField("user_id")
	}
	var mirrors []models.ApplicationMirror
	collection := docstore.SubCollection(database.CollectionUsers, userID, userApplications)
	if err := s.store.Query(ctx, collection, nil, &mirrors); err != nil {
		return nil, storeErr("failed to list application mirrors", err)
	}
	models.SortMirrorsByAppliedAt(mirrors)
	return mirrors, nil
}

func (s *ApplicationService) query(ctx context.Context, op string, filters ...docstore.Filter) ([]models.Application, error) {
	apps := []models.Application{}
	if err := s.store.Query(ctx, database.CollectionApplications, filters, &apps); err != nil {
		return nil, storeErr(op, err)
	}
	models.SortApplicationsByAppliedAt(apps)
	return apps, nil
}

// StageProjectDeletion adds deletes for every application of projectID,
// root and mirror, to b. It returns the number of applications staged.
func (s *ApplicationService) StageProjectDeletion(ctx context.Context, projectID string, b *docstore.Batch) (int, error) {
	apps, err := s.GetApplicationsByProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	for _, app := range apps {
		b.Delete(applicationRef(app.ID))
		b.Delete(mirrorRef(app.ApplicantID, app.ID))
	}
	return len(apps), nil
}

// ReconcileMirrors compares every application root with its mirror and
// rewrites mirrors that are missing or disagree with the root.
func (s *ApplicationService) ReconcileMirrors(ctx context.Context) (*models.ReconcileResult, error) {
	var apps []models.Application
	if err := s.store.Query(ctx, database.CollectionApplications, nil, &apps); err != nil {
		return nil, storeErr("failed to list applications", err)
	}

	result := &models.ReconcileResult{}
	for i := range apps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		app := &apps[i]
		result.Checked++

		kind, err := s.mirrorDivergence(ctx, app)
		if err != nil {
			result.Failed++
			slog.Error("failed to read application mirror", "application_id", app.ID, "error", err)
			continue
		}
		if kind == "" {
			continue
		}

		logging.WithApplication(app.ID, app.ProjectID, app.ApplicantID).
			Warn("application mirror diverged from root", "kind", kind, "error", ErrInconsistent)
		s.opts.metrics.RecordInconsistency(kind)
		if err := s.store.Upsert(ctx, mirrorRef(app.ApplicantID, app.ID), mirrorFields(app)); err != nil {
			result.Failed++
			slog.Error("failed to repair application mirror", "application_id", app.ID, "error", err)
			continue
		}
		s.opts.metrics.RecordMirrorRepair()
		result.Repaired++
	}
	return result, nil
}

// mirrorDivergence returns the kind of divergence between app and its
// mirror, or "" when they agree.
func (s *ApplicationService) mirrorDivergence(ctx context.Context, app *models.Application) (string, error) {
	var mirror models.ApplicationMirror
	err := s.store.Get(ctx, mirrorRef(app.ApplicantID, app.ID), &mirror)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return "mirror_missing", nil
	case err != nil:
		return "", err
	}
	if mirror.Status != app.Status {
		return "mirror_status", nil
	}
	if mirror.ProjectID != app.ProjectID || mirror.ApplicationID != app.ID {
		return "mirror_fields", nil
	}
	return "", nil
}
