package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"teamup/internal/database"
	"teamup/internal/docstore"
	"teamup/internal/models"
)

func TestApplicationID_Deterministic(t *testing.T) {
	a := ApplicationID("p1", "u1")
	if a != ApplicationID("p1", "u1") {
		t.Error("Expected the same id for the same pair")
	}
	if a == ApplicationID("p1", "u2") || a == ApplicationID("p2", "u1") {
		t.Error("Expected different ids for different pairs")
	}
	if ApplicationID("p1u", "1") == ApplicationID("p1", "u1") {
		t.Error("Expected the separator to keep concatenations apart")
	}
}

func TestApplyForProject_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")

	first, err := f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	if err != nil {
		t.Fatalf("First apply failed: %v", err)
	}
	if first.AlreadyApplied {
		t.Error("First apply must not report alreadyApplied")
	}

	second, err := f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	if err != nil {
		t.Fatalf("Second apply failed: %v", err)
	}
	if !second.AlreadyApplied {
		t.Error("Second apply must report alreadyApplied")
	}
	if second.ApplicationID != first.ApplicationID {
		t.Errorf("Expected same id %s, got %s", first.ApplicationID, second.ApplicationID)
	}

	apps, err := f.apps.GetApplicationsByProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetApplicationsByProject failed: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("Expected exactly one root application, got %d", len(apps))
	}
	app := apps[0]
	if app.Status != models.ApplicationStatusPending || app.ApplicantName != "User u1" {
		t.Errorf("Unexpected root content: %+v", app)
	}

	mirrors, err := f.apps.GetMirrors(ctx, "u1")
	if err != nil {
		t.Fatalf("GetMirrors failed: %v", err)
	}
	if len(mirrors) != 1 {
		t.Fatalf("Expected exactly one mirror, got %d", len(mirrors))
	}
	m := mirrors[0]
	if m.ApplicationID != app.ID || m.ProjectID != "p1" || m.Status != app.Status || !m.AppliedAt.Equal(app.AppliedAt) {
		t.Errorf("Mirror %+v does not match root %+v", m, app)
	}
	if m.ProjectRef != "projects/p1" {
		t.Errorf("Expected projectRef projects/p1, got %s", m.ProjectRef)
	}
}

func TestApplyForProject_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")

	const callers = 20
	results := make([]*models.ApplyResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.apps.ApplyForProject(ctx, "p1", identity("u1"))
		}(i)
	}
	close(start)
	wg.Wait()

	created := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
		if results[i].ApplicationID != results[0].ApplicationID {
			t.Errorf("Caller %d got id %s, want %s", i, results[i].ApplicationID, results[0].ApplicationID)
		}
		if !results[i].AlreadyApplied {
			created++
		}
	}
	if created != 1 {
		t.Errorf("Expected exactly one caller to create the application, got %d", created)
	}

	apps, _ := f.apps.GetApplicationsByProject(ctx, "p1")
	if len(apps) != 1 {
		t.Errorf("Expected one root application, got %d", len(apps))
	}
	mirrors, _ := f.apps.GetMirrors(ctx, "u1")
	if len(mirrors) != 1 {
		t.Errorf("Expected one mirror, got %d", len(mirrors))
	}
}

func TestApplyForProject_MissingFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		projectID string
		applicant models.Identity
		field     string
	}{
		{"no project", "", identity("u1"), "project_id"},
		{"no applicant", "p1", models.Identity{Name: "nobody"}, "applicant_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.apps.ApplyForProject(ctx, tt.projectID, tt.applicant)
			var mf *MissingFieldError
			if !errors.As(err, &mf) || mf.Field != tt.field {
				t.Fatalf("Expected missing field %q, got %v", tt.field, err)
			}
		})
	}

	var apps []models.Application
	if err := f.store.Query(ctx, database.CollectionApplications, nil, &apps); err != nil {
		t.Fatal(err)
	}
	if len(apps) != 0 {
		t.Errorf("Validation failures must not write, found %d applications", len(apps))
	}
}

func TestApplyForProject_RetryRestoresMissingMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := f.store.Delete(ctx, mirrorRef("u1", res.ApplicationID)); err != nil {
		t.Fatal(err)
	}

	again, err := f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if !again.AlreadyApplied || again.ApplicationID != res.ApplicationID {
		t.Errorf("Retry must resolve to the existing root, got %+v", again)
	}
	if _, ok := f.mirror(t, "u1", res.ApplicationID); !ok {
		t.Error("Expected retry to rewrite the missing mirror")
	}
}

func TestApplyForProject_FindsLegacyRandomID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	legacy := &models.Application{
		ID:          "legacy-id",
		ProjectID:   "p1",
		ApplicantID: "u1",
		AppliedAt:   f.clock.Now(),
		Status:      models.ApplicationStatusInterviewing,
	}
	if err := f.store.Create(ctx, applicationRef(legacy.ID), legacy); err != nil {
		t.Fatal(err)
	}

	res, err := f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !res.AlreadyApplied || res.ApplicationID != "legacy-id" {
		t.Errorf("Expected legacy application to be found, got %+v", res)
	}
	m, ok := f.mirror(t, "u1", "legacy-id")
	if !ok || m.Status != models.ApplicationStatusInterviewing {
		t.Errorf("Expected mirror rebuilt from legacy root, got %+v", m)
	}
}

func TestUpdateApplicationStatus_RootAndMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, "p1", "owner", "2024-02-01")

	a, _ := f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	b, _ := f.apps.ApplyForProject(ctx, "p1", identity("u2"))

	if err := f.apps.UpdateApplicationStatus(ctx, a.ApplicationID, models.ApplicationStatusAccepted); err != nil {
		t.Fatalf("UpdateApplicationStatus failed: %v", err)
	}

	root, _ := f.apps.GetApplication(ctx, a.ApplicationID)
	if root.Status != models.ApplicationStatusAccepted {
		t.Errorf("Expected root accepted, got %s", root.Status)
	}
	m, ok := f.mirror(t, "u1", a.ApplicationID)
	if !ok || m.Status != models.ApplicationStatusAccepted {
		t.Errorf("Expected mirror accepted, got %+v", m)
	}

	other, _ := f.apps.GetApplication(ctx, b.ApplicationID)
	if other.Status != models.ApplicationStatusPending {
		t.Errorf("Other application must be unaffected, got %s", other.Status)
	}
	om, _ := f.mirror(t, "u2", b.ApplicationID)
	if om.Status != models.ApplicationStatusPending {
		t.Errorf("Other mirror must be unaffected, got %s", om.Status)
	}
}

func TestUpdateApplicationStatus_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := f.apps.ApplyForProject(ctx, "p1", identity("u1"))

	// Any known status may follow any other, including backwards moves
	sequence := []models.ApplicationStatus{
		models.ApplicationStatusInterviewing,
		models.ApplicationStatusAccepted,
		models.ApplicationStatusPending,
		models.ApplicationStatusRejected,
	}
	for _, status := range sequence {
		if err := f.apps.UpdateApplicationStatus(ctx, res.ApplicationID, status); err != nil {
			t.Fatalf("Transition to %s failed: %v", status, err)
		}
		m, _ := f.mirror(t, "u1", res.ApplicationID)
		if m.Status != status {
			t.Errorf("Mirror status %s, want %s", m.Status, status)
		}
	}

	if err := f.apps.UpdateApplicationStatus(ctx, res.ApplicationID, "hired"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown status, got %v", err)
	}
	if err := f.apps.UpdateApplicationStatus(ctx, "missing", models.ApplicationStatusAccepted); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := f.apps.UpdateApplicationStatus(ctx, res.ApplicationID, ""); !errors.Is(err, ErrMissingField) {
		t.Errorf("Expected ErrMissingField, got %v", err)
	}
}

func TestUpdateApplicationStatus_RecreatesMissingMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	f.store.Delete(ctx, mirrorRef("u1", res.ApplicationID))

	if err := f.apps.UpdateApplicationStatus(ctx, res.ApplicationID, models.ApplicationStatusAccepted); err != nil {
		t.Fatalf("UpdateApplicationStatus failed: %v", err)
	}
	m, ok := f.mirror(t, "u1", res.ApplicationID)
	if !ok || m.Status != models.ApplicationStatusAccepted || m.ProjectID != "p1" {
		t.Errorf("Expected full mirror recreated, got %+v", m)
	}
}

func TestApplicationReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	f.clock.Advance(time.Minute)
	f.apps.ApplyForProject(ctx, "p1", identity("u2"))
	f.clock.Advance(time.Minute)
	f.apps.ApplyForProject(ctx, "p2", identity("u1"))

	byProject, err := f.apps.GetApplicationsByProject(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(byProject) != 2 || byProject[0].ApplicantID != "u2" {
		t.Errorf("Expected two applications newest first, got %+v", byProject)
	}

	byUser, err := f.apps.GetApplicationsByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(byUser) != 2 || byUser[0].ProjectID != "p2" {
		t.Errorf("Expected two applications newest first, got %+v", byUser)
	}

	has, err := f.apps.HasUserApplied(ctx, "u2", "p1")
	if err != nil || has == nil {
		t.Fatalf("Expected u2 to have applied to p1, got %v (err %v)", has, err)
	}
	none, err := f.apps.HasUserApplied(ctx, "u2", "p2")
	if err != nil || none != nil {
		t.Errorf("Expected no application, got %v (err %v)", none, err)
	}

	empty, err := f.apps.GetApplicationsByProject(ctx, "p3")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v (err %v)", empty, err)
	}
}

func TestReconcileMirrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, _ := f.apps.ApplyForProject(ctx, "p1", identity("u1"))
	stale, _ := f.apps.ApplyForProject(ctx, "p1", identity("u2"))
	lost, _ := f.apps.ApplyForProject(ctx, "p1", identity("u3"))

	// Diverge one mirror and drop another
	if err := f.store.Update(ctx, applicationRef(stale.ApplicationID), docstore.Fields{"status": "accepted"}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Delete(ctx, mirrorRef("u3", lost.ApplicationID)); err != nil {
		t.Fatal(err)
	}

	result, err := f.apps.ReconcileMirrors(ctx)
	if err != nil {
		t.Fatalf("ReconcileMirrors failed: %v", err)
	}
	if result.Checked != 3 || result.Repaired != 2 || result.Failed != 0 {
		t.Errorf("Expected checked=3 repaired=2 failed=0, got %+v", result)
	}

	if m, _ := f.mirror(t, "u2", stale.ApplicationID); m.Status != models.ApplicationStatusAccepted {
		t.Errorf("Expected stale mirror to follow root, got %s", m.Status)
	}
	if _, found := f.mirror(t, "u3", lost.ApplicationID); !found {
		t.Error("Expected lost mirror to be recreated")
	}
	if m, _ := f.mirror(t, "u1", ok.ApplicationID); m.Status != models.ApplicationStatusPending {
		t.Errorf("Healthy mirror changed: %+v", m)
	}

	again, _ := f.apps.ReconcileMirrors(ctx)
	if again.Repaired != 0 {
		t.Errorf("Second pass should repair nothing, got %+v", again)
	}
}
