package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"teamup/internal/models"
	"teamup/internal/services"
)

// MirrorReconcilerName is the scheduler name of the mirror reconciliation
const MirrorReconcilerName = "mirror-reconciler"

// MirrorReconciler repairs per-user application mirrors from their roots
type MirrorReconciler struct {
	apps *services.ApplicationService
}

// NewMirrorReconciler creates a reconciliation job
func NewMirrorReconciler(apps *services.ApplicationService) *MirrorReconciler {
	return &MirrorReconciler{apps: apps}
}

// Name implements Job
func (j *MirrorReconciler) Name() string {
	return MirrorReconcilerName
}

// Run implements Job
func (j *MirrorReconciler) Run(ctx context.Context) error {
	_, err := j.Reconcile(ctx)
	return err
}

// Reconcile runs one pass over every application root
func (j *MirrorReconciler) Reconcile(ctx context.Context) (*models.ReconcileResult, error) {
	start := time.Now()
	result, err := j.apps.ReconcileMirrors(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to reconcile mirrors: %w", err)
	}
	if result.Repaired > 0 || result.Failed > 0 {
		log.Printf("🔧 [RECONCILER] Checked %d applications, repaired %d mirrors, %d failures in %v",
			result.Checked, result.Repaired, result.Failed, time.Since(start))
	}
	return result, nil
}
