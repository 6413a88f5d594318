package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"teamup/internal/jobs"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close every project whose deadline has passed, then exit",
	RunE:  runSweep,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair per-user application mirrors from their roots, then exit",
	RunE:  runReconcile,
}

func runSweep(cmd *cobra.Command, args []string) error {
	return runOnce(cmd.Context(), jobs.DeadlineSweeperName, func(a *app) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			result, err := a.sweeper.Sweep(ctx)
			if result != nil {
				fmt.Printf("⏰ Checked %d projects: closed %d, skipped %d, failed %d\n",
					result.Checked, result.UpdatedCount, result.Skipped, result.Failed)
			}
			return err
		}
	})
}

func runReconcile(cmd *cobra.Command, args []string) error {
	return runOnce(cmd.Context(), jobs.MirrorReconcilerName, func(a *app) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			result, err := a.reconciler.Reconcile(ctx)
			if result != nil {
				fmt.Printf("🔧 Checked %d applications: repaired %d mirrors, %d failures\n",
					result.Checked, result.Repaired, result.Failed)
			}
			return err
		}
	})
}

// runOnce runs one job under its lock without starting the scheduler
func runOnce(parent context.Context, name string, body func(a *app) func(ctx context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	return a.scheduler.RunWith(ctx, name, body(a))
}
