package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithProject returns a logger with the project id attached.
func WithProject(projectID string) *slog.Logger {
	return slog.With("project_id", projectID)
}

// WithApplication returns a logger carrying every id needed to locate an
// application's root and mirror documents.
func WithApplication(applicationID, projectID, applicantID string) *slog.Logger {
	return slog.With(
		"application_id", applicationID,
		"project_id", projectID,
		"applicant_id", applicantID,
	)
}

// WithJob returns a logger scoped to a background job run.
func WithJob(name, runID string) *slog.Logger {
	return slog.With(
		"job", name,
		"run_id", runID,
	)
}
