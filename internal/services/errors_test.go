package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"teamup/internal/docstore"
)

func TestStoreErr(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"not found", fmt.Errorf("op: %w", docstore.ErrNotFound), ErrNotFound},
		{"exists", docstore.ErrAlreadyExists, ErrAlreadyExists},
		{"invalid", docstore.ErrInvalidArgument, ErrInvalidInput},
		{"transport", errors.New("connection reset"), ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeErr("failed to do it", tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v in chain, got %v", tt.want, err)
			}
			if !errors.Is(err, tt.in) {
				t.Errorf("Expected original error kept in chain, got %v", err)
			}
		})
	}

	if storeErr("noop", nil) != nil {
		t.Error("Expected nil for nil error")
	}
}

func TestPartialFailureError(t *testing.T) {
	err := &PartialFailureError{
		Op:        "delete project p1",
		Completed: []string{"applications"},
		Err:       storeErr("failed to delete project", errors.New("timeout")),
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Error("Expected cause to unwrap")
	}
	if got := err.Error(); got != "delete project p1 failed after [applications]: failed to delete project: store unavailable\ntimeout" {
		t.Errorf("Unexpected message %q", got)
	}
}

func TestMissingFieldError(t *testing.T) {
	err := missingField("project_id")
	var mf *MissingFieldError
	if !errors.As(err, &mf) || mf.Field != "project_id" {
		t.Fatalf("Expected MissingFieldError, got %v", err)
	}
	if !errors.Is(err, ErrMissingField) {
		t.Error("Expected ErrMissingField in chain")
	}
}

func TestDeadlinePassed(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		deadline   string
		loc        *time.Location
		wantPassed bool
		wantOK     bool
	}{
		{"2024-01-01", time.UTC, true, true},
		{"2024-01-04", time.UTC, true, true},
		{"2024-01-05", time.UTC, false, true},
		{"2024-01-06", time.UTC, false, true},
		{"2024-01-04T23:59", time.UTC, true, true},
		{"2024-01-05T00:00:00Z", time.UTC, false, true},
		{"2024-01-04 08:00:00", time.UTC, true, true},
		{" 2024-01-05 ", time.UTC, false, true},
		{"", time.UTC, false, false},
		{"tomorrow", time.UTC, false, false},
		{"05/01/2024", time.UTC, false, false},
		// 2024-01-05 10:00 UTC is 15:30 on the 5th in IST
		{"2024-01-05", ist, false, true},
		{"2024-01-04", ist, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.deadline+"/"+tt.loc.String(), func(t *testing.T) {
			passed, ok := DeadlinePassed(tt.deadline, now, tt.loc)
			if passed != tt.wantPassed || ok != tt.wantOK {
				t.Errorf("DeadlinePassed(%q) = (%v, %v), want (%v, %v)", tt.deadline, passed, ok, tt.wantPassed, tt.wantOK)
			}
		})
	}
}

func TestStartOfDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 03:00 UTC on the 5th is still the 4th in New York
	got := StartOfDay(time.Date(2024, 1, 5, 3, 0, 0, 0, time.UTC), ny)
	want := time.Date(2024, 1, 4, 0, 0, 0, 0, ny)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
