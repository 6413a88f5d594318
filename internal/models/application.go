package models

import (
	"sort"
	"time"
)

// ApplicationStatus is the review state of an application
type ApplicationStatus string

const (
	ApplicationStatusPending      ApplicationStatus = "pending"
	ApplicationStatusInterviewing ApplicationStatus = "interviewing"
	ApplicationStatusAccepted     ApplicationStatus = "accepted"
	ApplicationStatusRejected     ApplicationStatus = "rejected"
)

// Valid reports whether s is a known application status
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusInterviewing,
		ApplicationStatusAccepted, ApplicationStatusRejected:
		return true
	}
	return false
}

// Application is the root record of a user's application to a project.
// Applicant fields are a snapshot taken when the user applied.
type Application struct {
	ID                string            `bson:"_id" json:"id"`
	ProjectID         string            `bson:"projectId" json:"project_id"`
	ApplicantID       string            `bson:"applicantId" json:"applicant_id"`
	ApplicantName     string            `bson:"applicantName" json:"applicant_name"`
	ApplicantUsername string            `bson:"applicantUsername" json:"applicant_username"`
	ApplicantImage    string            `bson:"applicantImage" json:"applicant_image"`
	AppliedAt         time.Time         `bson:"appliedAt" json:"applied_at"`
	Status            ApplicationStatus `bson:"status" json:"status"`
}

// ApplicationMirror is the per-user copy of an application, stored under
// users/{applicantId}/applications/{applicationId}.
type ApplicationMirror struct {
	ID            string            `bson:"_id" json:"id"`
	ApplicationID string            `bson:"applicationId" json:"application_id"`
	ProjectID     string            `bson:"projectId" json:"project_id"`
	ProjectRef    string            `bson:"projectRef" json:"project_ref"`
	Status        ApplicationStatus `bson:"status" json:"status"`
	AppliedAt     time.Time         `bson:"appliedAt" json:"applied_at"`
}

// ApplyResult is returned by an apply call. AlreadyApplied is true when an
// application for the same project and applicant already existed.
type ApplyResult struct {
	ApplicationID  string `json:"application_id"`
	AlreadyApplied bool   `json:"already_applied"`
}

// SortApplicationsByAppliedAt orders applications newest first
func SortApplicationsByAppliedAt(apps []Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].AppliedAt.After(apps[j].AppliedAt)
	})
}

// SortMirrorsByAppliedAt orders application mirrors newest first
func SortMirrorsByAppliedAt(mirrors []ApplicationMirror) {
	sort.SliceStable(mirrors, func(i, j int) bool {
		return mirrors[i].AppliedAt.After(mirrors[j].AppliedAt)
	})
}
