package models

import (
	"errors"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ProjectStatus is the canonical open/closed state of a project
type ProjectStatus string

const (
	ProjectStatusOpen   ProjectStatus = "open"
	ProjectStatusClosed ProjectStatus = "closed"
)

// Valid reports whether s is a known project status
func (s ProjectStatus) Valid() bool {
	return s == ProjectStatusOpen || s == ProjectStatusClosed
}

// Project is a listing a creator publishes to recruit team members.
// Creator fields are a snapshot taken at creation, not a live reference.
type Project struct {
	ID          string   `bson:"_id" json:"id"`
	Title       string   `bson:"projectTitle" json:"project_title" validate:"required,max=200"`
	Headline    string   `bson:"projectHeadline" json:"project_headline" validate:"max=300"`
	Description string   `bson:"projectDescription" json:"project_description"`
	TechStack   []string `bson:"techStack" json:"tech_stack"`
	Roles       []Role   `bson:"roles" json:"roles" validate:"dive"`

	Availability   string         `bson:"availability" json:"availability"`
	AdditionalInfo AdditionalInfo `bson:"additionalInfo" json:"additional_info"`
	Contact        Contact        `bson:"contact" json:"contact"`
	Location       string         `bson:"location" json:"location"`
	Mode           string         `bson:"mode" json:"mode"` // remote, onsite, hybrid

	// LastDate is the application deadline as a calendar date (YYYY-MM-DD)
	LastDate string        `bson:"lastDate" json:"last_date" validate:"required"`
	Status   ProjectStatus `bson:"status" json:"status"`

	CreatorID       string `bson:"creatorId" json:"creator_id"`
	CreatorName     string `bson:"creatorName" json:"creator_name"`
	CreatorUsername string `bson:"creatorUsername" json:"creator_username"`
	CreatorImage    string `bson:"creatorImage" json:"creator_image"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// Role is one open position on a project
type Role struct {
	RoleName         string   `bson:"roleName" json:"role_name" validate:"required"`
	Responsibilities []string `bson:"responsibilities" json:"responsibilities" validate:"required,min=1,dive,required"`
	Requirements     []string `bson:"requirements" json:"requirements" validate:"required,min=1,dive,required"`
	MembersRequired  int      `bson:"membersRequired" json:"members_required" validate:"required,gte=1"`
}

type AdditionalInfo struct {
	Timing   string `bson:"timing" json:"timing"`
	Stipend  string `bson:"stipend" json:"stipend"`
	Duration string `bson:"duration" json:"duration"`
}

type Contact struct {
	Email    string `bson:"email" json:"email" validate:"omitempty,email"`
	LinkedIn string `bson:"linkedin,omitempty" json:"linkedin,omitempty"`
}

// ProjectUpdate is a partial project edit. Nil fields are left untouched.
type ProjectUpdate struct {
	Title          *string         `json:"project_title" validate:"omitempty,max=200"`
	Headline       *string         `json:"project_headline" validate:"omitempty,max=300"`
	Description    *string         `json:"project_description"`
	TechStack      *[]string       `json:"tech_stack"`
	Roles          *[]Role         `json:"roles"`
	Availability   *string         `json:"availability"`
	AdditionalInfo *AdditionalInfo `json:"additional_info"`
	Contact        *Contact        `json:"contact"`
	Location       *string         `json:"location"`
	Mode           *string         `json:"mode"`
	LastDate       *string         `json:"last_date"`
	Status         *ProjectStatus  `json:"status"`
}

// Fields returns the set fields keyed by their stored names
func (u ProjectUpdate) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if u.Title != nil {
		fields["projectTitle"] = *u.Title
	}
	if u.Headline != nil {
		fields["projectHeadline"] = *u.Headline
	}
	if u.Description != nil {
		fields["projectDescription"] = *u.Description
	}
	if u.TechStack != nil {
		fields["techStack"] = *u.TechStack
	}
	if u.Roles != nil {
		fields["roles"] = *u.Roles
	}
	if u.Availability != nil {
		fields["availability"] = *u.Availability
	}
	if u.AdditionalInfo != nil {
		fields["additionalInfo"] = *u.AdditionalInfo
	}
	if u.Contact != nil {
		fields["contact"] = *u.Contact
	}
	if u.Location != nil {
		fields["location"] = *u.Location
	}
	if u.Mode != nil {
		fields["mode"] = *u.Mode
	}
	if u.LastDate != nil {
		fields["lastDate"] = *u.LastDate
	}
	if u.Status != nil {
		fields["status"] = string(*u.Status)
	}
	return fields
}

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateProject checks a full project payload
func ValidateProject(p *Project) error {
	return validate.Struct(p)
}

// ValidateProjectUpdate checks a partial project edit
func ValidateProjectUpdate(u *ProjectUpdate) error {
	if err := validate.Struct(u); err != nil {
		return err
	}
	if u.Title != nil && *u.Title == "" {
		return errors.New("project_title cannot be empty")
	}
	if u.LastDate != nil && *u.LastDate == "" {
		return errors.New("last_date cannot be empty")
	}
	if u.Status != nil && !u.Status.Valid() {
		return errors.New("status must be open or closed")
	}
	if u.Roles != nil {
		for i := range *u.Roles {
			if err := validate.Struct(&(*u.Roles)[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// SortProjectsByCreatedAt orders projects newest first
func SortProjectsByCreatedAt(projects []Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
}

// Clone returns a copy of p that shares no slices with it
func (p Project) Clone() Project {
	out := p
	out.TechStack = slices.Clone(p.TechStack)
	if p.Roles != nil {
		out.Roles = make([]Role, len(p.Roles))
		for i, r := range p.Roles {
			r.Responsibilities = slices.Clone(r.Responsibilities)
			r.Requirements = slices.Clone(r.Requirements)
			out.Roles[i] = r
		}
	}
	return out
}
