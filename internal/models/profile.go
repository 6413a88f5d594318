package models

import "time"

// Identity is what the identity provider vouches for on each request
type Identity struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Image    string `json:"image"`
}

// UserProfile is a user's public profile and saved-project wishlist.
// The document id is the identity provider's user id.
type UserProfile struct {
	ID        string      `bson:"_id" json:"id"`
	UserID    string      `bson:"userId" json:"user_id"`
	Name      string      `bson:"name" json:"name"`
	Email     string      `bson:"email" json:"email"`
	Image     string      `bson:"image" json:"image"`
	Username  string      `bson:"username" json:"username"`
	Headline  string      `bson:"headline" json:"headline"`
	About     string      `bson:"about" json:"about"`
	Location  string      `bson:"location" json:"location"`
	Education []Education `bson:"education" json:"education"`
	Work      []Work      `bson:"work" json:"work"`
	Skills    []string    `bson:"skills" json:"skills"`
	Links     Links       `bson:"links" json:"links"`
	Wishlist  []string    `bson:"wishlist" json:"wishlist"`
	CreatedAt time.Time   `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time   `bson:"updatedAt,omitempty" json:"updated_at,omitempty"`
}

// HasSaved reports whether projectID is in the wishlist
func (p *UserProfile) HasSaved(projectID string) bool {
	for _, id := range p.Wishlist {
		if id == projectID {
			return true
		}
	}
	return false
}

type Education struct {
	Institution string `bson:"institution" json:"institution"`
	Degree      string `bson:"degree" json:"degree"`
	Year        string `bson:"year" json:"year"`
}

type Work struct {
	Company  string `bson:"company" json:"company"`
	Role     string `bson:"role" json:"role"`
	Duration string `bson:"duration" json:"duration"`
}

type Links struct {
	GitHub    string `bson:"github,omitempty" json:"github,omitempty"`
	LinkedIn  string `bson:"linkedin,omitempty" json:"linkedin,omitempty"`
	Portfolio string `bson:"portfolio,omitempty" json:"portfolio,omitempty"`
}

// ProfileUpdate is a partial profile edit. Identity fields and the wishlist
// are not editable through it.
type ProfileUpdate struct {
	Headline  *string      `json:"headline"`
	About     *string      `json:"about"`
	Location  *string      `json:"location"`
	Education *[]Education `json:"education"`
	Work      *[]Work      `json:"work"`
	Skills    *[]string    `json:"skills"`
	Links     *Links       `json:"links"`
}

// Fields returns the set fields keyed by their stored names
func (u ProfileUpdate) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if u.Headline != nil {
		fields["headline"] = *u.Headline
	}
	if u.About != nil {
		fields["about"] = *u.About
	}
	if u.Location != nil {
		fields["location"] = *u.Location
	}
	if u.Education != nil {
		fields["education"] = *u.Education
	}
	if u.Work != nil {
		fields["work"] = *u.Work
	}
	if u.Skills != nil {
		fields["skills"] = *u.Skills
	}
	if u.Links != nil {
		fields["links"] = *u.Links
	}
	return fields
}

// ProjectSavers is the inverted wishlist index: the users who saved a project
type ProjectSavers struct {
	ProjectID string   `bson:"_id" json:"project_id"`
	UserIDs   []string `bson:"userIds" json:"user_ids"`
}
