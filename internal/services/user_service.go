package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"teamup/internal/database"
	"teamup/internal/docstore"
	"teamup/internal/models"
)

// UserService manages user profiles keyed by the identity provider's user id
type UserService struct {
	store docstore.Store
	opts  options
}

// NewUserService creates a user service
func NewUserService(store docstore.Store, opts ...Option) *UserService {
	return &UserService{
		store: store,
		opts:  newOptions(opts),
	}
}

// EnsureProfile creates the profile for identity on first sight. An existing
// profile is returned unchanged; a wishlist-only document gains the identity
// fields and keeps its wishlist.
func (s *UserService) EnsureProfile(ctx context.Context, identity models.Identity) (*models.UserProfile, error) {
	if identity.UserID == "" {
		return nil, missingField("user_id")
	}

	existing, err := s.GetProfile(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.UserID != "" {
		return existing, nil
	}

	if existing == nil {
		profile := &models.UserProfile{
			ID:        identity.UserID,
			UserID:    identity.UserID,
			Name:      identity.Name,
			Email:     identity.Email,
			Image:     identity.Image,
			Username:  identity.Username,
			Skills:    []string{},
			Wishlist:  []string{},
			CreatedAt: s.opts.now().UTC(),
		}
		err := s.store.Create(ctx, userRef(identity.UserID), profile)
		if err == nil {
			log.Printf("👤 [PROFILE] Created profile for user %s", identity.UserID)
			return profile, nil
		}
		if !errors.Is(err, docstore.ErrAlreadyExists) {
			return nil, storeErr("failed to create profile", err)
		}

		// Another request created the document first; keep its profile
		existing, err = s.GetProfile(ctx, identity.UserID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.UserID != "" {
			return existing, nil
		}
	}

	// A wishlist-only document exists (saved before the profile was
	// created). createdAt is set only when the document has none.
	fields := docstore.Fields{
		"userId":   identity.UserID,
		"name":     identity.Name,
		"email":    identity.Email,
		"image":    identity.Image,
		"username": identity.Username,
	}
	if existing == nil || existing.CreatedAt.IsZero() {
		fields["createdAt"] = docstore.ServerTimestamp
	}
	err = s.store.Upsert(ctx, userRef(identity.UserID), fields)
	if err != nil {
		return nil, storeErr("failed to complete profile", err)
	}
	return s.GetProfile(ctx, identity.UserID)
}

// GetProfile returns a profile, or nil when absent
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, missingField("user_id")
	}
	var profile models.UserProfile
	err := s.store.Get(ctx, userRef(userID), &profile)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to get profile", err)
	}
	return &profile, nil
}

// GetProfileByUsername returns the profile with the given username, or nil
func (s *UserService) GetProfileByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	if username == "" {
		return nil, missingField("username")
	}
	var profiles []models.UserProfile
	err := s.store.Query(ctx, database.CollectionUsers, []docstore.Filter{docstore.Eq("username", username)}, &profiles)
	if err != nil {
		return nil, storeErr("failed to find profile", err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

// UpdateProfile merges a partial edit into an existing profile
func (s *UserService) UpdateProfile(ctx context.Context, userID string, update *models.ProfileUpdate) error {
	if userID == "" {
		return missingField("user_id")
	}
	fields := docstore.Fields{}
	for k, v := range update.Fields() {
		fields[k] = v
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	fields["updatedAt"] = docstore.ServerTimestamp

	if err := s.store.Update(ctx, userRef(userID), fields); err != nil {
		return storeErr("failed to update profile", err)
	}
	return nil
}
