package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	apperrors "github.com/soulprintlabs/soulprint-backend/internal/pkg/errors"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

// ProfileService reads the synthesized profile for API consumers.
type ProfileService interface {
	GetForUser(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error)
}

type profileService struct {
	log      *logger.Logger
	profiles repos.UserProfileRepo
}

func NewProfileService(baseLog *logger.Logger, profiles repos.UserProfileRepo) ProfileService {
	return &profileService{
		log:      baseLog.With("service", "ProfileService"),
		profiles: profiles,
	}
}

func (s *profileService) GetForUser(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}
	profile, err := s.profiles.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperrors.ErrNotFound
	}
	return profile, nil
}
