package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type UserProfileRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserProfile, error)
	// Patch upserts the profile row and applies the given column updates.
	// Used to checkpoint the memory document independently of the sections.
	Patch(ctx context.Context, tx *gorm.DB, userID uuid.UUID, updates map[string]interface{}) error
	// ReplaceSections writes all five profile sections plus the combined
	// rendering in a single transaction. Either every section lands or the
	// previously persisted generation stays untouched.
	ReplaceSections(ctx context.Context, tx *gorm.DB, userID uuid.UUID, sections map[string]datatypes.JSON, combinedText string) error
}

type userProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserProfileRepo(db *gorm.DB, baseLog *logger.Logger) UserProfileRepo {
	return &userProfileRepo{
		db:  db,
		log: baseLog.With("repo", "UserProfileRepo"),
	}
}

func (r *userProfileRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var profile types.UserProfile
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == uuid.Nil {
		return nil, nil
	}
	return &profile, nil
}

func (r *userProfileRepo) Patch(ctx context.Context, tx *gorm.DB, userID uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := r.ensureRow(ctx, txx, userID); err != nil {
			return err
		}
		if _, ok := updates["updated_at"]; !ok {
			updates["updated_at"] = time.Now()
		}
		return txx.Model(&types.UserProfile{}).
			Where("user_id = ?", userID).
			Updates(updates).Error
	})
}

func (r *userProfileRepo) ReplaceSections(ctx context.Context, tx *gorm.DB, userID uuid.UUID, sections map[string]datatypes.JSON, combinedText string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := r.ensureRow(ctx, txx, userID); err != nil {
			return err
		}
		updates := map[string]interface{}{
			"soul":                sections["soul"],
			"identity":            sections["identity"],
			"user_section":        sections["user"],
			"agents":              sections["agents"],
			"tools":               sections["tools"],
			"combined_text":       combinedText,
			"sections_updated_at": now,
			"updated_at":          now,
		}
		return txx.Model(&types.UserProfile{}).
			Where("user_id = ?", userID).
			Updates(updates).Error
	})
}

func (r *userProfileRepo) ensureRow(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	profile := types.UserProfile{
		ID:     uuid.New(),
		UserID: userID,
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&profile).Error
}
