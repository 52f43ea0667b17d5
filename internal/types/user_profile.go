package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserProfile holds the synthesized memory document plus the five structured
// personality sections. Memory is checkpointed on its own; the five sections
// and the combined rendering are only ever replaced together in one
// transaction, so a failed regeneration leaves the previous generation intact.
type UserProfile struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User              *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Memory            string         `gorm:"column:memory;type:text" json:"memory"`
	MemoryUpdatedAt   *time.Time     `gorm:"column:memory_updated_at" json:"memory_updated_at,omitempty"`
	Soul              datatypes.JSON `gorm:"type:jsonb;column:soul" json:"soul"`
	Identity          datatypes.JSON `gorm:"type:jsonb;column:identity" json:"identity"`
	UserSection       datatypes.JSON `gorm:"type:jsonb;column:user_section" json:"user_section"`
	Agents            datatypes.JSON `gorm:"type:jsonb;column:agents" json:"agents"`
	Tools             datatypes.JSON `gorm:"type:jsonb;column:tools" json:"tools"`
	CombinedText      string         `gorm:"column:combined_text;type:text" json:"combined_text"`
	SectionsUpdatedAt *time.Time     `gorm:"column:sections_updated_at" json:"sections_updated_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UserProfile) TableName() string { return "user_profile" }
