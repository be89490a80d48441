package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/tradepost/internal/models"
	apperrors "github.com/charlesng35/tradepost/pkg/errors"
	"github.com/charlesng35/tradepost/pkg/sanitize"
	"github.com/charlesng35/tradepost/pkg/validator"
)

// ErrProfileNotFound indicates the requested profile does not exist.
var ErrProfileNotFound = apperrors.ErrNotFound.WithMessage("Profile not found")

var publicProfileColumns = []string{"user_id", "display_name", "avatar_url", "rating", "review_count"}

// PublicProfile holds the fields any viewer may see.
type PublicProfile struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   string  `json:"avatar_url,omitempty"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

// ContactDetails holds the gated fields of a profile.
type ContactDetails struct {
	Phone   string
	Address string
}

// UpdateProfileInput describes the fields a user may change on their own profile. Nil pointers
// leave the stored value untouched; empty strings clear it.
type UpdateProfileInput struct {
	DisplayName string  `json:"display_name" validate:"required,max=120"`
	AvatarURL   string  `json:"avatar_url" validate:"omitempty,url,max=512"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
	Address     *string `json:"address" validate:"omitempty,max=512"`
}

// OwnProfile is the full profile returned to its owner.
type OwnProfile struct {
	PublicProfile
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileService manages profile records mirrored from the external identity provider.
type ProfileService struct {
	db *gorm.DB
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB) (*ProfileService, error) {
	if db == nil {
		return nil, errors.New("profile service: db is required")
	}
	return &ProfileService{db: db}, nil
}

// Exists reports whether a profile exists for userID.
func (s *ProfileService) Exists(ctx context.Context, userID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("profile service: exists: %w", err)
	}
	return count > 0, nil
}

// Public loads only the public columns of a profile.
func (s *ProfileService) Public(ctx context.Context, userID string) (*PublicProfile, error) {
	ctx = ensureContext(ctx)

	var profile models.Profile
	err := s.db.WithContext(ctx).
		Select(publicProfileColumns).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Take(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profile service: load public profile: %w", err)
	}

	public := toPublicProfile(profile)
	return &public, nil
}

// PublicSummaries loads public fields for several users keyed by user id. Unknown ids are omitted.
func (s *ProfileService) PublicSummaries(ctx context.Context, userIDs []string) (map[string]PublicProfile, error) {
	ctx = ensureContext(ctx)

	ids := normaliseIDs(userIDs)
	result := make(map[string]PublicProfile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var profiles []models.Profile
	if err := s.db.WithContext(ctx).
		Select(publicProfileColumns).
		Where("user_id IN ?", ids).
		Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("profile service: load summaries: %w", err)
	}

	for _, profile := range profiles {
		result[profile.UserID] = toPublicProfile(profile)
	}
	return result, nil
}

// ContactDetails loads the gated fields. Callers must have established that the viewer may see them.
func (s *ProfileService) ContactDetails(ctx context.Context, userID string) (ContactDetails, error) {
	ctx = ensureContext(ctx)

	var profile models.Profile
	err := s.db.WithContext(ctx).
		Select("user_id", "phone", "address").
		Where("user_id = ?", userID).
		Take(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ContactDetails{}, ErrProfileNotFound
		}
		return ContactDetails{}, fmt.Errorf("profile service: load contact details: %w", err)
	}

	return ContactDetails{
		Phone:   sanitize.Phone(profile.Phone),
		Address: sanitize.Multiline(profile.Address),
	}, nil
}

// Own returns the full profile of userID for its owner.
func (s *ProfileService) Own(ctx context.Context, userID string) (*OwnProfile, error) {
	ctx = ensureContext(ctx)

	var profile models.Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profile service: load own profile: %w", err)
	}
	return toOwnProfile(profile), nil
}

// Upsert creates or updates the caller's profile after sanitising every free-text field.
func (s *ProfileService) Upsert(ctx context.Context, userID string, input UpdateProfileInput) (*OwnProfile, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	input.DisplayName = sanitize.Truncate(sanitize.Text(input.DisplayName), 120)
	input.AvatarURL = strings.TrimSpace(input.AvatarURL)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	profile := models.Profile{
		UserID:      userID,
		DisplayName: input.DisplayName,
		AvatarURL:   input.AvatarURL,
	}
	updates := []string{"display_name", "avatar_url", "updated_at"}

	if input.Phone != nil {
		phone := sanitize.Phone(*input.Phone)
		if phone != "" && !validator.IsPhone(phone) {
			return nil, apperrors.NewBadRequest("phone number is invalid")
		}
		profile.Phone = phone
		updates = append(updates, "phone")
	}
	if input.Address != nil {
		profile.Address = sanitize.Truncate(sanitize.Multiline(*input.Address), 512)
		updates = append(updates, "address")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&profile).Error
	if err != nil {
		return nil, fmt.Errorf("profile service: upsert: %w", err)
	}

	return s.Own(ctx, userID)
}

func toPublicProfile(profile models.Profile) PublicProfile {
	return PublicProfile{
		UserID:      profile.UserID,
		DisplayName: sanitize.Text(profile.DisplayName),
		AvatarURL:   profile.AvatarURL,
		Rating:      profile.Rating,
		ReviewCount: profile.ReviewCount,
	}
}

func toOwnProfile(profile models.Profile) *OwnProfile {
	return &OwnProfile{
		PublicProfile: toPublicProfile(profile),
		Phone:         profile.Phone,
		Address:       profile.Address,
		UpdatedAt:     profile.UpdatedAt,
	}
}
