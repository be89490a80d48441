package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/tradepost/internal/models"
	apperrors "github.com/charlesng35/tradepost/pkg/errors"
)

// ErrContactPermissionNotFound indicates no permission row matched the caller's predicate. A row
// owned by another user is reported the same way.
var ErrContactPermissionNotFound = apperrors.ErrNotFound.WithMessage("Contact permission not found")

// effectivePermission restricts a query to permissions that currently disclose gated fields. It is
// the SQL form of models.ContactPermission.IsEffective.
func effectivePermission(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Where("status = ?", models.ContactPermissionApproved).
			Where("expires_at IS NULL OR expires_at > ?", now)
	}
}

// PermissionStore is the only component that reads or writes the contact_permissions table.
type PermissionStore struct {
	db *gorm.DB
}

// NewPermissionStore constructs a PermissionStore.
func NewPermissionStore(db *gorm.DB) (*PermissionStore, error) {
	if db == nil {
		return nil, errors.New("permission store: db is required")
	}
	return &PermissionStore{db: db}, nil
}

// Create inserts a new permission row. A row for the same pair yields errPermissionExists.
func (s *PermissionStore) Create(ctx context.Context, permission *models.ContactPermission) error {
	ctx = ensureContext(ctx)
	if permission == nil {
		return errors.New("permission store: permission is required")
	}

	return translatePermissionWriteError(s.db.WithContext(ctx).Create(permission).Error)
}

// Transition moves a pending row owned by ownerID into status to, stamping updated_at with now. It reports false when no row
// matched, which covers missing rows, rows owned by someone else, and rows already resolved.
func (s *PermissionStore) Transition(ctx context.Context, id, ownerID string, to models.ContactPermissionStatus, now time.Time, grantedAt, expiresAt *time.Time) (bool, error) {
	ctx = ensureContext(ctx)
	if !to.Valid() || to == models.ContactPermissionPending {
		return false, fmt.Errorf("permission store: invalid target status %q", to)
	}

	result := s.db.WithContext(ctx).
		Model(&models.ContactPermission{}).
		Where("id = ? AND owner_id = ? AND status = ?", id, ownerID, models.ContactPermissionPending).
		Updates(map[string]any{
			"status":     to,
			"granted_at": grantedAt,
			"expires_at": expiresAt,
			"updated_at": now.UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("permission store: transition: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// DeletePair removes the row for (ownerID, requesterID) whatever its status and returns it.
func (s *PermissionStore) DeletePair(ctx context.Context, ownerID, requesterID string) (*models.ContactPermission, error) {
	ctx = ensureContext(ctx)

	var deleted models.ContactPermission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ? AND requester_id = ?", ownerID, requesterID).
			Take(&deleted).Error; err != nil {
			return err
		}

		result := tx.Where("id = ? AND owner_id = ?", deleted.ID, ownerID).Delete(&models.ContactPermission{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactPermissionNotFound
		}
		return nil, fmt.Errorf("permission store: delete pair: %w", err)
	}
	return &deleted, nil
}

// ReplaceExpired deletes the expired approval identified by id and inserts replacement in one
// transaction. It reports false when the row is no longer an expired approval.
func (s *PermissionStore) ReplaceExpired(ctx context.Context, id string, now time.Time, replacement *models.ContactPermission) (bool, error) {
	ctx = ensureContext(ctx)

	replaced := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Where("id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?", id, models.ContactPermissionApproved, now).
			Delete(&models.ContactPermission{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(replacement).Error; err != nil {
			return err
		}
		replaced = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("permission store: replace expired: %w", err)
	}
	return replaced, nil
}

// FindByID loads a permission by identifier.
func (s *PermissionStore) FindByID(ctx context.Context, id string) (*models.ContactPermission, error) {
	ctx = ensureContext(ctx)

	var permission models.ContactPermission
	if err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&permission).Error; err != nil {
		return nil, notFoundOr(err, "find by id")
	}
	return &permission, nil
}

// FindPair loads the row for (ownerID, requesterID) regardless of status.
func (s *PermissionStore) FindPair(ctx context.Context, ownerID, requesterID string) (*models.ContactPermission, error) {
	ctx = ensureContext(ctx)

	var permission models.ContactPermission
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND requester_id = ?", ownerID, requesterID).
		Take(&permission).Error; err != nil {
		return nil, notFoundOr(err, "find pair")
	}
	return &permission, nil
}

// FindEffective loads the row for (ownerID, requesterID) only when it is currently effective.
func (s *PermissionStore) FindEffective(ctx context.Context, ownerID, requesterID string, now time.Time) (*models.ContactPermission, error) {
	ctx = ensureContext(ctx)

	var permission models.ContactPermission
	if err := s.db.WithContext(ctx).
		Scopes(effectivePermission(now)).
		Where("owner_id = ? AND requester_id = ?", ownerID, requesterID).
		Take(&permission).Error; err != nil {
		return nil, notFoundOr(err, "find effective")
	}
	return &permission, nil
}

// ListForOwner returns rows owned by ownerID newest first, optionally filtered by status.
func (s *PermissionStore) ListForOwner(ctx context.Context, ownerID string, status models.ContactPermissionStatus) ([]models.ContactPermission, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var permissions []models.ContactPermission
	if err := query.Order("created_at DESC").Find(&permissions).Error; err != nil {
		return nil, fmt.Errorf("permission store: list for owner: %w", err)
	}
	return permissions, nil
}

// ListForRequester returns rows requested by requesterID newest first.
func (s *PermissionStore) ListForRequester(ctx context.Context, requesterID string) ([]models.ContactPermission, error) {
	ctx = ensureContext(ctx)

	var permissions []models.ContactPermission
	if err := s.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Find(&permissions).Error; err != nil {
		return nil, fmt.Errorf("permission store: list for requester: %w", err)
	}
	return permissions, nil
}

// DeleteExpired removes approved rows whose expiry is at or before now.
func (s *PermissionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.ContactPermissionApproved, now).
		Delete(&models.ContactPermission{})
	if result.Error != nil {
		return 0, fmt.Errorf("permission store: delete expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrContactPermissionNotFound
	}
	return fmt.Errorf("permission store: %s: %w", op, err)
}
