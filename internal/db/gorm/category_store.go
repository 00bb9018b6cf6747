// Package gorm provides GORM-based database operations for reflectra.
package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/reflectra/pkg/models"
)

// CategoryStore provides category-related database operations using GORM.
type CategoryStore struct {
	db *gorm.DB
}

// NewCategoryStore creates a new category store.
func NewCategoryStore(store *Store) *CategoryStore {
	return &CategoryStore{db: store.DB}
}

// List returns all categories ordered by name.
func (s *CategoryStore) List(ctx context.Context) ([]*models.Category, error) {
	var rows []Category
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Category, 0, len(rows))
	for i := range rows {
		out = append(out, toModelCategory(&rows[i]))
	}
	return out, nil
}

// GetByID retrieves a category by ID. Returns nil, nil when absent.
func (s *CategoryStore) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	var row Category
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelCategory(&row), nil
}

// FindByName retrieves a category by exact name. Returns nil, nil when absent.
func (s *CategoryStore) FindByName(ctx context.Context, name string) (*models.Category, error) {
	var row Category
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelCategory(&row), nil
}

// Create stores a new category. Names are unique.
func (s *CategoryStore) Create(ctx context.Context, c *models.Category) (*models.Category, error) {
	if c.WellnessType != "" && !c.WellnessType.Valid() {
		return nil, fmt.Errorf("%w %q", models.ErrInvalidWellnessType, c.WellnessType)
	}
	existing, err := s.FindByName(ctx, c.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrDuplicateCategory
	}

	row := &Category{
		Name:         c.Name,
		Description:  nullString(c.Description),
		Color:        nullString(c.Color),
		WellnessType: c.WellnessType,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return toModelCategory(row), nil
}

// Update applies an administrative edit. Returns ErrCategoryNotFound when absent.
// The fallback category keeps its name.
func (s *CategoryStore) Update(ctx context.Context, id int64, upd models.CategoryUpdate) (*models.Category, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, models.ErrCategoryNotFound
	}

	fields := make(map[string]any, 4)
	if upd.Name != nil && *upd.Name != current.Name {
		if current.Name == models.CategoryUncategorized {
			return nil, models.ErrProtectedCategory
		}
		existing, err := s.FindByName(ctx, *upd.Name)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != id {
			return nil, models.ErrDuplicateCategory
		}
		fields["name"] = *upd.Name
	}
	if upd.Description != nil {
		fields["description"] = nullString(*upd.Description)
	}
	if upd.Color != nil {
		fields["color"] = nullString(*upd.Color)
	}
	if upd.WellnessType != nil {
		if !upd.WellnessType.Valid() {
			return nil, fmt.Errorf("%w %q", models.ErrInvalidWellnessType, *upd.WellnessType)
		}
		fields["wellness_type"] = *upd.WellnessType
	}

	if len(fields) > 0 {
		res := s.db.WithContext(ctx).Model(&Category{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
	}
	cat, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, models.ErrCategoryNotFound
	}
	return cat, nil
}

// Delete removes a category. Sessions referencing it fall back to uncategorized
// within the same transaction. The fallback category cannot be deleted.
func (s *CategoryStore) Delete(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Category
		err := tx.First(&row, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrCategoryNotFound
		}
		if err != nil {
			return err
		}
		if row.Name == models.CategoryUncategorized {
			return models.ErrProtectedCategory
		}

		if err := tx.Model(&Session{}).
			Where("category_id = ?", id).
			Update("category_id", nil).Error; err != nil {
			return fmt.Errorf("orphan sessions: %w", err)
		}
		return tx.Delete(&Category{}, id).Error
	})
}
