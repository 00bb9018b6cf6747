// Package models contains domain models for reflectra.
package models

import "errors"

var (
	// ErrCategoryNotFound is returned when a category id or name does not resolve.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrDuplicateCategory is returned when a category name is already taken.
	ErrDuplicateCategory = errors.New("category name already exists")
	// ErrProtectedCategory is returned when deleting the fallback category.
	ErrProtectedCategory = errors.New("category is protected")

	ErrInvalidWellnessType = errors.New("invalid wellness type")
)

// WellnessType is the coarse effect of a category on well-being.
type WellnessType string

const (
	WellnessProductive WellnessType = "productive"
	WellnessGrowth     WellnessType = "growth"
	WellnessRest       WellnessType = "rest"
	WellnessSocial     WellnessType = "social"
	WellnessDrain      WellnessType = "drain"
	WellnessUnknown    WellnessType = "unknown"
)

// WellnessTypes lists every valid wellness type.
var WellnessTypes = []WellnessType{
	WellnessProductive, WellnessGrowth, WellnessRest,
	WellnessSocial, WellnessDrain, WellnessUnknown,
}

// Valid reports whether t is one of the fixed wellness types.
func (t WellnessType) Valid() bool {
	for _, v := range WellnessTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Seed category names.
const (
	CategoryFocusedWork      = "Focused Work"
	CategoryLearning         = "Learning"
	CategoryResearch         = "Research"
	CategorySocialConnection = "Social Connection"
	CategoryRelaxation       = "Relaxation"
	CategoryMindlessScroll   = "Mindless Scroll"
	CategoryCommunication    = "Communication"
	CategoryUncategorized    = "Uncategorized"
)

// Category is a named wellness classification.
type Category struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Color        string       `json:"color"`
	WellnessType WellnessType `json:"wellness_type"`
}

// SeedCategories is the fixed set that must exist at all times.
// Order matches the classifier taxonomy.
var SeedCategories = []Category{
	{Name: CategoryFocusedWork, Description: "Deep work, coding, writing, professional tasks", Color: "#4CAF50", WellnessType: WellnessProductive},
	{Name: CategoryLearning, Description: "Educational content, tutorials, courses, documentation", Color: "#2196F3", WellnessType: WellnessGrowth},
	{Name: CategoryResearch, Description: "Information gathering, reading articles, exploration", Color: "#9C27B0", WellnessType: WellnessGrowth},
	{Name: CategorySocialConnection, Description: "Social media, messaging, community engagement", Color: "#FF9800", WellnessType: WellnessSocial},
	{Name: CategoryRelaxation, Description: "Entertainment, videos, music, leisure browsing", Color: "#00BCD4", WellnessType: WellnessRest},
	{Name: CategoryMindlessScroll, Description: "Unfocused browsing, excessive social media", Color: "#F44336", WellnessType: WellnessDrain},
	{Name: CategoryCommunication, Description: "Email, chat, professional communication", Color: "#607D8B", WellnessType: WellnessProductive},
	{Name: CategoryUncategorized, Description: "Not yet categorized", Color: "#9E9E9E", WellnessType: WellnessUnknown},
}

// CategoryUpdate carries the fields of an administrative category edit.
// Nil fields are left unchanged.
type CategoryUpdate struct {
	Name         *string       `json:"name,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Color        *string       `json:"color,omitempty"`
	WellnessType *WellnessType `json:"wellness_type,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u CategoryUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Color == nil && u.WellnessType == nil
}
