// internal/users/models.go
// Profile and preference models consumed by the match pipeline

package users

import (
    "github.com/lib/pq"
)

// Profile carries the slice of a user the match pipeline needs.
// It is read-only here; profile editing lives in another service.
type Profile struct {
    ID       int64   `json:"id" db:"id"`
    Username string  `json:"username" db:"username"`
    Email    *string `json:"email,omitempty" db:"email"`
    Phone    *string `json:"phone,omitempty" db:"phone"`

    Age       int      `json:"age" db:"age"`
    Gender    string   `json:"gender" db:"gender"`
    Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
    Longitude *float64 `json:"longitude,omitempty" db:"longitude"`

    Languages pq.StringArray `json:"languages" db:"languages"`
    Interests pq.StringArray `json:"interests" db:"interests"`

    Religion           *string `json:"religion,omitempty" db:"religion"`
    EducationLevel     *string `json:"education_level,omitempty" db:"education_level"`
    PoliticalView      *string `json:"political_view,omitempty" db:"political_view"`
    FamilyPlans        *string `json:"family_plans,omitempty" db:"family_plans"`
    RelationshipIntent *string `json:"relationship_intent,omitempty" db:"relationship_intent"`
    Ethnicity          *string `json:"ethnicity,omitempty" db:"ethnicity"`

    // Lifestyle habits, each one of the configured ordinal levels.
    Exercise *string `json:"exercise,omitempty" db:"exercise"`
    Smoking  *string `json:"smoking,omitempty" db:"smoking"`
    Drinking *string `json:"drinking,omitempty" db:"drinking"`

    IsPremium bool `json:"is_premium" db:"is_premium"`
    IsActive  bool `json:"is_active" db:"is_active"`

    Preferences Preferences `json:"preferences"`
}

// Preferences is a user's stored matching preferences. Nil / empty fields
// mean "no constraint". The same shape doubles as the per-request filter
// override on joinQueue.
type Preferences struct {
    PreferredGenders pq.StringArray `json:"preferred_genders,omitempty" db:"preferred_genders"`

    PreferredMinAge *int     `json:"preferred_min_age,omitempty" db:"preferred_min_age"`
    PreferredMaxAge *int     `json:"preferred_max_age,omitempty" db:"preferred_max_age"`
    MaxDistanceKm   *float64 `json:"max_distance_km,omitempty" db:"max_distance_km"`
    // Legacy alias kept for rows written by the old mobile clients.
    MaxRadiusKm *float64 `json:"max_radius_km,omitempty" db:"max_radius_km"`

    PreferredReligions   pq.StringArray `json:"preferred_religions,omitempty" db:"preferred_religions"`
    PreferredEthnicities pq.StringArray `json:"preferred_ethnicities,omitempty" db:"preferred_ethnicities"`
    PreferredIntents     pq.StringArray `json:"preferred_intents,omitempty" db:"preferred_intents"`
    PreferredEducation   pq.StringArray `json:"preferred_education,omitempty" db:"preferred_education"`
    PreferredLanguages   pq.StringArray `json:"preferred_languages,omitempty" db:"preferred_languages"`
    PreferredFamilyPlans pq.StringArray `json:"preferred_family_plans,omitempty" db:"preferred_family_plans"`
}

// HasAgeRange reports whether both endpoints of the age range are set.
func (p *Preferences) HasAgeRange() bool {
    return p.PreferredMinAge != nil && p.PreferredMaxAge != nil
}

// EffectiveMaxDistance resolves the max-distance constraint, honoring the
// legacy radius alias. Returns nil when unconstrained.
func (p *Preferences) EffectiveMaxDistance() *float64 {
    if p.MaxDistanceKm != nil {
        return p.MaxDistanceKm
    }
    return p.MaxRadiusKm
}
