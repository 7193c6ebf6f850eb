// internal/matchmaking/prefs.go
// Preference resolution: stored base preferences merged with a per-request
// filter override into one effective preference vector.

package matchmaking

import (
    "database/sql/driver"
    "encoding/json"
    "fmt"

    "github.com/lumera-app/match-service/internal/users"
)

// EffectivePreferences is the merged preference vector a queue entry carries.
// Nil / empty collections and nil endpoints mean "no constraint".
type EffectivePreferences struct {
    PreferredGenders []string `json:"preferred_genders,omitempty"`

    PreferredMinAge *int     `json:"preferred_min_age,omitempty"`
    PreferredMaxAge *int     `json:"preferred_max_age,omitempty"`
    MaxDistanceKm   *float64 `json:"max_distance_km,omitempty"`

    PreferredReligions   []string `json:"preferred_religions,omitempty"`
    PreferredEthnicities []string `json:"preferred_ethnicities,omitempty"`
    PreferredIntents     []string `json:"preferred_intents,omitempty"`
    PreferredEducation   []string `json:"preferred_education,omitempty"`
    PreferredLanguages   []string `json:"preferred_languages,omitempty"`
    PreferredFamilyPlans []string `json:"preferred_family_plans,omitempty"`
}

// Stored as JSONB on queue_entries.

func (p EffectivePreferences) Value() (driver.Value, error) {
    return json.Marshal(p)
}

func (p *EffectivePreferences) Scan(value interface{}) error {
    if value == nil {
        *p = EffectivePreferences{}
        return nil
    }
    b, ok := value.([]byte)
    if !ok {
        return fmt.Errorf("unsupported effective prefs type %T", value)
    }
    return json.Unmarshal(b, p)
}

// pickSet applies the collection precedence rule: the override wins iff it is
// non-nil and non-empty, otherwise the base, otherwise unconstrained.
func pickSet(base, override []string) []string {
    if len(override) > 0 {
        return append([]string(nil), override...)
    }
    if len(base) > 0 {
        return append([]string(nil), base...)
    }
    return nil
}

// MergePreferences merges a user's stored preferences with an optional
// per-request filter. Total: never fails. Merging with a nil filter yields
// preferences equivalent to base; a filter setting every field wins on every
// field. Idempotent under re-merge.
func MergePreferences(base users.Preferences, filter *users.Preferences) EffectivePreferences {
    eff := EffectivePreferences{
        PreferredGenders:     pickSet(base.PreferredGenders, nil),
        PreferredReligions:   pickSet(base.PreferredReligions, nil),
        PreferredEthnicities: pickSet(base.PreferredEthnicities, nil),
        PreferredIntents:     pickSet(base.PreferredIntents, nil),
        PreferredEducation:   pickSet(base.PreferredEducation, nil),
        PreferredLanguages:   pickSet(base.PreferredLanguages, nil),
        PreferredFamilyPlans: pickSet(base.PreferredFamilyPlans, nil),
    }

    if filter != nil {
        eff.PreferredGenders = pickSet(eff.PreferredGenders, filter.PreferredGenders)
        eff.PreferredReligions = pickSet(eff.PreferredReligions, filter.PreferredReligions)
        eff.PreferredEthnicities = pickSet(eff.PreferredEthnicities, filter.PreferredEthnicities)
        eff.PreferredIntents = pickSet(eff.PreferredIntents, filter.PreferredIntents)
        eff.PreferredEducation = pickSet(eff.PreferredEducation, filter.PreferredEducation)
        eff.PreferredLanguages = pickSet(eff.PreferredLanguages, filter.PreferredLanguages)
        eff.PreferredFamilyPlans = pickSet(eff.PreferredFamilyPlans, filter.PreferredFamilyPlans)
    }

    // Age range falls back only when both endpoints are present; a lone
    // endpoint on either side does not constrain.
    switch {
    case filter != nil && filter.HasAgeRange():
        eff.PreferredMinAge = intPtr(*filter.PreferredMinAge)
        eff.PreferredMaxAge = intPtr(*filter.PreferredMaxAge)
    case base.HasAgeRange():
        eff.PreferredMinAge = intPtr(*base.PreferredMinAge)
        eff.PreferredMaxAge = intPtr(*base.PreferredMaxAge)
    }

    // Distance precedence: filter, then base max-distance, then the legacy
    // radius alias.
    if filter != nil && filter.EffectiveMaxDistance() != nil {
        eff.MaxDistanceKm = floatPtr(*filter.EffectiveMaxDistance())
    } else if d := base.EffectiveMaxDistance(); d != nil {
        eff.MaxDistanceKm = floatPtr(*d)
    }

    return eff
}

// HasAgeRange reports whether the effective age constraint is active.
func (p *EffectivePreferences) HasAgeRange() bool {
    return p.PreferredMinAge != nil && p.PreferredMaxAge != nil
}

// ContainsAge reports whether age satisfies the range; boundaries are
// inclusive. Unconstrained ranges accept everything.
func (p *EffectivePreferences) ContainsAge(age int) bool {
    if !p.HasAgeRange() {
        return true
    }
    return age >= *p.PreferredMinAge && age <= *p.PreferredMaxAge
}

func setAccepts(set []string, value string) bool {
    if len(set) == 0 {
        return true
    }
    for _, v := range set {
        if v == value {
            return true
        }
    }
    return false
}

// AcceptsGender reports whether gender is allowed by the preferred set.
// An empty set is unconstrained.
func (p *EffectivePreferences) AcceptsGender(gender string) bool {
    return setAccepts(p.PreferredGenders, gender)
}

// AcceptsAttribute checks an optional profile attribute against a preferred
// set. A nil attribute on the profile side only passes an unconstrained set.
func AcceptsAttribute(set []string, attr *string) bool {
    if len(set) == 0 {
        return true
    }
    if attr == nil {
        return false
    }
    return setAccepts(set, *attr)
}

func intPtr(v int) *int            { return &v }
func floatPtr(v float64) *float64  { return &v }
