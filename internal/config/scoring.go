// internal/config/scoring.go
// Scoring weights and compatibility matrices for the match pipeline.
// Loaded once at startup, optionally overridden from a JSON file, and
// hot-swapped atomically so a scoring pass never observes a half-written
// configuration.

package config

import (
    "encoding/json"
    "fmt"
    "math"
    "os"
    "sync/atomic"
)

// CompatibilityMatrix scores a pair of discrete attribute values.
// Lookups are symmetric; missing entries fall back to SameValue when the two
// values are equal and to Default otherwise.
type CompatibilityMatrix struct {
    Values    map[string]map[string]float64 `json:"values,omitempty"`
    SameValue float64                       `json:"same_value"`
    Default   float64                       `json:"default"`
}

// Score returns the compatibility of two attribute values in [0, 1].
func (m CompatibilityMatrix) Score(a, b string) float64 {
    if row, ok := m.Values[a]; ok {
        if v, ok := row[b]; ok {
            return v
        }
    }
    if row, ok := m.Values[b]; ok {
        if v, ok := row[a]; ok {
            return v
        }
    }
    if a == b {
        return m.SameValue
    }
    return m.Default
}

// ScoringConfig holds everything the scorer needs beyond the two profiles.
type ScoringConfig struct {
    // Weights per scoring dimension; must sum to 1.
    Weights map[string]float64 `json:"weights"`

    // Matrices for discrete dimensions keyed by dimension name.
    Matrices map[string]CompatibilityMatrix `json:"matrices"`

    // Ordinal scales used for closeness scoring.
    EducationLevels []string `json:"education_levels"`
    LifestyleLevels []string `json:"lifestyle_levels"`
}

// DefaultScoringConfig returns the built-in scoring configuration.
func DefaultScoringConfig() *ScoringConfig {
    return &ScoringConfig{
        Weights: map[string]float64{
            "age":          0.14,
            "location":     0.14,
            "interest":     0.14,
            "language":     0.05,
            "intent":       0.12,
            "family_plans": 0.08,
            "religion":     0.08,
            "education":    0.06,
            "political":    0.05,
            "lifestyle":    0.06,
            "ethnicity":    0.04,
            "gender":       0.04,
        },
        Matrices: map[string]CompatibilityMatrix{
            "intent": {
                SameValue: 1.0,
                Default:   0.3,
                Values: map[string]map[string]float64{
                    "casual":    {"short_term": 0.7, "long_term": 0.2, "marriage": 0.0, "unsure": 0.5},
                    "short_term": {"long_term": 0.5, "marriage": 0.1, "unsure": 0.5},
                    "long_term":  {"marriage": 0.8, "unsure": 0.5},
                    "marriage":   {"unsure": 0.4},
                },
            },
            "family_plans": {
                SameValue: 1.0,
                Default:   0.4,
                Values: map[string]map[string]float64{
                    "wants_children":   {"maybe": 0.7, "does_not_want": 0.0},
                    "does_not_want":    {"maybe": 0.5, "has_and_wants_more": 0.0},
                    "has_and_wants_more": {"wants_children": 0.9, "maybe": 0.6},
                    "has_and_done":     {"wants_children": 0.2, "does_not_want": 0.8},
                },
            },
            "religion": {
                SameValue: 1.0,
                Default:   0.35,
                Values: map[string]map[string]float64{
                    "agnostic": {"atheist": 0.9, "spiritual": 0.7},
                    "spiritual": {"buddhist": 0.7, "hindu": 0.6},
                },
            },
            "political": {
                SameValue: 1.0,
                Default:   0.3,
                Values: map[string]map[string]float64{
                    "moderate": {"liberal": 0.7, "conservative": 0.7, "apolitical": 0.8},
                    "apolitical": {"liberal": 0.6, "conservative": 0.6},
                },
            },
            "ethnicity": {
                SameValue: 1.0,
                Default:   0.8,
            },
        },
        EducationLevels: []string{"high_school", "vocational", "bachelors", "masters", "doctorate"},
        LifestyleLevels: []string{"never", "rarely", "sometimes", "often", "daily"},
    }
}

// Validate checks the configuration is internally consistent.
func (c *ScoringConfig) Validate() error {
    if len(c.Weights) == 0 {
        return fmt.Errorf("scoring weights are required")
    }

    sum := 0.0
    for dim, w := range c.Weights {
        if w < 0 {
            return fmt.Errorf("weight for %s must be non-negative", dim)
        }
        sum += w
    }
    if math.Abs(sum-1.0) > 1e-6 {
        return fmt.Errorf("scoring weights must sum to 1, got %.4f", sum)
    }

    for name, m := range c.Matrices {
        for _, row := range m.Values {
            for _, v := range row {
                if v < 0 || v > 1 {
                    return fmt.Errorf("matrix %s contains score outside [0, 1]", name)
                }
            }
        }
    }

    if len(c.EducationLevels) < 2 || len(c.LifestyleLevels) < 2 {
        return fmt.Errorf("ordinal scales need at least two levels")
    }

    return nil
}

// LoadScoringConfig reads a JSON override file on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadScoringConfig(path string) (*ScoringConfig, error) {
    cfg := DefaultScoringConfig()
    if path == "" {
        return cfg, nil
    }

    data, err := os.ReadFile(path)
    if err != nil {
        return nil, fmt.Errorf("failed to read scoring config: %w", err)
    }

    if err := json.Unmarshal(data, cfg); err != nil {
        return nil, fmt.Errorf("failed to parse scoring config: %w", err)
    }

    if err := cfg.Validate(); err != nil {
        return nil, err
    }

    return cfg, nil
}

// ScoringStore hands out consistent scoring config snapshots and supports
// atomic replacement on reload (SIGHUP in main).
type ScoringStore struct {
    v atomic.Value
}

// NewScoringStore creates a store seeded with cfg.
func NewScoringStore(cfg *ScoringConfig) *ScoringStore {
    s := &ScoringStore{}
    s.v.Store(cfg)
    return s
}

// Snapshot returns the current configuration. Callers must treat it as
// read-only and hold on to the same snapshot for the duration of one
// scoring pass.
func (s *ScoringStore) Snapshot() *ScoringConfig {
    return s.v.Load().(*ScoringConfig)
}

// Swap atomically replaces the configuration.
func (s *ScoringStore) Swap(cfg *ScoringConfig) {
    s.v.Store(cfg)
}
