// internal/matchmaking/scorer.go
// Compatibility scoring: hard eligibility filters followed by a weighted
// multi-factor score. Component scoring is a pure function of the two
// profiles, their effective preferences and one scoring-config snapshot.

package matchmaking

import (
    "context"
    "math"

    "github.com/lumera-app/match-service/internal/config"
    "github.com/lumera-app/match-service/internal/users"
)

const kmPerDegree = 111.0

// Fallback age span used for the age component when neither side constrains
// the range.
const defaultAgeSpan = 15.0

// neutralScore is used for components where one side carries no signal.
const neutralScore = 0.5

// ScoreResult is the scorer's verdict on one ordered pair.
type ScoreResult struct {
    Total      float64         `json:"total"`
    Components ComponentScores `json:"components"`
    Eligible   bool            `json:"eligible"`
    // Reasons lists each eligibility filter with its outcome, for auditing
    // and the "why did we match" surface.
    Reasons []string `json:"reasons"`
}

// AttemptChecker answers whether a user is in a non-terminal match attempt.
// Implemented by the attempt repository.
type AttemptChecker interface {
    HasActiveAttempt(ctx context.Context, userID int64) (bool, error)
}

// Scorer evaluates candidate pairs.
type Scorer struct {
    scoring  *config.ScoringStore
    safety   users.SafetyProvider
    attempts AttemptChecker
    cooldown CooldownStore

    premiumBonusCap  float64
    interestMinCount int
}

// NewScorer wires the scorer with its collaborators.
func NewScorer(scoring *config.ScoringStore, safety users.SafetyProvider, attempts AttemptChecker, cooldown CooldownStore, premiumBonusCap float64, interestMinCount int) *Scorer {
    return &Scorer{
        scoring:          scoring,
        safety:           safety,
        attempts:         attempts,
        cooldown:         cooldown,
        premiumBonusCap:  premiumBonusCap,
        interestMinCount: interestMinCount,
    }
}

// Score runs eligibility and, if the pair passes, computes component scores.
// Components and total are returned even for low-scoring pairs; callers
// apply their own threshold.
func (s *Scorer) Score(ctx context.Context, a, b *users.Profile, prefsA, prefsB EffectivePreferences) (*ScoreResult, error) {
    result := &ScoreResult{}

    eligible, reasons, err := s.checkEligibility(ctx, a, b, prefsA, prefsB)
    if err != nil {
        return nil, err
    }
    result.Reasons = reasons
    result.Eligible = eligible
    if !eligible {
        return result, nil
    }

    cfg := s.scoring.Snapshot()
    result.Components = scoreComponents(cfg, a, b, prefsA, prefsB, s.interestMinCount)
    result.Total = weightedTotal(cfg, result.Components, a, b, s.premiumBonusCap)
    return result, nil
}

func reason(name string, passed bool) string {
    if passed {
        return name + ": ok"
    }
    return name + ": failed"
}

// checkEligibility applies the hard filters. The first I/O error aborts;
// a false verdict still carries the full reasons trail gathered so far.
func (s *Scorer) checkEligibility(ctx context.Context, a, b *users.Profile, prefsA, prefsB EffectivePreferences) (bool, []string, error) {
    var reasons []string
    fail := func(name string) (bool, []string, error) {
        reasons = append(reasons, reason(name, false))
        return false, reasons, nil
    }
    pass := func(name string) {
        reasons = append(reasons, reason(name, true))
    }

    if a.ID == b.ID {
        return fail("distinct_users")
    }
    pass("distinct_users")

    for _, p := range []*users.Profile{a, b} {
        active, err := s.safety.IsActive(ctx, p.ID)
        if err != nil {
            return false, reasons, err
        }
        if !active {
            return fail("both_active")
        }
    }
    pass("both_active")

    for _, pair := range [][2]int64{{a.ID, b.ID}, {b.ID, a.ID}} {
        blocked, err := s.safety.HasBlocked(ctx, pair[0], pair[1])
        if err != nil {
            return false, reasons, err
        }
        if blocked {
            return fail("not_blocked")
        }
    }
    pass("not_blocked")

    // Boundaries are inclusive: age exactly at the preferred max passes.
    if !prefsA.ContainsAge(b.Age) || !prefsB.ContainsAge(a.Age) {
        return fail("age_range")
    }
    pass("age_range")

    if !prefsA.AcceptsGender(b.Gender) || !prefsB.AcceptsGender(a.Gender) {
        return fail("gender_preference")
    }
    pass("gender_preference")

    if !attributePrefsSatisfied(prefsA, b) || !attributePrefsSatisfied(prefsB, a) {
        return fail("attribute_preferences")
    }
    pass("attribute_preferences")

    if !withinDistance(a, b, prefsA.MaxDistanceKm) || !withinDistance(b, a, prefsB.MaxDistanceKm) {
        return fail("distance")
    }
    pass("distance")

    for _, id := range []int64{a.ID, b.ID} {
        ongoing, err := s.attempts.HasActiveAttempt(ctx, id)
        if err != nil {
            return false, reasons, err
        }
        if ongoing {
            return fail("no_ongoing_attempt")
        }
    }
    pass("no_ongoing_attempt")

    cooling, err := s.cooldown.Active(ctx, a.ID, b.ID)
    if err != nil {
        return false, reasons, err
    }
    if cooling {
        return fail("cooldown_elapsed")
    }
    pass("cooldown_elapsed")

    return true, reasons, nil
}

// attributePrefsSatisfied checks the discrete preferred sets (religion,
// ethnicity, intent, education, family plans, languages) of one side against
// the other profile. Empty sets are unconstrained.
func attributePrefsSatisfied(prefs EffectivePreferences, other *users.Profile) bool {
    if !AcceptsAttribute(prefs.PreferredReligions, other.Religion) {
        return false
    }
    if !AcceptsAttribute(prefs.PreferredEthnicities, other.Ethnicity) {
        return false
    }
    if !AcceptsAttribute(prefs.PreferredIntents, other.RelationshipIntent) {
        return false
    }
    if !AcceptsAttribute(prefs.PreferredEducation, other.EducationLevel) {
        return false
    }
    if !AcceptsAttribute(prefs.PreferredFamilyPlans, other.FamilyPlans) {
        return false
    }
    if len(prefs.PreferredLanguages) > 0 {
        if !intersects(prefs.PreferredLanguages, other.Languages) {
            return false
        }
    }
    return true
}

// withinDistance checks one side's distance constraint; inclusive at the
// boundary. No constraint or missing coordinates pass.
func withinDistance(from, to *users.Profile, maxKm *float64) bool {
    if maxKm == nil {
        return true
    }
    if from.Latitude == nil || from.Longitude == nil || to.Latitude == nil || to.Longitude == nil {
        return true
    }
    d := haversineDistance(*from.Latitude, *from.Longitude, *to.Latitude, *to.Longitude)
    return d <= *maxKm
}

// haversineDistance returns the great-circle distance in kilometers.
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
    const earthRadiusKm = 6371.0

    dLat := (lat2 - lat1) * math.Pi / 180
    dLon := (lon2 - lon1) * math.Pi / 180

    a := math.Sin(dLat/2)*math.Sin(dLat/2) +
        math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
            math.Sin(dLon/2)*math.Sin(dLon/2)

    return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func clamp01(v float64) float64 {
    return math.Max(0, math.Min(1, v))
}

// scoreComponents computes every scoring dimension in [0, 1]. Pure.
func scoreComponents(cfg *config.ScoringConfig, a, b *users.Profile, prefsA, prefsB EffectivePreferences, interestMinCount int) ComponentScores {
    c := ComponentScores{}

    c["age"] = ageScore(a.Age, b.Age, prefsA, prefsB)
    c["location"] = locationScore(a, b, prefsA, prefsB)
    c["interest"] = interestScore(a.Interests, b.Interests, interestMinCount)
    c["language"] = languageScore(a.Languages, b.Languages)
    c["intent"] = matrixScore(cfg, "intent", a.RelationshipIntent, b.RelationshipIntent, neutralScore)
    c["family_plans"] = matrixScore(cfg, "family_plans", a.FamilyPlans, b.FamilyPlans, neutralScore)
    // Religion and ethnicity treat a missing value as "no preference",
    // scoring 1 rather than neutral.
    c["religion"] = matrixScore(cfg, "religion", a.Religion, b.Religion, 1)
    c["education"] = ordinalScore(cfg.EducationLevels, a.EducationLevel, b.EducationLevel)
    c["political"] = matrixScore(cfg, "political", a.PoliticalView, b.PoliticalView, neutralScore)
    c["lifestyle"] = lifestyleScore(cfg.LifestyleLevels, a, b)
    c["ethnicity"] = matrixScore(cfg, "ethnicity", a.Ethnicity, b.Ethnicity, 1)
    // Mutual gender acceptance is an eligibility precondition here.
    c["gender"] = 1

    return c
}

// weightedTotal folds the components with the configured weights and applies
// the capped premium bonus, clamped so the total stays within [0, 1].
func weightedTotal(cfg *config.ScoringConfig, components ComponentScores, a, b *users.Profile, bonusCap float64) float64 {
    total := 0.0
    for dim, w := range cfg.Weights {
        total += w * components[dim]
    }

    premiums := 0.0
    if a.IsPremium {
        premiums++
    }
    if b.IsPremium {
        premiums++
    }
    total += bonusCap * premiums / 2

    return clamp01(total)
}

func ageScore(ageA, ageB int, prefsA, prefsB EffectivePreferences) float64 {
    span := defaultAgeSpan
    if prefsA.HasAgeRange() {
        span = math.Max(span, float64(*prefsA.PreferredMaxAge-*prefsA.PreferredMinAge))
    }
    if prefsB.HasAgeRange() {
        span = math.Max(span, float64(*prefsB.PreferredMaxAge-*prefsB.PreferredMinAge))
    }
    if span <= 0 {
        span = 1
    }
    diff := math.Abs(float64(ageA - ageB))
    return clamp01(1 - diff/span)
}

func locationScore(a, b *users.Profile, prefsA, prefsB EffectivePreferences) float64 {
    if prefsA.MaxDistanceKm == nil || prefsB.MaxDistanceKm == nil {
        return 1
    }
    if a.Latitude == nil || a.Longitude == nil || b.Latitude == nil || b.Longitude == nil {
        return 1
    }
    maxDist := math.Min(*prefsA.MaxDistanceKm, *prefsB.MaxDistanceKm)
    if maxDist <= 0 {
        return 1
    }
    d := haversineDistance(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
    return clamp01(1 - d/maxDist)
}

func interestScore(a, b []string, minCount int) float64 {
    if len(a) < minCount || len(b) < minCount {
        return neutralScore
    }
    setA := make(map[string]struct{}, len(a))
    for _, v := range a {
        setA[v] = struct{}{}
    }
    inter := 0
    setB := make(map[string]struct{}, len(b))
    for _, v := range b {
        if _, dup := setB[v]; dup {
            continue
        }
        setB[v] = struct{}{}
        if _, ok := setA[v]; ok {
            inter++
        }
    }
    union := len(setA) + len(setB) - inter
    if union == 0 {
        return 0
    }
    return float64(inter) / float64(union)
}

func intersects(a, b []string) bool {
    set := make(map[string]struct{}, len(a))
    for _, v := range a {
        set[v] = struct{}{}
    }
    for _, v := range b {
        if _, ok := set[v]; ok {
            return true
        }
    }
    return false
}

func languageScore(a, b []string) float64 {
    if len(a) == 0 || len(b) == 0 {
        return neutralScore
    }
    if intersects(a, b) {
        return 1
    }
    return 0
}

func matrixScore(cfg *config.ScoringConfig, dimension string, a, b *string, missing float64) float64 {
    if a == nil || b == nil {
        return missing
    }
    m, ok := cfg.Matrices[dimension]
    if !ok {
        return neutralScore
    }
    return m.Score(*a, *b)
}

func ordinalScore(levels []string, a, b *string) float64 {
    if a == nil || b == nil {
        return neutralScore
    }
    ia, ib := ordinalIndex(levels, *a), ordinalIndex(levels, *b)
    if ia < 0 || ib < 0 {
        return neutralScore
    }
    span := float64(len(levels) - 1)
    if span <= 0 {
        return 1
    }
    return clamp01(1 - math.Abs(float64(ia-ib))/span)
}

func ordinalIndex(levels []string, v string) int {
    for i, l := range levels {
        if l == v {
            return i
        }
    }
    return -1
}

func lifestyleScore(levels []string, a, b *users.Profile) float64 {
    habits := [][2]*string{
        {a.Exercise, b.Exercise},
        {a.Smoking, b.Smoking},
        {a.Drinking, b.Drinking},
    }
    sum, n := 0.0, 0
    for _, h := range habits {
        if h[0] == nil || h[1] == nil {
            continue
        }
        sum += ordinalScore(levels, h[0], h[1])
        n++
    }
    if n == 0 {
        return neutralScore
    }
    return sum / float64(n)
}
