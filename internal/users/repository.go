// internal/users/repository.go
// Postgres-backed Provider and SafetyProvider

package users

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/jmoiron/sqlx"
    "github.com/lib/pq"
)

type postgresProvider struct {
    db *sqlx.DB
}

// NewPostgresProvider returns a Provider reading from the users and
// user_preferences tables.
func NewPostgresProvider(db *sqlx.DB) Provider {
    return &postgresProvider{db: db}
}

const profileColumns = `
    u.id, u.username, u.email, u.phone, u.age, u.gender, u.latitude, u.longitude,
    u.languages, u.interests, u.religion, u.education_level,
    u.political_view, u.family_plans, u.relationship_intent, u.ethnicity,
    u.exercise, u.smoking, u.drinking, u.is_premium, u.is_active,
    p.preferred_genders, p.preferred_min_age, p.preferred_max_age,
    p.max_distance_km, p.max_radius_km, p.preferred_religions,
    p.preferred_ethnicities, p.preferred_intents, p.preferred_education,
    p.preferred_languages, p.preferred_family_plans`

func scanProfile(rows *sqlx.Rows) (*Profile, error) {
    var pr Profile
    err := rows.Scan(
        &pr.ID, &pr.Username, &pr.Email, &pr.Phone, &pr.Age, &pr.Gender, &pr.Latitude, &pr.Longitude,
        &pr.Languages, &pr.Interests, &pr.Religion, &pr.EducationLevel,
        &pr.PoliticalView, &pr.FamilyPlans, &pr.RelationshipIntent, &pr.Ethnicity,
        &pr.Exercise, &pr.Smoking, &pr.Drinking, &pr.IsPremium, &pr.IsActive,
        &pr.Preferences.PreferredGenders, &pr.Preferences.PreferredMinAge,
        &pr.Preferences.PreferredMaxAge, &pr.Preferences.MaxDistanceKm,
        &pr.Preferences.MaxRadiusKm, &pr.Preferences.PreferredReligions,
        &pr.Preferences.PreferredEthnicities, &pr.Preferences.PreferredIntents,
        &pr.Preferences.PreferredEducation, &pr.Preferences.PreferredLanguages,
        &pr.Preferences.PreferredFamilyPlans,
    )
    if err != nil {
        return nil, err
    }
    return &pr, nil
}

func (r *postgresProvider) Get(ctx context.Context, userID int64) (*Profile, error) {
    query := `
        SELECT ` + profileColumns + `
        FROM users u
        LEFT JOIN user_preferences p ON p.user_id = u.id
        WHERE u.id = $1`

    rows, err := r.db.QueryxContext(ctx, query, userID)
    if err != nil {
        return nil, fmt.Errorf("failed to get user: %w", err)
    }
    defer rows.Close()

    if !rows.Next() {
        if err := rows.Err(); err != nil {
            return nil, fmt.Errorf("failed to get user: %w", err)
        }
        return nil, ErrNotFound
    }
    return scanProfile(rows)
}

func (r *postgresProvider) List(ctx context.Context, userIDs []int64) (map[int64]*Profile, error) {
    if len(userIDs) == 0 {
        return map[int64]*Profile{}, nil
    }

    query := `
        SELECT ` + profileColumns + `
        FROM users u
        LEFT JOIN user_preferences p ON p.user_id = u.id
        WHERE u.id = ANY($1)`

    rows, err := r.db.QueryxContext(ctx, query, pq.Array(userIDs))
    if err != nil {
        return nil, fmt.Errorf("failed to list users: %w", err)
    }
    defer rows.Close()

    result := make(map[int64]*Profile, len(userIDs))
    for rows.Next() {
        pr, err := scanProfile(rows)
        if err != nil {
            return nil, fmt.Errorf("failed to scan user: %w", err)
        }
        result[pr.ID] = pr
    }
    return result, rows.Err()
}

type postgresSafety struct {
    db *sqlx.DB
}

// NewPostgresSafety returns a SafetyProvider reading account status and the
// block table.
func NewPostgresSafety(db *sqlx.DB) SafetyProvider {
    return &postgresSafety{db: db}
}

func (r *postgresSafety) IsActive(ctx context.Context, userID int64) (bool, error) {
    var active bool
    err := r.db.GetContext(ctx, &active,
        `SELECT is_active FROM users WHERE id = $1`, userID)
    if err == sql.ErrNoRows {
        return false, nil
    }
    if err != nil {
        return false, fmt.Errorf("failed to check account status: %w", err)
    }
    return active, nil
}

func (r *postgresSafety) HasBlocked(ctx context.Context, a, b int64) (bool, error) {
    var blocked bool
    err := r.db.GetContext(ctx, &blocked, `
        SELECT EXISTS(
            SELECT 1 FROM user_blocks
            WHERE blocker_id = $1 AND blocked_id = $2
        )`, a, b)
    if err != nil {
        return false, fmt.Errorf("failed to check block: %w", err)
    }
    return blocked, nil
}

func (r *postgresSafety) IsRestricted(ctx context.Context, userID int64) (bool, error) {
    var restricted bool
    err := r.db.GetContext(ctx, &restricted, `
        SELECT EXISTS(
            SELECT 1 FROM moderation_restrictions
            WHERE user_id = $1
              AND restriction_type IN ('matching_ban', 'full_ban')
              AND (expires_at IS NULL OR expires_at > NOW())
        )`, userID)
    if err != nil {
        return false, fmt.Errorf("failed to check restrictions: %w", err)
    }
    return restricted, nil
}
