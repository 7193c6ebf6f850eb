// cmd/api/main.go
// Match pipeline service entrypoint

package main

import (
    "context"
    "fmt"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/go-redis/redis/v8"
    "github.com/gorilla/mux"
    "github.com/jmoiron/sqlx"
    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/lumera-app/match-service/internal/auth"
    "github.com/lumera-app/match-service/internal/common/database"
    "github.com/lumera-app/match-service/internal/config"
    "github.com/lumera-app/match-service/internal/conversations"
    "github.com/lumera-app/match-service/internal/matchmaking"
    "github.com/lumera-app/match-service/internal/notify"
    "github.com/lumera-app/match-service/internal/users"
)

func main() {
    log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

    log.Println("========================================")
    log.Println("🚀 Starting Lumera Match Service")
    log.Println("========================================")

    // 1. Environment + configuration
    if err := godotenv.Load(); err != nil {
        log.Printf("⚠️  No .env file found (%v), using environment variables", err)
    }
    cfg := config.Load()
    if err := cfg.Validate(); err != nil {
        log.Fatal("❌ Configuration validation failed: ", err)
    }
    log.Println("✅ Configuration loaded")

    // 2. Scoring configuration (reloadable on SIGHUP)
    scoringCfg, err := config.LoadScoringConfig(cfg.ScoringConfigPath)
    if err != nil {
        log.Fatal("❌ Failed to load scoring configuration: ", err)
    }
    scoringStore := config.NewScoringStore(scoringCfg)
    go watchScoringReload(scoringStore, cfg.ScoringConfigPath)
    log.Println("✅ Scoring configuration loaded")

    // 3. PostgreSQL
    db, err := database.NewPostgresDB(cfg.DatabaseURL)
    if err != nil {
        log.Fatal("❌ Failed to connect to PostgreSQL: ", err)
    }
    defer db.Close()
    if err := runMigrations(db); err != nil {
        log.Fatal("❌ Failed to run migrations: ", err)
    }
    log.Println("✅ Connected to PostgreSQL, migrations applied")

    // 4. Redis (optional; cool-down falls back to memory without it)
    var redisClient *redis.Client
    if cfg.RedisURL != "" {
        redisClient, err = database.NewRedisClient(cfg.RedisURL)
        if err != nil {
            log.Printf("⚠️  Redis unavailable (%v), using in-memory cool-down store", err)
            redisClient = nil
        } else {
            defer redisClient.Close()
            log.Println("✅ Connected to Redis")
        }
    }

    var cooldown matchmaking.CooldownStore
    if redisClient != nil {
        cooldown = matchmaking.NewRedisCooldown(redisClient, cfg.CooldownPerPair)
    } else {
        cooldown = matchmaking.NewMemoryCooldown(cfg.CooldownPerPair)
    }

    // 5. Collaborators
    provider := users.NewCachedProvider(users.NewPostgresProvider(db), cfg.ProfileCacheTTL)
    safety := users.NewPostgresSafety(db)
    conversationSvc := conversations.NewPostgresService(db)

    hub := notify.NewHub()
    notifyRepo := notify.NewPostgresRepository(db)
    notifier := notify.NewService(notifyRepo, hub,
        buildPushSender(cfg), buildEmailSender(cfg), buildSMSSender(cfg),
        provider, notify.ChannelConfig{
            EnablePush:  cfg.EnablePushNotifications,
            EnableEmail: cfg.EnableEmailNotifications,
            EnableSMS:   cfg.EnableSMSNotifications,
        })

    // 6. Match pipeline
    repo := matchmaking.NewPostgresRepository(db)
    pool := matchmaking.NewPool(repo, cfg.GeoCellSizeKm, cfg.TombstoneTTL)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    if err := pool.Load(ctx, provider); err != nil {
        log.Fatal("❌ Failed to restore candidate pool: ", err)
    }

    pending := matchmaking.NewPendingMatchManager(repo, pool, notifier, conversationSvc, cooldown,
        matchmaking.PendingConfig{
            ProposalTTL:            cfg.ProposalTTL,
            RejoinPolicy:           cfg.RejoinPolicy,
            MaterializeMaxAttempts: cfg.MaterializeMaxAttempts,
            MaterializeBackoff:     cfg.MaterializeBackoff,
            DependencyTimeout:      cfg.DependencyTimeout,
        })

    scorer := matchmaking.NewScorer(scoringStore, safety, repo, cooldown,
        cfg.PremiumBonusCap, cfg.InterestMinCount)

    matcher := matchmaking.NewMatcher(pool, scorer, pending, provider,
        matchmaking.MatcherConfig{
            TickInterval:      cfg.MatcherTickInterval,
            SnapshotSize:      cfg.MatcherSnapshotSize,
            CandidateCap:      cfg.MatcherCandidateCap,
            MinScoreThreshold: cfg.MinScoreThreshold,
            Shards:            cfg.MatcherShards,
            MaxInflight:       cfg.MaxInflightProposals,
            RelaxAfterRounds:  cfg.RelaxAfterRounds,
            RelaxStep:         cfg.RelaxStep,
            RelaxFloor:        cfg.RelaxFloor,
        })
    go matcher.Run(ctx)

    scheduler := matchmaking.NewScheduler(repo, pool, pending,
        cfg.ExpirySweepInterval, cfg.AuditRetention)
    scheduler.Start(ctx)
    log.Println("✅ Match pipeline running")

    // 7. HTTP surface
    matchService := matchmaking.NewService(provider, safety, pool, pending, repo, cfg.MatcherTickInterval)

    router := mux.NewRouter()
    router.Use(loggingMiddleware)

    authMiddleware := auth.NewMiddleware(cfg.JWTSecret)
    matchmaking.RegisterRoutes(router, matchmaking.NewHandler(matchService),
        authMiddleware.Authenticate, cfg.AdminToken)
    notify.RegisterRoutes(router, notify.NewHandler(notifier), hub,
        authMiddleware.Authenticate)

    router.Handle("/metrics", promhttp.Handler()).Methods("GET")
    router.HandleFunc("/health", healthCheck).Methods("GET")
    router.HandleFunc("/", apiInfo).Methods("GET")

    srv := &http.Server{
        Addr:         ":" + cfg.Port,
        Handler:      router,
        ReadTimeout:  15 * time.Second,
        WriteTimeout: 15 * time.Second,
        IdleTimeout:  60 * time.Second,
    }

    go func() {
        log.Printf("🌐 Listening on port %s", cfg.Port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal("❌ Server failed: ", err)
        }
    }()

    // 8. Graceful shutdown
    quit := make(chan os.Signal, 1)
    signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
    <-quit
    log.Println("⚠️  Shutdown signal received...")

    cancel()
    shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer shutdownCancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Printf("❌ Server shutdown error: %v", err)
    }
    log.Println("👋 Server stopped")
}

// watchScoringReload re-reads the scoring file on SIGHUP and swaps it in
// atomically. Invalid files keep the running configuration.
func watchScoringReload(store *config.ScoringStore, path string) {
    if path == "" {
        return
    }
    hup := make(chan os.Signal, 1)
    signal.Notify(hup, syscall.SIGHUP)
    for range hup {
        cfg, err := config.LoadScoringConfig(path)
        if err != nil {
            log.Printf("⚠️  Scoring config reload failed: %v", err)
            continue
        }
        store.Swap(cfg)
        log.Println("✅ Scoring configuration reloaded")
    }
}

func buildPushSender(cfg *config.Config) notify.PushSender {
    if !cfg.EnablePushNotifications {
        return nil
    }
    sender, err := notify.NewFCMPushSender(context.Background(), cfg.FCMCredentialsPath)
    if err != nil {
        log.Printf("⚠️  FCM unavailable (%v), using mock push sender", err)
        return notify.NewMockPushSender()
    }
    log.Println("✅ FCM push sender initialized")
    return sender
}

func buildEmailSender(cfg *config.Config) notify.EmailSender {
    if !cfg.EnableEmailNotifications {
        return nil
    }
    if cfg.SendGridAPIKey == "" {
        log.Println("⚠️  SendGrid not configured, using mock email sender")
        return notify.NewMockEmailSender()
    }
    log.Println("✅ SendGrid email sender initialized")
    return notify.NewSendGridEmailSender(cfg.SendGridAPIKey, cfg.EmailFrom)
}

func buildSMSSender(cfg *config.Config) notify.SMSSender {
    if !cfg.EnableSMSNotifications {
        return nil
    }
    if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
        log.Println("⚠️  Twilio not configured, using mock SMS sender")
        return notify.NewMockSMSSender()
    }
    log.Println("✅ Twilio SMS sender initialized")
    return notify.NewTwilioSMSSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "application/json")
    fmt.Fprintf(w, `{"status":"healthy","time":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func apiInfo(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "application/json")
    fmt.Fprint(w, `{
        "name": "Lumera Match Service",
        "version": "1.0.0",
        "endpoints": {
            "health": "GET /health",
            "metrics": "GET /metrics",
            "join_queue": "POST /api/v1/match/queue",
            "leave_queue": "DELETE /api/v1/match/queue",
            "queue_status": "GET /api/v1/match/queue",
            "pending_matches": "GET /api/v1/match/pending",
            "accept": "POST /api/v1/match/attempts/{id}/accept",
            "decline": "POST /api/v1/match/attempts/{id}/decline",
            "notifications": "GET /api/v1/notifications",
            "events": "GET /ws"
        }
    }`)
}

func loggingMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        log.Printf("%s %s %s", r.Method, r.RequestURI, time.Since(start))
    })
}

// runMigrations creates the service's tables and indexes.
func runMigrations(db *sqlx.DB) error {
    migrations := []string{
        `CREATE TABLE IF NOT EXISTS queue_entries (
            user_id BIGINT PRIMARY KEY,
            joined_at TIMESTAMPTZ NOT NULL,
            effective_prefs JSONB NOT NULL DEFAULT '{}',
            status VARCHAR(20) NOT NULL DEFAULT 'WAITING'
        )`,
        `CREATE INDEX IF NOT EXISTS idx_queue_entries_status_joined
            ON queue_entries(status, joined_at)`,

        `CREATE TABLE IF NOT EXISTS match_attempts (
            id UUID PRIMARY KEY,
            user1_id BIGINT NOT NULL,
            user2_id BIGINT NOT NULL,
            score DOUBLE PRECISION NOT NULL,
            components JSONB NOT NULL DEFAULT '{}',
            state VARCHAR(30) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL,
            accepted_by BIGINT[] NOT NULL DEFAULT '{}',
            declined_by BIGINT[] NOT NULL DEFAULT '{}',
            chat_room_id UUID,
            materialize_attempts INT NOT NULL DEFAULT 0,
            updated_at TIMESTAMPTZ NOT NULL,
            CHECK (user1_id <> user2_id)
        )`,
        `CREATE INDEX IF NOT EXISTS idx_match_attempts_user1_state
            ON match_attempts(user1_id, state)`,
        `CREATE INDEX IF NOT EXISTS idx_match_attempts_user2_state
            ON match_attempts(user2_id, state)`,
        `CREATE INDEX IF NOT EXISTS idx_match_attempts_state_expires
            ON match_attempts(state, expires_at)`,

        `CREATE TABLE IF NOT EXISTS match_notifications (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            kind VARCHAR(30) NOT NULL,
            title VARCHAR(200) NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            data JSONB NOT NULL DEFAULT '{}',
            match_id UUID,
            acted_upon BOOLEAN NOT NULL DEFAULT FALSE,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
        `CREATE UNIQUE INDEX IF NOT EXISTS idx_match_notifications_once
            ON match_notifications(user_id, match_id, kind) WHERE match_id IS NOT NULL`,
        `CREATE INDEX IF NOT EXISTS idx_match_notifications_user
            ON match_notifications(user_id, created_at DESC)`,

        `CREATE TABLE IF NOT EXISTS push_tokens (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            platform VARCHAR(10) NOT NULL,
            token TEXT NOT NULL UNIQUE,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

        `CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            user1_id BIGINT NOT NULL,
            user2_id BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (user1_id, user2_id),
            CHECK (user1_id < user2_id)
        )`,
    }

    for _, m := range migrations {
        if _, err := db.Exec(m); err != nil {
            return fmt.Errorf("migration failed: %w", err)
        }
    }
    return nil
}
