package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/infra/memory"
	"amc-progress-service/internal/infra/postgres"
	pgmigrations "amc-progress-service/internal/infra/postgres/migrations"
	infraredis "amc-progress-service/internal/infra/redis"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

const answerKey = "ABCDEABCDEABCDEABCDEABCDE"

func TestSyncEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	registry := app.NewRegistry(memory.NewStoreFactory())
	progress, err := registry.For("alice")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if _, err := progress.SubmitTest(ctx, app.Submission{TestType: "amc10a", Year: 2023, Input: answerKey, Key: answerKey}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	scores := postgres.NewScoreStore(pool)
	profiles := postgres.NewProfileStore(pool)
	sync := app.NewSyncService(registry, scores, profiles)

	res, err := sync.Migrate(ctx, "alice")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.Pushed != 1 || res.Failed != 0 {
		t.Fatalf("unexpected first sync %+v", res)
	}
	res, err = sync.Migrate(ctx, "alice")
	if err != nil || res.Pushed != 0 {
		t.Fatalf("expected idle second sync, got %+v (%v)", res, err)
	}

	remote, err := scores.ListScores(ctx, "alice")
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	if len(remote) != 1 || remote[0].Score != 150 || len(remote[0].QuestionCorrectness) != domain.QuestionCount {
		t.Fatalf("unexpected remote history %+v", remote)
	}

	if err := profiles.SetDisplayName(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	top, err := profiles.TopProfiles(ctx, 10)
	if err != nil {
		t.Fatalf("top profiles: %v", err)
	}
	if len(top) != 1 || top[0].DisplayName != "Alice" || top[0].XP != 1500 || top[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
}

func TestLiveSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	redisURL := startRedis(t, ctx)
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	questions := postgres.NewQuestionStore(pool)
	seeded := []domain.Question{
		{ID: "amc8-2023-1", TestType: domain.AMC8, Year: 2023, Number: 1, Topic: domain.Algebra, Prompt: "1 + 1", Choices: []string{"1", "2"}, Answer: "B"},
	}
	if n, err := questions.UpsertQuestions(ctx, seeded); err != nil || n != 1 {
		t.Fatalf("seed questions: n=%d err=%v", n, err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	registry := app.NewRegistry(memory.NewStoreFactory())
	journal := postgres.NewLiveJournal(pool)
	catalog := infraredis.NewCatalogRepository(redisClient, questions, 5*time.Minute)
	service := app.NewLiveService(
		infraredis.NewSessionStore(redisClient, 5*time.Minute),
		app.NewPracticeService(catalog),
		infraredis.NewArbiter(redisClient, 30*time.Second),
		app.WithJournal(journal),
		app.WithRewards(app.RewardChain{journal, app.NewProgressRewards(registry)}),
	)

	snap, err := service.CreateSession(ctx, "host", domain.QuestionFilter{Family: domain.AMC8}, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := snap.SessionID
	for _, u := range []string{"u1", "u2"} {
		if _, err := service.Join(ctx, id, u, strings.ToUpper(u)); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	if _, err := service.Start(ctx, id, "host"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Buzz(ctx, id, "u2"); err != nil {
		t.Fatalf("buzz: %v", err)
	}
	res, _, err := service.Answer(ctx, id, "u2", "b")
	if err != nil || !res.Correct {
		t.Fatalf("expected correct answer, got %+v (%v)", res, err)
	}
	standings, err := service.End(ctx, id, "host")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(standings) != 2 || standings[0].UserID != "u2" {
		t.Fatalf("unexpected standings %+v", standings)
	}
	service.Wait()

	awards, err := sessionAwards(ctx, pool, id)
	if err != nil {
		t.Fatalf("awards: %v", err)
	}
	if len(awards) != 2 || awards[0].UserID != "u2" || awards[0].XP != app.PointsPerCorrect || awards[0].Coins != 30 {
		t.Fatalf("unexpected awards %+v", awards)
	}

	// A second distribution must not change the recorded rewards.
	if err := journal.DistributeRewards(ctx, id, []domain.Standing{{UserID: "u1", Score: 99, Place: 1}}); err != nil {
		t.Fatalf("redistribute: %v", err)
	}
	again, err := sessionAwards(ctx, pool, id)
	if err != nil {
		t.Fatalf("awards: %v", err)
	}
	if len(again) != 2 || again[0].UserID != "u2" {
		t.Fatalf("rewards changed on repeat: %+v", again)
	}

	ranked, err := postgres.NewProfileStore(pool).TopProfiles(ctx, 10)
	if err != nil {
		t.Fatalf("top profiles: %v", err)
	}
	if len(ranked) != 2 || ranked[0].UserID != "u2" || ranked[0].XP != app.PointsPerCorrect || ranked[0].Level != 1 {
		t.Fatalf("expected the reward credited to the remote profile once, got %+v", ranked)
	}

	progress, _ := registry.For("u2")
	profile, err := progress.Profile(ctx)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.XP != app.PointsPerCorrect || profile.Coins != 30 {
		t.Fatalf("expected local reward credit, got xp=%d coins=%d", profile.XP, profile.Coins)
	}
}

type award struct {
	UserID string
	Place  int
	XP     int
	Coins  int
}

// sessionAwards reads the rewards recorded for a session, best place first.
func sessionAwards(ctx context.Context, pool *pgxpool.Pool, sessionID string) ([]award, error) {
	rows, err := pool.Query(ctx, `
		SELECT user_id, COALESCE(place, 0), xp_awarded, coins_awarded
		FROM live_participants WHERE session_id = $1
		ORDER BY place NULLS LAST, user_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []award
	for rows.Next() {
		var a award
		if err := rows.Scan(&a.UserID, &a.Place, &a.XP, &a.Coins); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

// startContainer runs req and returns host:port of the exposed port. The
// container is terminated when the test finishes.
func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest, exposed nat.Port) string {
	t.Helper()
	req.ExposedPorts = []string{string(exposed)}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.PortEndpoint(ctx, exposed, "")
	if err != nil {
		t.Fatalf("%s endpoint: %v", req.Image, err)
	}
	return endpoint
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	addr := startContainer(t, ctx, tc.ContainerRequest{
		Image: "postgres:15-alpine",
		Env:   map[string]string{"POSTGRES_USER": "amc", "POSTGRES_PASSWORD": "amcpass", "POSTGRES_DB": "amcdb"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")
	return fmt.Sprintf("postgres://amc:amcpass@%s/amcdb?sslmode=disable", addr)
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	addr := startContainer(t, ctx, tc.ContainerRequest{
		Image:      "redis:7-alpine",
		WaitingFor: wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}, "6379/tcp")
	return "redis://" + addr
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
