package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/postgres"
	pgmigrations "assessment-engine/internal/infra/postgres/migrations"
	infraredis "assessment-engine/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

const courseID = "course-it"

func TestGrandtestEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	catalog := postgres.NewCatalogLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := postgres.NewStore(db)
	services := app.NewServices(app.Stores{
		Catalog:      catalog,
		Questions:    infraredis.NewQuestionBank(redisClient, catalog, 5*time.Minute),
		Attempts:     store,
		Lessons:      store,
		Completions:  store,
		Certificates: store,
	}, app.Settings{})

	owner := domain.Owner{UserID: "u1", EnrollmentID: "e1"}
	take := func(testID string, correct int) domain.Attempt {
		t.Helper()
		attempt, err := services.Engine.StartAttempt(ctx, owner, testID)
		if err != nil {
			t.Fatalf("start %s: %v", testID, err)
		}
		again, err := services.Engine.StartAttempt(ctx, owner, testID)
		if err != nil || again.ID != attempt.ID {
			t.Fatalf("expected resume of %s, got %s err=%v", attempt.ID, again.ID, err)
		}
		questions, err := services.Engine.AttemptQuestions(ctx, attempt.ID)
		if err != nil {
			t.Fatalf("questions: %v", err)
		}
		for i, q := range questions {
			answer := "o1"
			if i < correct {
				answer = "o2"
			}
			if _, err := services.Engine.RecordAnswer(ctx, attempt.ID, q.Question.ID, answer, 5); err != nil {
				t.Fatalf("answer %s: %v", q.Question.ID, err)
			}
		}
		final, err := services.Engine.Finalize(ctx, attempt.ID)
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		return final
	}

	if quiz := take("it-quiz", 2); !quiz.Passed {
		t.Fatalf("expected quiz passed, got %+v", quiz)
	}
	if _, err := services.Completion.MarkLessonCompleted(ctx, owner.UserID, courseID, owner.EnrollmentID, "l1"); err != nil {
		t.Fatalf("complete lesson: %v", err)
	}

	final := take("it-final", 3)
	if final.Percentage != 75 || !final.Passed {
		t.Fatalf("expected 75%% passed, got %+v", final)
	}
	if _, err := services.Engine.Finalize(ctx, final.ID); !errors.Is(err, domain.ErrAttemptNotActive) {
		t.Fatalf("expected second finalize rejected, got %v", err)
	}

	cert, err := services.Certificates.ForAttempt(ctx, final.ID)
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}
	certs, err := store.ListCertificates(ctx, owner.UserID, courseID)
	if err != nil || len(certs) != 1 {
		t.Fatalf("expected one certificate, got %d err=%v", len(certs), err)
	}
	v, err := services.Certificates.Verify(ctx, cert.CertificateNumber, cert.VerificationCode)
	if err != nil || !v.Valid {
		t.Fatalf("expected valid certificate, got %+v err=%v", v, err)
	}

	status, err := services.Completion.Status(ctx, owner.UserID, courseID, owner.EnrollmentID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.IsCourseCompleted || !status.GrandtestPassed || !status.CertificateIssued {
		t.Fatalf("unexpected completion %+v", status)
	}

	cached, err := redisClient.HLen(ctx, "course:"+courseID+":questions").Result()
	if err != nil || cached != 4 {
		t.Fatalf("expected 4 cached questions, got %d err=%v", cached, err)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	insert := func(query string, args ...interface{}) {
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	var ids []string
	for i := 1; i <= 4; i++ {
		q := domain.Question{
			ID:             fmt.Sprintf("q%d", i),
			CourseID:       courseID,
			Text:           fmt.Sprintf("question %d", i),
			Type:           domain.SingleChoice,
			Options:        []domain.Option{{ID: "o1", Text: "no"}, {ID: "o2", Text: "yes"}},
			CorrectAnswers: []string{"o2"},
			Points:         1,
			Active:         true,
		}
		ids = append(ids, q.ID)
		insert(`INSERT INTO questions (id, course_id, data) VALUES (?, ?, ?::jsonb)`, q.ID, q.CourseID, mustJSON(t, q))
	}
	defs := []domain.TestDefinition{
		{ID: "it-quiz", CourseID: courseID, Kind: domain.LessonQuiz, LessonID: "l1", QuestionCount: 2, PassingScorePercentage: 50, QuestionIDs: ids[:2], Active: true},
		{ID: "it-final", CourseID: courseID, Kind: domain.Grandtest, QuestionCount: 4, TimeLimitMinutes: 30, PassingScorePercentage: 70, MaxAttempts: 3, QuestionIDs: ids, Active: true},
	}
	for _, def := range defs {
		insert(`INSERT INTO test_definitions (id, course_id, kind, day_number, data) VALUES (?, ?, ?, ?, ?::jsonb)`,
			def.ID, def.CourseID, string(def.Kind), def.DayNumber, mustJSON(t, def))
	}
	outline := domain.CourseOutline{
		CourseID: courseID,
		Modules:  []domain.Module{{ID: "m1", Lessons: []domain.Lesson{{ID: "l1", Active: true}}, QuizIDs: []string{"it-quiz"}}},
	}
	insert(`INSERT INTO course_outlines (course_id, data) VALUES (?, ?::jsonb)`, courseID, mustJSON(t, outline))
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "assess", "POSTGRES_PASSWORD": "assesspass", "POSTGRES_DB": "assessdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://assess:assesspass@%s:%s/assessdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
