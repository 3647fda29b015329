package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"coursedocs-backend/internal/shared/storage/db"
)

// startPostgres runs a throwaway Postgres and applies migrations. Skipped with -short
// or when SKIP_DOCKER_TESTS is set.
func startPostgres(t *testing.T) *PGRepo {
	t.Helper()
	if testing.Short() || os.Getenv("SKIP_DOCKER_TESTS") != "" {
		t.Skip("postgres integration test skipped")
	}
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "docs",
				"POSTGRES_PASSWORD": "docs",
				"POSTGRES_DB":       "docs",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://docs:docs@%s:%s/docs?sslmode=disable", host, port.Port())
	sqlDB, err := db.Connect(ctx, url, db.DefaultMigrateOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.RunMigrations(ctx, sqlDB))

	return &PGRepo{DB: sqlDB}
}

func TestPGRepoIntegration(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	doc := pendingDoc()
	doc.ID = uuid.NewString()
	doc.UploadedAt = base
	created, err := repo.Create(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	t.Run("duplicate stored filename rejected", func(t *testing.T) {
		dup := pendingDoc()
		dup.ID = uuid.NewString()
		_, err := repo.Create(ctx, dup)
		require.Error(t, err)
	})

	t.Run("stale pending listed", func(t *testing.T) {
		stale, err := repo.ListStalePending(ctx, base.Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, created.ID, stale[0].ID)
	})

	t.Run("concurrent terminal writes have one winner", func(t *testing.T) {
		current, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next, err := current.MarkProcessed(fmt.Sprintf("text %d", i), base.Add(time.Hour))
				if err != nil {
					return
				}
				_, err = repo.Update(ctx, next)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrVersionConflict):
					conflicts++
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, 4, conflicts)

		final, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, StateProcessed, final.State)
		assert.Equal(t, 2, final.Version)
		require.NoError(t, final.CheckInvariants())
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "abc")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("checksum lookup", func(t *testing.T) {
		found, err := repo.FindByChecksum(ctx, created.ContainerID, created.Checksum)
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)

		_, err = repo.FindByChecksum(ctx, "other-course", created.Checksum)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
