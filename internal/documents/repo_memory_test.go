package documents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepoCreateRejectsDuplicateStoredFilename(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	_, err := repo.Create(ctx, pendingDoc())
	require.NoError(t, err)

	dup := pendingDoc()
	dup.ID = "doc-2"
	_, err = repo.Create(ctx, dup)
	assert.Error(t, err)
	assert.Equal(t, 1, repo.Len())
}

func TestMemoryRepoUpdateCompareAndSwap(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	created, err := repo.Create(ctx, pendingDoc())
	require.NoError(t, err)

	processed, _ := created.MarkProcessed("Hello", time.Now())
	failed, _ := created.MarkFailed("late", time.Now())

	updated, err := repo.Update(ctx, processed)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	_, err = repo.Update(ctx, failed)
	assert.True(t, errors.Is(err, ErrVersionConflict))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateProcessed, stored.State)
	assert.Equal(t, "Hello", *stored.ExtractedText)
}

func TestMemoryRepoConcurrentUpdatesHaveOneWinner(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	created, err := repo.Create(ctx, pendingDoc())
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next, _ := created.MarkProcessed(fmt.Sprintf("text-%d", i), time.Now())
			_, err := repo.Update(ctx, next)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, ErrVersionConflict) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, conflicts)
}

func TestMemoryRepoListByContainerNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		doc := pendingDoc()
		doc.ID = fmt.Sprintf("doc-%d", i)
		doc.StoredFilename = fmt.Sprintf("%d_syllabus.pdf", i)
		doc.UploadedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := repo.Create(ctx, doc)
		require.NoError(t, err)
	}
	other := pendingDoc()
	other.ID = "other"
	other.StoredFilename = "x_other.pdf"
	other.ContainerID = "course-2"
	_, err := repo.Create(ctx, other)
	require.NoError(t, err)

	docs, err := repo.ListByContainer(ctx, "course-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-2", docs[0].ID)
	assert.Equal(t, "doc-1", docs[1].ID)

	docs, err = repo.ListByContainer(ctx, "course-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-0", docs[0].ID)
}

func TestMemoryRepoListStalePendingSkipsTerminalAndFresh(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	stale := pendingDoc()
	stale.UploadedAt = now.Add(-time.Hour)
	_, err := repo.Create(ctx, stale)
	require.NoError(t, err)

	fresh := pendingDoc()
	fresh.ID, fresh.StoredFilename = "fresh", "f_fresh.pdf"
	fresh.UploadedAt = now.Add(-time.Minute)
	_, err = repo.Create(ctx, fresh)
	require.NoError(t, err)

	done := pendingDoc()
	done.ID, done.StoredFilename = "done", "d_done.pdf"
	done.UploadedAt = now.Add(-2 * time.Hour)
	created, err := repo.Create(ctx, done)
	require.NoError(t, err)
	processed, _ := created.MarkProcessed("x", now)
	_, err = repo.Update(ctx, processed)
	require.NoError(t, err)

	docs, err := repo.ListStalePending(ctx, now.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, stale.ID, docs[0].ID)
}

func TestMemoryRepoFindByChecksumIgnoresFailed(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	created, err := repo.Create(ctx, pendingDoc())
	require.NoError(t, err)
	failed, _ := created.MarkFailed("bad", time.Now())
	_, err = repo.Update(ctx, failed)
	require.NoError(t, err)

	_, err = repo.FindByChecksum(ctx, "course-1", "deadbeef")
	assert.True(t, errors.Is(err, ErrNotFound))
}
