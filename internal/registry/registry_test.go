package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SendFlow/internal/models"
)

func TestAdmitRejectsSecondJobForIdentity(t *testing.T) {
	r := New()

	first := models.NewJob("job-1", "sender@example.com", "navneet", models.KindInitial, nil)
	require.NoError(t, r.Admit(first))

	second := models.NewJob("job-2", "sender@example.com", "navneet", models.KindInitial, nil)
	assert.ErrorIs(t, r.Admit(second), ErrDuplicateJob)

	got, ok := r.Get("sender@example.com")
	require.True(t, ok)
	assert.Equal(t, "job-1", got.ID)
}

func TestAdmitAfterDelete(t *testing.T) {
	r := New()

	require.NoError(t, r.Admit(models.NewJob("job-1", "sender@example.com", "navneet", models.KindInitial, nil)))
	r.Delete("sender@example.com")

	assert.NoError(t, r.Admit(models.NewJob("job-2", "sender@example.com", "navneet", models.KindInitial, nil)))
}

func TestDistinctIdentitiesCoexist(t *testing.T) {
	r := New()

	require.NoError(t, r.Admit(models.NewJob("job-1", "a@example.com", "navneet", models.KindInitial, nil)))
	require.NoError(t, r.Admit(models.NewJob("job-2", "b@example.com", "akash", models.KindInitial, nil)))
	assert.Equal(t, 2, r.Len())
}

func TestConcurrentAdmitSingleWinner(t *testing.T) {
	r := New()

	const attempts = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job := models.NewJob(fmt.Sprintf("job-%d", i), "sender@example.com", "navneet", models.KindInitial, nil)
			if r.Admit(job) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, r.Len())
}
