package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// observerFunc adapts a function to SolveObserver.
type observerFunc func(ctx context.Context, r Reader, s *SolveRecord) func(context.Context)

func (f observerFunc) SolveCreated(ctx context.Context, r Reader, s *SolveRecord) func(context.Context) {
	return f(ctx, r, s)
}

func TestSQLiteStore_Migration_CreatesTablesAndVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_Migration_IsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "fb.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestSQLiteStore_CreateAndGetChallenge(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	c := &ChallengeRecord{Name: "baby-rop", Category: "pwn"}
	require.NoError(t, s.CreateChallenge(ctx, c))
	assert.NotZero(t, c.ID)

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "baby-rop", got.Name)
	assert.Equal(t, "pwn", got.Category)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteStore_GetUserAndTeam(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u := &UserRecord{Name: "alice"}
	require.NoError(t, s.CreateUser(ctx, u))
	team := &TeamRecord{Name: "RedTeam"}
	require.NoError(t, s.CreateTeam(ctx, team))

	gotUser, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", gotUser.Name)

	gotTeam, err := s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, "RedTeam", gotTeam.Name)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetChallenge(ctx, 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.GetUser(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetTeam(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CreateSolve_AssignsIncreasingIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first := &SolveRecord{ChallengeID: 1, UserID: 1}
	second := &SolveRecord{ChallengeID: 1, UserID: 2, TeamID: 7}
	require.NoError(t, s.CreateSolve(ctx, first))
	require.NoError(t, s.CreateSolve(ctx, second))

	assert.Less(t, first.ID, second.ID)

	n, err := s.CountSolves(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteStore_CreateSolve_ObserverSeesInsertedRow(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var counts []int
	s.OnSolveCreated(observerFunc(func(ctx context.Context, r Reader, rec *SolveRecord) func(context.Context) {
		n, err := r.CountSolves(ctx, rec.ChallengeID)
		require.NoError(t, err)
		counts = append(counts, n)
		return nil
	}))

	require.NoError(t, s.CreateSolve(ctx, &SolveRecord{ChallengeID: 3, UserID: 1}))
	require.NoError(t, s.CreateSolve(ctx, &SolveRecord{ChallengeID: 3, UserID: 2}))
	require.NoError(t, s.CreateSolve(ctx, &SolveRecord{ChallengeID: 4, UserID: 1}))

	assert.Equal(t, []int{1, 2, 1}, counts)
}

func TestSQLiteStore_CreateSolve_AfterCommitRunsOutsideTransaction(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var seen string
	s.OnSolveCreated(observerFunc(func(ctx context.Context, r Reader, rec *SolveRecord) func(context.Context) {
		return func(ctx context.Context) {
			// Would block forever on the single connection if still inside the transaction.
			v, err := s.GetConfig(ctx, "k")
			require.NoError(t, err)
			seen = v
		}
	}))

	require.NoError(t, s.SetConfig(ctx, "k", "v"))
	require.NoError(t, s.CreateSolve(ctx, &SolveRecord{ChallengeID: 1, UserID: 1}))
	assert.Equal(t, "v", seen)
}

func TestSQLiteStore_CreateSolve_ConcurrentInsertsSeeDistinctCounts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[int]int)
	s.OnSolveCreated(observerFunc(func(ctx context.Context, r Reader, rec *SolveRecord) func(context.Context) {
		n, err := r.CountSolves(ctx, rec.ChallengeID)
		if err != nil {
			return nil
		}
		mu.Lock()
		seen[n]++
		mu.Unlock()
		return nil
	}))

	const workers = 20
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			assert.NoError(t, s.CreateSolve(ctx, &SolveRecord{ChallengeID: 9, UserID: uid}))
		}(int64(i + 1))
	}
	wg.Wait()

	require.Len(t, seen, workers, "every insert must observe a distinct count")
	for n := 1; n <= workers; n++ {
		assert.Equal(t, 1, seen[n], "count %d observed more than once", n)
	}
}

func TestSQLiteStore_ListFirstBloods(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	web := &ChallengeRecord{Name: "web-100"}
	crypto := &ChallengeRecord{Name: "rsa-baby"}
	require.NoError(t, s.CreateChallenge(ctx, web))
	require.NoError(t, s.CreateChallenge(ctx, crypto))
	alice := &UserRecord{Name: "alice"}
	bob := &UserRecord{Name: "bob"}
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))
	red := &TeamRecord{Name: "RedTeam"}
	require.NoError(t, s.CreateTeam(ctx, red))

	require.NoError(t, s.CreateSolve(ctx, &SolveRecord{ChallengeID: web.ID, UserID: alice.ID}))
	require.NoError(t, s.CreateSolve(ctx, &SolveRecord{ChallengeID: web.ID, UserID: bob.ID}))
	require.NoError(t, s.CreateSolve(ctx, &SolveRecord{ChallengeID: crypto.ID, UserID: bob.ID, TeamID: red.ID}))

	fbs, err := s.ListFirstBloods(ctx)
	require.NoError(t, err)
	require.Len(t, fbs, 2)

	assert.Equal(t, "rsa-baby", fbs[0].ChallengeName, "newest first blood should be first")
	assert.Equal(t, "RedTeam", fbs[0].SolverName)
	assert.Equal(t, red.ID, fbs[0].TeamID)

	assert.Equal(t, "web-100", fbs[1].ChallengeName)
	assert.Equal(t, "alice", fbs[1].SolverName)
	assert.Equal(t, int64(0), fbs[1].TeamID)
}

func TestSQLiteStore_ListFirstBloods_EmptyWhenNoSolves(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	fbs, err := s.ListFirstBloods(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fbs)
}

func TestSQLiteStore_Config_UnsetReturnsEmpty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetConfig(context.Background(), "FIRST_BLOOD_WEBHOOK")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestSQLiteStore_Config_LastWriteWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetConfig(ctx, "FIRST_BLOOD_WEBHOOK", "https://a.example"))
	require.NoError(t, s.SetConfig(ctx, "FIRST_BLOOD_WEBHOOK", "https://b.example"))

	v, err := s.GetConfig(ctx, "FIRST_BLOOD_WEBHOOK")
	require.NoError(t, err)
	assert.Equal(t, "https://b.example", v)
}

func TestNewSQLiteStore_SetsFilePermissions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	dirInfo, err := os.Stat(filepath.Join(dir, "subdir"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm(), "directory should be 0700")

	fileInfo, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm(), "database file should be 0600")
}
