package firstblood

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/firstblood/internal/config"
	"github.com/btouchard/firstblood/internal/notify"
	"github.com/btouchard/firstblood/internal/store"
)

// recordingNotifier captures every message it is asked to deliver.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, string) { panic("boom") }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newDetectorStore(t *testing.T) (*store.SQLiteStore, *recordingNotifier) {
	t.Helper()
	s := newTestStore(t)
	rec := &recordingNotifier{}
	s.OnSolveCreated(NewDetector(rec))
	return s, rec
}

func mustChallenge(t *testing.T, s *store.SQLiteStore, name string) int64 {
	t.Helper()
	c := &store.ChallengeRecord{Name: name}
	require.NoError(t, s.CreateChallenge(context.Background(), c))
	return c.ID
}

func mustUser(t *testing.T, s *store.SQLiteStore, name string) int64 {
	t.Helper()
	u := &store.UserRecord{Name: name}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u.ID
}

func mustTeam(t *testing.T, s *store.SQLiteStore, name string) int64 {
	t.Helper()
	tm := &store.TeamRecord{Name: name}
	require.NoError(t, s.CreateTeam(context.Background(), tm))
	return tm.ID
}

func TestMessage_Format(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"🩸 **FIRST BLOOD!** 🩸\n**Challenge:** web-100\n**Solved by:** alice",
		Message("web-100", "alice"))
}

func TestTestMessage_NamesService(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "🩸 First Blood test message from firstblood", TestMessage)
}

func TestDetector_FirstSolveNotifies_SecondDoesNot(t *testing.T) {
	t.Parallel()
	s, rec := newDetectorStore(t)
	ctx := context.Background()

	chal := mustChallenge(t, s, "web-100")
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: alice}))
	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: bob}))

	msgs := rec.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "alice")
	assert.Contains(t, msgs[0], "web-100")
	assert.NotContains(t, msgs[0], "bob")
}

func TestDetector_TeamSolve_UsesTeamName(t *testing.T) {
	t.Parallel()
	s, rec := newDetectorStore(t)
	ctx := context.Background()

	chal := mustChallenge(t, s, "rsa-baby")
	alice := mustUser(t, s, "alice")
	red := mustTeam(t, s, "RedTeam")

	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: alice, TeamID: red}))

	msgs := rec.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "**Solved by:** RedTeam")
	assert.NotContains(t, msgs[0], "alice")
}

func TestDetector_DistinctChallengesEachNotify(t *testing.T) {
	t.Parallel()
	s, rec := newDetectorStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	for i := range 3 {
		chal := mustChallenge(t, s, "chal-"+strconv.Itoa(i))
		require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: alice}))
		require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: alice}))
	}

	msgs := rec.all()
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Contains(t, m, "chal-"+strconv.Itoa(i))
	}
}

func TestDetector_ConcurrentSolves_ExactlyOneNotification_ForFirstPersisted(t *testing.T) {
	t.Parallel()
	s, rec := newDetectorStore(t)
	ctx := context.Background()

	chal := mustChallenge(t, s, "race")
	const solvers = 25
	users := make([]int64, solvers)
	for i := range users {
		users[i] = mustUser(t, s, "player-"+strconv.Itoa(i))
	}

	var wg sync.WaitGroup
	for _, uid := range users {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			assert.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: uid}))
		}(uid)
	}
	wg.Wait()

	msgs := rec.all()
	require.Len(t, msgs, 1, "exactly one solve may claim first blood")

	fbs, err := s.ListFirstBloods(ctx)
	require.NoError(t, err)
	require.Len(t, fbs, 1)
	assert.True(t, strings.HasSuffix(msgs[0], "**Solved by:** "+fbs[0].SolverName),
		"announcement must name the first persisted solver, got %q want %q", msgs[0], fbs[0].SolverName)

	n, err := s.CountSolves(ctx, chal)
	require.NoError(t, err)
	assert.Equal(t, solvers, n)
}

func TestDetector_MissingChallenge_SkipsSilently(t *testing.T) {
	t.Parallel()
	s, rec := newDetectorStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")

	err := s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: 404, UserID: alice})
	require.NoError(t, err, "lookup failure must not fail the insert")
	assert.Empty(t, rec.all())

	n, err := s.CountSolves(ctx, 404)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "solve must still be persisted")
}

func TestDetector_MissingSolver_SkipsSilently(t *testing.T) {
	t.Parallel()
	s, rec := newDetectorStore(t)
	ctx := context.Background()

	chal := mustChallenge(t, s, "ghost")
	chal2 := mustChallenge(t, s, "ghost-team")

	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: 999}))
	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal2, UserID: 999, TeamID: 77}))
	assert.Empty(t, rec.all())
}

func TestDetector_FailedLookup_DoesNotRetryOnLaterSolve(t *testing.T) {
	t.Parallel()
	s, rec := newDetectorStore(t)
	ctx := context.Background()

	chal := mustChallenge(t, s, "once")
	bob := mustUser(t, s, "bob")

	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: 999}))
	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: bob}))

	assert.Empty(t, rec.all(), "first blood belongs to the first solve even if it could not be announced")
}

func TestDetector_PanickingNotifier_DoesNotFailInsert(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.OnSolveCreated(NewDetector(panickingNotifier{}))
	ctx := context.Background()

	chal := mustChallenge(t, s, "web")
	alice := mustUser(t, s, "alice")

	assert.NotPanics(t, func() {
		require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: alice}))
	})
}

func TestDetector_WithWebhook_UnreachableSinkDoesNotFailInsert(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	require.NoError(t, s.SetConfig(ctx, notify.WebhookKey, deadURL))

	s.OnSolveCreated(NewDetector(notify.NewWebhookNotifier(s, notify.WebhookOptions{})))

	chal := mustChallenge(t, s, "web")
	alice := mustUser(t, s, "alice")
	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: alice}))
}

func TestDetector_WithWebhook_UnsetSinkMakesNoRequest(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	s.OnSolveCreated(NewDetector(notify.NewWebhookNotifier(s, notify.WebhookOptions{})))

	chal := mustChallenge(t, s, "web")
	alice := mustUser(t, s, "alice")
	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: alice}))
	assert.Equal(t, int32(0), hits.Load())
}

func TestDetector_WithWebhook_DeliversAnnouncement(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		got = append(got, p.Content)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	require.NoError(t, s.SetConfig(ctx, notify.WebhookKey, srv.URL))

	s.OnSolveCreated(NewDetector(notify.NewWebhookNotifier(s, notify.WebhookOptions{})))

	chal := mustChallenge(t, s, "pwn-200")
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: alice}))
	require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: bob}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, Message("pwn-200", "alice"), got[0])
}

func TestDetector_WithDefaultNotifierConfig_DeliversEveryDistinctFirstBlood(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	require.NoError(t, s.SetConfig(ctx, notify.WebhookKey, srv.URL))

	defaults := config.Defaults().Notifier
	s.OnSolveCreated(NewDetector(notify.NewWebhookNotifier(s, notify.WebhookOptions{
		Timeout:       defaults.Timeout,
		RatePerMinute: defaults.RatePerMinute,
		Burst:         defaults.Burst,
	})))

	alice := mustUser(t, s, "alice")
	const challenges = 12
	for i := range challenges {
		chal := mustChallenge(t, s, "chal-"+strconv.Itoa(i))
		require.NoError(t, s.CreateSolve(ctx, &store.SolveRecord{ChallengeID: chal, UserID: alice}))
	}

	assert.Equal(t, int32(challenges), hits.Load(), "no first blood may be dropped locally")
}
