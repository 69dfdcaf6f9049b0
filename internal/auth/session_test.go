package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T, ttl time.Duration) *SessionStore {
	t.Helper()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	return NewSessionStore(ttl, stop)
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	ss := newTestSessions(t, time.Hour)

	token, err := ss.Create("admin")
	require.NoError(t, err)

	s := ss.Get(token)
	require.NotNil(t, s)
	assert.Equal(t, "admin", s.Username)
	assert.NotEmpty(t, s.CSRFToken)
	assert.NotEqual(t, token, s.CSRFToken)
}

func TestSessionStore_Get_UnknownOrDeleted(t *testing.T) {
	t.Parallel()
	ss := newTestSessions(t, time.Hour)

	assert.Nil(t, ss.Get("missing"))

	token, err := ss.Create("admin")
	require.NoError(t, err)
	ss.Delete(token)
	assert.Nil(t, ss.Get(token))
}

func TestSessionStore_Get_Expired(t *testing.T) {
	t.Parallel()
	ss := newTestSessions(t, time.Millisecond)

	token, err := ss.Create("admin")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	assert.Nil(t, ss.Get(token))

	ss.purgeExpired(time.Now())
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	assert.Empty(t, ss.sessions)
}

func TestSessionStore_Flashes_PopOnce(t *testing.T) {
	t.Parallel()
	ss := newTestSessions(t, time.Hour)

	token, err := ss.Create("admin")
	require.NoError(t, err)

	ss.AddFlash(token, Flash{Kind: "success", Message: "saved"})
	ss.AddFlash(token, Flash{Kind: "info", Message: "sent"})

	got := ss.PopFlashes(token)
	require.Len(t, got, 2)
	assert.Equal(t, "saved", got[0].Message)
	assert.Equal(t, "info", got[1].Kind)

	assert.Empty(t, ss.PopFlashes(token))
	assert.Nil(t, ss.PopFlashes("missing"))
}

func TestSession_ValidCSRF(t *testing.T) {
	t.Parallel()
	ss := newTestSessions(t, time.Hour)

	token, err := ss.Create("admin")
	require.NoError(t, err)
	s := ss.Get(token)
	require.NotNil(t, s)

	assert.True(t, s.ValidCSRF(s.CSRFToken))
	assert.False(t, s.ValidCSRF(""))
	assert.False(t, s.ValidCSRF("forged"))
}
