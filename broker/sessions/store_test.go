package sessions_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	store *sessions.Store
	now   time.Time
	mu    sync.Mutex
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	f.store = sessions.NewStore(sessions.WithClock(f.clock))
	t.Cleanup(func() { _ = f.store.Close() })
	return f
}

func (f *testFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *testFixture) create(t *testing.T, scopes ...string) string {
	t.Helper()
	id, err := f.store.Create(sessions.NewSession{
		UserID:       "admin_user",
		Scopes:       scopes,
		AccessToken:  "access-0",
		AccessTTL:    time.Second,
		RefreshToken: "refresh-0",
		RefreshTTL:   time.Hour,
	})
	require.NoError(t, err)
	return id
}

func TestCreateAndGet(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("stores a copy", func(t *testing.T) {
		id := f.create(t, "assets:read", "assets:read", "risk:analyze")
		require.GreaterOrEqual(t, len(id), 43)

		s, err := f.store.Get(id)
		require.NoError(t, err)
		require.Equal(t, []string{"assets:read", "risk:analyze"}, s.Scopes)
		require.Equal(t, "access-0", s.AccessToken)
		require.Equal(t, f.now.Add(time.Second), s.AccessTokenExpiresAt)
		require.Zero(t, s.RefreshCount)
		require.True(t, s.LastRefreshedAt.IsZero())

		s.Scopes[0] = "mutated"
		again, err := f.store.Get(id)
		require.NoError(t, err)
		require.Equal(t, "assets:read", again.Scopes[0])
	})

	t.Run("ids are unique", func(t *testing.T) {
		require.NotEqual(t, f.create(t), f.create(t))
	})

	t.Run("required fields", func(t *testing.T) {
		_, err := f.store.Create(sessions.NewSession{AccessToken: "a", RefreshToken: "r"})
		require.ErrorIs(t, err, errors.ErrInvalidRequest)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := f.store.Get("missing")
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})
}

func TestDelete(t *testing.T) {
	f := setupTestFixture(t)
	id := f.create(t)
	require.True(t, f.store.Delete(id))
	require.False(t, f.store.Delete(id))
	_, err := f.store.Get(id)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestApplyRefresh(t *testing.T) {
	t.Run("rotation replaces both tokens", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.create(t)
		f.advance(5 * time.Second)

		s, err := f.store.ApplyRefresh(id, sessions.Refresh{
			AccessToken: "access-1", AccessTTL: 10 * time.Second,
			RefreshToken: "refresh-1", RefreshTTL: 30 * time.Second,
		})
		require.NoError(t, err)
		require.Equal(t, 1, s.RefreshCount)
		require.Equal(t, "refresh-1", s.RefreshToken)
		require.Equal(t, f.now.Add(30*time.Second), s.RefreshTokenExpiresAt)
		require.Equal(t, f.now, s.LastRefreshedAt)
	})

	t.Run("no rotation keeps the refresh token", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.create(t)
		before, err := f.store.Get(id)
		require.NoError(t, err)

		f.advance(time.Second)
		s, err := f.store.ApplyRefresh(id, sessions.Refresh{AccessToken: "access-1", AccessTTL: 10 * time.Second})
		require.NoError(t, err)
		require.Equal(t, "refresh-0", s.RefreshToken)
		require.Equal(t, before.RefreshTokenExpiresAt, s.RefreshTokenExpiresAt)
	})

	t.Run("count is monotonic", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.create(t)
		for i := 1; i <= 5; i++ {
			s, err := f.store.ApplyRefresh(id, sessions.Refresh{AccessToken: fmt.Sprintf("access-%d", i)})
			require.NoError(t, err)
			require.Equal(t, i, s.RefreshCount)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.store.ApplyRefresh("missing", sessions.Refresh{AccessToken: "a"})
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})
}

func TestReadersNeverSeeMixedPairs(t *testing.T) {
	f := setupTestFixture(t)
	id := f.create(t)

	const rounds = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= rounds; i++ {
			_, err := f.store.ApplyRefresh(id, sessions.Refresh{
				AccessToken:  fmt.Sprintf("access-%d", i),
				RefreshToken: fmt.Sprintf("refresh-%d", i),
				AccessTTL:    time.Second,
				RefreshTTL:   time.Hour,
			})
			if err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				s, err := f.store.Get(id)
				if err != nil {
					t.Error(err)
					return
				}
				a := strings.TrimPrefix(s.AccessToken, "access-")
				b := strings.TrimPrefix(s.RefreshToken, "refresh-")
				if a != b || a != fmt.Sprint(s.RefreshCount) {
					t.Errorf("mixed pair observed: %s / %s at count %d", s.AccessToken, s.RefreshToken, s.RefreshCount)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestPurgeExpired(t *testing.T) {
	f := setupTestFixture(t)
	short, err := f.store.Create(sessions.NewSession{
		UserID: "u", AccessToken: "a", RefreshToken: "r", AccessTTL: time.Second, RefreshTTL: 2 * time.Second,
	})
	require.NoError(t, err)
	long := f.create(t)
	require.NoError(t, f.store.SetActive(short))

	f.advance(3 * time.Second)
	require.Equal(t, []string{short}, f.store.PurgeExpired(f.clock()))
	require.Equal(t, 1, f.store.Len())

	_, err = f.store.Active()
	require.ErrorIs(t, err, errors.ErrNoActiveSession)
	_, err = f.store.Get(long)
	require.NoError(t, err)
}

func TestActiveSession(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.store.Active()
	require.ErrorIs(t, err, errors.ErrNoActiveSession)

	id := f.create(t)
	require.ErrorIs(t, f.store.SetActive("missing"), errors.ErrSessionNotFound)
	require.NoError(t, f.store.SetActive(id))

	s, err := f.store.Active()
	require.NoError(t, err)
	require.Equal(t, id, s.ID)

	f.store.Delete(id)
	_, err = f.store.Active()
	require.ErrorIs(t, err, errors.ErrNoActiveSession)
}

func TestInfo(t *testing.T) {
	f := setupTestFixture(t)
	id := f.create(t, "assets:read")
	s, err := f.store.Get(id)
	require.NoError(t, err)

	info := s.Info(f.now.Add(5 * time.Second))
	require.Equal(t, id[:8]+"...", info.SessionID)
	require.Zero(t, info.AccessTokenExpiresInSeconds)
	require.Equal(t, 3595, info.RefreshTokenExpiresInSeconds)
	require.Nil(t, info.LastRefreshedAt)

	s, err = f.store.ApplyRefresh(id, sessions.Refresh{AccessToken: "access-1", AccessTTL: 10 * time.Second})
	require.NoError(t, err)
	require.NotNil(t, s.Info(f.now).LastRefreshedAt)
}

func TestClose(t *testing.T) {
	f := setupTestFixture(t)
	f.create(t)
	require.NoError(t, f.store.Close())
	require.Zero(t, f.store.Len())

	_, err := f.store.Create(sessions.NewSession{UserID: "u", AccessToken: "a", RefreshToken: "r"})
	require.Error(t, err)
}
