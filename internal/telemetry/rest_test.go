package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

const liveMatchesBody = `[
  {
    "id": "match-1",
    "game": "lol",
    "status": "running",
    "elapsed_seconds": 1450,
    "teams": [
      {"name": "T1", "kills": 12, "gold": 38200, "towers": 4, "dragons": 2, "series_wins": 1},
      {"name": "Gen.G", "kills": 8, "gold": 34100, "towers": 2, "dragons": 1, "series_wins": 0}
    ]
  }
]`

func TestListLiveMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/matches/live", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "running", r.URL.Query().Get("status"))
		w.Write([]byte(liveMatchesBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	states, err := c.ListLiveMatches(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)

	s := states[0]
	assert.Equal(t, "match-1", s.MatchID)
	assert.Equal(t, domain.GameLeagueOfLegends, s.Game)
	assert.Equal(t, "T1", s.TeamA)
	assert.Equal(t, 4100, s.GoldLead())
	assert.Equal(t, 1450, s.ElapsedSec)
	assert.False(t, s.FetchedAt.IsZero())
}

func TestGetMatchStateFinished(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "match-9", "game": "dota2", "status": "finished", "teams": [{}, {}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	_, err := c.GetMatchState(context.Background(), "match-9")
	assert.ErrorIs(t, err, domain.ErrMatchEnded)
}

func TestErrorTaxonomy(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)

	_, err := c.ListLiveMatches(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransient)

	status = http.StatusTooManyRequests
	_, err = c.ListLiveMatches(context.Background())
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	status = http.StatusUnauthorized
	_, err = c.ListLiveMatches(context.Background())
	assert.ErrorIs(t, err, domain.ErrFatal)
}
