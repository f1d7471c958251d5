package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Client is the REST client for the esports telemetry API. Authentication is
// a bearer token.
type Client struct {
	baseURL    string
	token      string
	games      string
	httpClient *http.Client
}

var _ Provider = (*Client)(nil)

// NewClient creates a telemetry client.
//
// baseURL is the API root, e.g. "https://api.esportsdata.example.com".
// games selects which titles to track; empty defaults to lol and dota2.
func NewClient(baseURL, token string, games []string) *Client {
	gameList := strings.Join(games, ",")
	if gameList == "" {
		gameList = "lol,dota2"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		games:   gameList,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListLiveMatches returns every match currently in progress for the
// supported games.
func (c *Client) ListLiveMatches(ctx context.Context) ([]domain.MatchState, error) {
	params := url.Values{}
	params.Set("status", "running")
	params.Set("games", c.games)

	body, err := c.doGet(ctx, "/matches/live?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("telemetry: list live matches: %w", err)
	}

	var apiMatches []apiMatch
	if err := json.Unmarshal(body, &apiMatches); err != nil {
		return nil, fmt.Errorf("telemetry: decode matches: %w", err)
	}

	states := make([]domain.MatchState, 0, len(apiMatches))
	for i := range apiMatches {
		states = append(states, apiMatches[i].toDomain())
	}
	return states, nil
}

// GetMatchState returns the current snapshot for one match.
func (c *Client) GetMatchState(ctx context.Context, matchID string) (domain.MatchState, error) {
	body, err := c.doGet(ctx, "/matches/"+url.PathEscape(matchID))
	if err != nil {
		return domain.MatchState{}, fmt.Errorf("telemetry: get match %s: %w", matchID, err)
	}

	var m apiMatch
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.MatchState{}, fmt.Errorf("telemetry: decode match: %w", err)
	}
	if m.Status == "finished" {
		return domain.MatchState{}, fmt.Errorf("telemetry: match %s: %w", matchID, domain.ErrMatchEnded)
	}
	return m.toDomain(), nil
}

// apiMatch is the wire representation of a live match snapshot.
type apiMatch struct {
	ID         string `json:"id"`
	Game       string `json:"game"`
	Status     string `json:"status"`
	ElapsedSec int    `json:"elapsed_seconds"`
	Teams      [2]struct {
		Name       string `json:"name"`
		Kills      int    `json:"kills"`
		Gold       int    `json:"gold"`
		Towers     int    `json:"towers"`
		Dragons    int    `json:"dragons"`
		HasBaron   bool   `json:"has_baron"`
		Roshans    int    `json:"roshans"`
		SeriesWins int    `json:"series_wins"`
	} `json:"teams"`
}

func (m *apiMatch) toDomain() domain.MatchState {
	a, b := m.Teams[0], m.Teams[1]
	return domain.MatchState{
		MatchID:     m.ID,
		Game:        domain.Game(m.Game),
		TeamA:       a.Name,
		TeamB:       b.Name,
		ElapsedSec:  m.ElapsedSec,
		KillsA:      a.Kills,
		KillsB:      b.Kills,
		GoldA:       a.Gold,
		GoldB:       b.Gold,
		TowersA:     a.Towers,
		TowersB:     b.Towers,
		DragonsA:    a.Dragons,
		DragonsB:    b.Dragons,
		BaronTeamA:  a.HasBaron,
		BaronTeamB:  b.HasBaron,
		RoshansA:    a.Roshans,
		RoshansB:    b.Roshans,
		SeriesWinsA: a.SeriesWins,
		SeriesWinsB: b.SeriesWins,
		FetchedAt:   time.Now().UTC(),
	}
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %w", err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", err, domain.ErrTransient)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, string(body))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("HTTP 401: %w", domain.ErrFatal)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrTransient)
	default:
		return nil, fmt.Errorf("HTTP %d: %s: %w", resp.StatusCode, string(body), domain.ErrInvalidData)
	}
}
