package matchapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/charleschow/cricket-live/internal/events"
)

// GetMatch fetches the full authoritative match record.
func (c *Client) GetMatch(ctx context.Context, matchID string) (*events.RawMatch, error) {
	var m events.RawMatch
	if err := c.get(ctx, "/matches/"+url.PathEscape(matchID), &m); err != nil {
		return nil, fmt.Errorf("get match %s: %w", matchID, err)
	}
	return &m, nil
}
