package dolibarr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
)

const (
	partiesEndpoint  = "thirdparties"
	partyScanLimit   = 500
	minSearchWordLen = 2
)

// SearchParties finds third parties by name. Exact (case-insensitive) name
// matches win outright. Otherwise every party whose name contains all the
// search words of at least two characters is returned, closest name first.
func (c *Client) SearchParties(ctx context.Context, name string) ([]Party, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(partyScanLimit))
	var raw []partyJSON
	if err := c.list(ctx, partiesEndpoint, q, &raw); err != nil {
		return nil, fmt.Errorf("failed to list third parties: %w", err)
	}

	var words []string
	for _, w := range strings.Fields(needle) {
		if len(w) >= minSearchWordLen {
			words = append(words, w)
		}
	}

	var exact, partial []Party
	for _, j := range raw {
		p := j.toParty()
		have := strings.ToLower(strings.TrimSpace(p.Name))
		if have == needle {
			exact = append(exact, p)
			continue
		}
		if len(words) > 0 && containsAll(have, words) {
			partial = append(partial, p)
		}
	}

	if len(exact) > 0 {
		return exact, nil
	}

	sort.SliceStable(partial, func(i, k int) bool {
		di := levenshtein.ComputeDistance(needle, strings.ToLower(partial[i].Name))
		dk := levenshtein.ComputeDistance(needle, strings.ToLower(partial[k].Name))
		return di < dk
	})
	c.logger.Debug("party search", "name", name, "matches", len(partial))
	return partial, nil
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

// GetParty fetches one third party
func (c *Client) GetParty(ctx context.Context, id int64) (*Party, error) {
	var j partyJSON
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", partiesEndpoint, id), nil, nil, &j); err != nil {
		return nil, err
	}
	p := j.toParty()
	return &p, nil
}

// CreateParty creates a third party and returns its id
func (c *Client) CreateParty(ctx context.Context, req PartyRequest) (int64, error) {
	if strings.TrimSpace(req.Name) == "" {
		return 0, fmt.Errorf("party name is required")
	}
	id, err := c.create(ctx, partiesEndpoint, req.body())
	if err != nil {
		return 0, fmt.Errorf("failed to create party %q: %w", req.Name, err)
	}
	c.logger.Info("party created", "party_id", id, "name", req.Name)
	return id, nil
}
