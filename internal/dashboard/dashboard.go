// Package dashboard computes the listings and statistics shown on the
// dashboard and ads pages.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/ad-dashboard/internal/types"
	"golang.org/x/sync/errgroup"
)

// RecentCount is how many ads the dashboard shows as recent.
const RecentCount = 5

// Stats counts ads by status.
type Stats struct {
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
	Generated  int `json:"generated"`
	Failed     int `json:"failed"`
}

// Summarize counts ads by status, ignoring case.
func Summarize(ads []types.Ad) Stats {
	stats := Stats{Total: len(ads)}
	for _, ad := range ads {
		switch {
		case ad.Status.Is(types.AdStatusInProgress):
			stats.InProgress++
		case ad.Status.Is(types.AdStatusGenerated):
			stats.Generated++
		case ad.Status.Is(types.AdStatusFailed):
			stats.Failed++
		}
	}
	return stats
}

// StatusFilter selects ads by status.
type StatusFilter string

// StatusFilter values
const (
	FilterAll        StatusFilter = "all"
	FilterInProgress StatusFilter = "in_progress"
	FilterGenerated  StatusFilter = "generated"
	FilterFailed     StatusFilter = "failed"
)

// ParseFilter parses a filter name. An empty name means all.
func ParseFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterInProgress, FilterGenerated, FilterFailed:
		return f, nil
	default:
		return "", fmt.Errorf("unknown status filter %q (want all, in_progress, generated or failed)", s)
	}
}

// Status returns the ad status the filter selects; false for FilterAll.
func (f StatusFilter) Status() (types.AdStatus, bool) {
	switch f {
	case FilterInProgress:
		return types.AdStatusInProgress, true
	case FilterGenerated:
		return types.AdStatusGenerated, true
	case FilterFailed:
		return types.AdStatusFailed, true
	default:
		return "", false
	}
}

// Filter returns the ads matching f, in their original order.
func Filter(ads []types.Ad, f StatusFilter) []types.Ad {
	status, ok := f.Status()
	out := make([]types.Ad, 0, len(ads))
	for _, ad := range ads {
		if !ok || ad.Status.Is(status) {
			out = append(out, ad)
		}
	}
	return out
}

// Search returns the ads whose name or description contains query, ignoring
// case. An empty query matches everything.
func Search(ads []types.Ad, query string) []types.Ad {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]types.Ad, 0, len(ads))
	for _, ad := range ads {
		if query == "" ||
			strings.Contains(strings.ToLower(ad.Name), query) ||
			strings.Contains(strings.ToLower(ad.Desc), query) {
			out = append(out, ad)
		}
	}
	return out
}

// SortOrder orders ad listings.
type SortOrder string

// SortOrder values
const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortName   SortOrder = "name"
)

// ParseSort parses a sort order name. An empty name means newest first.
func ParseSort(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortName:
		return o, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (want newest, oldest or name)", s)
	}
}

// Sort returns a sorted copy of ads. Ties keep their original order.
func Sort(ads []types.Ad, order SortOrder) []types.Ad {
	out := append([]types.Ad(nil), ads...)
	sort.SliceStable(out, func(i, j int) bool {
		switch order {
		case SortOldest:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case SortName:
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		default:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
	})
	return out
}

// Recent returns up to n ads, newest first.
func Recent(ads []types.Ad, n int) []types.Ad {
	if n <= 0 {
		return []types.Ad{}
	}
	sorted := Sort(ads, SortNewest)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// API is the part of the API client the dashboard needs.
type API interface {
	Me(ctx context.Context) (*types.User, error)
	ListAds(ctx context.Context, statusFilter string) ([]types.Ad, error)
}

// Overview is everything the dashboard page shows.
type Overview struct {
	User   *types.User `json:"user"`
	Stats  Stats       `json:"stats"`
	Recent []types.Ad  `json:"recent_ads"`
}

// Load fetches the user's profile and ads concurrently and summarizes them.
func Load(ctx context.Context, api API) (*Overview, error) {
	g, gctx := errgroup.WithContext(ctx)

	var user *types.User
	var ads []types.Ad
	g.Go(func() error {
		var err error
		if user, err = api.Me(gctx); err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if ads, err = api.ListAds(gctx, ""); err != nil {
			return fmt.Errorf("failed to load ads: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Overview{
		User:   user,
		Stats:  Summarize(ads),
		Recent: Recent(ads, RecentCount),
	}, nil
}

// Query selects and orders ads the way the ads page does.
type Query struct {
	Filter StatusFilter `json:"status"`
	Search string       `json:"search,omitempty"`
	Sort   SortOrder    `json:"sort"`
}

// ParseQuery builds a Query from its textual parts.
func ParseQuery(status, search, order string) (Query, error) {
	filter, err := ParseFilter(status)
	if err != nil {
		return Query{}, err
	}
	sortOrder, err := ParseSort(order)
	if err != nil {
		return Query{}, err
	}
	return Query{Filter: filter, Search: strings.TrimSpace(search), Sort: sortOrder}, nil
}

// Apply filters, searches and sorts ads.
func (q Query) Apply(ads []types.Ad) []types.Ad {
	return Sort(Search(Filter(ads, q.Filter), q.Search), q.Sort)
}

// List fetches the ads selected by q. The status filter is also sent to the
// backend so it can narrow the listing itself.
func List(ctx context.Context, api API, q Query) ([]types.Ad, error) {
	var statusFilter string
	if status, ok := q.Filter.Status(); ok {
		statusFilter = string(status)
	}
	ads, err := api.ListAds(ctx, statusFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to load ads: %w", err)
	}
	return q.Apply(ads), nil
}
