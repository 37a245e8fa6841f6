package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/types"
)

// CreateAd starts a generation run for a product brief.
func (c *Client) CreateAd(ctx context.Context, req types.CreateAdRequest) (*types.CreateAdResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: types.ValidationMessage(err), Err: err}
	}

	var resp types.CreateAdResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/ads", body: req, auth: true}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAdStatus returns an ad's status together with its crew status record.
func (c *Client) GetAdStatus(ctx context.Context, runID string) (*types.AdStatusResponse, error) {
	path, err := runPath(runID, "/status")
	if err != nil {
		return nil, err
	}

	var resp types.AdStatusResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: path, auth: true}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchRecord returns the stage record of a run, or nil when the backend has
// not reported any stage yet. It has the progress.FetchFunc signature.
func (c *Client) FetchRecord(ctx context.Context, runID string) (*progress.Record, error) {
	resp, err := c.GetAdStatus(ctx, runID)
	if err != nil {
		return nil, err
	}
	if resp.CrewStatus != nil && resp.CrewStatus.RunID == "" {
		resp.CrewStatus.RunID = runID
	}
	return resp.CrewStatus, nil
}

// GetAd returns one ad.
func (c *Client) GetAd(ctx context.Context, runID string) (*types.Ad, error) {
	path, err := runPath(runID, "")
	if err != nil {
		return nil, err
	}

	var ad types.Ad
	if err := c.do(ctx, request{method: http.MethodGet, path: path, auth: true}, &ad); err != nil {
		return nil, err
	}
	return &ad, nil
}

// UpdateAd changes an ad's status and final video reference.
func (c *Client) UpdateAd(ctx context.Context, runID string, update types.UpdateAdRequest) (*types.Ad, error) {
	path, err := runPath(runID, "")
	if err != nil {
		return nil, err
	}

	var ad types.Ad
	if err := c.do(ctx, request{method: http.MethodPut, path: path, body: update, auth: true}, &ad); err != nil {
		return nil, err
	}
	return &ad, nil
}

// GetVideoURL returns a time-limited playable URL for a generated ad.
func (c *Client) GetVideoURL(ctx context.Context, runID string) (string, error) {
	path, err := runPath(runID, "/video-url")
	if err != nil {
		return "", err
	}

	var resp types.VideoURLResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: path, auth: true}, &resp); err != nil {
		return "", err
	}
	if resp.VideoURL == "" {
		return "", fmt.Errorf("no video URL returned for run %s", runID)
	}
	return resp.VideoURL, nil
}

// ListAds returns the current user's ads. A non-empty statusFilter restricts
// the listing to one status.
func (c *Client) ListAds(ctx context.Context, statusFilter string) ([]types.Ad, error) {
	var query url.Values
	if statusFilter != "" {
		status, err := types.ParseAdStatus(statusFilter)
		if err != nil {
			return nil, &ValidationError{Message: err.Error(), Err: err}
		}
		query = url.Values{"status": {string(status)}}
	}

	var ads []types.Ad
	if err := c.do(ctx, request{method: http.MethodGet, path: "/ads", query: query, auth: true}, &ads); err != nil {
		return nil, err
	}
	return ads, nil
}
