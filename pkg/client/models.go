package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// DefaultSearchLimit is the number of results SearchModels asks for when
// limit is not positive.
const DefaultSearchLimit = 20

// ModelStatus reports whether a model is loaded into memory.
type ModelStatus struct {
	Loaded       bool    `json:"loaded"`
	CurrentModel *string `json:"current_model"`
}

// LocalModel is a model downloaded to the server's cache.
type LocalModel struct {
	RepoID        string  `json:"repo_id"`
	SizeGB        float64 `json:"size_gb"`
	LastAccessed  string  `json:"last_accessed"`
	Path          string  `json:"path"`
	RevisionCount int     `json:"revision_count"`
}

// RemoteModel is a model available for download.
type RemoteModel struct {
	RepoID    string   `json:"repo_id"`
	Downloads int      `json:"downloads"`
	Likes     int      `json:"likes"`
	SizeGB    *float64 `json:"size_gb"`
	Tags      []string `json:"tags"`
}

// ModelInfo is an entry of the OpenAI-compatible model list.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the OpenAI-compatible model list.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// LoadResponse is returned by LoadModel.
type LoadResponse struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// DownloadResponse is returned by DownloadModel.
type DownloadResponse struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Health is the server health report.
type Health struct {
	Status       string  `json:"status"`
	ModelLoaded  bool    `json:"model_loaded"`
	CurrentModel *string `json:"current_model"`
}

// MessageResponse is the generic acknowledgement body of mutating endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// ModelStatus returns the loaded model, if any.
func (c *Client) ModelStatus(ctx context.Context) (*ModelStatus, error) {
	var out ModelStatus
	if err := c.do(ctx, http.MethodGet, "/models/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLocalModels lists the models downloaded to the server.
func (c *Client) ListLocalModels(ctx context.Context) ([]LocalModel, error) {
	var out []LocalModel
	if err := c.do(ctx, http.MethodGet, "/models/local", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListModels lists the models currently served.
func (c *Client) ListModels(ctx context.Context) (*ModelList, error) {
	var out ModelList
	if err := c.do(ctx, http.MethodGet, "/v1/models", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchModels searches the remote model hub.
func (c *Client) SearchModels(ctx context.Context, query string, limit int) ([]RemoteModel, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	path := fmt.Sprintf("/models/search?q=%s&limit=%d", url.QueryEscape(query), limit)

	var out []RemoteModel
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ModelInfo returns details about a remote model.
func (c *Client) ModelInfo(ctx context.Context, repoID string) (*RemoteModel, error) {
	var out RemoteModel
	if err := c.do(ctx, http.MethodGet, "/models/info/"+url.PathEscape(repoID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadModel loads a model into memory, replacing the current one.
func (c *Client) LoadModel(ctx context.Context, model string) (*LoadResponse, error) {
	var out LoadResponse
	body := map[string]string{"model": model}
	if err := c.do(ctx, http.MethodPost, "/models/load", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnloadModel frees the loaded model.
func (c *Client) UnloadModel(ctx context.Context) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/models/unload", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadModel downloads a model from the hub into the server's cache.
func (c *Client) DownloadModel(ctx context.Context, repoID string) (*DownloadResponse, error) {
	var out DownloadResponse
	body := map[string]string{"repo_id": repoID}
	if err := c.do(ctx, http.MethodPost, "/models/download", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteModel removes a downloaded model.
func (c *Client) DeleteModel(ctx context.Context, repoID string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodDelete, "/models/"+url.PathEscape(repoID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the server health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
