package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/pkg/requestid"
)

// BuildServerClient is an HTTP client for the build server API
type BuildServerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBuildServerClient(baseURL string, timeout time.Duration) *BuildServerClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &BuildServerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non 2xx answer of the build server.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("build server returned status %d: %s (request id %s)", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("build server returned status %d: %s", e.StatusCode, e.Message)
}

func (c *BuildServerClient) RegisterJob(ctx context.Context, req api.RegisterJobRequest) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs/register", nil, req, http.StatusCreated, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *BuildServerClient) GetJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+id.String(), nil, nil, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs lists the most recent jobs, or the latest terminal job of every repository when latest is set.
// A zero limit lets the server pick its default.
func (c *BuildServerClient) ListJobs(ctx context.Context, limit int, latest bool) (api.JobList, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if latest {
		query.Set("latest", "true")
	}

	var jobs api.JobList
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs", query, nil, http.StatusOK, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *BuildServerClient) UpdateJobStatus(ctx context.Context, id uuid.UUID, update api.JobStatusUpdate) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodPatch, "/api/v1/jobs/"+id.String(), nil, update, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *BuildServerClient) RecordArtifacts(ctx context.Context, id uuid.UUID, reports api.ArtifactReportList) (api.ArtifactList, error) {
	var list api.ArtifactList
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+id.String()+"/artifacts", nil, reports, http.StatusCreated, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *BuildServerClient) ListArtifacts(ctx context.Context, repositoryURL, commitHash string) (api.ArtifactList, error) {
	query := url.Values{}
	if repositoryURL != "" {
		query.Set("repository_url", repositoryURL)
	}
	if commitHash != "" {
		query.Set("commit_hash", commitHash)
	}

	var list api.ArtifactList
	if err := c.do(ctx, http.MethodGet, "/api/v1/artifacts", query, nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *BuildServerClient) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK, nil)
}

func (c *BuildServerClient) do(ctx context.Context, method, path string, query url.Values, in any, want int, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if requestid.FromContext(ctx) == "" {
		httpReq.Header.Set(requestid.Header, requestid.Generate())
	} else {
		requestid.Propagate(ctx, httpReq)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call build server: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
		var e api.Error
		if json.Unmarshal(bodyBytes, &e) == nil && e.Message != "" {
			apiErr.Message = e.Message
			if e.RequestId != nil {
				apiErr.RequestID = *e.RequestId
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
