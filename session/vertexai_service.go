// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/auth/httptransport"
	"github.com/bytedance/sonic"

	"google.golang.org/genai"

	"github.com/go-a2a/sessionstore/internal/pool"
	"github.com/go-a2a/sessionstore/types"
)

// APIClient is the transport used by [VertexAIService] to reach the managed
// session API. It is injectable for tests.
type APIClient interface {
	// Request performs a single API call against the given resource path,
	// relative to the service's location endpoint, and returns the decoded
	// JSON response.
	Request(ctx context.Context, httpMethod, path string, body map[string]any) (map[string]any, error)
}

// VertexAIService connects to the managed Vertex AI session service.
//
// It implements the same contract as the other backends with a deliberately
// weaker consistency model: the caller's in-memory session is authoritative,
// and committed events are mirrored to the remote API on a best-effort basis.
// Mirroring failures are logged and swallowed; create/get/delete failures
// propagate.
type VertexAIService struct {
	project  string
	location string

	client APIClient
	logger *slog.Logger

	pollInterval    time.Duration
	maxPollAttempts int

	// mirrors tracks in-flight best-effort event mirroring, drained by Close.
	mirrors sync.WaitGroup
}

var _ types.SessionService = (*VertexAIService)(nil)

// NewVertexAIService creates a new [VertexAIService].
//
// Without [WithAPIClient], a REST client authenticated through Application
// Default Credentials is used.
func NewVertexAIService(ctx context.Context, project, location string, opts ...ServiceOption) (*VertexAIService, error) {
	if project == "" {
		return nil, types.ValidationError("project is required")
	}
	if location == "" {
		return nil, types.ValidationError("location is required")
	}

	o := applyOptions(opts)

	s := &VertexAIService{
		project:         project,
		location:        location,
		client:          o.apiClient,
		logger:          o.logger,
		pollInterval:    o.pollInterval,
		maxPollAttempts: o.maxPollAttempts,
	}

	if s.client == nil {
		client, err := newRESTAPIClient(ctx, project, location, o.httpClient)
		if err != nil {
			return nil, err
		}
		s.client = client
	}

	return s, nil
}

// CreateSession creates a new session on the managed service.
//
// The create call returns a long-running operation that is polled with a
// bounded budget; exhausting the budget surfaces [types.ErrOperationTimeout].
// User-provided session IDs are not supported by the managed service.
func (s *VertexAIService) CreateSession(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*types.Session, error) {
	if sessionID != "" {
		return nil, types.ValidationError("user-provided session id is not supported by the Vertex AI session service")
	}

	engineID, err := parseReasoningEngineID(appName)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"user_id": userID}
	if state != nil {
		body["session_state"] = state
	}

	resp, err := s.client.Request(ctx, http.MethodPost, fmt.Sprintf("reasoningEngines/%s/sessions", engineID), body)
	if err != nil {
		return nil, err
	}

	// The operation name ends with .../sessions/{sessionID}/operations/{operationID}.
	name := stringValue(resp, "name")
	parts := strings.Split(name, "/")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: malformed operation name %q", types.ErrBackendUnavailable, name)
	}
	sessionID = parts[len(parts)-3]
	operationID := parts[len(parts)-1]

	s.logger.InfoContext(ctx, "Creating session",
		slog.String("app_name", appName),
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
		slog.String("operation_id", operationID),
	)

	if err := s.waitOperation(ctx, operationID); err != nil {
		return nil, err
	}

	getResp, err := s.client.Request(ctx, http.MethodGet, fmt.Sprintf("reasoningEngines/%s/sessions/%s", engineID, sessionID), nil)
	if err != nil {
		return nil, err
	}

	updateTime := timeValue(getResp, "updateTime")
	sessionState, _ := getResp["sessionState"].(map[string]any)

	return types.NewSession(appName, userID, sessionID, sessionState, updateTime), nil
}

// waitOperation polls the long-running operation until it reports done,
// honoring context cancellation between polls.
func (s *VertexAIService) waitOperation(ctx context.Context, operationID string) error {
	for attempt := 0; attempt < s.maxPollAttempts; attempt++ {
		resp, err := s.client.Request(ctx, http.MethodGet, "operations/"+operationID, nil)
		if err != nil {
			return err
		}
		if done, _ := resp["done"].(bool); done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}

	return fmt.Errorf("%w: operation %s not done after %d attempts", types.ErrOperationTimeout, operationID, s.maxPollAttempts)
}

// GetSession retrieves a session and its committed events from the managed
// service.
func (s *VertexAIService) GetSession(ctx context.Context, appName, userID, sessionID string, config *types.GetSessionConfig) (*types.Session, error) {
	engineID, err := parseReasoningEngineID(appName)
	if err != nil {
		return nil, err
	}

	getResp, err := s.client.Request(ctx, http.MethodGet, fmt.Sprintf("reasoningEngines/%s/sessions/%s", engineID, sessionID), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: session %s for user %s in app %s", types.ErrSessionNotFound, sessionID, userID, appName)
		}
		return nil, err
	}

	updateTime := timeValue(getResp, "updateTime")
	sessionState, _ := getResp["sessionState"].(map[string]any)
	sess := types.NewSession(appName, userID, sessionID, sessionState, updateTime)

	eventsResp, err := s.client.Request(ctx, http.MethodGet, fmt.Sprintf("reasoningEngines/%s/sessions/%s/events", engineID, sessionID), nil)
	if err != nil {
		return nil, err
	}

	for _, raw := range sliceValue(eventsResp, "sessionEvents") {
		apiEvent, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		event, err := eventFromAPI(apiEvent)
		if err != nil {
			return nil, err
		}
		// Events newer than the session's update time belong to an append
		// that has not materialized yet.
		if !updateTime.IsZero() && event.Timestamp.After(updateTime) {
			continue
		}
		sess.Events = append(sess.Events, event)
	}
	sort.SliceStable(sess.Events, func(i, j int) bool {
		return sess.Events[i].Timestamp.Before(sess.Events[j].Timestamp)
	})

	if config != nil {
		if !config.AfterTimestamp.IsZero() {
			sess.Events = sess.EventsAfter(config.AfterTimestamp)
		}
		if config.NumRecentEvents > 0 {
			sess.Events = sess.RecentEvents(config.NumRecentEvents)
		}
	}

	return sess, nil
}

// ListSessions lists the user's sessions as summaries without state or events.
func (s *VertexAIService) ListSessions(ctx context.Context, appName, userID string) ([]*types.Session, error) {
	engineID, err := parseReasoningEngineID(appName)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Request(ctx, http.MethodGet, fmt.Sprintf("reasoningEngines/%s/sessions?filter=user_id=%s", engineID, userID), nil)
	if err != nil {
		return nil, err
	}

	var sessions []*types.Session
	for _, raw := range sliceValue(resp, "sessions") {
		apiSession, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringValue(apiSession, "name")
		parts := strings.Split(name, "/")
		sessions = append(sessions, types.NewSession(appName, userID, parts[len(parts)-1], nil, timeValue(apiSession, "updateTime")))
	}

	return sessions, nil
}

// DeleteSession deletes a session on the managed service. Deleting an absent
// session is a no-op.
func (s *VertexAIService) DeleteSession(ctx context.Context, appName, userID, sessionID string) error {
	engineID, err := parseReasoningEngineID(appName)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Deleting session",
		slog.String("app_name", appName),
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)

	if _, err := s.client.Request(ctx, http.MethodDelete, fmt.Sprintf("reasoningEngines/%s/sessions/%s", engineID, sessionID), nil); err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

// AppendEvent appends an event to the caller's session and mirrors it to the
// managed service.
//
// The in-memory update is synchronous and authoritative for the caller; the
// remote mirror is asynchronous and best-effort, so a mirroring failure never
// fails the append. Close drains in-flight mirrors.
func (s *VertexAIService) AppendEvent(ctx context.Context, sess *types.Session, event *types.Event) (*types.Event, error) {
	if event.ID == "" {
		event.ID = types.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if event.Partial {
		sess.AddEvent(event)
		return event, nil
	}

	ds := types.SplitDelta(event.StateDelta())
	sess.State.Update(types.MergeState(ds.App, ds.User, ds.Session))
	sess.AddEvent(event)
	sess.LastUpdateTime = event.Timestamp

	engineID, err := parseReasoningEngineID(sess.AppName)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("reasoningEngines/%s/sessions/%s:appendEvent", engineID, sess.ID)
	body := eventToAPI(event)

	mirrorCtx := context.WithoutCancel(ctx)
	s.mirrors.Add(1)
	go func() {
		defer s.mirrors.Done()
		if _, err := s.client.Request(mirrorCtx, http.MethodPost, path, body); err != nil {
			s.logger.WarnContext(mirrorCtx, "Failed to mirror event to Vertex AI",
				slog.String("app_name", sess.AppName),
				slog.String("session_id", sess.ID),
				slog.String("event_id", event.ID),
				slog.Any("error", err),
			)
		}
	}()

	return event, nil
}

// ListEvents lists the committed events of a session on the managed service.
func (s *VertexAIService) ListEvents(ctx context.Context, appName, userID, sessionID string) (*types.ListEventsResponse, error) {
	engineID, err := parseReasoningEngineID(appName)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Request(ctx, http.MethodGet, fmt.Sprintf("reasoningEngines/%s/sessions/%s/events", engineID, sessionID), nil)
	if err != nil {
		return nil, err
	}

	out := &types.ListEventsResponse{}
	for _, raw := range sliceValue(resp, "sessionEvents") {
		apiEvent, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		event, err := eventFromAPI(apiEvent)
		if err != nil {
			return nil, err
		}
		out.Events = append(out.Events, event)
	}

	return out, nil
}

// Close waits for in-flight event mirroring to finish.
func (s *VertexAIService) Close() error {
	s.mirrors.Wait()
	return nil
}

// reasoningEngineRe matches a full reasoning engine resource name.
var reasoningEngineRe = regexp.MustCompile(`^projects/([a-zA-Z0-9-_]+)/locations/([a-zA-Z0-9-_]+)/reasoningEngines/(\d+)$`)

// digitsRe matches a bare reasoning engine id.
var digitsRe = regexp.MustCompile(`^\d+$`)

// parseReasoningEngineID extracts the reasoning engine id from an app name,
// which is either the bare id or the full resource name.
func parseReasoningEngineID(appName string) (string, error) {
	if digitsRe.MatchString(appName) {
		return appName, nil
	}

	m := reasoningEngineRe.FindStringSubmatch(appName)
	if m == nil {
		return "", types.ValidationError(fmt.Sprintf(
			"app name %q is not valid; it should either be the full ReasoningEngine resource name, or the reasoning engine id", appName))
	}
	return m[3], nil
}

// eventToAPI converts an event to the managed service's wire shape.
func eventToAPI(event *types.Event) map[string]any {
	metadata := map[string]any{
		"partial":       event.Partial,
		"turn_complete": event.TurnComplete,
		"interrupted":   event.Interrupted,
	}
	if event.Branch != "" {
		metadata["branch"] = event.Branch
	}
	if len(event.LongRunningToolIDs) > 0 {
		metadata["long_running_tool_ids"] = event.LongRunningToolIDs
	}
	if len(event.GroundingMetadata) > 0 {
		metadata["grounding_metadata"] = event.GroundingMetadata
	}

	out := map[string]any{
		"author":        event.Author,
		"invocation_id": event.InvocationID,
		"timestamp": map[string]any{
			"seconds": event.Timestamp.Unix(),
			"nanos":   event.Timestamp.Nanosecond(),
		},
		"event_metadata": metadata,
	}
	if event.ErrorCode != "" {
		out["error_code"] = event.ErrorCode
	}
	if event.ErrorMessage != "" {
		out["error_message"] = event.ErrorMessage
	}

	if event.Actions != nil {
		out["actions"] = map[string]any{
			"skip_summarization": event.Actions.SkipSummarization,
			"state_delta":        event.Actions.StateDelta,
			"artifact_delta":     event.Actions.ArtifactDelta,
			"transfer_agent":     event.Actions.TransferToAgent,
			"escalate":           event.Actions.Escalate,
		}
	}

	if event.Content != nil {
		out["content"] = contentToAPI(event.Content)
	}

	return out
}

// contentToAPI converts content to the wire shape, base64-encoding inline
// data.
func contentToAPI(content *genai.Content) map[string]any {
	parts := make([]map[string]any, 0, len(content.Parts))
	for _, part := range content.Parts {
		p := map[string]any{}
		if part.Text != "" {
			p["text"] = part.Text
		}
		if part.InlineData != nil {
			p["inline_data"] = map[string]any{
				"data":      base64.StdEncoding.EncodeToString(part.InlineData.Data),
				"mime_type": part.InlineData.MIMEType,
			}
		}
		parts = append(parts, p)
	}

	return map[string]any{
		"role":  content.Role,
		"parts": parts,
	}
}

// eventFromAPI converts a managed-service event to a [types.Event].
func eventFromAPI(apiEvent map[string]any) (*types.Event, error) {
	name := stringValue(apiEvent, "name")
	nameParts := strings.Split(name, "/")

	event := &types.Event{
		ID:           nameParts[len(nameParts)-1],
		InvocationID: stringValue(apiEvent, "invocationId"),
		Author:       stringValue(apiEvent, "author"),
		Timestamp:    timeValue(apiEvent, "timestamp"),
		ErrorCode:    stringValue(apiEvent, "errorCode"),
		ErrorMessage: stringValue(apiEvent, "errorMessage"),
	}

	if actions, ok := apiEvent["actions"].(map[string]any); ok {
		event.Actions = &types.EventActions{
			StateDelta:      mapValue(actions, "stateDelta"),
			TransferToAgent: stringValue(actions, "transferAgent"),
		}
		event.Actions.SkipSummarization, _ = actions["skipSummarization"].(bool)
		event.Actions.Escalate, _ = actions["escalate"].(bool)
		if artifacts, ok := actions["artifactDelta"].(map[string]any); ok {
			event.Actions.ArtifactDelta = make(map[string]int, len(artifacts))
			for k, v := range artifacts {
				if f, ok := v.(float64); ok {
					event.Actions.ArtifactDelta[k] = int(f)
				}
			}
		}
	}

	if metadata, ok := apiEvent["eventMetadata"].(map[string]any); ok {
		event.Partial, _ = metadata["partial"].(bool)
		event.TurnComplete, _ = metadata["turnComplete"].(bool)
		event.Interrupted, _ = metadata["interrupted"].(bool)
		event.Branch = stringValue(metadata, "branch")
		event.GroundingMetadata = mapValue(metadata, "groundingMetadata")
		for _, id := range sliceValue(metadata, "longRunningToolIds") {
			if str, ok := id.(string); ok {
				event.LongRunningToolIDs = append(event.LongRunningToolIDs, str)
			}
		}
	}

	if content, ok := apiEvent["content"].(map[string]any); ok {
		decoded, err := contentFromAPI(content)
		if err != nil {
			return nil, err
		}
		event.Content = decoded
	}

	return event, nil
}

// contentFromAPI converts wire content back to genai content, decoding
// base64 inline data to raw bytes.
func contentFromAPI(apiContent map[string]any) (*genai.Content, error) {
	content := &genai.Content{Role: stringValue(apiContent, "role")}

	for _, raw := range sliceValue(apiContent, "parts") {
		apiPart, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		part := &genai.Part{Text: stringValue(apiPart, "text")}
		if inline, ok := apiPart["inline_data"].(map[string]any); ok {
			data, err := base64.StdEncoding.DecodeString(stringValue(inline, "data"))
			if err != nil {
				return nil, fmt.Errorf("decode inline data: %w", err)
			}
			part.InlineData = &genai.Blob{
				Data:     data,
				MIMEType: stringValue(inline, "mime_type"),
			}
		}
		content.Parts = append(content.Parts, part)
	}

	return content, nil
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapValue(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func sliceValue(m map[string]any, key string) []any {
	v, _ := m[key].([]any)
	return v
}

// timeValue parses a timestamp field that is either an RFC 3339 string or a
// {seconds, nanos} object.
func timeValue(m map[string]any, key string) time.Time {
	switch v := m[key].(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	case map[string]any:
		seconds, _ := v["seconds"].(float64)
		nanos, _ := v["nanos"].(float64)
		return time.Unix(int64(seconds), int64(nanos))
	default:
		return time.Time{}
	}
}

// apiError reports a non-2xx response from the managed service.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("vertex ai session api: status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.status == http.StatusNotFound
}

// restAPIClient is the production [APIClient] on the Vertex AI REST surface.
type restAPIClient struct {
	httpClient *http.Client
	baseURL    string
}

// newRESTAPIClient builds a REST client authenticated via Application
// Default Credentials.
func newRESTAPIClient(ctx context.Context, project, location string, httpClient *http.Client) (*restAPIClient, error) {
	if httpClient == nil {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes: []string{"https://www.googleapis.com/auth/cloud-platform"},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: detect credentials: %v", types.ErrBackendUnavailable, err)
		}
		httpClient, err = httptransport.NewClient(&httptransport.Options{
			Credentials: creds,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: build authenticated client: %v", types.ErrBackendUnavailable, err)
		}
	}

	return &restAPIClient{
		httpClient: httpClient,
		baseURL: fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1beta1/projects/%s/locations/%s",
			location, project, location),
	}, nil
}

// Request implements [APIClient].
func (c *restAPIClient) Request(ctx context.Context, httpMethod, path string, body map[string]any) (map[string]any, error) {
	var reqBody io.Reader
	if body != nil {
		buf := pool.Buffer.Get()
		defer func() {
			buf.Reset()
			pool.Buffer.Put(buf)
		}()
		if err := sonic.ConfigFastest.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(buf.Bytes())
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+"/"+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", types.ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apiError{status: resp.StatusCode, body: string(respBody)}
	}

	result := map[string]any{}
	if len(respBody) > 0 {
		if err := sonic.ConfigFastest.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("decode response body: %w", err)
		}
	}

	return result, nil
}
