// Package todoist reads tasks from the Todoist REST API.
package todoist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	tasksyncApp "github.com/felixgeelhaar/tempo/internal/tasksync/application"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// SourceName prefixes the engine IDs of imported tasks.
	SourceName = "todoist"

	DefaultBaseURL      = "https://api.todoist.com/rest/v2"
	DefaultCompletedURL = "https://api.todoist.com/sync/v9/completed/get_all"

	// completedLookback bounds how far back completions are reconciled.
	completedLookback = 48 * time.Hour
)

// Source implements tasksync.Source over Todoist.
type Source struct {
	client       *http.Client
	baseURL      string
	completedURL string
	logger       *slog.Logger
	now          func() time.Time
}

// NewSource authenticates every request with tokens.
func NewSource(tokens oauth2.TokenSource, baseURL string, logger *slog.Logger) *Source {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: &oauth2.Transport{Source: tokens, Base: http.DefaultTransport},
		},
		baseURL:      strings.TrimRight(baseURL, "/"),
		completedURL: DefaultCompletedURL,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// NewTokenSource wraps a personal API token.
func NewTokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// WithCompletedURL overrides the completed-items endpoint.
func (s *Source) WithCompletedURL(completedURL string) *Source {
	if completedURL != "" {
		s.completedURL = completedURL
	}
	return s
}

func (s *Source) Name() string { return SourceName }

type todoistTask struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Priority    int    `json:"priority"`
	ProjectID   string `json:"project_id"`
	IsCompleted bool   `json:"is_completed"`
	Due         *struct {
		Date     string `json:"date"`
		Datetime string `json:"datetime"`
	} `json:"due"`
	Duration *struct {
		Amount int    `json:"amount"`
		Unit   string `json:"unit"`
	} `json:"duration"`
}

type todoistProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListTasks returns the active tasks plus the ones completed recently, so
// completions made in Todoist can be reconciled into the plan.
func (s *Source) ListTasks(ctx context.Context, userID uuid.UUID) ([]tasksyncApp.ExternalTask, error) {
	var active []todoistTask
	if err := s.get(ctx, s.baseURL+"/tasks", &active); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	projects := map[string]string{}
	var list []todoistProject
	if err := s.get(ctx, s.baseURL+"/projects", &list); err != nil {
		s.logger.WarnContext(ctx, "todoist projects unavailable", "user_id", userID, "error", err)
	}
	for _, p := range list {
		projects[p.ID] = p.Name
	}

	tasks := make([]tasksyncApp.ExternalTask, 0, len(active))
	for _, t := range active {
		tasks = append(tasks, toExternal(t, projects))
	}

	completed, err := s.completed(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "todoist completed items unavailable", "user_id", userID, "error", err)
		return tasks, nil
	}
	return append(tasks, completed...), nil
}

func (s *Source) completed(ctx context.Context) ([]tasksyncApp.ExternalTask, error) {
	query := url.Values{}
	query.Set("since", s.now().Add(-completedLookback).Format("2006-01-02T15:04:05"))
	query.Set("limit", "200")

	var payload struct {
		Items []struct {
			TaskID      string    `json:"task_id"`
			Content     string    `json:"content"`
			CompletedAt time.Time `json:"completed_at"`
		} `json:"items"`
	}
	if err := s.get(ctx, s.completedURL+"?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	out := make([]tasksyncApp.ExternalTask, 0, len(payload.Items))
	for _, item := range payload.Items {
		completedAt := item.CompletedAt.UTC()
		out = append(out, tasksyncApp.ExternalTask{
			ID:          item.TaskID,
			Title:       item.Content,
			Completed:   true,
			CompletedAt: &completedAt,
		})
	}
	return out, nil
}

func (s *Source) get(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("todoist returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode todoist response: %w", err)
	}
	return nil
}

func toExternal(t todoistTask, projects map[string]string) tasksyncApp.ExternalTask {
	ext := tasksyncApp.ExternalTask{
		ID:               t.ID,
		Title:            t.Content,
		Priority:         MapPriority(t.Priority),
		EstimatedMinutes: estimateMinutes(t),
		Project:          projects[t.ProjectID],
		Completed:        t.IsCompleted,
	}
	if t.Due != nil {
		if due, err := parseDue(t.Due.Datetime, t.Due.Date); err == nil {
			ext.DueDate = &due
		}
	}
	return ext
}

// MapPriority converts Todoist's scale, where 4 is urgent, to the engine's,
// where 1 is.
func MapPriority(p int) int {
	if p < 1 || p > 4 {
		return 3
	}
	return 5 - p
}

func estimateMinutes(t todoistTask) int {
	if t.Duration == nil || t.Duration.Amount <= 0 {
		return tasksyncApp.DefaultEstimateMinutes
	}
	if t.Duration.Unit == "day" {
		// A day-long Todoist task is a full working day here.
		return t.Duration.Amount * 8 * 60
	}
	return t.Duration.Amount
}

var errNoDue = errors.New("no due date")

func parseDue(datetime, date string) (time.Time, error) {
	if datetime != "" {
		if t, err := time.Parse(time.RFC3339, datetime); err == nil {
			return t.UTC(), nil
		}
		// Floating due times carry no offset.
		if t, err := time.Parse("2006-01-02T15:04:05", datetime); err == nil {
			return t.UTC(), nil
		}
	}
	if date != "" {
		return time.Parse(time.DateOnly, date)
	}
	return time.Time{}, errNoDue
}
