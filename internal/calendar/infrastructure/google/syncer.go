package google

import (
	"bytes"
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

	calendarApp "github.com/felixgeelhaar/tempo/internal/calendar/application"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"

	// tagProperty marks events written by tempo so delete-missing never
	// touches anything else.
	tagProperty = "tempo"
)

// Syncer syncs plan windows to Google Calendar.
type Syncer struct {
	tokens        oauth2.TokenSource
	logger        *slog.Logger
	baseURL       string
	deleteMissing bool
	calendarID    string
	reminders     []int
	httpTimeout   time.Duration
}

// NewSyncer creates a Google Calendar syncer.
func NewSyncer(tokens oauth2.TokenSource, logger *slog.Logger) *Syncer {
	return NewSyncerWithBaseURL(tokens, logger, defaultBaseURL)
}

// NewSyncerWithBaseURL creates a Google Calendar syncer with a custom base URL.
func NewSyncerWithBaseURL(tokens oauth2.TokenSource, logger *slog.Logger, baseURL string) *Syncer {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		tokens:      tokens,
		logger:      logger,
		baseURL:     strings.TrimRight(baseURL, "/"),
		calendarID:  "primary",
		httpTimeout: 15 * time.Second,
	}
}

// StaticTokenSource wraps a long-lived access token.
func StaticTokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

// WithDeleteMissing removes tagged events of the synced day that are no
// longer in the plan.
func (s *Syncer) WithDeleteMissing(enabled bool) *Syncer {
	s.deleteMissing = enabled
	return s
}

// WithCalendarID sets the calendar ID for sync.
func (s *Syncer) WithCalendarID(calendarID string) *Syncer {
	if calendarID != "" {
		s.calendarID = calendarID
	}
	return s
}

// WithReminders sets popup reminder minutes for synced events.
func (s *Syncer) WithReminders(reminders []int) *Syncer {
	s.reminders = reminders
	return s
}

// Sync upserts each block by its task ID.
func (s *Syncer) Sync(ctx context.Context, userID uuid.UUID, blocks []calendarApp.TimeBlock) (*calendarApp.SyncResult, error) {
	if s.tokens == nil {
		return nil, errors.New("google calendar token not configured")
	}
	token, err := s.tokens.Token()
	if err != nil {
		s.logger.Warn("oauth token refresh failed", "error", err)
		return nil, err
	}
	if !token.Expiry.IsZero() && time.Until(token.Expiry) < 24*time.Hour {
		s.logger.Warn("oauth token nearing expiry", "expires_at", token.Expiry)
	}

	client := &http.Client{
		Timeout: s.httpTimeout,
		Transport: &oauth2.Transport{
			Base:   http.DefaultTransport,
			Source: s.tokens,
		},
	}

	result := &calendarApp.SyncResult{}
	keepIDs := make(map[string]struct{}, len(blocks))
	for _, block := range blocks {
		event := toGoogleEvent(block, s.reminders)
		keepIDs[event.ID] = struct{}{}
		updated, err := s.upsertEvent(ctx, client, event)
		if err != nil {
			s.logger.Warn("calendar sync failed", "event_id", event.ID, "user_id", userID, "error", err)
			result.Failed++
			continue
		}
		if updated {
			result.Updated++
		} else {
			result.Created++
		}
	}

	if s.deleteMissing && len(blocks) > 0 {
		from, to := dayBounds(blocks)
		deleted, err := s.deleteMissingEvents(ctx, client, from, to, keepIDs)
		if err != nil {
			s.logger.Warn("calendar delete missing failed", "error", err)
		}
		result.Deleted = deleted
	}

	return result, nil
}

type googleEvent struct {
	ID                 string `json:"id,omitempty"`
	Summary            string `json:"summary"`
	Description        string `json:"description,omitempty"`
	ExtendedProperties struct {
		Private map[string]string `json:"private,omitempty"`
	} `json:"extendedProperties"`
	Reminders struct {
		UseDefault bool             `json:"useDefault"`
		Overrides  []googleReminder `json:"overrides,omitempty"`
	} `json:"reminders"`
	Start googleTime `json:"start"`
	End   googleTime `json:"end"`
}

type googleReminder struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type googleTime struct {
	DateTime string `json:"dateTime"`
}

// EventID maps a task ID to a valid Google event id. Google accepts
// base32hex characters only, which lowercase hex without dashes is.
func EventID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

func toGoogleEvent(block calendarApp.TimeBlock, reminders []int) googleEvent {
	event := googleEvent{
		ID:          EventID(block.ID),
		Summary:     block.Title,
		Description: describe(block),
	}
	event.ExtendedProperties.Private = map[string]string{tagProperty: "1"}
	event.Start.DateTime = block.StartTime.UTC().Format(time.RFC3339)
	event.End.DateTime = block.EndTime.UTC().Format(time.RFC3339)

	event.Reminders.UseDefault = true
	for _, minutes := range reminders {
		if minutes <= 0 {
			continue
		}
		event.Reminders.Overrides = append(event.Reminders.Overrides, googleReminder{Method: "popup", Minutes: minutes})
	}
	if len(event.Reminders.Overrides) > 0 {
		event.Reminders.UseDefault = false
	}
	return event
}

func describe(block calendarApp.TimeBlock) string {
	description := fmt.Sprintf("Type: %s", block.BlockType)
	if block.Completed {
		description += "\nStatus: Completed"
	} else if block.Missed {
		description += "\nStatus: Missed"
	}
	return description + "\n\nPlanned by tempo"
}

// upsertEvent inserts the event and falls back to an update when Google
// reports the id as taken.
func (s *Syncer) upsertEvent(ctx context.Context, client *http.Client, event googleEvent) (bool, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return false, err
	}

	insertURL := fmt.Sprintf("%s/calendars/%s/events", s.baseURL, url.PathEscape(s.calendarID))
	status, err := s.send(ctx, client, http.MethodPost, insertURL, body)
	if err != nil {
		return false, err
	}
	if status != http.StatusConflict {
		return false, nil
	}

	if _, err := s.send(ctx, client, http.MethodPut, insertURL+"/"+event.ID, body); err != nil {
		return false, err
	}
	return true, nil
}

// send returns the status of a 2xx or 409 response and an error otherwise.
func (s *Syncer) send(ctx context.Context, client *http.Client, method, target string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict && method == http.MethodPost {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, responseError(resp)
	}
	return resp.StatusCode, nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("calendar sync failed: status=%d body=%s", resp.StatusCode, string(body))
}

// deleteMissingEvents removes tagged events between from and to whose id
// is not in keepIDs.
func (s *Syncer) deleteMissingEvents(ctx context.Context, client *http.Client, from, to time.Time, keepIDs map[string]struct{}) (int, error) {
	query := url.Values{}
	query.Set("privateExtendedProperty", tagProperty+"=1")
	query.Set("timeMin", from.UTC().Format(time.RFC3339))
	query.Set("timeMax", to.UTC().Format(time.RFC3339))
	query.Set("singleEvents", "true")
	eventsURL := fmt.Sprintf("%s/calendars/%s/events", s.baseURL, url.PathEscape(s.calendarID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, eventsURL+"?"+query.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, responseError(resp)
	}

	var list struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return 0, err
	}

	deleted := 0
	for _, item := range list.Items {
		if _, ok := keepIDs[item.ID]; ok {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, eventsURL+"/"+item.ID, nil)
		if err != nil {
			return deleted, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return deleted, err
		}
		_ = resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusGone:
			deleted++
		default:
			return deleted, fmt.Errorf("delete event %s: status=%d", item.ID, resp.StatusCode)
		}
	}
	return deleted, nil
}

// dayBounds spans the UTC days the blocks touch.
func dayBounds(blocks []calendarApp.TimeBlock) (time.Time, time.Time) {
	from, to := blocks[0].StartTime, blocks[0].EndTime
	for _, b := range blocks[1:] {
		if b.StartTime.Before(from) {
			from = b.StartTime
		}
		if b.EndTime.After(to) {
			to = b.EndTime
		}
	}
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	return from, to
}
