package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	calendarApp "github.com/felixgeelhaar/tempo/internal/calendar/application"
	"github.com/google/uuid"
)

// Common CalDAV server URLs
const (
	AppleCalDAVURL    = "https://caldav.icloud.com"
	FastmailCalDAVURL = "https://caldav.fastmail.com"
)

// PropXTempo marks events written by tempo.
const PropXTempo = "X-TEMPO"

// calendarClient is the part of *caldav.Client the syncer uses.
type calendarClient interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, homeSet string) ([]caldav.Calendar, error)
	GetCalendarObject(ctx context.Context, path string) (*caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
	RemoveAll(ctx context.Context, name string) error
}

// Syncer syncs plan windows to a CalDAV calendar (Apple Calendar, Fastmail, Nextcloud, etc.).
type Syncer struct {
	baseURL       string
	username      string
	password      string // App-specific password for Apple
	calendarPath  string // Specific calendar path, or empty for default
	logger        *slog.Logger
	deleteMissing bool
	newClient     func() (calendarClient, error)
	now           func() time.Time
}

// NewSyncer creates a CalDAV calendar syncer.
func NewSyncer(baseURL, username, password string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		baseURL:  baseURL,
		username: username,
		password: password,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.newClient = s.dial
	return s
}

// WithDeleteMissing enables deletion of tagged events of the synced day
// that are no longer in the plan.
func (s *Syncer) WithDeleteMissing(enabled bool) *Syncer {
	s.deleteMissing = enabled
	return s
}

// WithCalendarPath sets the specific calendar path to use.
func (s *Syncer) WithCalendarPath(path string) *Syncer {
	s.calendarPath = path
	return s
}

// Sync pushes blocks into the CalDAV calendar, one object per task.
func (s *Syncer) Sync(ctx context.Context, userID uuid.UUID, blocks []calendarApp.TimeBlock) (*calendarApp.SyncResult, error) {
	client, err := s.newClient()
	if err != nil {
		return nil, err
	}

	calPath, err := s.findCalendarPath(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar: %w", err)
	}

	result := &calendarApp.SyncResult{}
	keepPaths := make(map[string]struct{}, len(blocks))

	for _, block := range blocks {
		eventPath := objectPath(calPath, block.ID)
		keepPaths[eventPath] = struct{}{}

		updated, err := s.upsertEvent(ctx, client, eventPath, toICalendar(block, s.now()))
		if err != nil {
			s.logger.Warn("caldav sync failed", "event_path", eventPath, "user_id", userID, "error", err)
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
		deleted, err := s.deleteMissingEvents(ctx, client, calPath, from, to, keepPaths)
		if err != nil {
			s.logger.Warn("caldav delete missing failed", "error", err)
		}
		result.Deleted = deleted
	}

	return result, nil
}

func objectPath(calPath string, id uuid.UUID) string {
	if !strings.HasSuffix(calPath, "/") {
		calPath += "/"
	}
	return calPath + id.String() + ".ics"
}

func (s *Syncer) dial() (calendarClient, error) {
	if s.baseURL == "" {
		return nil, errors.New("caldav url not configured")
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, s.username, s.password), s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return client, nil
}

func (s *Syncer) findCalendarPath(ctx context.Context, client calendarClient) (string, error) {
	if s.calendarPath != "" {
		return s.calendarPath, nil
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", errors.New("no calendars found")
	}

	// First calendar is the default on every server we have seen.
	return cals[0].Path, nil
}

// upsertEvent reports whether the object already existed.
func (s *Syncer) upsertEvent(ctx context.Context, client calendarClient, eventPath string, cal *ical.Calendar) (bool, error) {
	_, err := client.GetCalendarObject(ctx, eventPath)
	exists := err == nil

	if _, err := client.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Syncer) deleteMissingEvents(ctx context.Context, client calendarClient, calPath string, from, to time.Time, keepPaths map[string]struct{}) (int, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{
				{
					Name:  "VEVENT",
					Props: []string{ical.PropUID, PropXTempo},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{Name: "VEVENT", Start: from, End: to},
			},
		},
	}

	objects, err := client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i := range objects {
		obj := &objects[i]
		if !isTempoEvent(obj) {
			continue
		}
		if _, ok := keepPaths[obj.Path]; ok {
			continue
		}
		if err := client.RemoveAll(ctx, obj.Path); err != nil {
			s.logger.Warn("failed to delete caldav event", "path", obj.Path, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// isTempoEvent checks if a calendar object has the X-TEMPO property set.
func isTempoEvent(obj *caldav.CalendarObject) bool {
	if obj == nil || obj.Data == nil {
		return false
	}
	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if props := child.Props[PropXTempo]; len(props) > 0 && props[0].Value == "1" {
			return true
		}
	}
	return false
}

// toICalendar converts a TimeBlock to an ical.Calendar.
func toICalendar(block calendarApp.TimeBlock, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//tempo//Plan Mirror//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, block.ID.String())
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, block.StartTime.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, block.EndTime.UTC())
	event.Props.SetText(ical.PropSummary, block.Title)

	description := fmt.Sprintf("Type: %s", block.BlockType)
	if block.Completed {
		description += "\nStatus: Completed"
	} else if block.Missed {
		description += "\nStatus: Missed"
	}
	description += "\n\nPlanned by tempo"
	event.Props.SetText(ical.PropDescription, description)

	tag := ical.NewProp(PropXTempo)
	tag.Value = "1"
	event.Props[PropXTempo] = []ical.Prop{*tag}

	cal.Children = append(cal.Children, event.Component)
	return cal
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
	return from.UTC().Truncate(24 * time.Hour), to.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}
