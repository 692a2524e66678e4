package caldav

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	calendarApp "github.com/felixgeelhaar/tempo/internal/calendar/application"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calendars []caldav.Calendar
	objects   map[string]*ical.Calendar
	putErr    map[string]error
	removed   []string
	query     *caldav.CalendarQuery
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calendars: []caldav.Calendar{{Path: "/cal/work/", Name: "Work"}, {Path: "/cal/home/", Name: "Home"}},
		objects:   map[string]*ical.Calendar{},
		putErr:    map[string]error{},
	}
}

func (f *fakeClient) FindCurrentUserPrincipal(context.Context) (string, error) {
	return "/principals/me/", nil
}

func (f *fakeClient) FindCalendarHomeSet(context.Context, string) (string, error) {
	return "/cal/", nil
}

func (f *fakeClient) FindCalendars(context.Context, string) ([]caldav.Calendar, error) {
	return f.calendars, nil
}

func (f *fakeClient) GetCalendarObject(_ context.Context, path string) (*caldav.CalendarObject, error) {
	cal, ok := f.objects[path]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return &caldav.CalendarObject{Path: path, Data: cal}, nil
}

func (f *fakeClient) PutCalendarObject(_ context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error) {
	if err := f.putErr[path]; err != nil {
		return nil, err
	}
	f.objects[path] = cal
	return &caldav.CalendarObject{Path: path, Data: cal}, nil
}

func (f *fakeClient) QueryCalendar(_ context.Context, _ string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error) {
	f.query = query
	out := make([]caldav.CalendarObject, 0, len(f.objects))
	for path, cal := range f.objects {
		out = append(out, caldav.CalendarObject{Path: path, Data: cal})
	}
	return out, nil
}

func (f *fakeClient) RemoveAll(_ context.Context, name string) error {
	f.removed = append(f.removed, name)
	delete(f.objects, name)
	return nil
}

func newTestSyncer(client *fakeClient) *Syncer {
	s := NewSyncer("https://caldav.example.com", "user", "pass", nil)
	s.newClient = func() (calendarClient, error) { return client, nil }
	s.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	return s
}

func block(id uuid.UUID, hour int) calendarApp.TimeBlock {
	start := time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC)
	return calendarApp.TimeBlock{
		ID:        id,
		Title:     "Deep work",
		BlockType: "task",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}
}

func foreignEvent() *ical.Calendar {
	cal := ical.NewCalendar()
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, "dentist")
	cal.Children = append(cal.Children, event.Component)
	return cal
}

func TestSyncer_Sync(t *testing.T) {
	client := newFakeClient()
	existing, fresh, stale := uuid.New(), uuid.New(), uuid.New()
	client.objects[objectPath("/cal/work/", existing)] = toICalendar(block(existing, 9), time.Now())
	client.objects[objectPath("/cal/work/", stale)] = toICalendar(block(stale, 16), time.Now())
	client.objects["/cal/work/dentist.ics"] = foreignEvent()

	syncer := newTestSyncer(client).WithDeleteMissing(true)
	result, err := syncer.Sync(context.Background(), uuid.New(), []calendarApp.TimeBlock{block(existing, 9), block(fresh, 11)})
	require.NoError(t, err)

	assert.Equal(t, calendarApp.SyncResult{Created: 1, Updated: 1, Deleted: 1}, *result)
	assert.Equal(t, []string{objectPath("/cal/work/", stale)}, client.removed)
	assert.Contains(t, client.objects, "/cal/work/dentist.ics")
	require.NotNil(t, client.query)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), client.query.CompFilter.Comps[0].Start)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), client.query.CompFilter.Comps[0].End)
}

func TestSyncer_Sync_CountsFailedPuts(t *testing.T) {
	client := newFakeClient()
	broken := uuid.New()
	client.putErr[objectPath("/cal/home/", broken)] = errors.New("507 insufficient storage")

	syncer := newTestSyncer(client).WithCalendarPath("/cal/home")
	result, err := syncer.Sync(context.Background(), uuid.New(), []calendarApp.TimeBlock{block(broken, 9), block(uuid.New(), 10)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, client.removed)
}

func TestSyncer_Sync_NoCalendars(t *testing.T) {
	client := newFakeClient()
	client.calendars = nil

	_, err := newTestSyncer(client).Sync(context.Background(), uuid.New(), []calendarApp.TimeBlock{block(uuid.New(), 9)})
	assert.ErrorContains(t, err, "no calendars found")
}

func TestSyncer_Dial_RequiresURL(t *testing.T) {
	_, err := NewSyncer("", "user", "pass", nil).Sync(context.Background(), uuid.New(), nil)
	assert.ErrorContains(t, err, "caldav url not configured")
}

func TestToICalendar(t *testing.T) {
	b := block(uuid.New(), 9)
	b.Completed = true
	cal := toICalendar(b, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))

	require.Len(t, cal.Children, 1)
	event := cal.Children[0]
	assert.Equal(t, ical.CompEvent, event.Name)
	assert.Equal(t, b.ID.String(), event.Props.Get(ical.PropUID).Value)
	assert.Equal(t, "Deep work", event.Props.Get(ical.PropSummary).Value)
	assert.Contains(t, event.Props.Get(ical.PropDescription).Value, "Status: Completed")

	start, err := (&ical.Event{Component: event}).DateTimeStart(time.UTC)
	require.NoError(t, err)
	assert.True(t, start.Equal(b.StartTime))

	assert.True(t, isTempoEvent(&caldav.CalendarObject{Data: cal}))
	assert.False(t, isTempoEvent(&caldav.CalendarObject{Data: foreignEvent()}))
	assert.False(t, isTempoEvent(nil))
}
