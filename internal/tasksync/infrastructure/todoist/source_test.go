package todoist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tasksyncApp "github.com/felixgeelhaar/tempo/internal/tasksync/application"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTodoist(t *testing.T, completedStatus int) (*Source, *string) {
	t.Helper()
	var since string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/tasks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"id": "101", "content": "Ship release notes", "priority": 4, "project_id": "p1",
				"due":      map[string]any{"date": "2026-03-02", "datetime": "2026-03-02T15:00:00Z"},
				"duration": map[string]any{"amount": 45, "unit": "minute"},
			},
			{"id": "102", "content": "Water plants", "priority": 1, "project_id": "p9", "due": nil, "duration": nil},
			{"id": "103", "content": "Quarterly review", "priority": 2, "project_id": "p1", "due": map[string]any{"date": "2026-03-04"}},
		})
	})
	mux.HandleFunc("/rest/projects", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "p1", "name": "Work"}})
	})
	mux.HandleFunc("/sync/completed", func(w http.ResponseWriter, r *http.Request) {
		since = r.URL.Query().Get("since")
		if completedStatus != http.StatusOK {
			w.WriteHeader(completedStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{"task_id": "100", "content": "Reply to Sam", "completed_at": "2026-03-02T08:30:00.000000Z"}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	source := NewSource(NewTokenSource("secret"), srv.URL+"/rest/", nil).WithCompletedURL(srv.URL + "/sync/completed")
	source.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return source, &since
}

func TestSource_ListTasks(t *testing.T) {
	source, since := newTodoist(t, http.StatusOK)

	tasks, err := source.ListTasks(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	assert.Equal(t, "2026-02-28T12:00:00", *since)

	release := tasks[0]
	assert.Equal(t, "101", release.ID)
	assert.Equal(t, 1, release.Priority)
	assert.Equal(t, 45, release.EstimatedMinutes)
	assert.Equal(t, "Work", release.Project)
	require.NotNil(t, release.DueDate)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), *release.DueDate)

	plants := tasks[1]
	assert.Equal(t, 4, plants.Priority)
	assert.Equal(t, tasksyncApp.DefaultEstimateMinutes, plants.EstimatedMinutes)
	assert.Empty(t, plants.Project)
	assert.Nil(t, plants.DueDate)

	review := tasks[2]
	assert.Equal(t, 3, review.Priority)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), *review.DueDate)

	done := tasks[3]
	assert.True(t, done.Completed)
	assert.Equal(t, "100", done.ID)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC), *done.CompletedAt)

	pending := tasksyncApp.Pending(tasks)
	assert.Len(t, pending, 3)
}

func TestSource_ListTasks_CompletedUnavailable(t *testing.T) {
	source, _ := newTodoist(t, http.StatusForbidden)

	tasks, err := source.ListTasks(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
}

func TestSource_ListTasks_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewSource(NewTokenSource("bad"), srv.URL, nil).ListTasks(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "status 401")
	assert.ErrorContains(t, err, "invalid token")
}

func TestMapPriority(t *testing.T) {
	tests := []struct{ in, want int }{{4, 1}, {3, 2}, {2, 3}, {1, 4}, {0, 3}, {7, 3}}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapPriority(tt.in), "todoist priority %d", tt.in)
	}
}

func TestEstimateMinutes_Days(t *testing.T) {
	task := todoistTask{}
	task.Duration = &struct {
		Amount int    `json:"amount"`
		Unit   string `json:"unit"`
	}{Amount: 1, Unit: "day"}
	assert.Equal(t, 480, estimateMinutes(task))
}
