package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	internalApp "github.com/felixgeelhaar/tempo/internal/app"
	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupLocalModeTestApp creates a test application with SQLite for integration tests.
func setupLocalModeTestApp(t *testing.T) (*App, time.Time) {
	t.Helper()

	cfg := &config.Config{
		AppEnv:             "test",
		UserID:             "00000000-0000-0000-0000-000000000001",
		Timezone:           "UTC",
		SQLitePath:         filepath.Join(t.TempDir(), "test.db"),
		PlanCacheTTL:       time.Minute,
		LockWait:           time.Second,
		LockTTL:            time.Second,
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    10,
		OutboxMaxRetries:   3,
		AdvisoryTimeout:    time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	container, err := internalApp.NewContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(container.Close)

	cliApp := NewApp(
		container.GeneratePlanHandler,
		container.RecordProgressHandler,
		container.RescheduleHandler,
		container.ReconcileExternalHandler,
		container.GetPlanHandler,
		container.GetProgressHandler,
		container.GetInsightsHandler,
	)
	cliApp.SetCurrentUserID(container.UserID)
	cliApp.SetLocation(time.UTC)
	cliApp.SetHealth(container.Health)

	day := domain.NormalizeDate(time.Now().UTC().AddDate(0, 0, 7))
	cliApp.SetClock(func() time.Time { return day.Add(10 * time.Hour) })

	SetApp(cliApp)
	t.Cleanup(func() {
		SetApp(nil)
		outputJSON = false
		verbose = false
	})
	return cliApp, day
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func resetPlanFlags(day time.Time) {
	planDate = day.Format(dateLayout)
	planCapacity = 80
	planMode = string(domain.ModeBalanced)
	planTasks = nil
	planFromSync = false
	planMomentum = false
}

func TestPlanWorkflow(t *testing.T) {
	_, day := setupLocalModeTestApp(t)
	date := day.Format(dateLayout)

	resetPlanFlags(day)
	planTasks = []string{"60:1:Write report", "30:3:Inbox: triage"}
	out, err := run(t, planCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "PLAN: "+date)
	assert.Contains(t, out, "Write report")
	assert.Contains(t, out, "Inbox: triage")

	taskDate = date
	out, err = run(t, startCmd, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Started: Write report")

	doneMinutes = 45
	out, err = run(t, doneCmd, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Completed: Write report")
	assert.Contains(t, out, "took 45m")

	out, err = run(t, doneCmd, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Already recorded")
	doneMinutes = 0

	outputJSON = true
	out, err = run(t, planShowCmd)
	require.NoError(t, err)
	var plan queries.PlanDTO
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, domain.StatusCompleted, plan.Tasks[0].Status)
	assert.Equal(t, 45, plan.Tasks[0].ActualMinutes)

	progressDate = date
	out, err = run(t, progressCmd)
	require.NoError(t, err)
	var progress queries.ProgressDTO
	require.NoError(t, json.Unmarshal([]byte(out), &progress))
	assert.Equal(t, 1, progress.Totals.Completed)
	assert.Equal(t, 2, progress.Totals.Total)
}

func TestPlan_Validation(t *testing.T) {
	_, day := setupLocalModeTestApp(t)

	resetPlanFlags(day)
	_, err := run(t, planCmd)
	assert.ErrorContains(t, err, "nothing to plan")

	planMode = "sprint"
	planTasks = []string{"30:2:Review"}
	_, err = run(t, planCmd)
	assert.ErrorContains(t, err, "mode")

	planMode = string(domain.ModeBalanced)
	planDate = "03/02/2026"
	_, err = run(t, planCmd)
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestShowCommands_WithoutPlan(t *testing.T) {
	_, day := setupLocalModeTestApp(t)
	date := day.Format(dateLayout)

	planDate = date
	out, err := run(t, planShowCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "No plan for "+date)

	progressDate = date
	out, err = run(t, progressCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "No plan for "+date)
}

func TestReschedule_DryRun(t *testing.T) {
	_, day := setupLocalModeTestApp(t)

	resetPlanFlags(day)
	planTasks = []string{"60:1:Write report", "30:2:Review"}
	_, err := run(t, planCmd)
	require.NoError(t, err)

	rescheduleDate = day.Format(dateLayout)
	rescheduleApply = false
	rescheduleSimplify = false
	rescheduleGoals = nil
	outputJSON = true
	out, err := run(t, rescheduleCmd)
	require.NoError(t, err)

	var view rescheduleView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.False(t, view.Applied)
	assert.Nil(t, view.Plan)
	assert.NotEmpty(t, view.Decision.Type)
}

func TestSync_RequiresTaskSource(t *testing.T) {
	_, day := setupLocalModeTestApp(t)

	resetPlanFlags(day)
	planTasks = []string{"30:2:Review"}
	_, err := run(t, planCmd)
	require.NoError(t, err)

	syncDate = day.Format(dateLayout)
	_, err = run(t, syncCmd)
	assert.ErrorContains(t, err, "no task source configured")
}

func TestInsights_NeutralWithoutHistory(t *testing.T) {
	setupLocalModeTestApp(t)

	out, err := run(t, insightsCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "INSIGHTS")
	assert.Contains(t, out, "x1.00")
	assert.Contains(t, out, "not enough data yet")
}

func TestHealth_LocalMode(t *testing.T) {
	setupLocalModeTestApp(t)

	out, err := run(t, healthCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "database")
}

func TestCommands_RequireApp(t *testing.T) {
	SetApp(nil)
	for _, cmd := range []*cobra.Command{planCmd, planShowCmd, progressCmd, rescheduleCmd, insightsCmd, syncCmd} {
		_, err := run(t, cmd)
		assert.ErrorIs(t, err, errNotInitialized, cmd.Name())
	}
}

func TestParseTaskSpec(t *testing.T) {
	tests := []struct {
		input    string
		minutes  int
		priority int
		title    string
		wantErr  bool
	}{
		{input: "45:1:Write report", minutes: 45, priority: 1, title: "Write report"},
		{input: " 30 : 3 : Call: Bob ", minutes: 30, priority: 3, title: "Call: Bob"},
		{input: "Write report", wantErr: true},
		{input: "abc:1:Write", wantErr: true},
		{input: "30:9:Write", wantErr: true},
		{input: "30:2: ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			task, err := ParseTaskSpec(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.minutes, task.EstimatedMinutes)
			assert.Equal(t, tt.priority, int(task.Priority))
			assert.Equal(t, tt.title, task.Title)
			assert.NotEmpty(t, task.ID)
		})
	}
}
