package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_application_healthy(t *testing.T) {
	client := startTestServer(t).Client()

	var body map[string]string
	require.NoError(t, client.Expect(context.Background(), http.StatusOK, http.MethodGet, "/api/healthy", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func Test_application_runChapter(t *testing.T) {
	ctx := context.Background()
	client := startTestServer(t).Client()

	project, err := client.CreateProject(ctx, "demo", "Demo", "雨夜故事")
	require.NoError(t, err)
	assert.Equal(t, "demo", project.ID)

	var projects []models.Project
	require.NoError(t, client.Expect(ctx, http.StatusOK, http.MethodGet, "/api/projects", nil, &projects))
	require.Len(t, projects, 1)

	runID, err := client.StartRun(ctx, "demo", "ch01", "调查纸条", []string{"林雨"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	events, err := client.Events(ctx, "demo", "ch01", runID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, orchestrator.EventRunCompleted, last.Kind)
	assert.Equal(t, models.StateSummarized, last.State)
	assert.Equal(t, runID, last.RunID)

	// The run has ended, so the stream reports the persisted outcome.
	events, err = client.Events(ctx, "demo", "ch01", runID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, orchestrator.EventRunCompleted, events[0].Kind)
	assert.Equal(t, models.StateSummarized, events[0].State)

	record, err := client.Status(ctx, "demo", "ch01")
	require.NoError(t, err)
	assert.Equal(t, models.StateSummarized, record.State)
	assert.Equal(t, "调查纸条", record.Goal)

	var report models.ConflictReport
	require.NoError(t, client.Expect(ctx, http.StatusOK, http.MethodGet, "/api/projects/demo/chapters/ch01/conflicts",
		nil, &report))
	assert.Equal(t, "ch01", report.Chapter)

	view, err := client.Dashboard(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Stats.CompletedChapters)
	assert.Equal(t, 1, view.Stats.Facts)
	require.Len(t, view.Chapters, 1)
	assert.Equal(t, "ch01 雨夜", view.Chapters[0].Title)

	require.NoError(t, client.Expect(ctx, http.StatusNoContent, http.MethodPost,
		"/api/projects/demo/chapters/ch01/reset", nil, nil))
	record, err = client.Status(ctx, "demo", "ch01")
	require.NoError(t, err)
	assert.Equal(t, models.StateNew, record.State)
}

func Test_application_errors(t *testing.T) {
	client := startTestServer(t).Client()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "run in unknown project", method: http.MethodPost, path: "/api/projects/missing/chapters/ch01/runs",
			body: startRunRequest{Goal: "", Characters: nil}, want: http.StatusNotFound},
		{name: "dashboard of unknown project", method: http.MethodGet, path: "/api/projects/missing/dashboard",
			body: nil, want: http.StatusNotFound},
		{name: "status in unknown project", method: http.MethodGet, path: "/api/projects/missing/chapters/ch01",
			body: nil, want: http.StatusNotFound},
		{name: "events of unknown run", method: http.MethodGet,
			path: "/api/projects/missing/chapters/ch01/runs/nope/events", body: nil, want: http.StatusNotFound},
		{name: "missing conflict report", method: http.MethodGet,
			path: "/api/projects/missing/chapters/ch01/conflicts", body: nil, want: http.StatusNotFound},
		{name: "project without id", method: http.MethodPost, path: "/api/projects",
			body: map[string]string{"name": "x"}, want: http.StatusBadRequest},
		{name: "unknown request field", method: http.MethodPost, path: "/api/projects",
			body: map[string]string{"id": "x", "owner": "y"}, want: http.StatusBadRequest},
		{name: "unknown route", method: http.MethodGet, path: "/api/nope", body: nil, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			status, err := client.Do(context.Background(), tt.method, tt.path, tt.body, &body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body.Error)
		})
	}
}
