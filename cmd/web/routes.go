package main

import (
	"net/http"

	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	api := alice.New(noCache, app.timeout)
	// Event streams must not be wrapped in the timeout handler as it does not support flushing.
	stream := alice.New(noCache)

	mux.Handle("GET /api/healthy", api.ThenFunc(app.healthy))

	mux.Handle("GET /api/projects", api.ThenFunc(app.listProjects))
	mux.Handle("POST /api/projects", api.ThenFunc(app.createProject))
	mux.Handle("GET /api/projects/{project}/dashboard", api.ThenFunc(app.projectDashboard))

	mux.Handle("GET /api/projects/{project}/chapters/{chapter}", api.ThenFunc(app.chapterStatus))
	mux.Handle("POST /api/projects/{project}/chapters/{chapter}/runs", api.ThenFunc(app.startRun))
	mux.Handle("POST /api/projects/{project}/chapters/{chapter}/reset", api.ThenFunc(app.resetChapter))
	mux.Handle("GET /api/projects/{project}/chapters/{chapter}/conflicts", api.ThenFunc(app.chapterConflicts))
	mux.Handle("GET /api/projects/{project}/chapters/{chapter}/runs/{run}/events", stream.ThenFunc(app.runEvents))

	mux.Handle("/", api.ThenFunc(app.notFound))

	standard := alice.New(app.recoverPanic, app.logRequest, secureHeaders)
	return standard.Then(mux)
}
