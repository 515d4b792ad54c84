package main

import (
	"net/http"
)

type createProjectRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (app *application) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	project, err := app.app.Projects.Create(r.Context(), req.ID, req.Name, req.Description)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, project)
}

func (app *application) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := app.app.Projects.List(r.Context())
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, projects)
}

func (app *application) projectDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := app.app.Dashboard.Project(r.Context(), r.PathValue("project"))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, view)
}
