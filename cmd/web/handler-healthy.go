package main

import "net/http"

// healthy reports that the server is up and the database answers.
func (app *application) healthy(w http.ResponseWriter, r *http.Request) {
	if err := app.app.DB.ReadOnly.PingContext(r.Context()); err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
