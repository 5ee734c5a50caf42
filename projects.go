package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/james226/scene-api/project"
)

type projectsController struct {
	projects *project.Store
	hub      *Hub
}

type createProjectRequest struct {
	Title string `json:"title"`
}

func (c *projectsController) List(rw http.ResponseWriter, req *http.Request) {
	projects, err := c.projects.List(req.Context())
	if err != nil {
		glog.Infof("[projects]list error = %s\n", err)
		http.Error(rw, "Failed to list projects", http.StatusInternalServerError)
		return
	}
	writeJSON(rw, http.StatusOK, projects)
}

func (c *projectsController) Create(rw http.ResponseWriter, req *http.Request) {
	var body createProjectRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := c.projects.Create(req.Context(), body.Title)
	if errors.Is(err, project.ErrTitleMissing) {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		glog.Infof("[projects]create error = %s\n", err)
		http.Error(rw, "Failed to create project", http.StatusInternalServerError)
		return
	}
	writeJSON(rw, http.StatusCreated, p)
}

func (c *projectsController) Get(rw http.ResponseWriter, req *http.Request) {
	p, err := c.projects.Get(req.Context(), mux.Vars(req)["id"])
	if errors.Is(err, project.ErrNotFound) {
		http.Error(rw, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		glog.Infof("[projects]get error = %s\n", err)
		http.Error(rw, "Failed to get project", http.StatusInternalServerError)
		return
	}
	writeJSON(rw, http.StatusOK, p)
}

// Delete removes the project, disconnects everyone in its room and deletes
// its stored scene.
func (c *projectsController) Delete(rw http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	err := c.projects.Delete(req.Context(), id)
	if errors.Is(err, project.ErrNotFound) {
		http.Error(rw, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		glog.Infof("[projects]delete error = %s\n", err)
		http.Error(rw, "Failed to delete project", http.StatusInternalServerError)
		return
	}
	if err := c.hub.Discard(req.Context(), id); err != nil {
		glog.Infof("[projects]delete scene %s error = %s\n", id, err)
	}
	rw.WriteHeader(http.StatusNoContent)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		glog.Infof("[http]encode error = %s\n", err)
	}
}
