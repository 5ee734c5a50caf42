package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/james226/scene-api/scene"
)

var extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,8}$`)

// uploadController stores model files and announces them to the room of
// the uploading connection.
type uploadController struct {
	hub       *Hub
	tokens    *TokenManager
	dir       string
	publicUrl string
	maxBytes  int64
}

type uploadResponse struct {
	FileUrl string `json:"fileUrl"`
}

func (c *uploadController) Upload(rw http.ResponseWriter, req *http.Request) {
	projectId := mux.Vars(req)["id"]

	clientId, err := c.tokens.Verify(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer "))
	if err != nil {
		http.Error(rw, err.Error(), http.StatusUnauthorized)
		return
	}
	if joined, ok := c.hub.ProjectOf(clientId); !ok || joined != projectId {
		http.Error(rw, "Not a member of this project", http.StatusForbidden)
		return
	}

	req.Body = http.MaxBytesReader(rw, req.Body, c.maxBytes)
	file, header, err := req.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(rw, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	name, err := c.save(file, header.Filename)
	if err != nil {
		glog.Infof("[upload]%s save error = %s\n", projectId, err)
		http.Error(rw, "Failed to store file", http.StatusInternalServerError)
		return
	}

	fileUrl := strings.TrimSuffix(c.publicUrl, "/") + "/uploads/" + name
	c.hub.Dispatch(clientId, projectId, &scene.ModelUpload{FileUrl: fileUrl})

	writeJSON(rw, http.StatusCreated, uploadResponse{FileUrl: fileUrl})
}

func (c *uploadController) save(src io.Reader, filename string) (string, error) {
	ext := filepath.Ext(filename)
	if !extensionPattern.MatchString(ext) {
		ext = ""
	}
	name := uuid.NewString() + strings.ToLower(ext)

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.Create(filepath.Join(c.dir, name))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return name, nil
}
