package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/james226/scene-api/scene"
)

type healthController struct {
	hub    *Hub
	scenes scene.Store
}

func (c healthController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := c.scenes.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "Unhealthy: scene store: %s\n", err)
		return
	}
	fmt.Fprintf(w, "Healthy\nrooms: %d\n", c.hub.RoomCount())
}
