package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/james226/scene-api/project"
	"github.com/james226/scene-api/scene"
)

const sessionTokenTtl = 24 * time.Hour

func setCors(origin string, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			return
		}
		h.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}

type Server struct {
	Hub      *Hub
	Tokens   *TokenManager
	Projects *project.Store
	Scenes   scene.Store
	Config   *Config
}

func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	transportSettings := DefaultTransportSettings()
	transportSettings.SendBufferSize = s.Config.SendBufferSize

	projects := &projectsController{projects: s.Projects, hub: s.Hub}
	uploads := &uploadController{
		hub:       s.Hub,
		tokens:    s.Tokens,
		dir:       s.Config.UploadDir,
		publicUrl: s.Config.PublicUrl,
		maxBytes:  s.Config.MaxUploadBytes,
	}

	router.Handle("/health", healthController{hub: s.Hub, scenes: s.Scenes})
	router.Handle("/ws", &WebsocketHandler{hub: s.Hub, tokens: s.Tokens, settings: transportSettings})
	router.Handle("/events/{id:[\\w-]+}", &EventsHandler{hub: s.Hub, settings: transportSettings})

	router.HandleFunc("/projects", projects.List).Methods(http.MethodGet)
	router.HandleFunc("/projects", projects.Create).Methods(http.MethodPost)
	router.HandleFunc("/projects/{id:[\\w-]+}", projects.Get).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id:[\\w-]+}", projects.Delete).Methods(http.MethodDelete)
	router.HandleFunc("/projects/{id:[\\w-]+}/model", uploads.Upload).Methods(http.MethodPost)

	router.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.Config.UploadDir))),
	)

	return setCors(s.Config.Origin, router)
}

func openSceneStore(config *Config) scene.Store {
	if config.RedisAddr == "" {
		glog.Infof("REDIS_ADDR not set, keeping scenes in memory\n")
		return scene.NewMemoryStore()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDb,
	})
	return scene.NewRedisStore(rdb)
}

func main() {
	flag.Parse()
	defer glog.Flush()

	config, err := LoadConfig()
	if err != nil {
		glog.Fatal(err)
	}

	projects, err := project.Open(config.DatabasePath)
	if err != nil {
		glog.Fatal(err)
	}
	defer projects.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scenes := openSceneStore(config)
	hub := NewHub(ctx, scenes, config.RoomSettings())

	server := &Server{
		Hub:      hub,
		Tokens:   NewTokenManager([]byte(config.TokenSecret), sessionTokenTtl),
		Projects: projects,
		Scenes:   scenes,
		Config:   config,
	}

	httpServer := &http.Server{
		Addr:    ":" + config.Port,
		Handler: server.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	glog.Infof("listening on port %s\n", config.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Fatal(err)
	}

	hub.Close()
}
