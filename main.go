package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"planterm/internal/config"
	"planterm/internal/handlers"
	"planterm/internal/logging"
	"planterm/internal/plan"
	"planterm/internal/relay"
	"planterm/internal/session"
	"planterm/internal/shell"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	logging.Init(settings.LogPath)

	registry := session.NewRegistry(settings.ConnectTimeout)
	relays := relay.NewManager()
	plans := plan.NewStore(settings.PlanPath)

	h := handlers.New(registry, relays, plans, shell.MuxOptions{
		SessionName:  settings.MuxSession,
		WorkspaceDir: settings.WorkspaceDir,
		Command:      settings.AssistantCmd,
	})

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/connect", h.Connect)
		r.Post("/disconnect", h.Disconnect)
		r.Get("/sessions", h.Sessions)
		r.Post("/shell", h.Shell)

		r.Get("/plan", h.GetPlan)
		r.Post("/plan/check", h.CheckItem)
		r.Post("/plan/add", h.AddItem)
		r.Delete("/plan/delete", h.DeleteItem)

		r.Get("/logs", handlers.Logs)
	})

	r.Get("/ws/terminal", h.TerminalWS)

	srv := &http.Server{
		Addr:    settings.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", settings.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	relays.StopAll()
	registry.DestroyAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
