package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/mlhubdev/mlhub/internal/api"
	"github.com/mlhubdev/mlhub/internal/config"
	"github.com/mlhubdev/mlhub/internal/gitlab"
	"github.com/mlhubdev/mlhub/internal/service"
	"github.com/mlhubdev/mlhub/internal/store"
	"github.com/mlhubdev/mlhub/internal/token"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize account store: %v", err)
	}

	gitlabClient := gitlab.NewRESTClient(
		cfg.Gitlab.BaseURL,
		cfg.Gitlab.ClientID,
		cfg.Gitlab.ClientSecret,
		cfg.Gitlab.TimeoutDuration(),
	)

	tokens := token.NewManager(st, gitlabClient)
	tokens.StartRefreshLoop(cfg.Auth.RefreshIntervalDuration())

	authService := service.WithRefresh(
		service.NewAuth(st, gitlabClient, tokens, cfg.Auth.MinPasswordLength),
		tokens.RefreshCache,
	)

	router := api.NewRouter(authService, st, tokens)

	log.Printf("🚀 mlhub auth backend listening on %s (gitlab: %s)", cfg.ListenAddr, cfg.Gitlab.BaseURL)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
