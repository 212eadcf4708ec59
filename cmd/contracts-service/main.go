package main

import (
	"fmt"
	"os"
	"time"

	"github.com/landbridge/contracts-service/internal/auth"
	"github.com/landbridge/contracts-service/internal/config"
	"github.com/landbridge/contracts-service/internal/db"
	"github.com/landbridge/contracts-service/internal/excel"
	httphandler "github.com/landbridge/contracts-service/internal/http"
	"github.com/landbridge/contracts-service/internal/http/middleware"
	"github.com/landbridge/contracts-service/internal/logger"
	"github.com/landbridge/contracts-service/internal/notify"
	"github.com/landbridge/contracts-service/internal/pdf"
	"github.com/landbridge/contracts-service/internal/repository"
	"github.com/landbridge/contracts-service/internal/service"
	"github.com/landbridge/contracts-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	urlTTL, err := time.ParseDuration(cfg.Storage.URLTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid attachment url ttl")
	}
	files, err := storage.NewLocal(cfg.Storage.Dir, cfg.Storage.BaseURL, cfg.Storage.URLSecret, urlTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init attachment storage")
	}

	store := repository.NewStore(database)
	identity := auth.NewDirectory(database)
	notifier := notify.NewLogNotifier(log)
	recon := service.NewReconstructor(store)

	contractService := service.NewContractService(store, identity, notifier, log)
	crService := service.NewChangeRequestService(store, identity, recon, pdf.NewGenerator(), files, notifier, log)
	billingService := service.NewBillingService(store, recon, excel.NewGenerator(), log)
	attachmentService := service.NewAttachmentService(store, files, log)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(contractService, crService, billingService, attachmentService, files, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting contracts service")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
