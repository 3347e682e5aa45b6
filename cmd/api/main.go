package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realmgate.org/internal/auth"
	"realmgate.org/internal/config"
	"realmgate.org/internal/httpapi"
	"realmgate.org/internal/obs"
	"realmgate.org/internal/realm"
	"realmgate.org/internal/store/pg"
	"realmgate.org/internal/tenant"
	"realmgate.org/internal/token"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}

	obs.InitLogging(cfg.Log.Level, cfg.Log.Pretty)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	if cfg.DB.DSN == "" {
		log.Fatal().Msg("missing database DSN: set REALMGATE_PG_DSN")
	}
	store, err := pg.Open(cfg.DB.DSN, pg.Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	router := tenant.NewRouter(store.DB())
	directory := realm.NewDirectory(store, tenant.NewNamespaces(store.DB()))
	tokens := token.NewService(token.WithIssuer(cfg.Auth.Issuer))
	authSvc := auth.NewService(directory, router, tokens)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	master, err := authSvc.Bootstrap(ctx, auth.BootstrapParams{
		MasterRealm:  cfg.Auth.MasterRealm,
		MasterSecret: cfg.Auth.MasterSecret,
	})
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap master realm")
	}

	api := httpapi.New(httpapi.Deps{
		Auth:        authSvc,
		Directory:   directory,
		Router:      router,
		Ready:       httpapi.ReadyProbe{DB: store.DB()},
		Version:     version,
		MasterRealm: master.PublicUUID,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting realmgate-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("stopped")
}
