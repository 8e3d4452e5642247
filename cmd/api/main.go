package main

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/hondanahq/hondana/pkg/config"
	"github.com/hondanahq/hondana/pkg/database"
	"github.com/hondanahq/hondana/pkg/jobs"
	"github.com/hondanahq/hondana/pkg/migrations"
	"github.com/hondanahq/hondana/pkg/notifications"
	"github.com/hondanahq/hondana/pkg/providers"
	"github.com/hondanahq/hondana/pkg/server"
	"github.com/hondanahq/hondana/pkg/version"
	"github.com/hondanahq/hondana/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting hondana", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := os.MkdirAll(cfg.ThumbnailDirectory, 0755); err != nil {
		log.Err(err).Fatal("thumbnail directory error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	hub := notifications.NewHub()
	registry := providers.NewRegistry()
	cancels := jobs.NewCancelRegistry()

	srv, orchestrator, err := server.New(cfg, db, hub, registry, cancels)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	wrkr := worker.New(cfg, db, orchestrator)

	graceful := signals.Setup()

	go func() {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		port := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": port})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
