package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/mokykla/backend/apps/api/echo"
	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/curriculum"
	"github.com/mokykla/backend/core/plan"
	"github.com/mokykla/backend/core/schedule"
	"github.com/mokykla/backend/core/user"
	logsvc "github.com/mokykla/backend/services/logger"
	"github.com/mokykla/backend/storage/database"
	"github.com/mokykla/backend/storage/database/sqlxrepos"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewZapLogger(conf)
	defer func() { _ = logger.Sync() }()

	sqlDB, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), "error", err)
	}
	defer func() {
		if err = sqlDB.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	db := database.NewAppDB(sqlDB)
	dbx := sqlx.NewDb(sqlDB, conf.Database.Engine)

	usrRepo := sqlxrepos.NewUserRepository(dbx)
	currRepo := sqlxrepos.NewCurriculumRepository(dbx)
	schedRepo := sqlxrepos.NewScheduleRepository(dbx)
	planRepo := sqlxrepos.NewPlanRepository(dbx)

	usrSvc := user.NewService(usrRepo)
	currSvc := curriculum.NewService(currRepo)
	importer := curriculum.NewImporter(db, currRepo, logger)
	schedSvc := schedule.NewService(db, schedRepo, usrRepo, planRepo, logger)
	planSvc := plan.NewService(db, planRepo, schedRepo, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), "error", err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       usrSvc,
		ScheduleSvc:   schedSvc,
		PlanSvc:       planSvc,
		CurriculumSvc: currSvc,
		Importer:      importer,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), "error", err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), "error", err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), "error", err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
