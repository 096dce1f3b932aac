package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/edusmart/assessment/apps/api/echo"
	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/enrollment"
	"github.com/edusmart/assessment/core/notification"
	emailsvc "github.com/edusmart/assessment/services/email"
	logsvc "github.com/edusmart/assessment/services/logger"
	inmemcache "github.com/edusmart/assessment/storage/cache/inmem"
	rediscache "github.com/edusmart/assessment/storage/cache/redis"
	"github.com/edusmart/assessment/storage/database"
	sqlxrepos "github.com/edusmart/assessment/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := newLogger(conf, "API : ")
	dbLogger := newLogger(conf, "DB : ")
	syncLogger := newLogger(conf, "SYNC : ")

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up cache
	cache, closeCache := newCache(conf, logger)
	defer closeCache()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	catalog := sqlxrepos.NewCatalogRepository(db)
	synchronizer := enrollment.NewSynchronizer(sqlxrepos.NewEnrollmentRepository(db), syncLogger, enrollment.Options{
		QueueSize:    conf.Enrollment.QueueSize,
		Workers:      conf.Enrollment.Workers,
		MaxRetries:   conf.Enrollment.MaxRetries,
		RetryBackoff: conf.Enrollment.RetryBackoff,
	})
	notifier := notification.NewResultNotifier(catalog, catalog, mailSvc, logger)

	attemptSvc := attempt.NewService(attempt.Deps{
		Attempts:  sqlxrepos.NewAttemptRepository(db),
		Answers:   sqlxrepos.NewAnswerRepository(db),
		Quizzes:   catalog,
		Students:  catalog,
		Cache:     cache,
		Publisher: attempt.Publishers{synchronizer, notifier},
		Logger:    logger,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	synchronizer.Start()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			AttemptSvc:  attemptSvc,
			Enrollments: synchronizer,
			Validate:    validate,
			Translator:  translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}

		// deliver the completion events still queued
		synchronizer.Stop(ctx)
		if err = notifier.Wait(ctx); err != nil {
			logger.Error(fmt.Sprintf("sending result emails: %v", err), err)
		}
	}
}

func newLogger(conf *core.Config, prefix string) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	return logger
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// newCache returns the redis cache if one is configured, or a process-local one.
func newCache(conf *core.Config, logger core.Logger) (core.Cache, func()) {
	if conf.Redis.Address == "" {
		return inmemcache.New(), func() {}
	}

	client, err := rediscache.NewClient(context.Background(), conf.Redis)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	return rediscache.New(client, conf.Redis.TTL), func() {
		if err := client.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing redis client: %v", err), err)
		}
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
