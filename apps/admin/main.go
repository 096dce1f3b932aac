package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/enrollment"
	"github.com/edusmart/assessment/core/notification"
	emailsvc "github.com/edusmart/assessment/services/email"
	logsvc "github.com/edusmart/assessment/services/logger"
	rediscache "github.com/edusmart/assessment/storage/cache/redis"
	"github.com/edusmart/assessment/storage/database"
	sqlxrepos "github.com/edusmart/assessment/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// expiring attempts must evict what the API cached about them
	cache := core.NoopCache()
	if conf.Redis.Address != "" {
		client, err := rediscache.NewClient(context.Background(), conf.Redis)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer func() { _ = client.Close() }()
		cache = rediscache.New(client, conf.Redis.TTL)
	}

	synchronizer := enrollment.NewSynchronizer(sqlxrepos.NewEnrollmentRepository(db), logger, enrollment.Options{
		QueueSize:    conf.Enrollment.QueueSize,
		Workers:      conf.Enrollment.Workers,
		MaxRetries:   conf.Enrollment.MaxRetries,
		RetryBackoff: conf.Enrollment.RetryBackoff,
	})
	synchronizer.Start()

	// expired attempts are completed attempts: their students get the result email too
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)

	catalog := sqlxrepos.NewCatalogRepository(db)
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

	// start CLI
	cli := commandLine{
		db:         db.DB,
		attemptSvc: attemptSvc,
		in:         os.Stdin,
		out:        os.Stdout,
	}
	err = cli.run(os.Args)

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	synchronizer.Stop(ctx)
	if werr := notifier.Wait(ctx); werr != nil {
		logger.Error(fmt.Sprintf("sending result emails: %v", werr), werr)
	}
	cancel()
	_ = db.Close()

	if err != nil && err != errHelp {
		logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
	}
	// os.Exit skips deferred calls: flush the reports first
	_ = logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
