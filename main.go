package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/cache"
	"content-publisher/infrastructure/clients/facebook"
	"content-publisher/infrastructure/clients/factory"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/persistence"
	"content-publisher/infrastructure/pubsub"
	"content-publisher/infrastructure/queue"
	"content-publisher/infrastructure/realtime"
	"content-publisher/infrastructure/servicebus"
	"content-publisher/infrastructure/utils"
	httpHandler "content-publisher/interfaces/http"
	"content-publisher/server"
	"content-publisher/usecase"

	"golang.org/x/sync/errgroup"
)

const (
	vendorPostgres = "postgres"
	vendorMSSQL    = "mssql"
)

var httpServer *http.Server

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()
	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	// Load env from files (non-destructive; OS env still has precedence)
	configuration.LoadEnvFromFile("config.env", ".env")
	app := configuration.C.App

	tokenFor := flag.String("token", "", "print a signed API token for the given user id and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the token printed by -token")
	flag.Parse()
	if *tokenFor != "" {
		if err := printToken(*tokenFor, *tokenTTL, app.SecretKey); err != nil {
			os.Exit(1)
		}
		return
	}

	db, vendor, err := InitiateDatabase()
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Database not available - jobs and credentials are kept in memory")
	}
	credentialStore, jobStore := initiateStores(db, vendor)

	var audit repository.ICredentialAudit
	if mongoDb, err := persistence.NewMongoDb(
		configuration.C.Database.Mongo.Host,
		configuration.C.Database.Mongo.Port,
		configuration.C.Database.Mongo.User,
		configuration.C.Database.Mongo.Password,
		configuration.C.Database.Mongo.Name,
	); err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB not available - credential history disabled")
	} else if err := mongoDb.Ping(ctx, nil); err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB ping failed - credential history disabled")
	} else {
		audit = persistence.NewCredentialAuditRepository(mongoDb, configuration.C.Database.Mongo.Name)
		credentialStore = persistence.NewAuditedCredentialStore(credentialStore, audit)
		defer func() { _ = mongoDb.Disconnect(context.Background()) }()
		logger.GetLogger().Info("MongoDB connected successfully")
	}

	var locker repository.ILocker = cache.NewLocalLocker()
	redisClient, err := cache.NewCache(
		ctx,
		fmt.Sprintf("%s:%s", configuration.C.RedisClient.Host, configuration.C.RedisClient.Port),
		configuration.C.RedisClient.Username,
		configuration.C.RedisClient.Password,
		configuration.C.RedisClient.DatabaseName,
	)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Redis not available - refresh locks are process local")
	} else {
		locker = cache.NewRedisLocker(redisClient, configuration.C.RedisClient.LockTTL)
		defer redisClient.Close()
		logger.GetLogger().Info("Redis client initialized successfully.")
	}

	jobHub := realtime.NewJobHub()
	notifiers := []repository.IJobNotifier{jobHub}
	if projectID := configuration.C.Pubsub.ProjectID; projectID != "" {
		client, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while instantiate PubSub")
		} else {
			ps := pubsub.NewPubSub(client)
			defer ps.Close()
			notifiers = append(notifiers, pubsub.NewJobEventNotifier(ps, configuration.C.Pubsub.JobTopic))
		}
	}
	if ns := configuration.C.ServiceBus.Namespace; ns != "" {
		client, err := servicebus.NewClient(ns)
		if err == nil {
			var dl *servicebus.DeadLetterNotifier
			if dl, err = servicebus.NewDeadLetterNotifier(client, configuration.C.ServiceBus.DeadLetterQueue); err == nil {
				defer dl.Close(context.Background())
				notifiers = append(notifiers, dl)
			}
		}
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Azure Service Bus not available - dead letters are only logged")
		}
	}

	adapters := factory.NewFactory(credentialStore, locker, configuration.C.Platforms)
	jobs := queue.New(jobStore, queue.OptionsFrom(configuration.C.Queue), notifiers...)
	handlers := usecase.NewJobHandlers(adapters, credentialStore, jobs, configuration.C.Queue.RefreshWindow)
	handlers.Register(jobs)
	for _, platform := range adapters.Platforms() {
		name := "sweep-" + platform
		if err := jobs.Schedule(name, model.JobSweepExpiringTokens, model.SweepPayload{Platform: platform}, configuration.C.Queue.SweepInterval); err != nil {
			logger.GetLogger().WithField("error", err).WithField("schedule", name).Error("Cannot schedule token sweep")
		}
	}

	publishUsecase := usecase.NewPublishUsecase(adapters, jobs)
	credentialUsecase := usecase.NewCredentialUsecase(credentialStore, adapters, audit)

	var pinger httpHandler.Pinger
	if db != nil {
		pinger = db
	}
	handlerSet := server.Handlers{
		Publish:    httpHandler.NewPublishHandler(publishUsecase),
		Job:        httpHandler.NewJobHandler(publishUsecase),
		Credential: httpHandler.NewCredentialHandler(credentialUsecase, publishUsecase),
		Health:     httpHandler.NewHealthHandler(pinger),
		Stream:     jobHub.Serve,
	}
	if fb := configuration.C.OAuth.Facebook; fb.ClientID != "" && fb.RedirectURI != "" {
		fbCfg := configuration.C.Platforms.Facebook
		fbCfg.ClientID, fbCfg.ClientSecret = fb.ClientID, fb.ClientSecret
		oauth := facebook.NewOAuthClient(shared.NewHTTPClient(fbCfg.RateLimit, 30*time.Second), fbCfg)
		handlerSet.FacebookOAuth = httpHandler.NewFacebookOAuthHandler(oauth, fb.RedirectURI, credentialUsecase)
	}
	router := server.InitiateRouter(handlerSet, app.SecretKey, app.AllowedOrigins)

	g.Go(func() error {
		return jobs.Run(ctx)
	})

	port := app.Port
	logger.GetLogger().WithFields(map[string]interface{}{"port": port, "tls": app.TLSEnabled, "database": vendor}).Info("Starting application")
	httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		var err error
		if app.TLSEnabled && app.TLSCertFile != "" && app.TLSKeyFile != "" {
			logger.GetLogger().WithFields(map[string]interface{}{"cert": app.TLSCertFile, "key": app.TLSKeyFile}).Info("Serving HTTPS")
			err = httpServer.ListenAndServeTLS(app.TLSCertFile, app.TLSKeyFile)
		} else {
			if app.TLSEnabled {
				logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
			}
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	select {
	case <-interrupt:
		logger.GetLogger().Info("Application shutdown requested")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
	logger.GetLogger().Info("Application stopped")
}

// printToken signs a bearer token the auth middleware accepts for userID.
func printToken(userID string, ttl time.Duration, secretKey string) error {
	if secretKey == "" {
		logger.GetLogger().Error("SECRET_KEY is required to sign tokens")
		return errors.New("missing secret key")
	}
	now := utils.GetCurrentTime()
	token, err := utils.GenerateToken(map[string]interface{}{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}, secretKey)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// InitiateDatabase opens MSSQL in production or when DB_VENDOR=mssql, and
// PostgreSQL otherwise. The schema is created when missing.
func InitiateDatabase() (*sql.DB, string, error) {
	env := strings.ToLower(os.Getenv("ENV"))
	if os.Getenv("DB_VENDOR") == vendorMSSQL || env == "production" || env == "prod" {
		db, err := persistence.NewMSSQLDB()
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Cannot connect to MSSQL")
			return nil, "", err
		}
		if err := persistence.EnsureSchemaMSSQL(db); err != nil {
			_ = db.Close()
			return nil, "", err
		}
		return db, vendorMSSQL, nil
	}

	db, err := persistence.NewPostgreSQLDB()
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Cannot connect to PostgreSQL")
		return nil, "", err
	}
	if err := persistence.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	return db, vendorPostgres, nil
}

func initiateStores(db *sql.DB, vendor string) (repository.ICredential, repository.IJobStore) {
	switch {
	case db != nil && vendor == vendorMSSQL:
		return persistence.NewCredentialRepositoryMSSQL(db), persistence.NewJobRepositoryMSSQL(db)
	case db != nil:
		return persistence.NewCredentialRepository(db), persistence.NewJobRepository(db)
	}
	return persistence.NewMemoryCredentialRepository(), queue.NewMemoryStore()
}
