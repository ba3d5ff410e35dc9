package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interviewprep/internal/api"
	"interviewprep/internal/auth"
	"interviewprep/internal/config"
	"interviewprep/internal/feed"
	"interviewprep/internal/interview"
	"interviewprep/internal/logging"
	"interviewprep/internal/recording"
	"interviewprep/internal/redis"
	"interviewprep/internal/service/abuse"
	"interviewprep/internal/service/account"
	"interviewprep/internal/service/analysis"
	"interviewprep/internal/service/llm"
	"interviewprep/internal/service/results"
	"interviewprep/internal/service/resume"
	"interviewprep/internal/service/speech"
	"interviewprep/internal/storage"
	"interviewprep/internal/support"
	"interviewprep/internal/worker"

	"github.com/cloudwego/eino/components/model"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfgPath := os.Getenv("INTERVIEWPREP_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.BasicConfig.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	dbType := os.Getenv("INTERVIEWPREP_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logger.Infof("dbType: %s", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		logger.Fatalf("migrate database: %v", err)
	}

	var rdb *redis.Client
	if !cfg.Redis.Disabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			logger.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes, err := newFeed(rdb, logger)
	if err != nil {
		logger.Fatalf("init change feed: %v", err)
	}
	defer changes.Close()

	resultsService := results.NewService(db, rdb,
		time.Duration(cfg.BasicConfig.ResultsCacheTTL)*time.Second, changes, logger.Named("results"))
	if _, err := feed.Watch(ctx, changes, feed.Filter{Type: feed.EventInsert}, resultsService); err != nil {
		logger.Fatalf("watch change feed: %v", err)
	}

	abuseService := abuse.NewService(db, dbType, abuse.Thresholds{
		Warn:    cfg.Interview.WarnThreshold,
		Suspend: cfg.Interview.SuspendThreshold,
	}, support.NewNotifier(cfg.Support, logger.Named("support")), logger.Named("abuse"))

	dispatcher := worker.NewDispatcher(worker.Config{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	}, logger.Named("worker"))
	defer dispatcher.Stop()

	store, localFiles, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("init recording storage: %v", err)
	}
	uploader := recording.NewUploader(store, resultsService, logger.Named("recording"))
	spool, err := recording.NewSpool(cfg.BasicConfig.SpoolDir,
		time.Duration(cfg.BasicConfig.SpoolTTL)*time.Minute, logger.Named("spool"))
	if err != nil {
		logger.Fatalf("init recording spool: %v", err)
	}
	spool.StartCleaner(ctx, time.Duration(cfg.BasicConfig.SpoolCleanInterval)*time.Minute)
	uploads := recording.NewAsync(uploader, spool, dispatcher, logger.Named("recording"))

	chatModel, err := llm.NewChatModel(ctx, cfg.Analysis.Provider, cfg.Providers)
	if err != nil {
		logger.Warnf("chat model unavailable, model analysis and resume scans disabled: %v", err)
	}
	var modelBackend *analysis.ModelBackend
	if chatModel != nil {
		modelBackend = analysis.NewModelBackend(chatModel, cfg.Analysis.Provider)
	}
	var backend analysis.Backend
	switch {
	case cfg.Analysis.Mode == "remote":
		backend = analysis.NewRemoteBackend(cfg.Analysis.RemoteURL, cfg.Analysis.APIKey,
			time.Duration(cfg.Analysis.Timeout)*time.Second)
	case modelBackend != nil:
		backend = modelBackend
	}
	var analyzer interview.Analyzer
	if backend != nil {
		analyzer = analysis.NewRequestor(backend, logger.Named("analysis"))
	}

	sessionStore := interview.NewStore(db)
	pipeline := interview.NewPipeline(interview.PipelineDeps{
		Classifier: interview.NewClassifier(cfg.Interview.MinTranscriptChars),
		Abuse:      abuseService,
		Archive:    sessionStore,
		Analyzer:   analyzer,
		Persister:  resultsService,
		Recordings: uploads,
		Log:        logger.Named("pipeline"),
	})
	manager := interview.NewManager(sessionStore, abuseService, pipeline, interview.DefaultIdleTimeout, logger.Named("interview"))
	manager.StartReaper(ctx, time.Minute)

	deps := api.Deps{
		Auth: auth.NewService(db, rdb,
			time.Duration(cfg.BasicConfig.TokenTTL)*time.Hour, logger.Named("auth")),
		Accounts:       account.NewService(db),
		Interviews:     manager,
		Results:        resultsService,
		Abuse:          abuseService,
		Links:          uploader,
		Uploads:        uploads,
		Speech:         speech.NewService(cfg.Speech, logger.Named("speech")),
		Feed:           changes,
		AdminToken:     cfg.BasicConfig.AdminToken,
		FunctionKey:    cfg.Analysis.FunctionKey,
		AllowedOrigins: cfg.BasicConfig.AllowedOrigins,
		UploadDir:      cfg.BasicConfig.SpoolDir,
		Log:            logger.Named("api"),
	}
	if localFiles != nil {
		deps.LocalFiles = localFiles
	}
	if modelBackend != nil {
		deps.Analysis = modelBackend
	}
	if chatModel != nil {
		deps.Resume = newResumeScanner(ctx, chatModel, cfg, logger)
	}

	router := gin.Default()
	router.Use(newCORS(cfg.BasicConfig.AllowedOrigins))
	api.NewHandler(deps).RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Infof("listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server stopped: %v", err)
	}
	logger.Infof("server stopped, %d sessions still active", manager.ActiveCount())
}

// newFeed picks the redis transport when redis is available.
func newFeed(rdb *redis.Client, logger *zap.SugaredLogger) (feed.Feed, error) {
	if rdb == nil {
		logger.Infof("redis disabled, change feed is in-process only")
		return feed.NewHub(), nil
	}
	return feed.NewRedisFeed(rdb, logger.Named("feed"))
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (recording.ObjectStore, *recording.LocalStore, error) {
	if cfg.Driver == "s3" {
		s3Store, err := recording.NewS3Store(ctx, cfg)
		return s3Store, nil, err
	}
	local, err := recording.NewLocalStore(cfg.LocalDir, cfg.SigningSecret, cfg.PublicBaseURL)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

func newResumeScanner(ctx context.Context, chatModel model.ToolCallingChatModel, cfg *config.Config, logger *zap.SugaredLogger) *resume.Scanner {
	tools := llm.NewTools(ctx, llm.SearchConfig{
		GoogleAPIKey:         cfg.Search.GoogleAPIKey,
		GoogleSearchEngineID: cfg.Search.GoogleSearchEngineID,
	}, logger.Named("tools"))
	agent, err := llm.NewAgent(ctx, chatModel, tools)
	if err != nil {
		logger.Warnf("resume agent disabled: %v", err)
		agent = nil
	}
	reader, err := llm.NewDocumentReader(ctx)
	if err != nil {
		logger.Warnf("document parsing disabled: %v", err)
		return resume.NewScanner(chatModel, agent, nil, logger.Named("resume"))
	}
	return resume.NewScanner(chatModel, agent, reader, logger.Named("resume"))
}

func newCORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
