package callboard

import (
	"context"
	"errors"
	"sync"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/analysis"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/auth"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/hamsa"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/livecall"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/minio"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/report"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/scenario"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/server"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/twilio"
	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Callboard struct {
	DBConn               *gorm.DB
	Redis                *redis.Client
	Minio                *minio.MinioClient
	KafkaProducer        *kafka.Producer
	ReportPool           *ants.Pool
	ReportService        *report.Service
	CallService          *call.Service
	DeadLetterService    *deadletter.Service
	DeadLetterWorker     *deadletter.Worker
	LiveCallMonitor      *livecall.Monitor
	HealthCheckerService *healthchecker.Healthchecker
	Server               *server.Server
}

// clients are the upstream providers shared by several services.
type clients struct {
	hamsa    *hamsa.Client
	twilio   *twilio.Client
	analysis *analysis.Client
}

func NewApp(ctx context.Context) (*Callboard, error) {
	logging.Logger.Info("[NewApp] Initializing callboard application...")

	app := &Callboard{}

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.String("error", err.Error()))
		return nil, err
	}

	app.DBConn = dbConn

	logging.Logger.Info("[NewApp] Database connection established")

	err = app.initializeOptionalBackends(ctx)
	if err != nil {
		app.shutdown()
		return nil, err
	}

	upstream := clients{
		hamsa:    hamsa.NewClient(),
		analysis: analysis.NewClient(),
	}

	if twilio.Configured() {
		upstream.twilio = twilio.NewClient()
	} else {
		logging.Logger.Warn("[NewApp] Telephony credentials are not set, live calls are not joined with carrier calls")
	}

	err = app.initializeServices(upstream)
	if err != nil {
		app.shutdown()
		return nil, err
	}

	sessions, err := auth.NewManagerFromConfig()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create session manager", zap.String("error", err.Error()))
		app.shutdown()

		return nil, err
	}

	catalog, err := scenario.AfterSales()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to load question groups", zap.String("error", err.Error()))
		app.shutdown()

		return nil, err
	}

	broker := livecall.NewBroker()

	var callSource livecall.CallSource
	if upstream.twilio != nil {
		callSource = upstream.twilio
	}

	app.LiveCallMonitor = livecall.NewMonitor(upstream.hamsa, callSource, broker, livecall.OptionsFromConfig())

	app.HealthCheckerService = healthchecker.NewService(app.healthChecks(upstream))

	app.Server = server.New(server.Dependencies{
		Sessions:       sessions,
		Authenticator:  auth.NewAuthenticatorFromConfig(),
		Calls:          app.CallService,
		LiveCalls:      app.LiveCallMonitor,
		Stream:         broker,
		Reports:        app.ReportService,
		Prompts:        upstream.analysis,
		QuestionGroups: catalog,
		Health:         app.HealthCheckerService,
	})

	logging.Logger.Info("[NewApp] Initializing circuit breakers...")
	circuitbreak.Init()
	logging.Logger.Info("[NewApp] Circuit breakers initialized")

	return app, nil
}

// initializeOptionalBackends connects Redis, MinIO and Kafka when they are
// configured. A missing Redis falls back to the in-process report cache.
func (app *Callboard) initializeOptionalBackends(ctx context.Context) error {
	redisClient, err := database.NewRedis(ctx)

	switch {
	case err == nil:
		app.Redis = redisClient
	case errors.Is(err, database.ErrRedisNotConfigured):
		logging.Logger.Warn("[NewApp] Redis is not configured, using in-memory report cache")
	default:
		logging.Logger.Error("[NewApp] Failed to connect to Redis", zap.String("error", err.Error()))
		return err
	}

	if minio.Configured() {
		minioClient, err := minio.NewMinioClient(minio.SettingsFromConfig())
		if err != nil {
			logging.Logger.Error("[NewApp] Failed to initialize Minio client", zap.String("error", err.Error()))
			return err
		}

		app.Minio = minioClient

		logging.Logger.Info("[NewApp] Minio client created")
	}

	kafkaSettings := kafka.SettingsFromConfig()
	if kafkaSettings.Configured() {
		producer, err := kafka.NewProducer(kafkaSettings)
		if err != nil {
			logging.Logger.Error("[NewApp] Failed to create Kafka producer", zap.String("error", err.Error()))
			return err
		}

		app.KafkaProducer = producer

		logging.Logger.Info("[NewApp] Kafka producer created", zap.String("topic", kafkaSettings.Topic))
	}

	return nil
}

func (app *Callboard) initializeServices(upstream clients) error {
	var cache report.Cache = report.NewMemoryCache()
	if app.Redis != nil {
		cache = report.NewRedisCache(app.Redis)
	}

	store := report.NewStore(report.NewGormRepository(app.DBConn), cache)
	callRepository := call.NewRepository(app.DBConn)

	reportService := report.NewService(upstream.hamsa, upstream.analysis, nil, store)
	reportService.Calls = callRepository

	if app.Minio != nil {
		reportService.Archiver = recording.NewArchiver(app.Minio, recording.NewDurationService())
	}

	if app.KafkaProducer != nil {
		reportService.Events = app.KafkaProducer
	}

	logging.Logger.Info("[NewApp] Creating report worker pool", zap.Int("pool_size", config.Conf.ReportPoolSize))

	reportPool, err := ants.NewPool(max(config.Conf.ReportPoolSize, 1), ants.WithPreAlloc(true))
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create report worker pool", zap.String("error", err.Error()))
		return err
	}

	app.ReportPool = reportPool
	reportService.Pool = reportPool

	app.DeadLetterService = deadletter.NewService(deadletter.NewGormRepository(app.DBConn), reportService)
	reportService.Failures = app.DeadLetterService

	app.DeadLetterWorker, err = deadletter.NewWorker(app.DeadLetterService, deadletter.WorkerOptionsFromConfig())
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create dead letter worker", zap.String("error", err.Error()))
		return err
	}

	var telephony call.Telephony
	if upstream.twilio != nil {
		telephony = upstream.twilio
	}

	app.CallService = call.NewService(upstream.hamsa, telephony, callRepository, call.AgentsFromConfig())
	app.CallService.Reports = reportService
	app.ReportService = reportService

	logging.Logger.Info("[NewApp] Services created")

	return nil
}

func (app *Callboard) healthChecks(upstream clients) map[string]healthchecker.Check {
	checks := map[string]healthchecker.Check{
		circuitbreak.DBService: healthchecker.CheckDB(app.DBConn),
		circuitbreak.HamsaService: healthchecker.CheckFunc(func(ctx context.Context) ([]hamsa.Job, error) {
			return upstream.hamsa.ListJobs(ctx, 1)
		}),
		circuitbreak.LLMService: healthchecker.CheckPinger(upstream.analysis),
	}

	if upstream.twilio != nil {
		checks[circuitbreak.TwilioService] = healthchecker.CheckFunc(upstream.twilio.ListActiveCalls)
	}

	if app.Redis != nil {
		checks[circuitbreak.RedisService] = healthchecker.CheckRedis(app.Redis)
	}

	if app.Minio != nil {
		checks[circuitbreak.MinioService] = healthchecker.CheckMinio(app.Minio)
	}

	if app.KafkaProducer != nil {
		checks[circuitbreak.KafkaProducerService] = healthchecker.CheckKafkaProducer(app.KafkaProducer)
	}

	return checks
}

// Run blocks until ctx is done or the HTTP server fails, then shuts down.
func (app *Callboard) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var background sync.WaitGroup

	background.Add(3)

	go func() {
		defer background.Done()
		app.HealthCheckerService.Monitor(ctx)
	}()

	go func() {
		defer background.Done()
		app.DeadLetterWorker.Run(ctx)
	}()

	go func() {
		defer background.Done()
		prometheus.Run(ctx)
	}()

	err := app.Server.Run(ctx)
	if err != nil {
		logging.Logger.Error("[Run] HTTP server returned error", zap.String("error", err.Error()))
	}

	cancel()
	background.Wait()

	app.shutdown()

	return err
}

func (app *Callboard) shutdown() {
	if app.LiveCallMonitor != nil {
		app.LiveCallMonitor.Close()
	}

	if app.ReportPool != nil {
		logging.Logger.Info("[Run] Releasing report worker pool...",
			zap.Int("running_workers", app.ReportPool.Running()),
		)
		app.ReportPool.Release()
	}

	if app.KafkaProducer != nil {
		err := app.KafkaProducer.Close()
		if err != nil {
			logging.Logger.Error("[Run] Failed to close producer", zap.String("error", err.Error()))
		}
	}

	if app.Redis != nil {
		err := app.Redis.Close()
		if err != nil {
			logging.Logger.Error("[Run] Failed to close Redis", zap.String("error", err.Error()))
		}
	}

	if app.DBConn != nil {
		sqlDB, err := app.DBConn.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}

	logging.Logger.Info("[Run] ===== App shutdown complete =====")
}
