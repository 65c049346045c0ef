package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	calendarDomain "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	calendarPersistence "github.com/felixgeelhaar/studyflow/internal/calendar/infrastructure/persistence"
	courseworkDomain "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	courseworkPersistence "github.com/felixgeelhaar/studyflow/internal/coursework/infrastructure/persistence"
	profileDomain "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	profileCache "github.com/felixgeelhaar/studyflow/internal/profile/infrastructure/cache"
	profilePersistence "github.com/felixgeelhaar/studyflow/internal/profile/infrastructure/persistence"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/commands"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/queries"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/services"
	rebalanceDomain "github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	rebalancePersistence "github.com/felixgeelhaar/studyflow/internal/rebalance/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/studyflow/internal/shared/application"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/studyflow/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBDriver database.Driver
	Pool     *pgxpool.Pool
	SQLiteDB *sql.DB

	// Redis
	RedisClient *redis.Client

	// Repositories
	BlockRepo    calendarDomain.BlockRepository
	WorkItemRepo courseworkDomain.WorkItemRepository
	CourseRepo   courseworkDomain.CourseRepository
	ProfileRepo  profileDomain.ProfileRepository
	EnergyRepo   profileDomain.EnergyStateRepository
	ProposalRepo rebalanceDomain.ProposalRepository
	SnapshotRepo rebalanceDomain.SnapshotRepository
	ChurnRepo    rebalanceDomain.ChurnRepository
	AttemptRepo  rebalanceDomain.AttemptRepository
	OutboxRepo   outbox.Repository

	// Publishers
	EventPublisher  eventbus.Publisher
	OutboxProcessor *outbox.Processor

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Engine services
	Scorer   *services.PriorityScorer
	Detector *services.ConflictDetector
	Planner  *services.ChunkPlanner
	Finder   *services.SlotFinder
	Builder  *services.ProposalBuilder
	Governor *services.ChurnGovernor

	// Command handlers
	GenerateProposalHandler *commands.GenerateProposalHandler
	ApplyProposalHandler    *commands.ApplyProposalHandler
	UndoProposalHandler     *commands.UndoProposalHandler
	CancelProposalHandler   *commands.CancelProposalHandler
	ExpireProposalsHandler  *commands.ExpireProposalsHandler
	DailyRefreshHandler     *commands.DailyRefreshHandler
	ReportEnergyHandler     *commands.ReportEnergyHandler

	// Query handlers
	GetProposalHandler  *queries.GetProposalHandler
	EngineHealthHandler *queries.EngineHealthHandler
}

// NewContainer creates and wires all dependencies. The storage backend
// follows the database URL: postgres URLs get pgx, anything else is
// treated as a local SQLite path.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		DBDriver: database.DetectDriver(cfg.DatabaseURL),
	}

	switch c.DBDriver {
	case database.DriverPostgres:
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		c.Pool = pool
		c.wirePostgres(pool)
		logger.Info("connected to database", "driver", c.DBDriver)
	default:
		path := cfg.DatabaseURL
		if path == "" {
			path = database.DefaultSQLitePath()
		}
		db, err := database.OpenSQLite(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		c.SQLiteDB = db
		c.wireSQLite(db)
		logger.Info("opened local database", "driver", c.DBDriver, "path", path)
	}

	// Connect to Redis (optional in development)
	if cfg.RedisURL != "" && cfg.EnergyCacheEnable {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			if !cfg.IsDevelopment() {
				c.Close()
				return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
			}
			logger.Warn("invalid Redis URL, energy reads go straight to the database", "error", err)
		} else {
			redisClient := redis.NewClient(opt)
			if err := redisClient.Ping(ctx).Err(); err != nil {
				if !cfg.IsDevelopment() {
					c.Close()
					return nil, fmt.Errorf("failed to connect to Redis: %w", err)
				}
				logger.Warn("Redis not available, energy reads go straight to the database", "error", err)
			} else {
				c.RedisClient = redisClient
				cacheCfg := profileCache.DefaultCacheConfig()
				cacheCfg.TTL = cfg.EnergyCacheTTL
				c.EnergyRepo = profileCache.NewRedisEnergyCache(c.EnergyRepo, redisClient, cacheCfg, logger)
				logger.Info("connected to Redis")
			}
		}
	}

	// Create event publisher
	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		// Fall back to noop publisher in development
		if cfg.IsDevelopment() {
			logger.Warn("RabbitMQ not available, using noop publisher")
			c.EventPublisher = eventbus.NewNoopPublisher(logger)
		} else {
			c.Close()
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
	} else {
		c.EventPublisher = publisher
	}

	processorCfg := outbox.DefaultProcessorConfig()
	processorCfg.PollInterval = cfg.OutboxPollInterval
	processorCfg.BatchSize = cfg.OutboxBatchSize
	processorCfg.MaxRetries = cfg.OutboxMaxRetries
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, processorCfg, logger)

	// Create engine services
	c.Scorer = services.NewPriorityScorer(services.DefaultScorerConfig())
	c.Detector = services.NewConflictDetector(services.DefaultDetectorConfig())
	c.Planner = services.NewChunkPlanner(services.DefaultPlannerConfig())
	c.Finder = services.NewSlotFinder(services.DefaultSlotFinderConfig())
	c.Builder = services.NewProposalBuilder(services.DefaultBuilderConfig(), c.Scorer, c.Detector, c.Planner, c.Finder)

	governorCfg := services.DefaultGovernorConfig()
	if cfg.ChurnDailyCapMinutes > 0 {
		governorCfg.DefaultDailyCapMinutes = cfg.ChurnDailyCapMinutes
	}
	c.Governor = services.NewChurnGovernor(governorCfg)

	// Create command handlers
	c.GenerateProposalHandler = commands.NewGenerateProposalHandler(
		c.Builder, c.Governor, c.ProposalRepo, c.ChurnRepo, c.BlockRepo,
		c.WorkItemRepo, c.CourseRepo, c.ProfileRepo, c.EnergyRepo,
		c.OutboxRepo, c.UnitOfWork, cfg.RefreshHorizonDays,
	)
	c.ApplyProposalHandler = commands.NewApplyProposalHandler(
		c.Governor, c.ProposalRepo, c.SnapshotRepo, c.ChurnRepo,
		c.AttemptRepo, c.BlockRepo, c.ProfileRepo, c.OutboxRepo, c.UnitOfWork,
	)
	c.UndoProposalHandler = commands.NewUndoProposalHandler(
		c.ProposalRepo, c.SnapshotRepo, c.AttemptRepo, c.BlockRepo,
		c.OutboxRepo, c.UnitOfWork, cfg.UndoWindow,
	)
	c.CancelProposalHandler = commands.NewCancelProposalHandler(c.ProposalRepo, c.OutboxRepo, c.UnitOfWork)
	c.ExpireProposalsHandler = commands.NewExpireProposalsHandler(c.ProposalRepo, c.OutboxRepo, c.UnitOfWork, logger)
	c.DailyRefreshHandler = commands.NewDailyRefreshHandler(c.GenerateProposalHandler, c.WorkItemRepo, logger)
	c.ReportEnergyHandler = commands.NewReportEnergyHandler(c.EnergyRepo, c.GenerateProposalHandler, 0)

	// Create query handlers
	c.GetProposalHandler = queries.NewGetProposalHandler(c.ProposalRepo)
	c.EngineHealthHandler = queries.NewEngineHealthHandler(c.ProposalRepo)

	return c, nil
}

func (c *Container) wirePostgres(pool *pgxpool.Pool) {
	c.BlockRepo = calendarPersistence.NewPostgresBlockRepository(pool)
	c.WorkItemRepo = courseworkPersistence.NewPostgresWorkItemRepository(pool)
	c.CourseRepo = courseworkPersistence.NewPostgresCourseRepository(pool)
	c.ProfileRepo = profilePersistence.NewPostgresProfileRepository(pool)
	c.EnergyRepo = profilePersistence.NewPostgresEnergyStateRepository(pool)
	c.ProposalRepo = rebalancePersistence.NewPostgresProposalRepository(pool)
	c.SnapshotRepo = rebalancePersistence.NewPostgresSnapshotRepository(pool)
	c.ChurnRepo = rebalancePersistence.NewPostgresChurnRepository(pool)
	c.AttemptRepo = rebalancePersistence.NewPostgresAttemptRepository(pool)
	c.OutboxRepo = outbox.NewPostgresRepository(pool)
	c.UnitOfWork = sharedPersistence.NewPostgresUnitOfWork(pool)
}

func (c *Container) wireSQLite(db *sql.DB) {
	c.BlockRepo = calendarPersistence.NewSQLiteBlockRepository(db)
	c.WorkItemRepo = courseworkPersistence.NewSQLiteWorkItemRepository(db)
	c.CourseRepo = courseworkPersistence.NewSQLiteCourseRepository(db)
	c.ProfileRepo = profilePersistence.NewSQLiteProfileRepository(db)
	c.EnergyRepo = profilePersistence.NewSQLiteEnergyStateRepository(db)
	c.ProposalRepo = rebalancePersistence.NewSQLiteProposalRepository(db)
	c.SnapshotRepo = rebalancePersistence.NewSQLiteSnapshotRepository(db)
	c.ChurnRepo = rebalancePersistence.NewSQLiteChurnRepository(db)
	c.AttemptRepo = rebalancePersistence.NewSQLiteAttemptRepository(db)
	c.OutboxRepo = outbox.NewSQLiteRepository(db)
	c.UnitOfWork = sharedPersistence.NewSQLiteUnitOfWork(db)
}

// Close releases all resources.
func (c *Container) Close() {
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("failed to close Redis client", "error", err)
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.SQLiteDB != nil {
		if err := c.SQLiteDB.Close(); err != nil {
			c.Logger.Warn("failed to close sqlite database", "error", err)
		}
	}
}
