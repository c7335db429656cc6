package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	appAuth "github.com/osis-edu/osis/internal/app/auth"
	appMigrations "github.com/osis-edu/osis/internal/app/migrations"
	appRepos "github.com/osis-edu/osis/internal/app/repositories"
	appServices "github.com/osis-edu/osis/internal/app/services"
	"github.com/osis-edu/osis/internal/config"
	"github.com/osis-edu/osis/internal/db"
	"github.com/osis-edu/osis/internal/pkg/logger"
	"github.com/osis-edu/osis/internal/pkg/notify"
	"github.com/osis-edu/osis/internal/seed"
)

// Dependencies holds all the application dependencies
type Dependencies struct {
	Store               appRepos.Store
	AcademicYearService *appServices.AcademicYearService
	EntityService       *appServices.EntityService
	ConsistencyService  *appServices.ConsistencyService
	LearningUnitService *appServices.LearningUnitService
	PostponementService *appServices.PostponementService
	ProposalService     *appServices.ProposalService
	Policy              appServices.PermissionChecker
	Sink                notify.Sink
	Logger              zerolog.Logger
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger() (*config.Config, zerolog.Logger, error) {
	configPath := filepath.Join("configs", "config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err // Return zero logger and the error
	}

	logLevel := strings.ToLower(cfg.Logging.Level)
	prettyLog := strings.ToLower(cfg.Logging.Format) == "text"

	logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: prettyLog,
	})

	lgr := log.Logger // Get the configured global logger
	lgr.Info().Str("logLevel", logLevel).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupDatabase establishes the database connection and runs migrations.
func SetupDatabase(cfg *config.Config, lgr zerolog.Logger) (*pgxpool.Pool, error) {
	lgr.Info().Msg("Establishing database connection...")
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to connect to database")
		return nil, err
	}
	dbPool := database.Pool

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbPool.Ping(ctx); err != nil {
		lgr.Error().Err(err).Msg("Failed to ping database")
		dbPool.Close()
		return nil, err
	}
	lgr.Info().Msg("Database connection successfully established.")

	// Run migrations
	lgr.Info().Msg("Running database migrations...")
	migrator := appMigrations.NewMigrator(dbPool)

	migrationsDir := "migrations"
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		lgr.Error().Str("path", migrationsDir).Msg("Migrations directory not found")
		return nil, fmt.Errorf("migrations directory not found at %s: %w", migrationsDir, err)
	}

	if err := migrator.MigrateFromDirectory(migrationsDir); err != nil {
		lgr.Error().Err(err).Msg("Database migration error")
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}

	lgr.Info().Msg("Database migrations successfully applied.")

	// Create Default Data (after migrations)
	if err := seed.CreateDefaultData(context.Background(), dbPool, cfg, lgr); err != nil {
		// Log the error but don't necessarily fail the startup
		lgr.Error().Err(err).Msg("Failed to create default data, proceeding anyway...")
	}

	return dbPool, nil
}

// BuildDependencies initializes the store and services.
func BuildDependencies(cfg *config.Config, dbPool *pgxpool.Pool, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: lgr}

	deps.Store = appRepos.NewRepositories(dbPool)

	deps.Sink = notify.NewSMTPSink(notify.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		FromName:  cfg.SMTP.FromName,
		FromEmail: cfg.SMTP.FromEmail,
		UseTLS:    cfg.SMTP.UseTLS,
	}, lgr)

	deps.Policy = appAuth.NewCachedChecker(appAuth.NewPolicy())

	deps.AcademicYearService = appServices.NewAcademicYearService(deps.Store, cfg.Academic.PostponementSpan, time.Now)
	deps.EntityService = appServices.NewEntityService(deps.Store)
	deps.ConsistencyService = appServices.NewConsistencyService(deps.Store)
	deps.LearningUnitService = appServices.NewLearningUnitService(deps.Store, deps.AcademicYearService, deps.ConsistencyService, deps.Policy)
	deps.PostponementService = appServices.NewPostponementService(deps.Store, deps.AcademicYearService, deps.ConsistencyService, deps.Policy)
	deps.ProposalService = appServices.NewProposalService(deps.Store, deps.AcademicYearService, deps.PostponementService, deps.Policy, deps.Sink)

	return deps, nil
}
