// Package app assembles the record store, segment engine and activation
// pipeline from configuration. The HTTP server and the CLI share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // zone database for data.timezone in minimal images

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/cdp-activation/internal/activation"
	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/export"
	"github.com/ignite/cdp-activation/internal/identity"
	"github.com/ignite/cdp-activation/internal/ledger"
	"github.com/ignite/cdp-activation/internal/pkg/distlock"
	"github.com/ignite/cdp-activation/internal/pkg/httpretry"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
	"github.com/ignite/cdp-activation/internal/records"
	"github.com/ignite/cdp-activation/internal/segmentation"
	"github.com/ignite/cdp-activation/internal/storage"
)

// App holds every long-lived component. Optional backends (DB, Redis, S3)
// are nil when not configured.
type App struct {
	Config    *config.Config
	Holder    *records.Holder
	Loader    records.Loader
	Engine    *segmentation.Engine
	Catalog   *segmentation.Catalog
	Encoder   *identity.Encoder
	Formatter *export.Formatter
	Exporter  *export.Exporter
	Consent   identity.Consent

	// ExportOptions carries Consent so files and uploads admit the same
	// customers.
	ExportOptions export.Options
	Activator *activation.Activator
	Ledger    ledger.Recorder

	DB    *sql.DB
	Redis *redis.Client
	S3    *s3.Client

	awsCfg *aws.Config
}

// New wires all components but loads no records; call Load for that.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	loc, err := recordLocation(cfg.Data.Timezone)
	if err != nil {
		return nil, err
	}
	domain.SetRecordLocation(loc)

	a := &App{Config: cfg, Holder: records.NewHolder(nil)}
	if err := a.initLoader(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initSegments(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initExport(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initActivation(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Load publishes a fresh snapshot from the configured source.
func (a *App) Load(ctx context.Context) error {
	_, err := records.Reload(ctx, a.Holder, a.Loader)
	return err
}

// Close releases database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}

func recordLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("data.timezone: %w", err)
	}
	return loc, nil
}

func (a *App) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	c := a.Config.AWS
	cfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
		Region:          c.Region,
		Profile:         c.Profile,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
	})
	if err != nil {
		return aws.Config{}, err
	}
	a.awsCfg = &cfg
	return cfg, nil
}

func (a *App) s3Client(ctx context.Context) (*s3.Client, error) {
	if a.S3 != nil {
		return a.S3, nil
	}
	cfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	a.S3 = s3.NewFromConfig(cfg)
	return a.S3, nil
}

func (a *App) initLoader(ctx context.Context) error {
	d := a.Config.Data
	switch d.Source {
	case config.SourceDir:
		l, err := records.NewDirLoader(d.Dir)
		if err != nil {
			return err
		}
		a.Loader = l
		logger.Info("app: reading records from directory", "dir", d.Dir)

	case config.SourceS3:
		if d.S3Bucket == "" {
			return errors.New("data.s3_bucket is required for the s3 source")
		}
		client, err := a.s3Client(ctx)
		if err != nil {
			return err
		}
		a.Loader = records.NewObjectLoader(storage.NewS3Store(client, d.S3Bucket, d.S3Prefix))
		logger.Info("app: reading records from S3", "bucket", d.S3Bucket, "prefix", d.S3Prefix)

	case config.SourcePostgres, config.SourceSnowflake:
		if d.DSN == "" {
			return fmt.Errorf("data.dsn is required for the %s source", d.Source)
		}
		db, err := records.OpenSQL(d.Source, d.DSN)
		if err != nil {
			return err
		}
		a.DB = db
		a.Loader = records.NewSQLLoader(db, records.SQLTables{
			Customers:    d.CustomersTable,
			Transactions: d.TransactionsTable,
			Events:       d.EventsTable,
		})
		logger.Info("app: reading records from database", "driver", d.Source)

	default:
		return fmt.Errorf("unknown data source %q", d.Source)
	}
	return nil
}

func (a *App) initSegments() error {
	var opts []segmentation.Option
	if n := a.Config.Segments.Workers; n > 0 {
		opts = append(opts, segmentation.WithWorkers(n))
	}
	a.Engine = segmentation.NewEngine(a.Holder, opts...)

	path := a.Config.Segments.DefinitionsPath
	if path == "" {
		a.Catalog = segmentation.DefaultCatalog()
		return nil
	}
	catalog, err := segmentation.LoadDefinitions(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("app: segment definitions file missing, using built-in catalog", "path", path)
		a.Catalog = segmentation.DefaultCatalog()
		return nil
	}
	if err != nil {
		return err
	}
	a.Catalog = catalog
	return nil
}

func (a *App) initExport(ctx context.Context) error {
	act := a.Config.Activation
	hasher, err := identity.NewHasher(act.HashAlgorithm)
	if err != nil {
		return err
	}
	a.Encoder = identity.NewEncoder(hasher, act.CountryCode)
	a.Formatter = export.NewFormatter(a.Encoder)
	a.Consent, err = identity.ParseConsent(act.Consent)
	if err != nil {
		return err
	}
	a.ExportOptions = export.DefaultOptions()
	a.ExportOptions.Consent = a.Consent

	var sink *export.Sink
	if bucket := a.Config.Export.S3Bucket; bucket != "" {
		client, err := a.s3Client(ctx)
		if err != nil {
			return err
		}
		sink = export.S3Sink(client, bucket, a.Config.Export.S3Prefix)
	} else {
		sink, err = export.LocalSink(a.Config.Export.Dir)
		if err != nil {
			return err
		}
	}
	a.Exporter = export.NewExporter(a.Engine, a.Catalog, a.Formatter, sink, a.ExportOptions)
	return nil
}

func (a *App) initActivation(ctx context.Context) error {
	cfg := a.Config
	if _, err := activation.RenderAudienceName(cfg.Activation.AudienceNameTemplate, "segment", "", time.Now()); err != nil {
		return fmt.Errorf("activation.audience_name_template: %w", err)
	}
	clients, err := activation.NewClients(cfg.Activation.Platforms, cfg, nil)
	if err != nil {
		return err
	}
	for _, c := range clients {
		if c.Simulated() {
			logger.Warn("app: platform credentials missing, uploads are simulated", "platform", c.Platform())
		}
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		a.Redis = redis.NewClient(opts)
	}

	if cfg.Ledger.Table != "" {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return err
		}
		ttl := time.Duration(cfg.Ledger.TTLDays) * 24 * time.Hour
		a.Ledger = ledger.NewDynamoFromConfig(awsCfg, cfg.Ledger.Table, ttl)
	} else {
		a.Ledger = ledger.NewMemory()
	}

	a.Activator = activation.NewActivator(a.Engine, a.Catalog, a.Encoder, clients,
		distlock.NewProvider(a.Redis), a.Ledger, activation.Settings{
			Policy: httpretry.Policy{
				MaxAttempts: cfg.Activation.RetryCount,
				BaseDelay:   cfg.Activation.RetryDelay(),
				MaxDelay:    cfg.Activation.MaxDelay(),
				Jitter:      true,
			},
			DryRun:       cfg.Activation.DryRun,
			Timeout:      cfg.Activation.Timeout(),
			LockTTL:      cfg.Activation.LockTTL(),
			NameTemplate: cfg.Activation.AudienceNameTemplate,
			Consent:      a.Consent,
		})
	return nil
}
