package backend

import (
	"context"
	"errors"
	"fmt"

	"fisse/internal/amqp"
	"fisse/internal/cache"
	"fisse/internal/ledger/docstore"
	"fisse/internal/ledger/postgres"
	"fisse/internal/ledger/sheets"
	"fisse/internal/log"
	"fisse/internal/remote"
	"fisse/internal/remote/firestore"
	"fisse/internal/remote/memory"
	"fisse/internal/storage"
	"fisse/internal/store"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend opens the local tier, the remote tier and the ledger, and
// wires them into a store adapter. Anything opened before a failure is closed.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (_ *Backend, err error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	local, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	closers = append(closers, local.Close)

	rem, err := f.createRemote(ctx, config)
	if err != nil {
		return nil, err
	}
	if c, ok := rem.(remote.Closer); ok {
		closers = append(closers, c.Close)
	}

	opts := []store.Option{store.WithLogger(f.logger)}
	if config.CacheSize > 0 && config.CacheTTL > 0 {
		opts = append(opts, store.WithCache(config.CacheSize, config.CacheTTL))
	}

	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			amqpClient = client
			opts = append(opts, store.WithNotifier(client))
			closers = append(closers, client.Close)
		}
	}

	adapter := store.New(local, rem, opts...)
	if c := adapter.Cache(); c != nil {
		manager := cache.NewManager()
		manager.Register(c)
		manager.StartCleanup(config.CacheTTL)
		closers = append(closers, func() error {
			manager.Stop()
			return nil
		})
	}

	led, err := f.createLedger(ctx, config, adapter)
	if err != nil {
		return nil, err
	}
	if c, ok := led.(interface{ Close() error }); ok {
		closers = append(closers, c.Close)
	}

	f.logger.Info("Initialized backend",
		"db_path", config.SQLiteDBPath,
		"remote", config.Remote,
		"ledger", config.Ledger,
		"amqp_enabled", amqpClient != nil)

	return &Backend{
		Local:    local,
		Remote:   rem,
		Store:    adapter,
		Ledger:   led,
		AMQP:     amqpClient,
		Cleanup: func() error {
			var errs []error
			for i := len(closers) - 1; i >= 0; i-- {
				errs = append(errs, closers[i]())
			}
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createRemote(ctx context.Context, config Config) (remote.DocumentStore, error) {
	switch config.Remote {
	case FirestoreRemote:
		s, err := firestore.New(ctx, firestore.Config{
			ProjectID:       config.FirestoreProjectID,
			CredentialsFile: config.FirestoreCredentialsFile,
			UserID:          config.UserID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firestore client: %w", err)
		}
		f.logger.Info("Initialized Firestore remote", "project", config.FirestoreProjectID, "user_id", config.UserID)
		return s, nil
	case MemoryRemote:
		f.logger.Info("Initialized in-memory remote")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported remote backend: %s", config.Remote)
	}
}

func (f *DefaultFactory) createLedger(ctx context.Context, config Config, adapter *store.Adapter) (LedgerStore, error) {
	switch config.Ledger {
	case DocstoreLedger:
		return docstore.New(adapter), nil
	case PostgresLedger:
		s, err := postgres.Open(config.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres ledger: %w", err)
		}
		f.logger.Info("Initialized Postgres ledger")
		return s, nil
	case SheetsLedger:
		c, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID:      config.GoogleSpreadsheetID,
			SheetName:          config.GoogleSheetName,
			ServiceAccountFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets ledger: %w", err)
		}
		f.logger.Info("Initialized Google Sheets ledger", "spreadsheet_id", config.GoogleSpreadsheetID)
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", config.Ledger)
	}
}
