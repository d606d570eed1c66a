package backend

import (
	"context"
	"time"

	"fisse/internal/amqp"
	"fisse/internal/ledger"
	"fisse/internal/remote"
	"fisse/internal/storage"
	"fisse/internal/store"
)

// LedgerStore is what a ledger backend has to provide: the saga port and the
// history listing used by the legacy migration.
type LedgerStore interface {
	ledger.Ledger
	ledger.HistorySource
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Backend bundles the storage tiers a process runs on.
type Backend struct {
	Local  *storage.SQLiteRepository
	Remote remote.DocumentStore
	Store  *store.Adapter
	Ledger LedgerStore

	// AMQP is nil when AMQP is not configured or unreachable at startup.
	AMQP *amqp.Client

	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}

// Config holds configuration for backend creation
type Config struct {
	SQLiteDBPath string

	Remote                   RemoteType
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	UserID                   string

	Ledger                   LedgerType
	PostgresURL              string
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	CacheSize int
	CacheTTL  time.Duration
}

// RemoteType selects the authoritative document tier.
type RemoteType string

const (
	MemoryRemote    RemoteType = "memory"
	FirestoreRemote RemoteType = "firestore"
)

func (rt RemoteType) String() string {
	return string(rt)
}

func (rt RemoteType) IsValid() bool {
	switch rt {
	case MemoryRemote, FirestoreRemote:
		return true
	default:
		return false
	}
}

// LedgerType selects where ledger transactions are recorded.
type LedgerType string

const (
	DocstoreLedger LedgerType = "docstore"
	PostgresLedger LedgerType = "postgres"
	SheetsLedger   LedgerType = "sheets"
)

func (lt LedgerType) String() string {
	return string(lt)
}

func (lt LedgerType) IsValid() bool {
	switch lt {
	case DocstoreLedger, PostgresLedger, SheetsLedger:
		return true
	default:
		return false
	}
}
