package backend

import (
	"fmt"

	"fisse/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	remoteType := RemoteType(appConfig.RemoteBackend)
	if !remoteType.IsValid() {
		return Config{}, fmt.Errorf("invalid remote backend in config: %s", appConfig.RemoteBackend)
	}
	ledgerType := LedgerType(appConfig.LedgerBackend)
	if !ledgerType.IsValid() {
		return Config{}, fmt.Errorf("invalid ledger backend in config: %s", appConfig.LedgerBackend)
	}

	return Config{
		SQLiteDBPath: appConfig.SQLiteDBPath,

		Remote:                   remoteType,
		FirestoreProjectID:       appConfig.FirestoreProjectID,
		FirestoreCredentialsFile: appConfig.FirestoreCredentialsFile,
		UserID:                   appConfig.UserID,

		Ledger:                   ledgerType,
		PostgresURL:              appConfig.PostgresURL,
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		CacheSize: appConfig.CacheSize,
		CacheTTL:  appConfig.CacheTTL,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required")
	}
	if !c.Remote.IsValid() {
		return fmt.Errorf("invalid remote backend: %s", c.Remote)
	}
	if !c.Ledger.IsValid() {
		return fmt.Errorf("invalid ledger backend: %s", c.Ledger)
	}

	if c.Remote == FirestoreRemote && c.FirestoreProjectID == "" {
		return fmt.Errorf("Firestore project ID is required for firestore remote")
	}

	switch c.Ledger {
	case PostgresLedger:
		if c.PostgresURL == "" {
			return fmt.Errorf("Postgres URL is required for postgres ledger")
		}
	case SheetsLedger:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets ledger")
		}
	case DocstoreLedger:
		// transactions live next to the periods in the document store
	}

	return nil
}
