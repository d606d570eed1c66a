package backend

import (
	"fisse/internal/services"
)

// Services is the engine wired on top of one Backend.
type Services struct {
	Templates *services.TemplateRegistry
	Periods   *services.PeriodMaterializer
	Lifecycle *services.ItemLifecycle
	Migration *services.LegacyMigration
	Rollover  *services.RecurringProcessor
	Sync      *services.SyncProcessor
}

// NewServices builds the engine services over b.
func NewServices(b *Backend, syncConfig services.SyncProcessorConfig) *Services {
	templates := services.NewTemplateRegistry(b.Store)
	periods := services.NewPeriodMaterializer(b.Store, templates)
	lifecycle := services.NewItemLifecycle(periods, templates, b.Ledger)

	return &Services{
		Templates: templates,
		Periods:   periods,
		Lifecycle: lifecycle,
		Migration: services.NewLegacyMigration(templates, lifecycle),
		Rollover:  services.NewRecurringProcessor(periods, lifecycle),
		Sync:      services.NewSyncProcessor(b.Local, b.Remote, syncConfig),
	}
}
