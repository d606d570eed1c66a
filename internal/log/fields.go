package log

import (
	"fisse/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldCritical   = "critical"
	FieldSide       = "side"
	FieldPeriod     = "period"
	FieldItemID     = "item_id"
	FieldTxID       = "transaction_id"
	FieldCollection = "collection"
	FieldKey        = "key"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStore     = "store"
	ComponentWorker    = "worker"
	ComponentLifecycle = "lifecycle"
	ComponentBackend   = "backend"
	ComponentRollover  = "rollover"
)

// Operations logged by the item lifecycle
const (
	OpPay  = "pay"
	OpUndo = "undo"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithItem adds the fields identifying an item within a period.
func (f LogFields) WithItem(side core.Side, period core.PeriodKey, itemID string) LogFields {
	f[FieldSide] = string(side)
	f[FieldPeriod] = string(period)
	f[FieldItemID] = itemID
	return f
}

// Critical marks a record as describing a state that needs repair.
func (f LogFields) Critical() LogFields {
	f[FieldCritical] = true
	return f
}

func (f LogFields) WithHTTPRequest(method, path string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
