package log

import "github.com/MYH-Projet/dirhamy/internal/core"

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldOperation     = "operation"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldDuration      = "duration_ms"
	FieldUserID        = "user_id"
	FieldAccountID     = "account_id"
	FieldCategoryID    = "category_id"
	FieldTransactionID = "transaction_id"
	FieldTransferID    = "transfer_id"
	FieldKind          = "kind"
	FieldAmountCents   = "amount_cents"
	FieldDeltaCents    = "delta_cents"
	FieldLimitCents    = "limit_cents"
	FieldBalanceCents  = "balance_cents"
	FieldSnapshotAt    = "snapshot_at"
	FieldSnapshots     = "snapshots_corrected"
	FieldPending       = "pending"
	FieldProcessed     = "processed"
	FieldFailed        = "failed"
	FieldPeriod        = "period"
	FieldEventType     = "event_type"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentBudget  = "budget"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentCLI     = "cli"
)

// Operations defines standard operation names
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpCheckpoint = "checkpoint"
	OpSweep      = "sweep"
	OpVerify     = "verify"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds the error and its classification
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = core.ErrorType(err)
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithAccount adds account ID field
func (f LogFields) WithAccount(id int64) LogFields {
	f[FieldAccountID] = id
	return f
}

// WithTransaction adds the identifying fields of a stored transaction
func (f LogFields) WithTransaction(t core.Transaction) LogFields {
	f[FieldTransactionID] = t.ID
	f[FieldAccountID] = t.AccountID
	f[FieldKind] = string(t.Kind)
	f[FieldAmountCents] = t.Amount.Cents
	if t.TransferID != "" {
		f[FieldTransferID] = t.TransferID
	}
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
