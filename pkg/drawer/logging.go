package drawer

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing drawer operation.
type OperationLog struct {
	Operation     string
	CashierID     CashierID
	SessionID     string
	TransactionID string
	Amount        Amount
	Status        string
	Error         error
	AuditError    error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithLocation sets the time zone that defines business dates. Defaults to UTC.
func WithLocation(location *time.Location) ServiceOption {
	return func(service *Service) {
		if location != nil {
			service.location = location
		}
	}
}

// WithSessionRequiredForMovements makes CashIn, CashOut and SafeDrop fail without an active session.
func WithSessionRequiredForMovements(required bool) ServiceOption {
	return func(service *Service) {
		service.requireSession = required
	}
}
