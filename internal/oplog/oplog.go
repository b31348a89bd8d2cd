// Package oplog writes drawer operation logs through zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/cashdrawer/pkg/drawer"
	"go.uber.org/zap"
)

const (
	messageOperation = "drawer operation"
	fieldOperation   = "operation"
	fieldStatus      = "status"
	fieldCashierID   = "cashier_id"
	fieldSessionID   = "session_id"
	fieldTransaction = "transaction_id"
	fieldAmount      = "amount"
	fieldErrorKind   = "error_kind"
	fieldAuditError  = "audit_error"
)

// ZapLogger implements drawer.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

// New returns a ZapLogger. A nil logger disables output.
func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// LogOperation logs failures at error level, audit write failures at warn level and the rest at info.
func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry drawer.OperationLog) {
	fields := []zap.Field{
		zap.String(fieldOperation, entry.Operation),
		zap.String(fieldStatus, entry.Status),
	}
	if cashierID := entry.CashierID.String(); cashierID != "" {
		fields = append(fields, zap.String(fieldCashierID, cashierID))
	}
	if entry.SessionID != "" {
		fields = append(fields, zap.String(fieldSessionID, entry.SessionID))
	}
	if entry.TransactionID != "" {
		fields = append(fields, zap.String(fieldTransaction, entry.TransactionID))
	}
	if !entry.Amount.Decimal().IsZero() {
		fields = append(fields, zap.String(fieldAmount, entry.Amount.String()))
	}
	if entry.AuditError != nil {
		fields = append(fields, zap.NamedError(fieldAuditError, entry.AuditError))
	}
	switch {
	case entry.Error != nil:
		fields = append(fields, zap.String(fieldErrorKind, drawer.Kind(entry.Error)), zap.Error(entry.Error))
		zapLogger.logger.Error(messageOperation, fields...)
	case entry.AuditError != nil:
		zapLogger.logger.Warn(messageOperation, fields...)
	default:
		zapLogger.logger.Info(messageOperation, fields...)
	}
}
