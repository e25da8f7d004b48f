package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simkas/backend/internal/models"
	"github.com/simkas/backend/internal/registrations"
)

// StatusWriter is the ledger surface the adapter needs.
type StatusWriter interface {
	SetStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) (*models.Registration, error)
}

// Resolve maps a gateway (transaction_status, fraud_status) pair to a ledger
// status. ok is false for unrecognized transaction statuses, which are
// ignored rather than defaulted.
func Resolve(transactionStatus, fraudStatus string) (status models.RegistrationStatus, ok bool) {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "accept" {
			return models.RegistrationStatusApproved, true
		}
		return models.RegistrationStatusPending, true
	case "settlement":
		return models.RegistrationStatusApproved, true
	case "deny":
		return models.RegistrationStatusRejected, true
	case "expire":
		return models.RegistrationStatusExpired, true
	case "cancel":
		return models.RegistrationStatusCancelled, true
	}
	return "", false
}

// Adapter applies verified gateway notifications to the registration ledger.
type Adapter struct {
	ledger  StatusWriter
	gateway Gateway
	logger  *zap.Logger
}

// NewAdapter creates a payment reconciliation adapter.
func NewAdapter(ledger StatusWriter, gateway Gateway, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{ledger: ledger, gateway: gateway, logger: logger}
}

// Process authenticates and applies one notification. Returned errors mean
// the payload could not be authenticated (ErrUnverified) or the gateway was
// unreachable (ErrGatewayUnavailable); once authenticated, resolution
// failures are swallowed so the gateway never retries a delivered
// notification indefinitely.
func (a *Adapter) Process(ctx context.Context, delivered *Notification) error {
	if delivered.SignatureKey != "" && !a.gateway.ValidSignature(delivered) {
		return fmt.Errorf("%w: bad signature", ErrUnverified)
	}

	// Re-fetch the authoritative state rather than trusting the delivered
	// payload; out-of-date deliveries then converge on the gateway's truth.
	verified, err := a.gateway.CheckStatus(ctx, delivered.OrderID)
	if err != nil {
		return err
	}

	status, ok := Resolve(verified.TransactionStatus, verified.FraudStatus)
	if !ok {
		a.logger.Info("unrecognized transaction status, ignoring",
			zap.String("order_id", verified.OrderID),
			zap.String("transaction_status", verified.TransactionStatus))
		return nil
	}

	regID, err := uuid.Parse(verified.OrderID)
	if err != nil {
		a.logger.Warn("order id is not a registration id, swallowing notification",
			zap.String("order_id", verified.OrderID))
		return nil
	}

	if _, err := a.ledger.SetStatus(ctx, regID, status); err != nil {
		if errors.Is(err, registrations.ErrNotFound) {
			a.logger.Warn("no registration for order, swallowing notification",
				zap.String("order_id", verified.OrderID),
				zap.String("status", string(status)))
			return nil
		}
		a.logger.Error("apply notification failed, acknowledging anyway",
			zap.Error(err), zap.String("order_id", verified.OrderID))
		return nil
	}

	a.logger.Info("payment notification applied",
		zap.String("order_id", verified.OrderID),
		zap.String("transaction_status", verified.TransactionStatus),
		zap.String("status", string(status)))
	return nil
}
