// Package payment bridges the external payment processor and the ledger.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bonosa/MarsLife/internal/catalog"
	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/bonosa/MarsLife/internal/metrics"
	"github.com/bonosa/MarsLife/internal/notify"
	"go.uber.org/zap"
)

var (
	ErrUnknownPackage    = errors.New("payment: unknown package")
	ErrPaymentIncomplete = errors.New("payment: payment not completed")
	ErrBadMetadata       = errors.New("payment: intent metadata is missing credits")
)

const StatusSucceeded = "succeeded"

// Metadata keys stored on every intent.
const (
	MetaUserID    = "userId"
	MetaPackageID = "packageId"
	MetaCredits   = "credits"
)

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Metadata     map[string]string
}

// Processor is the external payment API.
type Processor interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
}

type Created struct {
	ClientSecret string          `json:"clientSecret"`
	Package      catalog.Package `json:"package"`
}

type Confirmation struct {
	CreditsAdded int64 `json:"creditsAdded"`
	NewBalance   int64 `json:"newBalance"`
	// UserID is the account that was credited.
	UserID string `json:"-"`
	// Replayed is set when the intent had already been credited.
	Replayed bool `json:"-"`
}

type Bridge struct {
	processor Processor
	ledger    *ledger.Service
	notifier  notify.Notifier
	currency  string
	logger    *zap.Logger
}

func NewBridge(processor Processor, ledgerSvc *ledger.Service, notifier notify.Notifier, currency string, logger *zap.Logger) *Bridge {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Bridge{
		processor: processor,
		ledger:    ledgerSvc,
		notifier:  notifier,
		currency:  currency,
		logger:    logger.Named("payment"),
	}
}

// CreateIntent opens an intent for the package price, tagged with the
// buyer and the credits it will grant.
func (b *Bridge) CreateIntent(ctx context.Context, packageID, userID string) (*Created, error) {
	pkg, ok := catalog.PackageByID(packageID)
	if !ok {
		return nil, ErrUnknownPackage
	}
	intent, err := b.processor.CreateIntent(ctx, pkg.Price, b.currency, map[string]string{
		MetaUserID:    userID,
		MetaPackageID: packageID,
		MetaCredits:   strconv.FormatInt(pkg.Credits, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	b.logger.Info("Payment intent created",
		zap.String("intent_id", intent.ID),
		zap.String("user_id", userID),
		zap.String("package_id", packageID),
		zap.Int64("amount", pkg.Price),
	)
	return &Created{ClientSecret: intent.ClientSecret, Package: pkg}, nil
}

// Confirm credits a succeeded intent once. Confirming it again returns the
// current balance with CreditsAdded 0.
func (b *Bridge) Confirm(ctx context.Context, intentID, userID string) (*Confirmation, error) {
	if intentID == "" {
		return nil, ErrPaymentIncomplete
	}
	intent, err := b.processor.GetIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}
	if intent.Status != StatusSucceeded {
		b.logger.Info("Payment intent not succeeded", zap.String("intent_id", intentID), zap.String("status", intent.Status))
		return nil, ErrPaymentIncomplete
	}

	credits, err := strconv.ParseInt(intent.Metadata[MetaCredits], 10, 64)
	if err != nil || credits <= 0 {
		return nil, fmt.Errorf("%w: intent %s", ErrBadMetadata, intentID)
	}

	owner := intent.Metadata[MetaUserID]
	switch {
	case owner == "":
		owner = userID
	case userID != "" && owner != userID:
		b.logger.Warn("Confirming intent created for another user, crediting its owner",
			zap.String("intent_id", intentID),
			zap.String("owner", owner),
			zap.String("caller", userID),
		)
	}

	balance, applied, err := b.ledger.ApplyPayment(ctx, intentID, owner, credits)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &Confirmation{CreditsAdded: 0, NewBalance: balance, UserID: owner, Replayed: true}, nil
	}

	packageID := intent.Metadata[MetaPackageID]
	metrics.CreditsPurchased.WithLabelValues(packageID).Add(float64(credits))
	b.notifier.PaymentApplied(ctx, owner, packageID, credits, balance)
	return &Confirmation{CreditsAdded: credits, NewBalance: balance, UserID: owner}, nil
}
