package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/offline-pos/internal/cart"
	"github.com/angelmondragon/offline-pos/internal/ledger"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

// OnlineOnly finalizes sales straight against the ledger. The terminal
// falls back to it when the local store is unavailable, so a sale either
// lands in the ledger or is refused.
type OnlineOnly struct {
	client     ledger.Client
	terminalID string
	timeout    time.Duration
	logg       *logger.Logger
	clock      func() time.Time
}

type OnlineOption func(*OnlineOnly)

func WithTerminalID(id string) OnlineOption {
	return func(o *OnlineOnly) { o.terminalID = id }
}

// WithSubmitTimeout bounds each synchronous submission.
func WithSubmitTimeout(d time.Duration) OnlineOption {
	return func(o *OnlineOnly) { o.timeout = d }
}

func WithLogger(logg *logger.Logger) OnlineOption {
	return func(o *OnlineOnly) {
		if logg != nil {
			o.logg = logg
		}
	}
}

func NewOnlineOnly(client ledger.Client, opts ...OnlineOption) (*OnlineOnly, error) {
	if client == nil {
		return nil, fmt.Errorf("ledger client required")
	}
	o := &OnlineOnly{client: client, logg: logger.Nop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

func (o *OnlineOnly) Finalize(ctx context.Context, c cart.Cart, payments []types.Payment) (*Receipt, error) {
	rec, change, err := buildRecord(c, payments, o.terminalID, o.clock())
	if err != nil {
		return nil, err
	}

	submitCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	logCtx := o.logg.WithTransactionID(ctx, rec.ClientTransactionID)
	res, err := o.client.SubmitTransaction(submitCtx, rec.ClientTransactionID, rec)
	if err != nil {
		o.logg.Error(logCtx, "online-only sale not recorded", err)
		if pkgerrors.IsRetryable(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger unreachable and no local store; sale not recorded")
		}
		return nil, err
	}
	if res.Outcome == ledger.OutcomeDuplicate && !res.Record.Matches(rec) {
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateSubmission, "ledger holds a different sale under this id").
			WithDetails(map[string]any{"canonical_id": res.CanonicalID})
	}

	o.logg.Info(o.logg.WithField(logCtx, "canonical_id", res.CanonicalID), "sale recorded online")
	return &Receipt{
		Transaction: rec,
		ChangeDue:   change,
		Status:      enums.TransactionStatusSynced,
		CanonicalID: res.CanonicalID,
	}, nil
}
