// Package resolver maps a gateway order id back to the internal order id.
//
// Resolution is an ordered list of tiers tried in sequence; the first tier to
// produce a positive id wins:
//
//  1. notes: the order_id note attached when the gateway order was created
//  2. receipt: the gateway order's receipt, "order_<id>" or a bare number
//  3. store: the Order Store's lookup by external reference
//
// A tier that fails for any reason falls through. Resolve never returns an
// error; exhausting every tier reports ok=false.
package resolver

import (
	"context"
	"strconv"
	"strings"

	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

// Reference is what a payment event tells us about its order
type Reference struct {
	GatewayOrderID string
	Notes          models.Notes
}

// ReferenceFor builds the reference carried by a payment event
func ReferenceFor(event models.PaymentEvent) Reference {
	return Reference{GatewayOrderID: event.GatewayOrderID, Notes: event.Notes}
}

// ReceiptSource returns the receipt attached to a gateway order
type ReceiptSource interface {
	Receipt(ctx context.Context, gatewayOrderID string) (string, bool, error)
}

// ReferenceLookup finds an order by its gateway order id
type ReferenceLookup interface {
	FindByExternalReference(ctx context.Context, gatewayOrderID string) (models.OrderRecord, bool, error)
}

// Tier is one resolution strategy; ok=false means fall through
type Tier struct {
	Name    string
	Resolve func(ctx context.Context, ref Reference) (int64, bool)
}

// Resolver runs its tiers in order
type Resolver struct {
	tiers  []Tier
	logger log.Logger
}

// New builds the standard notes → receipt → store chain
func New(receipts ReceiptSource, store ReferenceLookup, logger log.Logger) *Resolver {
	r := &Resolver{logger: logger}
	r.tiers = []Tier{
		{Name: "notes", Resolve: r.fromNotes},
		{Name: "receipt", Resolve: func(ctx context.Context, ref Reference) (int64, bool) {
			return r.fromReceipt(ctx, receipts, ref)
		}},
		{Name: "store", Resolve: func(ctx context.Context, ref Reference) (int64, bool) {
			return r.fromStore(ctx, store, ref)
		}},
	}
	return r
}

// NewWithTiers builds a resolver over an explicit tier list
func NewWithTiers(logger log.Logger, tiers ...Tier) *Resolver {
	return &Resolver{tiers: tiers, logger: logger}
}

// Resolve returns the internal order id for ref, or ok=false when every
// tier is exhausted.
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (int64, bool) {
	for _, tier := range r.tiers {
		if id, ok := tier.Resolve(ctx, ref); ok && id > 0 {
			r.logger.Info("Order reference resolved", "gateway_order_id", ref.GatewayOrderID, "order_id", id, "tier", tier.Name)
			return id, true
		}
	}
	r.logger.Warn("Order reference unresolved", "gateway_order_id", ref.GatewayOrderID)
	return 0, false
}

func (r *Resolver) fromNotes(_ context.Context, ref Reference) (int64, bool) {
	raw, ok := ref.Notes.Get(models.NoteOrderID)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		r.logger.Debug("Ignoring invalid order_id note", "gateway_order_id", ref.GatewayOrderID, "note", raw)
		return 0, false
	}
	return id, true
}

func (r *Resolver) fromReceipt(ctx context.Context, receipts ReceiptSource, ref Reference) (int64, bool) {
	if receipts == nil || ref.GatewayOrderID == "" {
		return 0, false
	}

	receipt, found, err := receipts.Receipt(ctx, ref.GatewayOrderID)
	if err != nil {
		r.logger.Warn("Failed to fetch gateway order receipt", "gateway_order_id", ref.GatewayOrderID, "error", err)
		return 0, false
	}
	if !found || receipt == "" {
		r.logger.Debug("Gateway order has no receipt", "gateway_order_id", ref.GatewayOrderID)
		return 0, false
	}

	id, ok := ParseReceipt(receipt)
	if !ok {
		r.logger.Warn("Receipt does not carry an order id", "gateway_order_id", ref.GatewayOrderID, "receipt", receipt)
	}
	return id, ok
}

func (r *Resolver) fromStore(ctx context.Context, store ReferenceLookup, ref Reference) (int64, bool) {
	if store == nil || ref.GatewayOrderID == "" {
		return 0, false
	}

	record, found, err := store.FindByExternalReference(ctx, ref.GatewayOrderID)
	if err != nil {
		r.logger.Warn("Order Store lookup failed", "gateway_order_id", ref.GatewayOrderID, "error", err)
		return 0, false
	}
	if !found || record.ID <= 0 {
		return 0, false
	}
	return record.ID, true
}

// ParseReceipt extracts a positive order id from "order_<digits>". Receipts
// without the prefix must be all digits, for orders created before the
// prefix was introduced.
func ParseReceipt(receipt string) (int64, bool) {
	digits, _ := strings.CutPrefix(receipt, models.ReceiptPrefix)
	if !isDigits(digits) {
		return 0, false
	}

	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
