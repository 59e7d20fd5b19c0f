package transition

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type BulkRequest struct {
	OrderIDs []string
	Status   orders.Status
	Reason   string
	Actor    string
}

type BulkResult struct {
	BatchID    string               `json:"batch_id"`
	Successful []string             `json:"successful"`
	Failed     []orders.FailedOrder `json:"failed"`
	// Orders holds the resulting state of every successful order.
	Orders []orders.Order `json:"-"`
}

// Bulk moves many orders to one status. Each order runs in its own transaction
// so one failure never blocks the rest. One aggregate notification is sent.
func (o *Orchestrator) Bulk(ctx context.Context, req BulkRequest) (BulkResult, error) {
	ids := dedupe(req.OrderIDs)
	switch {
	case len(ids) == 0:
		return BulkResult{}, fmt.Errorf("%w: at least one order id is required", orders.ErrValidation)
	case len(ids) > o.bulkMaxOrders:
		return BulkResult{}, fmt.Errorf("%w: %d orders exceeds the batch limit of %d", orders.ErrValidation, len(ids), o.bulkMaxOrders)
	case !req.Status.Valid():
		return BulkResult{}, fmt.Errorf("%w: unknown status %q", orders.ErrValidation, req.Status)
	}

	batchID := uuid.NewString()
	type outcome struct {
		ch  change
		err error
	}
	outcomes := make([]outcome, len(ids))

	var g errgroup.Group
	g.SetLimit(o.bulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			r := Request{OrderID: id, Status: req.Status, Reason: req.Reason, Actor: req.Actor}
			r, err := normalize(r)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			var ch change
			err = o.inTx(ctx, id, func(ctx context.Context, tx Tx) error {
				order, err := tx.LockOrder(ctx, id)
				if err != nil {
					return err
				}
				ch, err = o.apply(ctx, tx, order, r, orders.OriginBulk, map[string]any{"batch_id": batchID})
				return err
			})
			outcomes[i] = outcome{ch: ch, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := BulkResult{BatchID: batchID, Successful: []string{}, Failed: []orders.FailedOrder{}}
	for i, oc := range outcomes {
		if oc.err != nil {
			res.Failed = append(res.Failed, orders.FailedOrder{OrderID: ids[i], Code: orders.CodeOf(oc.err), Error: oc.err.Error()})
			continue
		}
		ref := oc.ch.order.ShortCode
		if ref == "" {
			ref = oc.ch.order.ID
		}
		res.Successful = append(res.Successful, ref)
		res.Orders = append(res.Orders, oc.ch.order)
	}

	o.log.Info("bulk status change finished",
		zap.String("batch_id", batchID),
		zap.String("to", string(req.Status)),
		zap.String("actor", req.Actor),
		zap.Int("successful", len(res.Successful)),
		zap.Int("failed", len(res.Failed)),
	)
	o.notifyBatch(ctx, req, res)
	return res, nil
}

func (o *Orchestrator) notifyBatch(ctx context.Context, req BulkRequest, res BulkResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.notifyTimeout)
	defer cancel()

	err := o.notifier.BatchCompleted(ctx, orders.BatchCompletedPayload{
		BatchID:    res.BatchID,
		Status:     req.Status,
		Reason:     strings.TrimSpace(req.Reason),
		Actor:      strings.TrimSpace(req.Actor),
		Successful: res.Successful,
		Failed:     res.Failed,
	})
	if err != nil {
		o.log.Warn("batch notification failed", zap.String("batch_id", res.BatchID), zap.Error(err))
	}
}

// dedupe trims ids and drops blanks and repeats, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
