package audit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ariefcatur/gift-orders/internal/logging"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 2 * time.Second
	maxReasonLen   = 500
)

type Store interface {
	AppendAudit(ctx context.Context, e orders.AuditEntry) error
	AuditEntries(ctx context.Context, orderID string) ([]orders.AuditEntry, error)
}

type Log struct {
	timeout time.Duration
	clock   func() time.Time
	log     *zap.Logger
}

type Options struct {
	Timeout time.Duration
	Clock   func() time.Time
	Logger  *zap.Logger
}

func New(opts Options) *Log {
	l := &Log{
		timeout: opts.Timeout,
		clock:   opts.Clock,
		log:     logging.OrNop(opts.Logger),
	}
	if l.timeout <= 0 {
		l.timeout = defaultTimeout
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	return l
}

// Record appends e. It is best-effort: failures and timeouts are logged and
// reported through the return value only, so the caller can ignore them.
func (l *Log) Record(ctx context.Context, s Store, e orders.AuditEntry) (orders.AuditEntry, bool) {
	e = l.build(e)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := s.AppendAudit(ctx, e); err != nil {
		fields := []zap.Field{
			zap.String("order_id", e.OrderID),
			zap.String("old_status", string(e.OldStatus)),
			zap.String("new_status", string(e.NewStatus)),
			zap.Error(err),
		}
		if errors.Is(err, context.DeadlineExceeded) {
			fields = append(fields, zap.Duration("timeout", l.timeout))
		}
		l.log.Warn("audit append failed", fields...)
		return e, false
	}
	return e, true
}

func (l *Log) List(ctx context.Context, s Store, orderID string) ([]orders.AuditEntry, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", orders.ErrValidation)
	}
	return s.AuditEntries(ctx, orderID)
}

func (l *Log) build(e orders.AuditEntry) orders.AuditEntry {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.clock().UTC()
	}
	e.Actor = strings.TrimSpace(e.Actor)
	if e.Actor == "" {
		e.Actor = "system"
	}
	e.Reason = strings.TrimSpace(e.Reason)
	e.Reason = truncate(e.Reason, maxReasonLen)
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
