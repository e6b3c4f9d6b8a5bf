package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"investment-ledger/internal/repository"
)

// sweepBatchSize bounds how many missed settlements a catch-up pass loads.
const sweepBatchSize = 100

// SettlementListener watches the audit trail for externally-approved
// deposits and withdrawals and applies each exactly once. It is an explicit
// handle owned by the caller: Start begins the subscription, Stop tears it
// down and waits for the loop to exit.
//
// The listener rides Postgres LISTEN/NOTIFY (a trigger fires on every review
// of a deposit/withdraw whose balance effect is unapplied) and sweeps the
// unsettled backlog on start, after every reconnect, and on a fixed interval,
// so notifications missed while disconnected are still applied. Exactly-once
// is guaranteed by the in-transaction guard in ApplySettlement, not by
// delivery semantics.
type SettlementListener struct {
	pool          *pgxpool.Pool
	ledger        *LedgerService
	transactions  *repository.TransactionRepository
	channel       string
	backoff       time.Duration
	sweepInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSettlementListener creates a new SettlementListener instance.
func NewSettlementListener(
	pool *pgxpool.Pool,
	ledger *LedgerService,
	transactions *repository.TransactionRepository,
	channel string,
	backoff time.Duration,
	sweepInterval time.Duration,
) *SettlementListener {
	if channel == "" {
		channel = "ledger_settlements"
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &SettlementListener{
		pool:          pool,
		ledger:        ledger,
		transactions:  transactions,
		channel:       channel,
		backoff:       backoff,
		sweepInterval: sweepInterval,
	}
}

// Start launches the subscription loop. Calling Start on a running listener
// is a no-op.
func (l *SettlementListener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.sweepLoop(runCtx)
		}()
		l.run(runCtx)
		wg.Wait()
	}()
	log.Info().Str("channel", l.channel).Msg("Settlement listener started")
}

// Stop cancels the subscription and waits for the loop to exit.
func (l *SettlementListener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("Settlement listener stopped")
}

func (l *SettlementListener) run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Dur("backoff", l.backoff).Msg("Settlement listener disconnected, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.backoff):
			}
		}
	}
}

// listen holds one dedicated connection: sweep the backlog, LISTEN, then
// apply each notification as it arrives. Returns on connection failure or
// context cancellation.
func (l *SettlementListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+l.channel); err != nil {
		return err
	}

	// Catch up on settlements reviewed while we were not listening.
	l.sweep(ctx)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.apply(ctx, notification.Payload)
	}
}

// sweepLoop re-applies the unsettled backlog on a fixed interval. A dropped
// notification during a reconnect window stays unapplied at most one
// interval.
func (l *SettlementListener) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

// sweep applies every reviewed-but-unapplied settlement currently on record.
func (l *SettlementListener) sweep(ctx context.Context) {
	for {
		pending, err := l.transactions.ListUnsettled(ctx, sweepBatchSize)
		if err != nil {
			log.Error().Err(err).Msg("Settlement sweep query failed")
			return
		}
		if len(pending) == 0 {
			return
		}
		for _, tx := range pending {
			l.apply(ctx, tx.ID)
		}
		if len(pending) < sweepBatchSize {
			return
		}
	}
}

func (l *SettlementListener) apply(ctx context.Context, transactionID string) {
	outcome, err := l.ledger.ApplySettlement(ctx, transactionID)
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		log.Warn().Str("transaction_id", transactionID).Msg("Settlement notification for unknown transaction")
	case err != nil:
		log.Error().Err(err).Str("transaction_id", transactionID).Msg("Settlement failed")
	case outcome == SettlementSkipped:
		log.Debug().Str("transaction_id", transactionID).Msg("Settlement already applied, skipped")
	}
}
