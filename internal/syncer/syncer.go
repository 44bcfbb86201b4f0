package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PosTrack/internal/exchange"
	"PosTrack/internal/fill"
	"PosTrack/internal/observability"
	"PosTrack/internal/persistence"
	"PosTrack/internal/position"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ExchangeAPI is the slice of the REST client a sync pass needs.
type ExchangeAPI interface {
	AccountInfo(ctx context.Context, creds exchange.Credentials) (exchange.AccountInfo, error)
	PositionRisk(ctx context.Context, creds exchange.Credentials) ([]exchange.PositionRisk, error)
	Orders(ctx context.Context, creds exchange.Credentials, symbol string, since time.Time) ([]exchange.Order, error)
}

// SyncStore is the persistence surface a sync pass writes through.
type SyncStore interface {
	PositionStore
	InsertSnapshot(ctx context.Context, snap persistence.Snapshot) error
	InsertSyncRun(ctx context.Context, run persistence.SyncRun) error
	TouchAccountSync(ctx context.Context, name string, at time.Time) error
}

// Publisher emits closed-position events to downstream consumers. May be
// nil when no event bus is wired.
type Publisher interface {
	PublishPositionClosed(ctx context.Context, p *position.Position) error
}

// Config tunes a sync pass.
type Config struct {
	LookbackDays       int
	FeeRate            decimal.Decimal
	MaxParallelSymbols int
}

// Summary is the outcome of one account sync pass.
type Summary struct {
	Account          string                      `json:"account"`
	TradesIngested   int                         `json:"tradesIngested"`
	PositionsTouched int                         `json:"positionsTouched"`
	Failures         []persistence.SymbolFailure `json:"failures"`
	StartedAt        time.Time                   `json:"startedAt"`
	FinishedAt       time.Time                   `json:"finishedAt"`
}

// Syncer runs the full pipeline for one account: fetch orders, normalize,
// group into channels, fold into positions, reconcile against Postgres.
// Symbols sync concurrently; each symbol's channels fold sequentially, so
// per-channel ordering is never violated.
type Syncer struct {
	api     ExchangeAPI
	store   SyncStore
	rec     *Reconciler
	pub     Publisher
	cfg     Config
	metrics *observability.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

func NewSyncer(api ExchangeAPI, store SyncStore, rec *Reconciler, pub Publisher, cfg Config, metrics *observability.Metrics, log zerolog.Logger) *Syncer {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	if cfg.MaxParallelSymbols <= 0 {
		cfg.MaxParallelSymbols = 4
	}
	if cfg.FeeRate.IsZero() {
		cfg.FeeRate = fill.DefaultFeeRate
	}

	return &Syncer{
		api:     api,
		store:   store,
		rec:     rec,
		pub:     pub,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// SyncAccount runs one sync pass. Account-level fetch failures abort the
// pass; per-symbol failures are isolated and reported in the summary.
func (s *Syncer) SyncAccount(ctx context.Context, acct persistence.Account, trigger string) (Summary, error) {
	started := s.now()
	creds := exchange.Credentials{APIKey: acct.APIKey, SecretKey: acct.APISecret}
	log := s.log.With().Str("account", acct.Name).Str("trigger", trigger).Logger()

	summary := Summary{Account: acct.Name, StartedAt: started}

	defer func() {
		if s.metrics != nil {
			s.metrics.SyncDuration.WithLabelValues(trigger).Observe(s.now().Sub(started).Seconds())
		}
	}()

	if err := s.takeSnapshot(ctx, creds, acct.Name); err != nil {
		s.countRun(trigger, "error")
		return summary, err
	}

	risks, err := s.timedPositionRisk(ctx, creds)
	if err != nil {
		s.countRun(trigger, "error")
		return summary, err
	}

	symbols := exchange.ActiveSymbols(risks)
	leverages := exchange.LeverageBySymbol(risks)
	since := started.AddDate(0, 0, -s.cfg.LookbackDays)

	log.Info().Int("symbols", len(symbols)).Time("since", since).Msg("sync pass started")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelSymbols)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			out, err := s.syncSymbol(gctx, creds, acct.Name, symbol, leverages[symbol], since)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failures = append(summary.Failures, persistence.SymbolFailure{
					Symbol: symbol,
					Error:  err.Error(),
				})
				if s.metrics != nil {
					s.metrics.SymbolSyncFailures.Inc()
				}
				log.Error().Err(err).Str("symbol", symbol).Msg("symbol sync failed")
				return nil // isolate: one bad symbol never fails the pass
			}
			summary.TradesIngested += out.TradesIngested
			summary.PositionsTouched += out.PositionsTouched
			return nil
		})
	}
	_ = g.Wait() // symbol goroutines report failures via the summary and always return nil

	summary.FinishedAt = s.now()
	s.recordRun(ctx, trigger, summary, log)
	s.countRun(trigger, "ok")

	log.Info().
		Int("trades", summary.TradesIngested).
		Int("positions", summary.PositionsTouched).
		Int("failures", len(summary.Failures)).
		Dur("took", summary.FinishedAt.Sub(started)).
		Msg("sync pass finished")

	return summary, nil
}

func (s *Syncer) syncSymbol(ctx context.Context, creds exchange.Credentials, account, symbol string, leverage int, since time.Time) (Outcome, error) {
	orders, err := s.timedOrders(ctx, creds, symbol, since)
	if err != nil {
		return Outcome{}, err
	}

	raws := make([]fill.RawOrder, 0, len(orders))
	for _, o := range orders {
		raws = append(raws, fill.RawOrder{
			OrderID:      o.OrderID,
			Symbol:       o.Symbol,
			Status:       o.Status,
			Side:         o.Side,
			PositionSide: o.PositionSide,
			Type:         o.Type,
			ExecutedQty:  o.ExecutedQty,
			AvgPrice:     o.AvgPrice,
			CumQuote:     o.CumQuote,
			Time:         o.Time,
		})
	}

	fills, rejected := fill.NormalizeBatch(raws)
	if s.metrics != nil {
		s.metrics.FillsNormalized.Add(float64(len(fills)))
		for reason, n := range rejected {
			// orders in non-terminal states are expected in the window
			if reason == fill.RejectNotFilled {
				continue
			}
			s.metrics.FillsRejected.WithLabelValues(string(reason)).Add(float64(n))
		}
	}

	var total Outcome
	for key, channelFills := range position.GroupFills(fills) {
		res := position.FoldChannel(account, key, channelFills, leverage, s.cfg.FeeRate)

		out, err := s.rec.ReconcileChannel(ctx, account, res)
		total.TradesIngested += out.TradesIngested
		total.PositionsTouched += out.PositionsTouched
		if err != nil {
			return total, err
		}

		// Publish a closure only when the pass ingested fresh trades for
		// that exact position, so replays and later cycles on the same
		// channel stay quiet on the event bus.
		if s.pub != nil {
			for _, p := range res.Positions {
				if p.Status != position.StatusClosed || out.IngestedByPosition[p.ID] == 0 {
					continue
				}
				if err := s.pub.PublishPositionClosed(ctx, p); err != nil {
					s.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("publish closed position failed")
				}
			}
		}
	}

	return total, nil
}

func (s *Syncer) takeSnapshot(ctx context.Context, creds exchange.Credentials, account string) error {
	start := s.now()
	info, err := s.api.AccountInfo(ctx, creds)
	s.observeExchange("account", start, err)
	if err != nil {
		return fmt.Errorf("sync %s: %w", account, err)
	}

	snap := persistence.Snapshot{
		ID:            uuid.New(),
		Account:       account,
		WalletBalance: parseDec(info.TotalWalletBalance),
		UnrealizedPnl: parseDec(info.TotalUnrealizedProfit),
		TotalEquity:   parseDec(info.TotalMarginBalance),
		TakenAt:       s.now(),
	}
	if err := s.store.InsertSnapshot(ctx, snap); err != nil {
		if s.metrics != nil {
			s.metrics.PersistErrors.WithLabelValues("insert_snapshot").Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.SnapshotsTaken.Inc()
	}
	return nil
}

func (s *Syncer) timedPositionRisk(ctx context.Context, creds exchange.Credentials) ([]exchange.PositionRisk, error) {
	start := s.now()
	risks, err := s.api.PositionRisk(ctx, creds)
	s.observeExchange("positionRisk", start, err)
	return risks, err
}

func (s *Syncer) timedOrders(ctx context.Context, creds exchange.Credentials, symbol string, since time.Time) ([]exchange.Order, error) {
	start := s.now()
	orders, err := s.api.Orders(ctx, creds, symbol, since)
	s.observeExchange("allOrders", start, err)
	return orders, err
}

func (s *Syncer) observeExchange(endpoint string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ExchangeRequests.WithLabelValues(endpoint, status).Inc()
	s.metrics.ExchangeLatency.WithLabelValues(endpoint).Observe(s.now().Sub(start).Seconds())
}

func (s *Syncer) recordRun(ctx context.Context, trigger string, summary Summary, log zerolog.Logger) {
	run := persistence.SyncRun{
		ID:               uuid.New(),
		Account:          summary.Account,
		TriggeredBy:      trigger,
		StartedAt:        summary.StartedAt,
		FinishedAt:       summary.FinishedAt,
		TradesIngested:   summary.TradesIngested,
		PositionsTouched: summary.PositionsTouched,
		Failures:         summary.Failures,
	}
	if err := s.store.InsertSyncRun(ctx, run); err != nil {
		log.Error().Err(err).Msg("record sync run failed")
	}
	if err := s.store.TouchAccountSync(ctx, summary.Account, summary.FinishedAt); err != nil {
		log.Error().Err(err).Msg("touch last sync failed")
	}
}

func (s *Syncer) countRun(trigger, status string) {
	if s.metrics != nil {
		s.metrics.SyncRuns.WithLabelValues(trigger, status).Inc()
	}
}

func parseDec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
