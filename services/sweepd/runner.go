package sweepd

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"atachain/rpc"
)

// Summary reports what one pass over the epoch range did.
type Summary struct {
	// Swept counts epochs whose remainder was moved to the treasury.
	Swept int
	// Skipped counts epochs that were not yet eligible: unpublished roots
	// or windows still inside the safety margin.
	Skipped int
	// Empty counts epochs with nothing left to sweep, including epochs
	// already swept by an earlier run.
	Empty int
}

// Runner walks every established epoch and sweeps the eligible ones.
type Runner struct {
	client  Client
	signer  *Signer
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter
	nowFn   func() time.Time
}

// NewRunner builds a runner around a validated config.
func NewRunner(client Client, signer *Signer, cfg Config, logger *slog.Logger) *Runner {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client:  client,
		signer:  signer,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(cfg.Throttle), 1),
		nowFn:   time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (r *Runner) SetNowFunc(now func() time.Time) {
	if now != nil {
		r.nowFn = now
	}
}

// Run performs one full pass. Any submission or read failure aborts the pass
// with an error so the operator sees the problem instead of a silent gap.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	info, err := r.client.ServiceInfo(ctx)
	if err != nil {
		return summary, fmt.Errorf("sweepd: fetch service info: %w", err)
	}
	if info.Vault != common.HexToAddress(r.cfg.ServiceAddress) {
		return summary, fmt.Errorf("sweepd: daemon vault %s does not match configured service address %s", info.Vault.Hex(), r.cfg.ServiceAddress)
	}
	header := r.logger.With("vault", info.Vault.Hex(), "admin", info.Admin.Hex())
	if r.cfg.TreasuryAddress != "" {
		header = header.With("treasury", r.cfg.TreasuryAddress)
	}

	count, err := r.client.EpochCount(ctx)
	if err != nil {
		return summary, fmt.Errorf("sweepd: fetch epoch count: %w", err)
	}
	header.Info("sweep pass starting", "epochs", count, "safety_margin", r.cfg.SafetyMargin.String())

	for epoch := uint64(0); epoch < count; epoch++ {
		record, ok, err := r.client.EpochInfo(ctx, epoch)
		if err != nil {
			return summary, fmt.Errorf("sweepd: fetch epoch %d: %w", epoch, err)
		}
		if !ok {
			return summary, fmt.Errorf("sweepd: epoch %d missing despite count %d", epoch, count)
		}
		log := r.logger.With(
			"epoch", epoch,
			"funded", record.Funded.String(),
			"claimed", record.TotalClaimed.String(),
			"unclaimed", record.Unclaimed.String(),
			"closes_at", record.WindowClosesAt,
			"status", record.Status,
		)
		switch {
		case !record.Published():
			log.Info("skipping epoch without a published root")
			summary.Skipped++
			continue
		case record.Swept:
			log.Debug("epoch already swept")
			summary.Empty++
			continue
		case record.Unclaimed.Sign() <= 0:
			log.Debug("nothing left to sweep")
			summary.Empty++
			continue
		}
		deadline := time.Unix(record.WindowClosesAt, 0).Add(r.cfg.SafetyMargin)
		if now := r.nowFn(); !now.After(deadline) {
			log.Info("claim window still inside safety margin", "eligible_at", deadline.Unix())
			summary.Skipped++
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return summary, fmt.Errorf("sweepd: throttle wait: %w", err)
		}
		swept, err := r.sweepEpoch(ctx, epoch, log)
		if err != nil {
			return summary, err
		}
		log.Info("epoch swept", "amount", swept.String())
		summary.Swept++
	}
	header.Info("sweep pass finished", "swept", summary.Swept, "skipped", summary.Skipped, "empty", summary.Empty)
	return summary, nil
}

func (r *Runner) sweepEpoch(ctx context.Context, epoch uint64, log *slog.Logger) (*big.Int, error) {
	fee, err := r.client.EstimateSweepFee(ctx, epoch)
	if err != nil {
		log.Warn("fee estimation failed, using fallback", "error", err, "fallback", r.cfg.FallbackFee)
		fee = r.cfg.FallbackFee
	}
	// Double the quote so a fee bump between estimate and submission does
	// not bounce the sweep.
	budget := fee * 2
	signature, err := r.signer.Sign(rpc.SweepDigest(epoch, budget))
	if err != nil {
		return nil, fmt.Errorf("sweepd: sign sweep for epoch %d: %w", epoch, err)
	}
	swept, err := r.client.SubmitSweep(ctx, epoch, budget, signature)
	if err != nil {
		return nil, fmt.Errorf("sweepd: submit sweep for epoch %d: %w", epoch, err)
	}
	record, ok, err := r.client.EpochInfo(ctx, epoch)
	if err != nil {
		return nil, fmt.Errorf("sweepd: confirm sweep for epoch %d: %w", epoch, err)
	}
	if !ok || !record.Swept {
		return nil, fmt.Errorf("sweepd: epoch %d not marked swept after submission", epoch)
	}
	return swept, nil
}
