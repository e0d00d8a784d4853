// Package engine implements the SLA escalation engine: the hourly sweep that
// finds complaints past their severity's time limit and reassigns them to an
// escalation authority inside a single transaction, plus the manual
// escalation path administrators invoke directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/civicgrid/complaint-service/internal/config"
	"github.com/civicgrid/complaint-service/internal/database"
	"github.com/civicgrid/complaint-service/internal/metrics"
)

// RuleStore provides read access to active SLA rules.
type RuleStore interface {
	ListActive(ctx context.Context) ([]*database.EscalationRule, error)
}

// ComplaintStore provides the complaint reads a sweep needs.
type ComplaintStore interface {
	GetByID(ctx context.Context, id string) (*database.Complaint, error)
	ListEligible(ctx context.Context, minAge time.Duration) ([]*database.Complaint, error)
	GetSLAComplianceReport(ctx context.Context, from, to time.Time) (*database.SLAComplianceReport, error)
}

// AuthorityStore provides authority lookups for target selection.
type AuthorityStore interface {
	GetByID(ctx context.Context, id string) (*database.Authority, error)
	ListActiveExcluding(ctx context.Context, excludeID *string) ([]*database.Authority, error)
}

// StatsStore provides the escalation reporting aggregations.
type StatsStore interface {
	GetStats(ctx context.Context) (*database.EscalationStats, error)
}

// Notifier is the external notification sink. It reports success or failure
// but never fails the escalation: delivery is best effort and happens after
// the transaction commits.
type Notifier interface {
	NotifyEscalation(ctx context.Context, complaint *database.Complaint, reason string) bool
}

// EventPublisher publishes escalation audit events for downstream consumers.
type EventPublisher interface {
	PublishEscalated(ctx context.Context, complaint *database.Complaint, targetAuthorityID, reason string) error
}

// SweepResult summarizes one sweep execution.
type SweepResult struct {
	Evaluated int
	Escalated int
	Skipped   int
	Failed    int
}

// Engine orchestrates SLA sweeps and escalation transactions. Construct one
// instance at process startup and share it with the handlers that need the
// manual escalation path.
type Engine struct {
	cfg         *config.Config
	logger      *slog.Logger
	rules       RuleStore
	complaints  ComplaintStore
	authorities AuthorityStore
	stats       StatsStore
	tx          database.TxRunner
	notifier    Notifier
	events      EventPublisher
	metrics     *metrics.Collector

	mu      sync.Mutex // guards running and cron
	running bool
	cron    *cron.Cron

	// sweepMu is the in-flight guard: a timer fire that overlaps a running
	// sweep skips instead of stacking.
	sweepMu sync.Mutex
}

// New creates an escalation engine. notifier, events and collector may be nil
// when the corresponding integration is disabled.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	rules RuleStore,
	complaints ComplaintStore,
	authorities AuthorityStore,
	stats StatsStore,
	tx database.TxRunner,
	notifier Notifier,
	events EventPublisher,
	collector *metrics.Collector,
) *Engine {
	return &Engine{
		cfg:         cfg,
		logger:      logger,
		rules:       rules,
		complaints:  complaints,
		authorities: authorities,
		stats:       stats,
		tx:          tx,
		notifier:    notifier,
		events:      events,
		metrics:     collector,
	}
}

// Start begins the recurring sweep schedule and runs one sweep immediately so
// SLA breaches that accrued while the process was down are caught without
// waiting a full interval. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Debug("Escalation engine already running")
		return nil
	}

	c := cron.New(cron.WithSeconds())
	schedule := fmt.Sprintf("@every %s", e.cfg.Escalation.SweepInterval)
	if _, err := c.AddFunc(schedule, func() {
		e.runScheduledSweep(context.Background())
	}); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to schedule escalation sweep: %w", err)
	}

	e.cron = c
	e.running = true
	e.mu.Unlock()

	e.logger.Info("Starting escalation engine", "sweep_interval", e.cfg.Escalation.SweepInterval)

	// Startup sweep runs synchronously; a failure is logged and retried on
	// the next tick, it never prevents the engine from starting.
	e.runScheduledSweep(ctx)

	c.Start()
	return nil
}

// Stop cancels future sweeps. An in-flight sweep finishes. Safe to call when
// not running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	stopCtx := e.cron.Stop()
	<-stopCtx.Done()
	e.cron = nil
	e.running = false

	e.logger.Info("Escalation engine stopped")
}

// Running reports whether the sweep schedule is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) runScheduledSweep(ctx context.Context) {
	if !e.sweepMu.TryLock() {
		e.logger.Warn("Skipping escalation sweep, previous sweep still in flight")
		return
	}
	defer e.sweepMu.Unlock()

	start := time.Now()
	result, err := e.sweep(ctx)
	if e.metrics != nil {
		e.metrics.ObserveSweep(time.Since(start), err == nil)
	}
	if err != nil {
		e.logger.Error("Escalation sweep failed", "error", err)
		return
	}

	e.logger.Info("Escalation sweep completed",
		"evaluated", result.Evaluated,
		"escalated", result.Escalated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", time.Since(start))
}

// Sweep runs one eligibility scan and escalation pass. Exposed for tests and
// for operators who need an out-of-schedule run; production sweeps go through
// the cron schedule.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if !e.sweepMu.TryLock() {
		return SweepResult{}, errors.New("sweep already in flight")
	}
	defer e.sweepMu.Unlock()
	return e.sweep(ctx)
}

func (e *Engine) sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load active rules: %w", err)
	}
	if len(rules) == 0 {
		// Unconfigured system: nothing can escalate, not a failure.
		e.logger.Warn("No active escalation rules configured, sweep is a no-op")
		return result, nil
	}

	ruleBySeverity := make(map[string]*database.EscalationRule, len(rules))
	for _, rule := range rules {
		if _, dup := ruleBySeverity[rule.Severity]; dup {
			e.logger.Warn("Duplicate active rule for severity, keeping first",
				"severity", rule.Severity, "rule_id", rule.ID)
			continue
		}
		ruleBySeverity[rule.Severity] = rule
	}

	complaints, err := e.complaints.ListEligible(ctx, e.cfg.Escalation.MinComplaintAge)
	if err != nil {
		return result, fmt.Errorf("failed to list eligible complaints: %w", err)
	}

	now := time.Now()
	for _, complaint := range complaints {
		result.Evaluated++

		rule, ok := ruleBySeverity[complaint.Severity]
		if !ok {
			// Unconfigured severities never escalate. Explicit policy.
			result.Skipped++
			continue
		}

		ageHours := int(now.Sub(complaint.CreatedAt).Hours())
		if ageHours < rule.TimeLimitHours {
			result.Skipped++
			continue
		}

		if err := e.escalateForRule(ctx, complaint, rule, ageHours); err != nil {
			// One complaint's failure never aborts the sweep.
			result.Failed++
			if e.metrics != nil {
				e.metrics.IncEscalationFailed()
			}
			e.logger.Error("Failed to escalate complaint",
				"complaint_id", complaint.ID,
				"tracking_code", complaint.TrackingCode,
				"severity", complaint.Severity,
				"error", err)
			continue
		}
		result.Escalated++
	}

	return result, nil
}

func (e *Engine) escalateForRule(ctx context.Context, complaint *database.Complaint, rule *database.EscalationRule, ageHours int) error {
	targetID, err := e.resolveTarget(ctx, complaint, rule)
	if err != nil {
		return err
	}

	reason := fmt.Sprintf("SLA breach: %s severity %d hours limit exceeded (complaint age %d hours)",
		complaint.Severity, rule.TimeLimitHours, ageHours)

	return e.escalate(ctx, complaint, targetID, reason, nil, "auto")
}

// resolveTarget picks the escalation target: the rule's configured authority
// when set, otherwise the lowest-ID active authority other than the current
// assignee.
func (e *Engine) resolveTarget(ctx context.Context, complaint *database.Complaint, rule *database.EscalationRule) (string, error) {
	if rule.EscalationAuthorityID != nil && *rule.EscalationAuthorityID != "" {
		return *rule.EscalationAuthorityID, nil
	}

	candidates, err := e.authorities.ListActiveExcluding(ctx, complaint.AssignedAuthorityID)
	if err != nil {
		return "", fmt.Errorf("failed to list fallback authorities: %w", err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no active fallback authority available: %w", ErrNotFound)
	}

	// ListActiveExcluding orders by ID, so this is the documented tie-break.
	return candidates[0].ID, nil
}

// escalate performs one atomic escalation: complaint update, status history,
// escalation log and user notification commit together or not at all. The
// external sink and event publisher run after commit and never roll it back.
func (e *Engine) escalate(ctx context.Context, complaint *database.Complaint, targetAuthorityID, reason string, actorID *string, trigger string) error {
	oldStatus := complaint.Status

	err := e.tx.RunInTx(ctx, func(tx database.EscalationTx) error {
		if err := tx.UpdateComplaintEscalated(ctx, complaint.ID, targetAuthorityID); err != nil {
			return err
		}

		if err := tx.AppendStatusHistory(ctx, &database.StatusHistoryEntry{
			ComplaintID: complaint.ID,
			OldStatus:   &oldStatus,
			NewStatus:   database.StatusEscalated,
			Remarks:     reason,
			ActorID:     actorID,
		}); err != nil {
			return err
		}

		if err := tx.AppendEscalationLog(ctx, &database.EscalationLogEntry{
			ComplaintID:     complaint.ID,
			FromAuthorityID: complaint.AssignedAuthorityID,
			ToAuthorityID:   targetAuthorityID,
			Reason:          reason,
		}); err != nil {
			return err
		}

		return tx.CreateNotification(ctx, &database.Notification{
			UserID:      complaint.UserID,
			ComplaintID: &complaint.ID,
			Title:       "Your complaint has been escalated",
			Message:     fmt.Sprintf("Complaint %s has been escalated to a higher authority. %s", complaint.TrackingCode, reason),
			Type:        database.NotificationEscalation,
		})
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if e.metrics != nil {
		e.metrics.IncEscalated(trigger, complaint.Severity)
	}
	e.logger.Info("Complaint escalated",
		"complaint_id", complaint.ID,
		"tracking_code", complaint.TrackingCode,
		"target_authority_id", targetAuthorityID,
		"trigger", trigger)

	// Best-effort side effects, excluded from the atomic unit.
	if e.notifier != nil {
		if ok := e.notifier.NotifyEscalation(ctx, complaint, reason); !ok {
			e.logger.Warn("Escalation notification delivery failed",
				"complaint_id", complaint.ID)
		}
	}
	if e.events != nil {
		if err := e.events.PublishEscalated(ctx, complaint, targetAuthorityID, reason); err != nil {
			e.logger.Warn("Failed to publish escalation event",
				"complaint_id", complaint.ID, "error", err)
		}
	}

	return nil
}

// ManualEscalate escalates one complaint on behalf of an administrator,
// bypassing the SLA age check but sharing the transactional procedure with
// the automatic path. Errors surface directly to the caller.
func (e *Engine) ManualEscalate(ctx context.Context, complaintID, targetAuthorityID, reason, actorID string) error {
	if complaintID == "" {
		return fmt.Errorf("%w: complaint id is required", ErrValidation)
	}
	if targetAuthorityID == "" {
		return fmt.Errorf("%w: target authority id is required", ErrValidation)
	}
	if actorID == "" {
		return fmt.Errorf("%w: actor id is required", ErrValidation)
	}
	if reason == "" {
		reason = "Escalated manually by administrator"
	}

	complaint, err := e.complaints.GetByID(ctx, complaintID)
	if err != nil {
		return err
	}
	if complaint.IsTerminal() {
		return fmt.Errorf("%w: complaint %s is already resolved", ErrValidation, complaintID)
	}

	authority, err := e.authorities.GetByID(ctx, targetAuthorityID)
	if err != nil {
		return err
	}
	if !authority.Active {
		return fmt.Errorf("%w: authority %s is not active", ErrValidation, targetAuthorityID)
	}

	return e.escalate(ctx, complaint, targetAuthorityID, reason, &actorID, "manual")
}

// GetEscalationStats returns the dashboard aggregations.
func (e *Engine) GetEscalationStats(ctx context.Context) (*database.EscalationStats, error) {
	return e.stats.GetStats(ctx)
}

// GetSLAComplianceReport returns the trailing-window compliance report.
func (e *Engine) GetSLAComplianceReport(ctx context.Context) (*database.SLAComplianceReport, error) {
	now := time.Now()
	return e.complaints.GetSLAComplianceReport(ctx, now.Add(-e.cfg.Escalation.ReportWindow), now)
}
