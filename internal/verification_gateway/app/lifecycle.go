package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/repository"
)

// LifecycleConfig tunes the verification poller.
type LifecycleConfig struct {
	PollInterval    time.Duration
	MaxPollDuration time.Duration
}

// LifecycleManager owns the per-verification pollers. Each pending
// verification gets one goroutine that drives it to a terminal state; the
// VerificationRequest is mutated only by that goroutine.
type LifecycleManager struct {
	repo      repository.VerificationRepository
	providers *ProviderManager
	events    EventPublisher
	logger    *slog.Logger
	cfg       LifecycleConfig

	mu      sync.Mutex
	cancels map[string]chan struct{}
	wg      sync.WaitGroup

	baseCtx     context.Context
	stopPollers context.CancelFunc

	now func() time.Time // overridable in tests
}

// NewLifecycleManager creates a lifecycle manager.
func NewLifecycleManager(repo repository.VerificationRepository, providers *ProviderManager, events EventPublisher, cfg LifecycleConfig, logger *slog.Logger) *LifecycleManager {
	baseCtx, stop := context.WithCancel(context.Background())
	return &LifecycleManager{
		repo:        repo,
		providers:   providers,
		events:      events,
		logger:      logger.With("component", "lifecycle"),
		cfg:         cfg,
		cancels:     make(map[string]chan struct{}),
		baseCtx:     baseCtx,
		stopPollers: stop,
		now:         time.Now,
	}
}

// StartPolling launches the poller goroutine for a pending verification. The
// poller is detached from the caller's cancellation: it must outlive the HTTP
// request that created the verification. Only Stop ends pollers early.
func (m *LifecycleManager) StartPolling(ctx context.Context, v *domain.VerificationRequest) {
	pollCtx := context.WithoutCancel(ctx)

	cancelCh := make(chan struct{})
	m.mu.Lock()
	m.cancels[v.ID] = cancelCh
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.removeCancel(v.ID)
		m.poll(pollCtx, v, cancelCh)
	}()
}

// Cancel requests cancellation of a pending verification. An active poller is
// signalled and performs the transition itself; a verification with no live
// poller (e.g. after a restart) is transitioned directly from the store.
func (m *LifecycleManager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	cancelCh, active := m.cancels[id]
	if active {
		delete(m.cancels, id) // only this caller closes the channel
	}
	m.mu.Unlock()

	if active {
		close(cancelCh)
		return nil
	}

	v, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if v.Status != domain.StatusPending {
		return domain.ErrNotCancellable
	}
	m.finishCancelled(ctx, v)
	return nil
}

// Shutdown blocks until all pollers have reached a terminal state on their own.
func (m *LifecycleManager) Shutdown() {
	m.wg.Wait()
}

// Stop ends all pollers without waiting for their deadlines and blocks until
// they have exited. Interrupted verifications stay pending in the store.
func (m *LifecycleManager) Stop() {
	m.stopPollers()
	m.wg.Wait()
}

func (m *LifecycleManager) removeCancel(id string) {
	m.mu.Lock()
	delete(m.cancels, id)
	m.mu.Unlock()
}

// poll drives one verification: check for the code, time out at the deadline,
// otherwise sleep one interval. The sleep is a cooperative suspension point —
// an external cancel wins immediately without waiting for the next tick.
func (m *LifecycleManager) poll(ctx context.Context, v *domain.VerificationRequest, cancelCh <-chan struct{}) {
	logger := m.logger.With("verification_id", v.ID, "provider", v.Provider)

	client, ok := m.providers.Get(v.Provider)
	if !ok {
		logger.Error("no client registered for provider, abandoning poller")
		return
	}

	for v.Status == domain.StatusPending {
		result, err := client.CheckCode(ctx, v.ActivationID)
		verificationPollsCounter.WithLabelValues(v.Provider).Inc()

		switch {
		case err == nil && result.Code != "":
			m.finishReceived(ctx, v, result.Code)
			return
		case err != nil:
			// Transient trouble and open circuits alike: keep polling, the
			// deadline bounds how long we keep trying.
			logger.WarnContext(ctx, "code check failed", "error", err)
		default:
			logger.DebugContext(ctx, "no code yet", "raw_status", result.RawStatus)
		}

		if v.Expired(m.now()) {
			m.finishTimeout(ctx, v)
			return
		}

		timer := time.NewTimer(m.cfg.PollInterval)
		select {
		case <-m.baseCtx.Done():
			timer.Stop()
			logger.Info("poller stopped by shutdown, verification left pending")
			return
		case <-cancelCh:
			timer.Stop()
			m.finishCancelled(ctx, v)
			return
		case <-timer.C:
		}
	}
}

func (m *LifecycleManager) finishReceived(ctx context.Context, v *domain.VerificationRequest, code string) {
	logger := m.logger.With("verification_id", v.ID)

	if err := v.Transition(domain.StatusReceived); err != nil {
		logger.Error("illegal transition to received", "error", err, "status", v.Status)
		return
	}
	v.Code = &code
	if err := m.repo.UpdateCode(ctx, v.ID, code, domain.StatusReceived); err != nil {
		logger.ErrorContext(ctx, "failed to persist received code", "error", err)
	}
	codesReceivedCounter.WithLabelValues(v.Provider).Inc()

	// The code is stored and ready for the caller; the request is done.
	if err := v.Transition(domain.StatusCompleted); err != nil {
		logger.Error("illegal transition to completed", "error", err, "status", v.Status)
		return
	}
	if err := m.repo.UpdateStatus(ctx, v.ID, domain.StatusCompleted); err != nil {
		logger.ErrorContext(ctx, "failed to persist completed status", "error", err)
	}
	m.publishTerminal(ctx, v)
	logger.InfoContext(ctx, "verification completed")
}

func (m *LifecycleManager) finishTimeout(ctx context.Context, v *domain.VerificationRequest) {
	logger := m.logger.With("verification_id", v.ID)

	if err := v.Transition(domain.StatusTimeout); err != nil {
		logger.Error("illegal transition to timeout", "error", err, "status", v.Status)
		return
	}
	if err := m.repo.UpdateStatus(ctx, v.ID, domain.StatusTimeout); err != nil {
		logger.ErrorContext(ctx, "failed to persist timeout status", "error", err)
	}

	// Best effort: release the number with the provider so it is not billed further.
	if client, ok := m.providers.Get(v.Provider); ok {
		if _, err := client.Cancel(ctx, v.ActivationID); err != nil {
			logger.WarnContext(ctx, "provider-side cancel after timeout failed", "error", err)
		}
	}

	m.publishTerminal(ctx, v)
	logger.InfoContext(ctx, "verification timed out", "deadline", v.Deadline)
}

func (m *LifecycleManager) finishCancelled(ctx context.Context, v *domain.VerificationRequest) {
	logger := m.logger.With("verification_id", v.ID)

	if err := v.Transition(domain.StatusCancelled); err != nil {
		logger.Error("illegal transition to cancelled", "error", err, "status", v.Status)
		return
	}
	if err := m.repo.UpdateStatus(ctx, v.ID, domain.StatusCancelled); err != nil {
		logger.ErrorContext(ctx, "failed to persist cancelled status", "error", err)
	}

	if client, ok := m.providers.Get(v.Provider); ok {
		if _, err := client.Cancel(ctx, v.ActivationID); err != nil {
			logger.WarnContext(ctx, "provider-side cancel failed", "error", err)
		}
	}

	m.publishTerminal(ctx, v)
	logger.InfoContext(ctx, "verification cancelled")
}

// publishTerminal emits the terminal event consumed by the billing layer.
// Timeout and cancelled events are its refund trigger.
func (m *LifecycleManager) publishTerminal(ctx context.Context, v *domain.VerificationRequest) {
	verificationTerminalCounter.WithLabelValues(string(v.Status)).Inc()
	if m.events == nil {
		return
	}

	event := VerificationTerminalEvent{
		VerificationID: v.ID,
		UserID:         v.UserID,
		BatchID:        v.BatchID,
		Provider:       v.Provider,
		Status:         string(v.Status),
		Cost:           v.Cost,
		OccurredAt:     m.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("failed to marshal terminal event", "error", err, "verification_id", v.ID)
		return
	}
	if err := m.events.Publish(ctx, SubjectVerificationTerminal, payload); err != nil {
		m.logger.WarnContext(ctx, "failed to publish terminal event", "error", err, "verification_id", v.ID)
	}
}
