package service

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"whatsgate/internal/bus"
	"whatsgate/internal/constants"
	apperrors "whatsgate/internal/errors"
	"whatsgate/internal/metrics"
	"whatsgate/internal/models"
	"whatsgate/internal/privacy"
	"whatsgate/internal/retry"
	"whatsgate/pkg/waproto/types"

	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

// ConnectionManager owns the single protocol session: pairing, the event
// stream, reconnects after recoverable closes, and send gating. It is the
// only writer of the session snapshot.
type ConnectionManager struct {
	transport  types.Transport
	normalizer *Normalizer
	events     *bus.Bus
	metrics    *metrics.Registry
	logger     *logrus.Logger
	backoff    *retry.Backoff

	mu      sync.Mutex
	session models.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewConnectionManager(transport types.Transport, normalizer *Normalizer, events *bus.Bus, registry *metrics.Registry, logger *logrus.Logger, reconnect models.ReconnectConfig) *ConnectionManager {
	initial := time.Duration(reconnect.InitialBackoffMs) * time.Millisecond
	if reconnect.InitialBackoffMs <= 0 {
		initial = time.Duration(constants.DefaultReconnectInitialMs) * time.Millisecond
	}
	max := time.Duration(reconnect.MaxBackoffMs) * time.Millisecond
	if reconnect.MaxBackoffMs <= 0 {
		max = time.Duration(constants.DefaultReconnectMaxMs) * time.Millisecond
	}
	multiplier := reconnect.Multiplier
	if multiplier <= 1 {
		multiplier = constants.DefaultReconnectMultiplier
	}

	return &ConnectionManager{
		transport:  transport,
		normalizer: normalizer,
		events:     events,
		metrics:    registry,
		logger:     logger,
		backoff: retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: initial,
			MaxDelay:     max,
			Multiplier:   multiplier,
			Jitter:       true,
		}),
		session: models.Session{State: models.SessionStateIdle},
	}
}

// Connect starts the session loop. It returns immediately; progress is
// observable through Status and the event bus. Calling Connect on a running
// session is a no-op.
func (cm *ConnectionManager) Connect() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.cancel != nil {
		return nil
	}

	// An explicit Connect after a terminal close starts a fresh pairing.
	cm.session = models.Session{State: models.SessionStateIdle}

	runCtx, cancel := context.WithCancel(context.Background())
	cm.cancel = cancel
	cm.done = make(chan struct{})

	go cm.run(runCtx, cm.done)
	return nil
}

func (cm *ConnectionManager) run(ctx context.Context, done chan struct{}) {
	defer func() {
		// Release the run handles so an explicit Connect after a terminal
		// close can start a fresh pairing.
		cm.mu.Lock()
		if cm.done == done {
			cm.cancel = nil
			cm.done = nil
		}
		cm.mu.Unlock()
		close(done)
	}()

	attempt := 0
	for {
		stream, err := cm.transport.Dial(ctx)
		if err != nil {
			attempt++
			delay := cm.backoff.Delay(attempt)
			cm.logger.WithError(err).WithField("retry_in", delay.String()).Warn("Failed to open event stream")
			cm.metrics.Increment("session_dial_failures")
			if !cm.sleep(ctx, delay) {
				return
			}
			continue
		}

		cm.setState(func(s *models.Session) {
			s.State = models.SessionStatePairing
		})
		cm.publishStatus()

		opened, terminal := cm.consume(ctx, stream)
		if terminal || ctx.Err() != nil {
			return
		}
		if opened {
			attempt = 0
		}

		attempt++
		delay := cm.backoff.Delay(attempt)
		cm.logger.WithField("retry_in", delay.String()).Info("Reconnecting after recoverable close")
		cm.metrics.Increment("session_reconnects")
		if !cm.sleep(ctx, delay) {
			return
		}
	}
}

// consume drains one event stream. It reports whether the session reached the
// open state and whether the close was terminal.
func (cm *ConnectionManager) consume(ctx context.Context, stream <-chan types.Event) (opened, terminal bool) {
	for evt := range stream {
		switch evt.Type {
		case types.EventQR:
			cm.handleQR(evt.QR)

		case types.EventOpen:
			opened = true
			self := types.NormalizeJID(evt.SelfIdentity)
			cm.setState(func(s *models.Session) {
				s.State = models.SessionStateOpen
				s.SelfIdentity = self
				s.PairingChallenge = ""
			})
			cm.metrics.SetGauge("session_open", 1)
			cm.logger.WithField("self", privacy.MaskIdentity(self)).Info("Session open")
			cm.publishStatus()

		case types.EventMessages:
			cm.normalizer.ProcessBatch(ctx, evt.Envelopes)

		case types.EventClosed:
			terminal = !types.IsRecoverableClose(evt.CloseCode)
			cm.closeSession(evt.CloseCode, terminal)
			return opened, terminal
		}
	}

	// Stream ended without a close event: treat as a recoverable drop.
	cm.closeSession(0, false)
	return opened, false
}

func (cm *ConnectionManager) handleQR(challenge string) {
	cm.setState(func(s *models.Session) {
		s.State = models.SessionStatePairing
		s.PairingChallenge = challenge
	})
	cm.metrics.Increment("pairing_challenges")

	payload := challenge
	if png, err := qrcode.Encode(challenge, qrcode.Medium, 256); err == nil {
		payload = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	} else {
		cm.logger.WithError(err).Warn("Failed to render pairing challenge, publishing raw")
	}
	cm.events.Publish(bus.NewEvent(bus.KindSessionQR, payload))
}

func (cm *ConnectionManager) closeSession(code int, terminal bool) {
	reason := "connection closed"
	if terminal {
		reason = "logged out"
	}
	cm.setState(func(s *models.Session) {
		s.State = models.SessionStateClosed
		s.Terminal = terminal
		s.CloseReason = reason
	})
	cm.metrics.SetGauge("session_open", 0)
	cm.logger.WithFields(logrus.Fields{
		"close_code": code,
		"terminal":   terminal,
	}).Info("Session closed")
	cm.publishStatus()
}

// SendText delivers one text message through the live session. It fails fast
// when the session is not open instead of queueing.
func (cm *ConnectionManager) SendText(ctx context.Context, chatID, text string) (*types.SendResult, error) {
	cm.mu.Lock()
	open := cm.session.State == models.SessionStateOpen
	cm.mu.Unlock()

	if !open {
		return nil, apperrors.ErrNotConnected
	}

	result, err := cm.transport.SendText(ctx, chatID, text)
	if err != nil {
		cm.metrics.Increment("send_failures")
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "send failed")
	}
	cm.metrics.Increment("messages_sent")
	return result, nil
}

// GroupMetadata fetches a live group snapshot through the session.
func (cm *ConnectionManager) GroupMetadata(ctx context.Context, groupID string) (*types.GroupMetadata, error) {
	cm.mu.Lock()
	open := cm.session.State == models.SessionStateOpen
	cm.mu.Unlock()

	if !open {
		return nil, apperrors.ErrNotConnected
	}
	meta, err := cm.transport.GroupMetadata(ctx, groupID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "group metadata fetch failed")
	}
	return meta, nil
}

// Logout ends the pairing for good: it cancels any pending reconnect, tells
// the remote end to invalidate credentials, and marks the session terminal.
func (cm *ConnectionManager) Logout(ctx context.Context) error {
	cm.mu.Lock()
	cancel := cm.cancel
	done := cm.done
	cm.cancel = nil
	cm.done = nil
	cm.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := cm.transport.Logout(ctx); err != nil {
		cm.logger.WithError(err).Warn("Remote logout failed, marking session terminal anyway")
	}

	cm.setState(func(s *models.Session) {
		s.State = models.SessionStateClosed
		s.Terminal = true
		s.CloseReason = "logged out"
		s.PairingChallenge = ""
	})
	cm.metrics.SetGauge("session_open", 0)
	cm.publishStatus()
	return nil
}

// Close stops the session loop without invalidating the pairing.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	cancel := cm.cancel
	done := cm.done
	cm.cancel = nil
	cm.done = nil
	cm.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return cm.transport.Close()
}

// Status returns a copy of the session snapshot.
func (cm *ConnectionManager) Status() models.Session {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.session
}

func (cm *ConnectionManager) setState(mutate func(*models.Session)) {
	cm.mu.Lock()
	mutate(&cm.session)
	cm.mu.Unlock()
}

func (cm *ConnectionManager) publishStatus() {
	cm.events.Publish(bus.NewEvent(bus.KindSessionStatus, cm.Status()))
}

func (cm *ConnectionManager) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
