// Package recorder owns the recording session: one active capture at a
// time, driven through an audio.Adapter.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/audio"
	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

// Callbacks observe the current session. They run on a single goroutine, in
// the order the events happened, and never while the manager is locked.
type Callbacks struct {
	OnStateChange func(models.RecordingState)
	OnProgress    func(models.RecordingProgress)
	OnLevel       func(models.RecordingLevel)
	OnError       func(error)
}

// Options configure a Manager
type Options struct {
	RecordingsDir string
	DefaultFormat models.WavFormat
	Callbacks     Callbacks
}

// StartOptions for a single session
type StartOptions struct {
	// FileName is normalized and made unique; empty generates one
	FileName string
	Format   models.FormatOverride
	DeviceID string
}

// Manager is the single source of truth for whether a recording is happening
type Manager struct {
	adapter  audio.Adapter
	opts     Options
	logger   *zap.Logger
	dispatch *dispatcher
	now      func() time.Time

	mu            sync.Mutex
	state         models.RecordingState
	session       *models.RecordingSession
	lastResult    *models.RecordingResult
	lastErr       error
	startDone     chan struct{}
	stopRequested bool
	stopCall      *stopCall
	closed        bool
}

// stopCall is one in-flight adapter stop, shared by every caller that arrives while it runs
type stopCall struct {
	done   chan struct{}
	result models.RecordingResult
	err    error
}

func (c *stopCall) wait(ctx context.Context) (models.RecordingResult, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return models.RecordingResult{}, ctx.Err()
	}
}

// New creates a Manager for adapter
func New(adapter audio.Adapter, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultFormat == (models.WavFormat{}) {
		opts.DefaultFormat = audio.PreferredFormat(adapter, models.DefaultWavFormat)
	}
	return &Manager{
		adapter:  adapter,
		opts:     opts,
		logger:   logger.With(zap.String("adapter", adapter.ID())),
		dispatch: newDispatcher(),
		now:      time.Now,
		state:    models.StateIdle,
	}
}

// Adapter returns the adapter the manager drives
func (m *Manager) Adapter() audio.Adapter {
	return m.adapter
}

// State returns the current state
func (m *Manager) State() models.RecordingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentSession returns a copy of the active session, or nil
func (m *Manager) CurrentSession() *models.RecordingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// LastResult returns the result of the last completed session, or nil
func (m *Manager) LastResult() *models.RecordingResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastResult == nil {
		return nil
	}
	r := *m.lastResult
	return &r
}

// Start begins a new session. It fails with ErrAlreadyActive unless the
// manager is idle, or in error after a failed stop. If Stop is called before
// the adapter has started, Start still returns the session but the manager
// never enters recording; the adapter is stopped once its start completes.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (models.RecordingSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return models.RecordingSession{}, ErrClosed
	}
	if !m.readyLocked() {
		m.mu.Unlock()
		return models.RecordingSession{}, ErrAlreadyActive
	}
	m.setStateLocked(models.StateStarting)
	m.stopRequested = false
	m.lastErr = nil
	startDone := make(chan struct{})
	m.startDone = startDone
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.startDone == startDone {
			m.startDone = nil
		}
		m.mu.Unlock()
		close(startDone)
	}()

	format := m.opts.DefaultFormat.Merge(opts.Format)

	if !audio.IsAvailable(ctx, m.adapter) {
		return models.RecordingSession{}, m.abortStart(fmt.Errorf("%w: %s is not available", audio.ErrBackendUnavailable, m.adapter.Label()))
	}

	if err := os.MkdirAll(m.opts.RecordingsDir, 0755); err != nil {
		return models.RecordingSession{}, m.abortStart(fmt.Errorf("failed to create recordings directory: %w", err))
	}
	path, err := resolveOutputPath(m.opts.RecordingsDir, opts.FileName, m.now())
	if err != nil {
		return models.RecordingSession{}, m.abortStart(err)
	}

	session := models.RecordingSession{
		SessionID: uuid.NewString(),
		FilePath:  path,
		Format:    format,
		StartedAt: m.now(),
	}
	sid := session.SessionID

	m.mu.Lock()
	m.session = &session
	m.lastResult = nil
	m.mu.Unlock()

	log := m.logger.With(zap.String("session_id", sid))
	log.Info("starting recording", zap.String("path", path), zap.Stringer("format", format))

	err = m.adapter.Start(ctx, audio.StartOptions{
		OutputPath: path,
		Format:     format,
		DeviceID:   opts.DeviceID,
	}, m.eventsFor(sid))

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		if m.isCurrentLocked(sid) {
			m.session = nil
			m.setStateLocked(models.StateIdle)
		}
		m.lastErr = err
		log.Warn("recording failed to start", zap.Error(err))
		return models.RecordingSession{}, err
	}

	if !m.isCurrentLocked(sid) || m.state != models.StateStarting {
		log.Info("recording ended during start-up", zap.String("state", string(m.state)))
		return session, nil
	}

	if m.stopRequested {
		m.stopRequested = false
		log.Info("stop requested during start-up")
		if m.stopCall == nil {
			// the caller that asked may have given up waiting
			call := &stopCall{done: make(chan struct{})}
			m.stopCall = call
			m.setStateLocked(models.StateStopping)
			go m.finishStop(context.Background(), call, session)
		}
		return session, nil
	}

	m.setStateLocked(models.StateRecording)
	return session, nil
}

// abortStart rolls a start that never reached the adapter back to idle
func (m *Manager) abortStart(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.lastErr = err
	m.setStateLocked(models.StateIdle)
	m.logger.Warn("recording failed to start", zap.Error(err))
	return err
}

// Stop ends the current session and returns its result.
//
// Concurrent calls share one adapter stop. Stopping while idle returns the
// cached result of the previous session, or ErrNotActive when there is none.
// An adapter stop failure is reported through OnError and returned.
func (m *Manager) Stop(ctx context.Context) (models.RecordingResult, error) {
	m.mu.Lock()
	if call := m.stopCall; call != nil {
		m.mu.Unlock()
		return call.wait(ctx)
	}

	if m.state == models.StateStarting && m.startDone != nil {
		m.stopRequested = true
		startDone := m.startDone
		m.mu.Unlock()

		select {
		case <-startDone:
		case <-ctx.Done():
			return models.RecordingResult{}, ctx.Err()
		}

		m.mu.Lock()
		if call := m.stopCall; call != nil {
			m.mu.Unlock()
			return call.wait(ctx)
		}
	}

	if m.state == models.StateIdle || m.session == nil {
		defer m.mu.Unlock()
		// a failed stop left nothing behind to stop
		m.setStateLocked(models.StateIdle)
		return m.cachedLocked()
	}

	session := *m.session
	call := &stopCall{done: make(chan struct{})}
	m.stopCall = call
	m.setStateLocked(models.StateStopping)
	m.mu.Unlock()

	m.finishStop(ctx, call, session)
	return call.result, call.err
}

func (m *Manager) cachedLocked() (models.RecordingResult, error) {
	switch {
	case m.lastResult != nil:
		return *m.lastResult, nil
	case m.lastErr != nil:
		return models.RecordingResult{}, fmt.Errorf("%w: %w", ErrNotActive, m.lastErr)
	default:
		return models.RecordingResult{}, ErrNotActive
	}
}

// finishStop runs a caller-requested adapter stop and settles call
func (m *Manager) finishStop(ctx context.Context, call *stopCall, session models.RecordingSession) {
	log := m.logger.With(zap.String("session_id", session.SessionID))
	log.Info("stopping recording")

	result, err := m.adapter.Stop(ctx)

	m.mu.Lock()
	defer func() {
		m.stopCall = nil
		m.mu.Unlock()
		close(call.done)
	}()

	if err != nil {
		if m.isCurrentLocked(session.SessionID) {
			// the adapter holds no handles once its stop has returned
			m.session = nil
			m.setStateLocked(models.StateError)
		}
		m.lastErr = err
		m.emitErrorLocked(err)
		call.err = err
		log.Error("recording failed to stop", zap.Error(err))
		return
	}

	if !m.isCurrentLocked(session.SessionID) {
		call.result = result
		return
	}

	finalized := m.attachSession(result, session)
	m.lastResult = &finalized
	m.session = nil
	m.lastErr = nil
	m.setStateLocked(models.StateIdle)
	call.result = finalized

	log.Info("recording stopped", zap.String("path", finalized.FilePath), zap.Duration("duration", finalized.Duration()))
}

// handleAdapterError reports a fatal backend error for session sid and
// reclaims the adapter in the background
func (m *Manager) handleAdapterError(sid string, err error) {
	m.mu.Lock()
	if !m.isCurrentLocked(sid) {
		m.mu.Unlock()
		return
	}

	m.lastErr = err
	m.emitErrorLocked(err)
	m.setStateLocked(models.StateError)
	m.logger.Error("recording failed", zap.String("session_id", sid), zap.Error(err))

	if m.stopCall != nil {
		// the stop already running settles the session
		m.mu.Unlock()
		return
	}

	session := *m.session
	call := &stopCall{done: make(chan struct{})}
	m.stopCall = call
	m.mu.Unlock()

	// OnError runs on the adapter's reader, which its Stop waits for
	go m.cleanup(call, session, err)
}

// cleanup stops the adapter after a fatal error. Its own failure is logged
// and otherwise ignored; the session ends either way.
func (m *Manager) cleanup(call *stopCall, session models.RecordingSession, cause error) {
	log := m.logger.With(zap.String("session_id", session.SessionID))

	result, err := m.adapter.Stop(context.Background())

	m.mu.Lock()
	defer func() {
		m.stopCall = nil
		m.mu.Unlock()
		close(call.done)
	}()

	if err != nil {
		log.Warn("cleanup after failure did not stop cleanly", zap.Error(err))
	}
	if !m.isCurrentLocked(session.SessionID) {
		call.result, call.err = result, cause
		return
	}

	m.session = nil
	if err != nil {
		call.err = cause
	} else {
		finalized := m.attachSession(result, session)
		m.lastResult = &finalized
		m.lastErr = nil
		call.result = finalized
	}
	m.setStateLocked(models.StateIdle)
}

// attachSession stamps the session id and backfills a missing duration
func (m *Manager) attachSession(result models.RecordingResult, session models.RecordingSession) models.RecordingResult {
	if result.DurationMs == nil {
		result.DurationMs = models.Int64(session.Elapsed(m.now()).Milliseconds())
	}
	if result.FilePath == "" {
		result.FilePath = session.FilePath
	}
	if result.Format == (models.WavFormat{}) {
		result.Format = session.Format
	}
	result.SessionID = session.SessionID
	return result
}

// eventsFor wraps the callbacks so only events of the current session get through
func (m *Manager) eventsFor(sid string) audio.Events {
	cb := m.opts.Callbacks
	return audio.Events{
		OnLevel: func(l models.RecordingLevel) {
			m.forward(sid, func() {
				if cb.OnLevel != nil {
					cb.OnLevel(l)
				}
			})
		},
		OnProgress: func(p models.RecordingProgress) {
			m.forward(sid, func() {
				if cb.OnProgress != nil {
					cb.OnProgress(p)
				}
			})
		},
		OnError: func(err error) {
			m.handleAdapterError(sid, err)
		},
		OnFormat: func(f models.WavFormat) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if !m.isCurrentLocked(sid) {
				return
			}
			if f != m.session.Format {
				m.logger.Warn("backend reports a different format", zap.Stringer("requested", m.session.Format), zap.Stringer("actual", f))
			}
		},
	}
}

func (m *Manager) forward(sid string, deliver func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isCurrentLocked(sid) {
		m.dispatch.post(deliver)
	}
}

// Close stops an active session and delivers the callbacks still queued.
// The manager refuses new sessions afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	active := m.state != models.StateIdle
	m.mu.Unlock()

	var stopErr error
	if active {
		if _, err := m.Stop(ctx); err != nil && !errors.Is(err, ErrNotActive) {
			stopErr = err
		}
	}
	return errors.Join(stopErr, m.dispatch.close(ctx))
}

// readyLocked reports whether a new session may start
func (m *Manager) readyLocked() bool {
	switch m.state {
	case models.StateIdle:
		return true
	case models.StateError:
		return m.session == nil && m.stopCall == nil
	default:
		return false
	}
}

func (m *Manager) isCurrentLocked(sid string) bool {
	return m.session != nil && m.session.SessionID == sid
}

func (m *Manager) setStateLocked(state models.RecordingState) {
	if m.state == state {
		return
	}
	m.state = state
	if cb := m.opts.Callbacks.OnStateChange; cb != nil {
		m.dispatch.post(func() { cb(state) })
	}
}

func (m *Manager) emitErrorLocked(err error) {
	if cb := m.opts.Callbacks.OnError; cb != nil {
		m.dispatch.post(func() { cb(err) })
	}
}
