package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/recorder"
)

// Messages fed from the recorder callbacks
type stateMsg models.RecordingState
type levelMsg models.RecordingLevel
type progressMsg models.RecordingProgress
type sessionErrMsg struct{ err error }

// Bridge turns recorder callbacks into bubbletea messages
type Bridge struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

// NewBridge returns a bridge with a small buffer. Level and progress
// messages are dropped when the UI falls behind; state and errors are not.
func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan tea.Msg, 64),
		done:   make(chan struct{}),
	}
}

// Callbacks returns recorder callbacks that feed the bridge
func (b *Bridge) Callbacks() recorder.Callbacks {
	return recorder.Callbacks{
		OnStateChange: func(s models.RecordingState) { b.send(stateMsg(s)) },
		OnLevel:       func(l models.RecordingLevel) { b.offer(levelMsg(l)) },
		OnProgress:    func(p models.RecordingProgress) { b.offer(progressMsg(p)) },
		OnError:       func(err error) { b.send(sessionErrMsg{err}) },
	}
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

func (b *Bridge) offer(msg tea.Msg) {
	select {
	case b.events <- msg:
	default:
	}
}

// Close releases any callback blocked on a full buffer
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

// wait returns a command that delivers the next bridged message
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}
