package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailgrab/internal/decode"
	"github.com/nhle/mailgrab/internal/mailbox"
	"github.com/nhle/mailgrab/internal/model"
	"github.com/nhle/mailgrab/internal/store"
)

// SyncState represents the current state of the mailbox sync.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the sync state of the polled mailbox.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// MessagesMsg is a tea.Msg sent when a poll cycle delivered newly decoded
// messages.
type MessagesMsg struct {
	Messages []*model.Message
}

// SyncErrorMsg is a tea.Msg sent when a poll cycle failed.
type SyncErrorMsg struct {
	Err error

	// Auth marks authentication failures, which need reconfiguration
	// rather than a retry.
	Auth bool
}

// fetchTimeout is the maximum time allowed for a single poll cycle.
const fetchTimeout = 60 * time.Second

// Poller periodically polls one mailbox for messages above the stored UID
// high-water mark and decodes them. All fetching is strictly sequential:
// the mailbox connection allows one in-flight command at a time, so a
// single goroutine owns the whole cycle.
type Poller struct {
	client  *mailbox.Client
	decoder *decode.Decoder
	store   store.Store
	cfg     model.AppConfig

	resultCh  chan tea.Msg
	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      gosync.Mutex
	status  SyncStatus
	running bool
}

// New creates a Poller over an already-connected client.
func New(client *mailbox.Client, decoder *decode.Decoder, s store.Store, cfg model.AppConfig) *Poller {
	return &Poller{
		client:    client,
		decoder:   decoder,
		store:     s,
		cfg:       cfg,
		resultCh:  make(chan tea.Msg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling goroutine and returns a command subscribing
// the Bubble Tea runtime to its results.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return p.waitForResult()
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()

	return p.waitForResult()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stopCh)
	p.running = false
}

// Refresh triggers an immediate poll cycle.
func (p *Poller) Refresh() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A cycle is already queued.
	}
	return nil
}

// Status returns the current sync status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// WaitForNextResult re-subscribes the Bubble Tea runtime to poll results.
// The app calls this after handling each MessagesMsg or SyncErrorMsg.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}

// waitForResult returns a command that delivers the next poll result to the
// Bubble Tea runtime. The app re-subscribes after each message.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-p.resultCh:
			return msg
		case <-p.stopCh:
			return nil
		}
	}
}

func (p *Poller) loop() {
	interval := time.Duration(p.cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 120 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll immediately.
	p.pollOnce()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.pollOnce()
		case <-p.triggerCh:
			p.pollOnce()
		}
	}
}

// pollOnce runs one poll cycle: read the high-water mark, search for newer
// UIDs, decode each message in order, advance the mark, and deliver the
// result.
func (p *Poller) pollOnce() {
	p.setStatus(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	msgs, err := p.PollCycle(ctx)
	if len(msgs) > 0 {
		// Deliver what was decoded even when the cycle stopped early.
		p.sendResult(MessagesMsg{Messages: msgs})
	}
	if err != nil {
		p.setStatus(SyncError, err)
		p.sendResult(SyncErrorMsg{Err: err, Auth: mailbox.IsAuthError(err)})
		return
	}

	p.setStatus(SyncIdle, nil)
}

// PollCycle fetches and decodes every message above the stored high-water
// mark and advances the mark. It is also the unit the headless mode runs
// directly.
func (p *Poller) PollCycle(ctx context.Context) ([]*model.Message, error) {
	account := p.cfg.Account.Username + "@" + p.cfg.Account.Host
	mbox := p.cfg.Account.Mailbox

	state, err := p.store.GetMailboxState(ctx, account, mbox)
	if err != nil {
		return nil, err
	}

	// A changed UIDVALIDITY invalidates every cached UID.
	validity := p.client.UIDValidity()
	if state.UIDValidity != validity {
		state.UIDValidity = validity
		state.LastUID = 0
	}

	uids, err := p.client.SearchAfterUID(ctx, state.LastUID)
	if err != nil {
		return nil, fmt.Errorf("searching new messages: %w", err)
	}

	var msgs []*model.Message
	var fetchErr error
	for _, uid := range uids {
		msg, err := p.decoder.Fetch(ctx, uid, p.cfg.Decode.MarkSeen)
		if err != nil {
			// The mark must not advance past a failed message or it would
			// be skipped forever; stop the cycle and surface the failure.
			fetchErr = err
			if msg != nil {
				msgs = append(msgs, msg)
			}
			break
		}
		msgs = append(msgs, msg)
		if uid > state.LastUID {
			state.LastUID = uid
		}
	}

	if err := p.store.SetMailboxState(ctx, state); err != nil {
		return msgs, err
	}
	return msgs, fetchErr
}

func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = SyncStatus{State: state, LastSync: time.Now(), Error: err}
}

func (p *Poller) sendResult(msg tea.Msg) {
	select {
	case p.resultCh <- msg:
	case <-p.stopCh:
	}
}
