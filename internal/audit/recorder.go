package audit

import (
	"context"
	"sync"

	"github.com/nerrad567/stripgate/internal/power"
)

// recorderQueueSize is the buffer of entries awaiting a write. Entries
// beyond this are dropped so a slow disk never holds up a command.
const recorderQueueSize = 256

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder is a power.Observer that writes every command outcome to a
// Repository from a single background goroutine.
//
// Usage:
//
//	rec := audit.NewRecorder(repo)
//	go rec.Run(ctx)
//	controller.AddObserver(rec)
type Recorder struct {
	repo   Repository
	queue  chan *Entry
	logger Logger
	done   chan struct{}
	once   sync.Once
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{
		repo:   repo,
		queue:  make(chan *Entry, recorderQueueSize),
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for dropped and failed writes.
func (r *Recorder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// OutletChanged queues a successful command.
func (r *Recorder) OutletChanged(_ context.Context, ev power.Event) error {
	r.enqueue(ev)
	return nil
}

// OutletFailed queues a failed command.
func (r *Recorder) OutletFailed(_ context.Context, ev power.Event) error {
	r.enqueue(ev)
	return nil
}

func (r *Recorder) enqueue(ev power.Event) {
	entry := EntryFromEvent(ev)
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"address", entry.Address, "outlet", entry.Outlet, "action", entry.Action)
	}
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left and returns. Done is closed on return.
func (r *Recorder) Run(ctx context.Context) {
	defer r.once.Do(func() { close(r.done) })

	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) write(entry *Entry) {
	// Writes outlive the request that caused them.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit write failed",
			"address", entry.Address, "outlet", entry.Outlet, "error", err)
	}
}

// EntryFromEvent converts a controller event into an audit entry.
func EntryFromEvent(ev power.Event) *Entry {
	entry := &Entry{
		Address:   ev.Command.Address,
		Outlet:    ev.Command.Outlet,
		Action:    string(ev.Command.State),
		Source:    ev.Command.Source,
		Success:   ev.Err == nil,
		Alias:     ev.Result.Alias,
		Attempts:  ev.Attempts,
		CreatedAt: ev.At.UTC(),
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	return entry
}
