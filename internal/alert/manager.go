package alert

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Alerter receives important events; implementations must not block the caller.
type Alerter interface {
	Important(event string, fields map[string]string)
}

const (
	defaultQueueSize          = 64
	defaultDropReportInterval = time.Minute
	notifyTimeout             = 15 * time.Second
)

type Options struct {
	// Instance names this process in every message, e.g. the config file or host.
	Instance           string
	QueueSize          int
	DropReportInterval time.Duration
	Now                func() time.Time
}

type event struct {
	name   string
	at     time.Time
	fields map[string]string
}

// Manager forwards events to a Notifier from a single background goroutine. When the queue
// is full events are dropped and counted instead of stalling exchange calls.
type Manager struct {
	instance string
	notifier Notifier
	now      func() time.Time

	queue chan event
	stop  chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup

	dropReportInterval time.Duration
	dropped            uint64
	droppedWindow      uint64

	mu     sync.RWMutex
	closed bool
}

// NewManager returns nil when notifier is nil; a nil *Manager ignores every call.
func NewManager(notifier Notifier, opts Options) *Manager {
	if notifier == nil {
		return nil
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	interval := opts.DropReportInterval
	if interval < 0 {
		interval = 0
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := &Manager{
		instance:           opts.Instance,
		notifier:           notifier,
		now:                now,
		queue:              make(chan event, size),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
		dropReportInterval: interval,
	}
	m.wg.Add(1)
	go m.run()
	if interval > 0 {
		m.wg.Add(1)
		go m.reportLoop()
	}
	go func() {
		m.wg.Wait()
		close(m.done)
	}()
	return m
}

func (m *Manager) Important(name string, fields map[string]string) {
	if m == nil {
		return
	}
	ev := event{name: name, at: m.now().UTC(), fields: copyFields(fields)}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		total := atomic.AddUint64(&m.dropped, 1)
		if atomic.AddUint64(&m.droppedWindow, 1) == 1 {
			log.Printf("level=WARN event=alert_queue_dropped target_event=%q dropped_total=%d queue_cap=%d", name, total, cap(m.queue))
		}
	}
}

// Close stops accepting events and waits until queued ones are delivered or ctx ends.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.stop)
	}
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (m *Manager) Dropped() uint64 {
	if m == nil {
		return 0
	}
	return atomic.LoadUint64(&m.dropped)
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.queue:
			m.deliver(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) reportLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.dropReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reportDropped()
		case <-m.stop:
			m.reportDropped()
			return
		}
	}
}

func (m *Manager) reportDropped() {
	n := atomic.SwapUint64(&m.droppedWindow, 0)
	if n == 0 {
		return
	}
	log.Printf("level=WARN event=alert_queue_dropped_report dropped_since_last=%d dropped_total=%d", n, atomic.LoadUint64(&m.dropped))
}

func (m *Manager) deliver(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, Format(m.instance, ev.name, ev.at, ev.fields)); err != nil {
		log.Printf("level=ERROR event=alert_notify_failed target_event=%q err=%q", ev.name, err.Error())
	}
}

// Format renders one event as plain text with fields sorted by key.
func Format(instance, name string, at time.Time, fields map[string]string) string {
	var b strings.Builder
	b.WriteString("[coinbridge] ")
	b.WriteString(name)
	if instance != "" {
		b.WriteString(" @ ")
		b.WriteString(instance)
	}
	b.WriteString("\ntime: ")
	b.WriteString(at.UTC().Format(time.RFC3339))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(fields[k])
	}
	return b.String()
}

func copyFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
