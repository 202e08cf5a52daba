package alert

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

type Alerter interface {
	Important(event string, fields map[string]string)
}

const (
	defaultAlertQueueSize     = 128
	defaultDropReportInterval = time.Minute
	notifyTimeout             = 20 * time.Second
)

type ManagerOptions struct {
	QueueSize          int
	DropReportInterval time.Duration
}

// Manager delivers important events to a Notifier from a background queue. Important
// never blocks; events are dropped and counted when the queue is full.
type Manager struct {
	mode                 string
	notifier             Notifier
	log                  *logrus.Entry
	queue                chan alertEvent
	stop                 chan struct{}
	done                 chan struct{}
	dropReportInterval   time.Duration
	droppedTotal         uint64
	droppedSinceReported uint64
	wg                   sync.WaitGroup
	mu                   sync.RWMutex
	closed               bool
	now                  func() time.Time
}

type alertEvent struct {
	event  string
	fields map[string]string
}

func NewManager(mode string, notifier Notifier, log *logrus.Entry) *Manager {
	return NewManagerWithOptions(mode, notifier, log, ManagerOptions{
		QueueSize:          defaultAlertQueueSize,
		DropReportInterval: defaultDropReportInterval,
	})
}

func NewManagerWithOptions(mode string, notifier Notifier, log *logrus.Entry, opts ManagerOptions) *Manager {
	if notifier == nil {
		return nil
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultAlertQueueSize
	}
	reportInterval := opts.DropReportInterval
	if reportInterval < 0 {
		reportInterval = 0
	}
	m := &Manager{
		mode:               mode,
		notifier:           notifier,
		log:                log.WithField("component", "alert"),
		queue:              make(chan alertEvent, queueSize),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
		dropReportInterval: reportInterval,
		now:                time.Now,
	}
	m.wg.Add(1)
	go m.loop()
	if m.dropReportInterval > 0 {
		m.wg.Add(1)
		go m.dropReportLoop()
	}
	go func() {
		m.wg.Wait()
		close(m.done)
	}()
	return m
}

func (m *Manager) Important(event string, fields map[string]string) {
	if m == nil || m.notifier == nil {
		return
	}
	ev := alertEvent{
		event:  event,
		fields: cloneFields(fields),
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return
	}
	select {
	case m.queue <- ev:
		m.mu.RUnlock()
		return
	default:
		droppedTotal := atomic.AddUint64(&m.droppedTotal, 1)
		droppedInWindow := atomic.AddUint64(&m.droppedSinceReported, 1)
		m.mu.RUnlock()
		// First drop in a window is logged at once; the periodic report covers the rest.
		if droppedInWindow == 1 {
			m.log.WithFields(logrus.Fields{
				"event":         "alert_queue_dropped",
				"target_event":  event,
				"reason":        "queue_full",
				"dropped_total": droppedTotal,
				"queue_len":     len(m.queue),
				"queue_cap":     cap(m.queue),
			}).Warn("alert dropped")
		}
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					m.reportDroppedSummary()
					return
				}
			}
		}
	}
}

func (m *Manager) dropReportLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.dropReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reportDroppedSummary()
		case <-m.stop:
			m.reportDroppedSummary()
			return
		}
	}
}

func (m *Manager) reportDroppedSummary() {
	dropped := atomic.SwapUint64(&m.droppedSinceReported, 0)
	if dropped == 0 {
		return
	}
	m.log.WithFields(logrus.Fields{
		"event":               "alert_queue_dropped_report",
		"dropped_since_last":  dropped,
		"dropped_total":       atomic.LoadUint64(&m.droppedTotal),
		"report_interval_sec": int64(m.dropReportInterval / time.Second),
		"queue_len":           len(m.queue),
		"queue_cap":           cap(m.queue),
	}).Warn("alerts dropped")
}

func (m *Manager) droppedStats() (uint64, uint64) {
	if m == nil {
		return 0, 0
	}
	return atomic.LoadUint64(&m.droppedTotal), atomic.LoadUint64(&m.droppedSinceReported)
}

func (m *Manager) send(ev alertEvent) {
	msg := m.buildMessage(ev.event, ev.fields)
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, msg); err != nil {
		m.log.WithFields(logrus.Fields{
			"event":        "alert_notify_failed",
			"target_event": ev.event,
		}).WithError(err).Error("alert delivery failed")
	}
}

func (m *Manager) buildMessage(event string, fields map[string]string) string {
	lines := []string{
		"[trade-manager] important",
		"time: " + m.now().UTC().Format(time.RFC3339),
		"mode: " + m.mode,
		"event: " + event,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+fields[k])
	}
	return strings.Join(lines, "\n")
}

func cloneFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
