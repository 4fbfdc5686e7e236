package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Publisher sends aggregated alert batches to an external bus topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// AlertConfig configures alert aggregation.
type AlertConfig struct {
	FlushInterval  time.Duration // periodic flush (e.g. 30s)
	CountThreshold int           // flush early once this many unique alerts accumulate
	Topic          string
	Publisher      Publisher
}

// AlertEntry is one deduplicated alert with occurrence counts.
type AlertEntry struct {
	Kind      string                 `json:"kind"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// AlertDispatcher aggregates operational alerts (stale data, numeric
// anomalies, rejected executions), dedupes repeats, and flushes batches to
// the bus. Alerts are also logged immediately at warn level.
type AlertDispatcher struct {
	cfg    AlertConfig
	log    *Logger
	mu     sync.Mutex
	byKey  map[string]*AlertEntry
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAlertDispatcher(cfg AlertConfig, log *Logger) *AlertDispatcher {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &AlertDispatcher{
		cfg:    cfg,
		log:    log,
		byKey:  make(map[string]*AlertEntry),
		cancel: cancel,
	}
	d.wg.Add(1)
	go d.loop(ctx)
	return d
}

// Alert records one alert occurrence. Duplicate alerts within a flush
// window bump the counter instead of spamming the bus.
func (d *AlertDispatcher) Alert(ctx context.Context, kind, msg string, fields map[string]interface{}) error {
	d.log.Warn(msg, String("alert", kind), Any("fields", fields))

	now := time.Now()
	key := alertKey(kind, msg, fields)

	d.mu.Lock()
	if e, ok := d.byKey[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		d.byKey[key] = &AlertEntry{
			Kind: kind, Message: msg, Fields: fields,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	over := len(d.byKey) >= d.cfg.CountThreshold
	d.mu.Unlock()

	if over {
		d.flush(ctx)
	}
	return nil
}

func (d *AlertDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.flush(context.Background())
			return
		case <-ticker.C:
			d.flush(ctx)
		}
	}
}

func (d *AlertDispatcher) flush(ctx context.Context) {
	d.mu.Lock()
	if len(d.byKey) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]*AlertEntry, 0, len(d.byKey))
	for _, e := range d.byKey {
		batch = append(batch, e)
	}
	d.byKey = make(map[string]*AlertEntry)
	d.mu.Unlock()

	if d.cfg.Publisher == nil {
		return
	}
	if err := d.cfg.Publisher.PublishMessage(ctx, d.cfg.Topic, batch); err != nil {
		d.log.Error("alert flush failed", Error(err), Int("batch", len(batch)))
	}
}

// Close flushes remaining alerts and stops the background loop.
func (d *AlertDispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

func alertKey(kind, msg string, fields map[string]interface{}) string {
	b, _ := json.Marshal(fields)
	sum := sha256.Sum256(append([]byte(kind+"|"+msg+"|"), b...))
	return fmt.Sprintf("%x", sum[:8])
}
