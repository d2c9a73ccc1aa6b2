// Package webhook dispatches broadcast events to configured HTTP
// targets, bounded to a fixed number of in-flight requests.
package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	"i4.energy/across/smsgw/events"
)

const (
	requestTimeout   = 10 * time.Second
	maxInFlight      = 10
	defaultQueueSize = 1024
)

// Target is one configured webhook subscriber.
type Target struct {
	URL            string
	Events         events.Kind
	Headers        map[string]string
	RootCertPath   string
	ExpectedStatus int // 0 means "any 2xx"
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Targets []Target
	Logger  *slog.Logger
}

// Worker is the events.Sink that POSTs JSON-serialized events to every
// subscribed webhook target, per spec.md §4.10. Its event queue is a
// buffered channel of defaultQueueSize events; when it is full, Submit
// drops the event with a warning, so the modem control plane never
// blocks on a slow webhook.
type Worker struct {
	targets   []Target
	eventsMap map[events.Kind][]int
	client    *http.Client
	sem       *semaphore.Weighted
	queue     chan events.Event
	logger    *slog.Logger
}

// NewWorker builds a Worker from cfg, precomputing the events-to-targets
// map and a shared HTTP client with any configured root certificates
// loaded.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	for _, t := range cfg.Targets {
		if t.RootCertPath == "" {
			continue
		}
		pem, err := os.ReadFile(t.RootCertPath)
		if err != nil {
			return nil, fmt.Errorf("webhook: read root cert %q: %w", t.RootCertPath, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("webhook: no certificates found in %q", t.RootCertPath)
		}
	}

	client := &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}

	eventsMap := make(map[events.Kind][]int)
	for kind := events.KindIncomingMessage; kind <= events.KindGnssPositionReport; kind <<= 1 {
		for i, t := range cfg.Targets {
			if (events.Event{Kind: kind}).Matches(t.Events) {
				eventsMap[kind] = append(eventsMap[kind], i)
			}
		}
	}

	return &Worker{
		targets:   cfg.Targets,
		eventsMap: eventsMap,
		client:    client,
		sem:       semaphore.NewWeighted(maxInFlight),
		queue:     make(chan events.Event, defaultQueueSize),
		logger:    logger,
	}, nil
}

// Submit implements events.Sink. It never blocks for long: the queue
// is sized generously and a full queue drops the event with a logged
// warning rather than stalling the broadcaster.
func (w *Worker) Submit(e events.Event) {
	select {
	case w.queue <- e:
	default:
		w.logger.Warn("webhook: event queue full, dropping event", "kind", e.Kind)
	}
}

// Run drains the event queue until ctx is done, dispatching each event
// to its subscribers with bounded concurrency.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.queue:
			w.dispatch(ctx, e)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, e events.Event) {
	indices := w.eventsMap[e.Kind]
	if len(indices) == 0 {
		return
	}

	body, err := json.Marshal(e)
	if err != nil {
		w.logger.Error("webhook: marshal event", "error", err)
		return
	}

	for _, idx := range indices {
		target := w.targets[idx]
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(target Target) {
			defer w.sem.Release(1)
			w.post(ctx, target, body)
		}(target)
	}
}

func (w *Worker) post(ctx context.Context, target Target, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("webhook: build request", "url", target.URL, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Error("webhook: request failed", "url", target.URL, "error", err)
		return
	}
	defer resp.Body.Close()

	if !statusAccepted(resp.StatusCode, target.ExpectedStatus) {
		w.logger.Error("webhook: unexpected response status",
			"url", target.URL, "status", resp.StatusCode)
	}
}

func statusAccepted(got, expected int) bool {
	if expected != 0 {
		return got == expected
	}
	return got >= 200 && got < 300
}
