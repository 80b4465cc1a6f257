package webhook

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
)

// Options carry the delivery defaults applied when a subscriber has no
// retry policy of its own.
type Options struct {
	UserAgent    string
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Timeout      time.Duration
}

// Dispatcher signs and delivers event envelopes to every subscriber
// interested in them. Delivery is detached from the caller: Emit returns
// immediately and each subscriber is attempted on its own goroutine with
// bounded retries. Failures are logged and never surfaced to the emitter,
// so an unreachable subscriber cannot make a successful sync look failed.
type Dispatcher struct {
	webhooks []models.WebhookConfig
	client   *http.Client
	opts     Options

	// mu orders Emit against Close: no delivery goroutine may be added
	// once Close has started waiting.
	mu     sync.Mutex
	closed bool
	wg     conc.WaitGroup
}

// NewDispatcher builds a dispatcher over a fixed subscriber list.
func NewDispatcher(webhooks []models.WebhookConfig, opts Options) *Dispatcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "FinSync-Webhook/1.0"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		webhooks: webhooks,
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
	}
}

// Emit builds a fresh envelope for the event and hands it to every
// enabled subscriber whose subscription list is empty or includes the
// event type. It never blocks on delivery.
func (d *Dispatcher) Emit(eventType string, data interface{}) {
	matching := make([]models.WebhookConfig, 0, len(d.webhooks))
	for _, wh := range d.webhooks {
		if wh.Enabled && wh.URL != "" && wh.Subscribed(eventType) {
			matching = append(matching, wh)
		}
	}
	if len(matching) == 0 {
		return
	}

	event := models.WebhookEvent{
		ID:        newEventID(),
		Event:     eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   models.WebhookEventVersion,
		Data:      data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.L.Error("Failed to encode webhook event", "event", eventType, "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		logger.L.Warn("Webhook event dropped, dispatcher is closed", "event", eventType, "eventID", event.ID)
		return
	}
	for _, wh := range matching {
		wh := wh
		d.wg.Go(func() {
			d.deliver(wh, event, payload)
		})
	}
}

// Close waits for all in-flight deliveries to finish and drops anything
// emitted afterwards. Used on shutdown so detached goroutines do not get
// killed mid-request.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

func newEventID() string {
	return "evt_" + strconv.FormatInt(time.Now().UnixMilli(), 36) + "_" + uuid.NewString()[:8]
}

// deliver posts one envelope to one subscriber. 2xx stops with success,
// 4xx stops without retry (the receiver rejected the payload), anything
// else retries with exponential backoff until the policy is exhausted.
func (d *Dispatcher) deliver(wh models.WebhookConfig, event models.WebhookEvent, payload []byte) {
	policy := d.retryPolicy(wh)

	signature := ""
	if wh.Secret != "" {
		signature = Sign(payload, wh.Secret)
	}

	for attempt := 0; ; attempt++ {
		status, err := d.post(wh.URL, event, payload, signature)
		if err == nil && status >= 200 && status < 300 {
			logger.L.Debug("Webhook delivered", "event", event.Event, "eventID", event.ID, "url", wh.URL, "attempts", attempt+1)
			return
		}
		if err == nil && status >= 400 && status < 500 {
			logger.L.Warn("Webhook rejected by receiver, not retrying",
				"event", event.Event, "eventID", event.ID, "url", wh.URL, "status", status)
			return
		}

		if attempt >= policy.MaxRetries {
			logger.L.Error("Webhook delivery failed, giving up",
				"event", event.Event, "eventID", event.ID, "url", wh.URL,
				"attempts", attempt+1, "status", status, "error", err)
			return
		}

		delay := backoffDelay(policy, attempt)
		logger.L.Debug("Webhook delivery failed, retrying",
			"event", event.Event, "url", wh.URL, "attempt", attempt+1, "delay", delay, "status", status, "error", err)
		time.Sleep(delay)
	}
}

func (d *Dispatcher) post(url string, event models.WebhookEvent, payload []byte, signature string) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.opts.UserAgent)
	req.Header.Set("X-Event-Id", event.ID)
	req.Header.Set("X-Event-Type", event.Event)
	req.Header.Set("X-Timestamp", event.Timestamp)
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (d *Dispatcher) retryPolicy(wh models.WebhookConfig) models.RetryPolicy {
	policy := models.RetryPolicy{
		MaxRetries:   d.opts.MaxRetries,
		InitialDelay: d.opts.InitialDelay,
		MaxDelay:     d.opts.MaxDelay,
	}
	if wh.RetryPolicy == nil {
		return policy
	}
	if wh.RetryPolicy.MaxRetries > 0 {
		policy.MaxRetries = wh.RetryPolicy.MaxRetries
	}
	if wh.RetryPolicy.InitialDelay > 0 {
		policy.InitialDelay = wh.RetryPolicy.InitialDelay
	}
	if wh.RetryPolicy.MaxDelay > 0 {
		policy.MaxDelay = wh.RetryPolicy.MaxDelay
	}
	return policy
}

// backoffDelay returns min(initialDelay * 2^attempt, maxDelay) plus up to
// 30% random jitter.
func backoffDelay(policy models.RetryPolicy, attempt int) time.Duration {
	delay := policy.InitialDelay << uint(attempt)
	if delay > policy.MaxDelay || delay <= 0 {
		delay = policy.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * 0.3 * float64(delay))
	return delay + jitter
}
