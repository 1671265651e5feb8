// Package worker consumes the perf.ingest and perf.detect task queues.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/now"
	"go.treeherder.org/infra/go/pubsub/sub"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/perf/go/alerts"
	"go.treeherder.org/infra/perf/go/builders"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/datum"
	"go.treeherder.org/infra/perf/go/ingestevents"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/push"
	"go.treeherder.org/infra/perf/go/signature"
	"go.treeherder.org/infra/perf/go/types"
	"golang.org/x/sync/errgroup"
)

const (
	// TaskIDAttribute identifies a detect task across its attempts.
	TaskIDAttribute = "task_id"

	// ErrorAttribute carries the last error of a dead-lettered task.
	ErrorAttribute = "error"

	// maxRedeliveryDelay is the longest backoff PubSub accepts in a
	// subscription's retry policy.
	maxRedeliveryDelay = 600 * time.Second

	// detectDedupWindow is how long the ingests of a push share one detect
	// task. The task runs once the window has passed.
	detectDedupWindow = time.Minute
)

// Outcome is what happens to a message once it has been handled.
type Outcome int

const (
	// Ack removes the message from the queue.
	Ack Outcome = iota

	// Nack makes the broker redeliver the message later.
	Nack
)

// Publisher sends a message to a topic.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// topicPublisher implements Publisher on a PubSub topic.
type topicPublisher struct {
	topic *pubsub.Topic
}

// Publish implements Publisher. It waits for the broker to accept the
// message.
func (p topicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	_, err := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	}).Get(ctx)
	return skerr.Wrapf(err, "Failed to publish to %q", p.topic.ID())
}

// Detector runs detection for a push.
type Detector interface {
	DetectPush(ctx context.Context, repositoryName, frameworkName string, pushID types.PushID) ([]alerts.UpsertResult, error)
}

// Worker handles ingest and detect tasks. It holds no per-task state and the
// handlers may run concurrently.
type Worker struct {
	pushes     push.Store
	signatures signature.Store
	data       datum.Store
	detector   Detector

	// detectTopic receives retried detect tasks, and new ones after ingest
	// if publishAfterIngest is set. May be nil.
	detectTopic        Publisher
	publishAfterIngest bool

	// deadLetterTopic may be nil, in which case dead tasks are only logged.
	deadLetterTopic Publisher

	retry config.RetryConfig

	// detectScheduled holds the pushes a detect task was published for in
	// the last detectDedupWindow.
	detectScheduled *cache.Cache

	// Only set by New.
	ingestSub *pubsub.Subscription
	detectSub *pubsub.Subscription

	ingested    metrics2.Counter
	dropped     metrics2.Counter
	failed      metrics2.Counter
	detected    metrics2.Counter
	deferred    metrics2.Counter
	retried     metrics2.Counter
	deadLetters metrics2.Counter
}

func newWorker(pushes push.Store, signatures signature.Store, data datum.Store, detector Detector, detectTopic Publisher, publishAfterIngest bool, deadLetterTopic Publisher, retry config.RetryConfig) *Worker {
	return &Worker{
		pushes:             pushes,
		signatures:         signatures,
		data:               data,
		detector:           detector,
		detectTopic:        detectTopic,
		publishAfterIngest: publishAfterIngest,
		deadLetterTopic:    deadLetterTopic,
		retry:              retry,
		detectScheduled:    cache.New(detectDedupWindow, 2*detectDedupWindow),
		ingested:           metrics2.GetCounter("perf_worker_ingested"),
		dropped:            metrics2.GetCounter("perf_worker_dropped"),
		failed:             metrics2.GetCounter("perf_worker_failed"),
		detected:           metrics2.GetCounter("perf_worker_detected"),
		deferred:           metrics2.GetCounter("perf_worker_deferred"),
		retried:            metrics2.GetCounter("perf_worker_retried"),
		deadLetters:        metrics2.GetCounter("perf_worker_dead_letters"),
	}
}

// New builds a Worker from the instance config, connecting to the database
// and to PubSub.
func New(ctx context.Context, flags *config.WorkerFlags, instanceConfig *config.InstanceConfig) (*Worker, error) {
	stores, err := builders.NewStoresFromConfig(ctx, instanceConfig)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	engine := builders.NewRegressionEngineFromStores(stores, instanceConfig)

	qc := instanceConfig.QueueConfig
	client, err := sub.NewClient(ctx, qc.Project)
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	var detectTopic, deadLetterTopic Publisher
	if qc.DetectTopic != "" {
		topic, err := sub.EnsureTopic(ctx, client, qc.DetectTopic)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		detectTopic = topicPublisher{topic: topic}
	}
	if qc.DeadLetterTopic != "" {
		topic, err := sub.EnsureTopic(ctx, client, qc.DeadLetterTopic)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		deadLetterTopic = topicPublisher{topic: topic}
	}

	w := newWorker(stores.Pushes, stores.Signatures, stores.Data, engine, detectTopic, qc.PublishDetectAfterIngest, deadLetterTopic, instanceConfig.DetectionConfig.Retry)

	opts := subscriptionOptions(flags.NumGoroutines, instanceConfig.DetectionConfig)
	if qc.IngestTopic != "" {
		w.ingestSub, err = sub.New(ctx, client, qc.IngestTopic, sub.NewRoundRobinNameProvider(flags.Local, qc.IngestTopic), opts)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	if qc.DetectTopic != "" {
		w.detectSub, err = sub.New(ctx, client, qc.DetectTopic, sub.NewRoundRobinNameProvider(flags.Local, qc.DetectTopic), opts)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	return w, nil
}

// subscriptionOptions returns the options of the ingest and detect
// subscriptions. Nacked messages are redelivered after the retry backoff,
// clamped to what PubSub allows, so a deferred detect task doesn't spin.
func subscriptionOptions(numGoroutines int, d config.DetectionConfig) sub.Options {
	minDelay := time.Duration(d.Retry.Base)
	if minDelay > maxRedeliveryDelay {
		minDelay = maxRedeliveryDelay
	}
	maxDelay := time.Duration(d.Retry.Cap)
	if maxDelay > maxRedeliveryDelay {
		maxDelay = maxRedeliveryDelay
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return sub.Options{
		NumGoRoutines:      numGoroutines,
		AckDeadline:        time.Duration(d.Deadline) * 2,
		MinRedeliveryDelay: minDelay,
		MaxRedeliveryDelay: maxDelay,
	}
}

// Run receives messages until ctx is cancelled or a subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if w.ingestSub != nil {
		g.Go(func() error {
			sklog.Infof("Listening for ingest tasks on %q", w.ingestSub.ID())
			return w.ingestSub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
				settle(msg, w.HandleIngest(ctx, msg.Data, msg.Attributes))
			})
		})
	}
	if w.detectSub != nil {
		g.Go(func() error {
			sklog.Infof("Listening for detect tasks on %q", w.detectSub.ID())
			return w.detectSub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
				settle(msg, w.HandleDetect(ctx, msg.Data, msg.Attributes))
			})
		})
	}
	return skerr.Wrap(g.Wait())
}

func settle(msg *pubsub.Message, outcome Outcome) {
	if outcome == Ack {
		msg.Ack()
	} else {
		msg.Nack()
	}
}

// HandleIngest stores the datum of a perf.ingest message.
//
// Messages that can never be ingested are dropped, every other failure is
// left to the broker to redeliver.
func (w *Worker) HandleIngest(ctx context.Context, data []byte, _ map[string]string) Outcome {
	msg, err := ingestevents.DecodeIngestBody(data)
	if err == nil {
		err = w.ingest(ctx, msg)
	}
	if err == nil {
		w.ingested.Inc(1)
		return Ack
	}
	if errors.Is(err, perferrors.ErrValidation) {
		sklog.Warningf("Dropping ingest task: %s", err)
		w.dropped.Inc(1)
		return Ack
	}
	if errors.Is(err, perferrors.ErrPendingParent) {
		sklog.Infof("Parent signature not ingested yet, will retry: %s", err)
	} else {
		sklog.Errorf("Failed to ingest: %s", err)
	}
	w.failed.Inc(1)
	return Nack
}

func (w *Worker) ingest(ctx context.Context, msg *ingestevents.IngestMessage) error {
	sig, err := w.signatures.Resolve(ctx, msg.FeatureTuple())
	if err != nil {
		return skerr.Wrap(err)
	}

	var p *types.Push
	if msg.PushID != 0 {
		p, err = w.pushes.Get(ctx, msg.PushID)
		if err != nil {
			return skerr.Wrap(err)
		}
		if p.RepositoryID != sig.RepositoryID {
			return skerr.Wrapf(perferrors.ErrValidation, "push %d is not in repository %q", msg.PushID, msg.Repository)
		}
	} else {
		id, err := w.pushes.Put(ctx, sig.RepositoryID, msg.Revision, msg.Timestamp)
		if err != nil {
			return skerr.Wrap(err)
		}
		p = &types.Push{ID: id, RepositoryID: sig.RepositoryID, Revision: msg.Revision, Time: msg.Timestamp}
	}

	err = w.data.Ingest(ctx, datum.Datum{
		SignatureID:   sig.ID,
		PushID:        p.ID,
		JobID:         msg.JobID,
		Value:         msg.Value,
		PushTimestamp: p.Time,
	})
	if err != nil {
		return skerr.Wrap(err)
	}

	if !w.publishAfterIngest || w.detectTopic == nil {
		return nil
	}
	key := fmt.Sprintf("%s/%s/%d", msg.Repository, msg.Framework, p.ID)
	if err := w.detectScheduled.Add(key, true, cache.DefaultExpiration); err != nil {
		// Already scheduled.
		return nil
	}
	body, err := ingestevents.CreateDetectBody(&ingestevents.DetectMessage{
		Repository: msg.Repository,
		Framework:  msg.Framework,
		PushID:     p.ID,
	})
	if err != nil {
		w.detectScheduled.Delete(key)
		return skerr.Wrap(err)
	}
	attrs := ingestevents.Attributes(1, now.Now(ctx).Add(detectDedupWindow))
	attrs[TaskIDAttribute] = uuid.New().String()
	if err := w.detectTopic.Publish(ctx, body, attrs); err != nil {
		w.detectScheduled.Delete(key)
		return skerr.Wrap(err)
	}
	return nil
}

// HandleDetect runs detection for the push of a perf.detect message.
//
// A task that fails with a retryable error is published again with the
// next attempt number and a not_before time, and is sent to the dead letter
// topic once it has run out of attempts.
func (w *Worker) HandleDetect(ctx context.Context, data []byte, attrs map[string]string) Outcome {
	msg, err := ingestevents.DecodeDetectBody(data)
	if err != nil {
		sklog.Warningf("Dropping detect task: %s", err)
		w.dropped.Inc(1)
		return Ack
	}

	if notBefore := ingestevents.NotBefore(attrs); now.Now(ctx).Before(notBefore) {
		w.deferred.Inc(1)
		return Nack
	}

	attempt := ingestevents.Attempt(attrs)
	_, err = w.detector.DetectPush(ctx, msg.Repository, msg.Framework, msg.PushID)
	if err == nil {
		w.detected.Inc(1)
		return Ack
	}
	if !perferrors.Retryable(err) {
		sklog.Warningf("Dropping detect task for push %d of %s/%s: %s", msg.PushID, msg.Repository, msg.Framework, err)
		w.dropped.Inc(1)
		return Ack
	}

	taskID := attrs[TaskIDAttribute]
	if taskID == "" {
		taskID = uuid.New().String()
	}

	if attempt >= w.retry.MaxAttempts {
		return w.toDeadLetter(ctx, data, attempt, taskID, err)
	}

	next := attempt + 1
	notBefore := now.Now(ctx).Add(RetryDelay(w.retry, attempt))
	sklog.Warningf("Detect task %s for push %d failed on attempt %d, retrying after %s: %s", taskID, msg.PushID, attempt, notBefore.Format(time.RFC3339), err)
	if w.detectTopic == nil {
		w.failed.Inc(1)
		return Nack
	}
	retryAttrs := ingestevents.Attributes(next, notBefore)
	retryAttrs[TaskIDAttribute] = taskID
	if err := w.detectTopic.Publish(ctx, data, retryAttrs); err != nil {
		sklog.Errorf("Failed to re-publish detect task %s: %s", taskID, err)
		w.failed.Inc(1)
		return Nack
	}
	w.retried.Inc(1)
	return Ack
}

func (w *Worker) toDeadLetter(ctx context.Context, data []byte, attempt int, taskID string, taskErr error) Outcome {
	sklog.Errorf("Detect task %s ran out of attempts after %d: %s", taskID, attempt, taskErr)
	w.deadLetters.Inc(1)
	if w.deadLetterTopic == nil {
		return Ack
	}
	attrs := ingestevents.Attributes(attempt, time.Time{})
	attrs[TaskIDAttribute] = taskID
	attrs[ErrorAttribute] = taskErr.Error()
	if err := w.deadLetterTopic.Publish(ctx, data, attrs); err != nil {
		sklog.Errorf("Failed to dead letter detect task %s: %s", taskID, err)
		return Nack
	}
	return Ack
}

// RetryDelay returns how long to wait after the given failed attempt before
// the next one: Base * Factor^(attempt-1), capped at Cap.
func RetryDelay(cfg config.RetryConfig, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(cfg.Base)
	b.Multiplier = cfg.Factor
	b.MaxInterval = time.Duration(cfg.Cap)
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
