// Package sub creates PubSub topics and subscriptions.
package sub

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"go.treeherder.org/infra/go/skerr"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const (
	// batchSize is the number of messages outstanding per Go routine.
	batchSize = 5

	// subscriptionSuffix is appended to a topic name to build the shared
	// production subscription name.
	subscriptionSuffix = "-prod"

	// emulatorHostEnvVar is read by the PubSub client library.
	emulatorHostEnvVar = "PUBSUB_EMULATOR_HOST"
)

// NewClient returns a PubSub client for the project. It uses the default
// credentials unless the emulator is configured.
func NewClient(ctx context.Context, project string) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if os.Getenv(emulatorHostEnvVar) == "" {
		ts, err := google.DefaultTokenSource(ctx, pubsub.ScopePubSub)
		if err != nil {
			return nil, skerr.Wrapf(err, "Failed to create token source.")
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	client, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to create PubSub client for project %s", project)
	}
	return client, nil
}

// SubNameProvider generates the subscription name for a topic.
type SubNameProvider interface {
	SubName() (string, error)
}

// RoundRobinNameProvider implements SubNameProvider. In production every
// instance uses the same subscription name so that they load-balance the
// topic; locally every host gets its own subscription.
type RoundRobinNameProvider struct {
	local     bool
	topicName string
}

// NewRoundRobinNameProvider returns a new RoundRobinNameProvider.
func NewRoundRobinNameProvider(local bool, topicName string) RoundRobinNameProvider {
	return RoundRobinNameProvider{
		local:     local,
		topicName: topicName,
	}
}

// SubName implements SubNameProvider.
func (r RoundRobinNameProvider) SubName() (string, error) {
	if !r.local {
		return r.topicName + subscriptionSuffix, nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "", skerr.Wrapf(err, "Failed to get hostname.")
	}
	return fmt.Sprintf("%s-%s", r.topicName, hostname), nil
}

// ConstNameProvider implements SubNameProvider and always returns the same
// name.
type ConstNameProvider string

// SubName implements SubNameProvider.
func (c ConstNameProvider) SubName() (string, error) {
	return string(c), nil
}

// Options for a subscription.
type Options struct {
	// NumGoRoutines is the number of Go routines that process messages.
	NumGoRoutines int

	// MinRedeliveryDelay and MaxRedeliveryDelay bound how long the broker
	// waits before redelivering a Nacked message. Zero values leave the
	// broker's default.
	MinRedeliveryDelay time.Duration
	MaxRedeliveryDelay time.Duration

	// AckDeadline is how long a message may be processed before the broker
	// redelivers it. Zero leaves the broker's default.
	AckDeadline time.Duration
}

// EnsureTopic returns the topic with the given name, creating it if it does
// not exist, which requires the "PubSub Admin" role.
func EnsureTopic(ctx context.Context, client *pubsub.Client, topicName string) (*pubsub.Topic, error) {
	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to check existence of PubSub topic %q", topicName)
	}
	if exists {
		return topic, nil
	}
	topic, err = client.CreateTopic(ctx, topicName)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to create PubSub topic %q", topicName)
	}
	return topic, nil
}

// New returns a *pubsub.Subscription on topicName, creating the topic and
// the subscription if they don't exist.
//
// The returned subscription has ReceiveSettings.MaxOutstandingMessages and
// ReceiveSettings.NumGoroutines set from opts.
func New(ctx context.Context, client *pubsub.Client, topicName string, subNameProvider SubNameProvider, opts Options) (*pubsub.Subscription, error) {
	subName, err := subNameProvider.SubName()
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to get subscription name.")
	}
	topic, err := EnsureTopic(ctx, client, topicName)
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	sub := client.Subscription(subName)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed checking subscription existence: %q", subName)
	}
	if !ok {
		sub, err = client.CreateSubscription(ctx, subName, subscriptionConfig(topic, opts))
		if err != nil {
			return nil, skerr.Wrapf(err, "Failed creating subscription %q", subName)
		}
	}

	numGoRoutines := opts.NumGoRoutines
	if numGoRoutines < 1 {
		numGoRoutines = 1
	}
	sub.ReceiveSettings.MaxOutstandingMessages = numGoRoutines * batchSize
	sub.ReceiveSettings.NumGoroutines = numGoRoutines
	return sub, nil
}

func subscriptionConfig(topic *pubsub.Topic, opts Options) pubsub.SubscriptionConfig {
	cfg := pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: opts.AckDeadline,
	}
	if opts.MinRedeliveryDelay > 0 || opts.MaxRedeliveryDelay > 0 {
		cfg.RetryPolicy = &pubsub.RetryPolicy{}
		if opts.MinRedeliveryDelay > 0 {
			cfg.RetryPolicy.MinimumBackoff = opts.MinRedeliveryDelay
		}
		if opts.MaxRedeliveryDelay > 0 {
			cfg.RetryPolicy.MaximumBackoff = opts.MaxRedeliveryDelay
		}
	}
	return cfg
}
