package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// Subscribe adds kind to the baseline set and subscribes to its topic.
//
// Messages are dispatched to the MessageSink. The kind stays in the
// baseline, so it is re-subscribed after every reconnect. Subscribing again
// replaces the prior registration.
//
// Returns:
//   - error: ErrInvalidResource or ErrNotConnected on a precondition
//     failure, ErrSubscribeFailed if the broker rejects the request
func (c *Client) Subscribe(kind resource.Kind, qos int) error {
	if !kind.Valid() {
		return ErrInvalidResource
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	q := c.qos(qos)
	c.subMu.Lock()
	c.baseline[kind] = q
	c.subMu.Unlock()

	if err := waitToken(c.client.Subscribe(kind.Topic(), q, c.dispatchHandler())); err != nil {
		c.getLogger().Error("mqtt subscribe failed", "client", c.name, "topic", kind.Topic(), "error", err)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, kind.Topic(), err)
	}
	return nil
}

// Unsubscribe removes kind from the baseline set and from the broker.
func (c *Client) Unsubscribe(kind resource.Kind) error {
	if !kind.Valid() {
		return ErrInvalidResource
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	delete(c.baseline, kind)
	c.subMu.Unlock()

	if err := waitToken(c.client.Unsubscribe(kind.Topic())); err != nil {
		c.getLogger().Error("mqtt unsubscribe failed", "client", c.name, "topic", kind.Topic(), "error", err)
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, kind.Topic(), err)
	}
	return nil
}

// SubscribeTopic registers a dedicated handler for one raw topic.
//
// Topic subscriptions bypass the kind dispatcher and are restored on every
// connect. A tracked subscription is kept even when the client is not yet
// connected, in which case it takes effect on the next connect.
//
// Returns:
//   - error: ErrInvalidTopic, ErrSubscribeFailed, or ErrNotConnected when
//     the subscription was only recorded
func (c *Client) SubscribeTopic(topic string, qos int, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	q := c.qos(qos)
	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: q, handler: handler}
	c.subMu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := waitToken(c.client.Subscribe(topic, q, c.wrapHandler(handler))); err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// UnsubscribeTopic removes a topic subscription.
func (c *Client) UnsubscribeTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := waitToken(c.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// SubscriptionCount returns the number of baseline kinds plus topic
// subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.baseline) + len(c.subscriptions)
}

// HasSubscription checks whether kind is in the baseline set.
func (c *Client) HasSubscription(kind resource.Kind) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.baseline[kind]
	return exists
}

// waitToken blocks for a SUBACK or UNSUBACK, bounded by defaultPublishTimeout.
func waitToken(token pahomqtt.Token) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("timeout after %v", defaultPublishTimeout)
	}
	return token.Error()
}
