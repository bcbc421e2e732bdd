package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a payload on the topic of the given resource kind.
//
// QoS outside 0..2 is replaced by the configured default. Delivery is
// fire-and-forget: once the payload is handed to paho the call returns, and
// completion is only logged.
//
// Returns:
//   - error: ErrInvalidResource, ErrEmptyPayload or ErrNotConnected on a
//     precondition failure; no I/O is attempted in that case
func (c *Client) Publish(kind resource.Kind, payload []byte, qos int) error {
	if !kind.Valid() {
		return ErrInvalidResource
	}
	return c.PublishTopic(kind.Topic(), payload, qos)
}

// PublishTopic is Publish addressed by raw topic, for upstream naming
// schemes that are not part of the resource table.
func (c *Client) PublishTopic(topic string, payload []byte, qos int) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.qos(qos), false, payload)
	go c.awaitToken("publish", topic, token)

	return nil
}

// qos coerces an out-of-range QoS to the configured default.
func (c *Client) qos(qos int) byte {
	if qos < 0 || qos > maxQoS {
		return byte(c.cfg.QoS)
	}
	return byte(qos)
}

// awaitToken observes an asynchronous paho operation and logs its outcome.
func (c *Client) awaitToken(op, topic string, token pahomqtt.Token) {
	timer := time.NewTimer(defaultPublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.getLogger().Warn("mqtt "+op+" failed", "client", c.name, "topic", topic, "error", err)
			return
		}
		c.getLogger().Debug("mqtt "+op+" complete", "client", c.name, "topic", topic)
	case <-timer.C:
		c.getLogger().Warn("mqtt "+op+" not acknowledged", "client", c.name, "topic", topic, "timeout", defaultPublishTimeout)
	}
}
