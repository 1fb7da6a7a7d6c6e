package transport

import (
	"sync"

	"github.com/axmq/uapubsub/status"
)

// TopicRegistry maps MQTT queueName bindings to the ReaderGroup (by
// numeric id, held as a uint32 to avoid an import cycle with the pubsub
// package) that owns the subscription, per spec.md §6: "on ReaderGroup
// creation over an MQTT connection, read the queueName... and register a
// topic-to-group mapping with the manager." Grounded on the teacher's
// topic.Router client/filter registry, simplified to exact-topic
// matching since queueName bindings are not wildcard subscriptions.
type TopicRegistry struct {
	mu     sync.RWMutex
	byTopic map[string]uint32
}

// NewTopicRegistry creates an empty topic-to-group registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{byTopic: make(map[string]uint32)}
}

// Bind registers groupID as the owner of topic. Fails if another group
// already owns it.
func (t *TopicRegistry) Bind(topic string, groupID uint32) *status.Error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byTopic[topic]; ok && existing != groupID {
		return status.New(status.ConfigurationError, "transport: topic already bound to another reader group")
	}
	t.byTopic[topic] = groupID
	return nil
}

// Unbind removes topic's registration, if owned by groupID.
func (t *TopicRegistry) Unbind(topic string, groupID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.byTopic[topic]; ok && existing == groupID {
		delete(t.byTopic, topic)
	}
}

// Resolve returns the group id bound to topic, if any.
func (t *TopicRegistry) Resolve(topic string) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byTopic[topic]
	return id, ok
}
