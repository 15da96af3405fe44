package bus

import (
	"encoding/json"
	"fmt"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// TypedEventBus carries JSON encoded values of one type over an EventBus topic.
type TypedEventBus[ValueType any] interface {
	Subscribe(topic string, handler func(input ValueType) error, transactional bool) error
	Publish(topic string, arg ValueType) error
	WaitAsync()
}

type TypedEventBusImpl[ValueType any] struct {
	eventBus EventBus.Bus
	logger   *zap.Logger
}

func NewTypedEventBus[ValueType any](eventBus EventBus.Bus, logger *zap.Logger) TypedEventBus[ValueType] {
	return &TypedEventBusImpl[ValueType]{
		eventBus: eventBus,
		logger:   logger,
	}
}

func (ev *TypedEventBusImpl[ValueType]) Subscribe(
	topic string,
	handler func(input ValueType) error,
	transactional bool,
) error {
	err := ev.eventBus.SubscribeAsync(
		topic,
		func(arg string) {
			var input ValueType
			if err := json.Unmarshal([]byte(arg), &input); err != nil {
				ev.logger.Error("Failed to unmarshal input during subscription of topic",
					zap.String("topic", topic),
					zap.Error(err),
				)
				return
			}
			if err := handler(input); err != nil {
				ev.logger.Error("Failed to handle input during subscription of topic",
					zap.String("topic", topic),
					zap.Error(err),
				)
			}
		},
		transactional,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return nil
}

func (ev *TypedEventBusImpl[ValueType]) Publish(topic string, arg ValueType) error {
	argBytes, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("failed to marshal output during publishing of topic %s: %w", topic, err)
	}
	ev.eventBus.Publish(topic, string(argBytes))
	return nil
}

// WaitAsync blocks until every asynchronous handler has returned.
func (ev *TypedEventBusImpl[ValueType]) WaitAsync() {
	ev.eventBus.WaitAsync()
}
