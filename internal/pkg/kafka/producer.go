package kafka

import (
	"Ripple/internal/api/config"
	log "log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// MessageCreatedEvent 新消息事件，供通知/统计等下游消费
type MessageCreatedEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	RecipientID    uint64    `json:"recipient_id"`
	Delivered      bool      `json:"delivered"`
	CreatedAt      time.Time `json:"created_at"`
}

// EventProducer 消息事件生产者接口
type EventProducer interface {
	PublishMessageCreated(evt *MessageCreatedEvent)
	Close() error
}

type eventProducerImpl struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewEventProducer 构造异步生产者并启动错误回收协程
func NewEventProducer(cfg *config.Config) (EventProducer, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	producer, err := sarama.NewAsyncProducer(cfg.Kafka.Brokers, saramaCfg)
	if err != nil {
		return nil, errors.Wrap(err, "创建 Kafka 异步生产者失败")
	}

	p := &eventProducerImpl{
		producer: producer,
		topic:    cfg.Kafka.Producer.MessageTopic,
	}

	// 投递失败只记日志，事件总线故障不能影响聊天主链路
	go func() {
		for err := range producer.Errors() {
			log.Error("Kafka 消息事件投递失败", "topic", err.Msg.Topic, "err", err.Err)
		}
	}()

	return p, nil
}

// PublishMessageCreated 发布新消息事件，按会话 ID 分区保序
func (s *eventProducerImpl) PublishMessageCreated(evt *MessageCreatedEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error("Kafka 事件序列化失败", "err", err)
		return
	}

	s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(evt.ConversationID, 10)),
		Value: sarama.ByteEncoder(data),
	}
}

func (s *eventProducerImpl) Close() error {
	return s.producer.Close()
}
