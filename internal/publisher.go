package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmamaqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

// Publisher hands verified deliveries to the transport between the webhook
// handlers and the sync worker.
type Publisher interface {
	Publish(ctx context.Context, topic string, dlv Delivery) error
	Close() error
}

// SubscriberProvider is implemented by publishers whose transport also
// serves in-process subscriptions (the gochannel driver).
type SubscriberProvider interface {
	Subscriber() message.Subscriber
}

// NewPublisher builds a publisher for every configured driver. Deliveries
// are published to all of them; a driver that fails to build is skipped
// with a log entry, and construction fails only when no driver is left.
func NewPublisher(cfg WatermillConfig) (Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	drivers := cfg.Drivers
	if len(drivers) == 0 && cfg.Driver != "" {
		drivers = []string{cfg.Driver}
	}
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}

	mux := &publisherMux{}
	for _, driver := range drivers {
		pub, err := buildPublisher(cfg, strings.ToLower(strings.TrimSpace(driver)), logger)
		if err != nil {
			logger.Error("publisher init failed, skipping driver", err, watermill.LogFields{
				"driver": driver,
			})
			IncPublishError(driver)
			continue
		}
		mux.publishers = append(mux.publishers, pub)
	}
	if len(mux.publishers) == 0 {
		return nil, errors.New("no publishers available")
	}
	mux.retry = cfg.PublishRetry
	return mux, nil
}

type driverPublisher struct {
	driver  string
	pub     message.Publisher
	sub     message.Subscriber
	closeFn func() error
}

type publisherMux struct {
	publishers []driverPublisher
	retry      PublishRetryConfig
}

func (m *publisherMux) Publish(ctx context.Context, topic string, dlv Delivery) error {
	payload, err := json.Marshal(dlv)
	if err != nil {
		return err
	}

	var errs error
	for _, entry := range m.publishers {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("provider", dlv.Provider)
		msg.Metadata.Set("event", dlv.Event)
		if err := m.publishWithRetry(entry.pub, topic, msg); err != nil {
			IncPublishError(entry.driver)
			errs = errors.Join(errs, fmt.Errorf("driver %s: %w", entry.driver, err))
		}
	}
	return errs
}

func (m *publisherMux) publishWithRetry(pub message.Publisher, topic string, msg *message.Message) error {
	attempts := m.retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(m.retry.DelayMS) * time.Millisecond

	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = pub.Publish(topic, msg); lastErr == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return lastErr
}

// Subscriber returns the in-process subscriber when a gochannel driver was
// built, and nil otherwise.
func (m *publisherMux) Subscriber() message.Subscriber {
	for _, entry := range m.publishers {
		if entry.sub != nil {
			return entry.sub
		}
	}
	return nil
}

func (m *publisherMux) Close() error {
	var errs error
	for _, entry := range m.publishers {
		errs = errors.Join(errs, entry.pub.Close())
		if entry.closeFn != nil {
			errs = errors.Join(errs, entry.closeFn())
		}
	}
	return errs
}

func buildPublisher(cfg WatermillConfig, driver string, logger watermill.LoggerAdapter) (driverPublisher, error) {
	switch driver {
	case "gochannel":
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
			Persistent:                     cfg.GoChannel.Persistent,
			BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
		}, logger)
		return driverPublisher{driver: driver, pub: ch, sub: ch}, nil

	case "amqp":
		if cfg.AMQP.URL == "" {
			return driverPublisher{}, errors.New("amqp url is required")
		}
		amqpCfg, err := amqpConfigFromMode(cfg.AMQP.URL, cfg.AMQP.Mode)
		if err != nil {
			return driverPublisher{}, err
		}
		pub, err := wmamaqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return driverPublisher{}, err
		}
		return driverPublisher{driver: driver, pub: pub}, nil

	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return driverPublisher{}, errors.New("kafka brokers are required")
		}
		pub, err := wmkafka.NewPublisher(cfg.Kafka.Brokers, wmkafka.DefaultMarshaler{}, nil, logger)
		if err != nil {
			return driverPublisher{}, err
		}
		return driverPublisher{driver: driver, pub: pub}, nil

	case "nats":
		if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
			return driverPublisher{}, errors.New("nats cluster_id and client_id are required")
		}
		natsCfg := wmnats.StreamingPublisherConfig{
			ClusterID: cfg.NATS.ClusterID,
			ClientID:  cfg.NATS.ClientID,
			Marshaler: wmnats.GobMarshaler{},
		}
		if cfg.NATS.URL != "" {
			natsCfg.StanOptions = append(natsCfg.StanOptions, stan.NatsURL(cfg.NATS.URL))
		}
		pub, err := wmnats.NewStreamingPublisher(natsCfg, logger)
		if err != nil {
			return driverPublisher{}, err
		}
		return driverPublisher{driver: driver, pub: pub}, nil

	case "sql":
		if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
			return driverPublisher{}, errors.New("sql driver and dsn are required")
		}
		schemaAdapter, err := sqlSchemaAdapter(cfg.SQL.Dialect)
		if err != nil {
			return driverPublisher{}, err
		}
		db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return driverPublisher{}, err
		}
		pub, err := wmsql.NewPublisher(db, wmsql.PublisherConfig{
			SchemaAdapter:        schemaAdapter,
			AutoInitializeSchema: cfg.SQL.InitializeSchema,
		}, logger)
		if err != nil {
			_ = db.Close()
			return driverPublisher{}, err
		}
		return driverPublisher{driver: driver, pub: pub, closeFn: db.Close}, nil

	case "http":
		mode := strings.ToLower(cfg.HTTP.Mode)
		if mode != "topic_url" && mode != "base_url" {
			return driverPublisher{}, fmt.Errorf("unsupported http mode: %s", cfg.HTTP.Mode)
		}
		if mode == "base_url" && cfg.HTTP.BaseURL == "" {
			return driverPublisher{}, errors.New("http base_url is required for base_url mode")
		}
		pub, err := wmhttp.NewPublisher(wmhttp.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*http.Request, error) {
				target, err := httpTargetURL(cfg.HTTP, topic)
				if err != nil {
					return nil, err
				}
				return wmhttp.DefaultMarshalMessageFunc(target, msg)
			},
		}, logger)
		if err != nil {
			return driverPublisher{}, err
		}
		return driverPublisher{driver: driver, pub: pub}, nil

	case "riverqueue":
		pub, err := newRiverQueuePublisher(cfg.RiverQueue)
		if err != nil {
			return driverPublisher{}, err
		}
		return driverPublisher{driver: driver, pub: pub}, nil

	default:
		return driverPublisher{}, fmt.Errorf("unsupported watermill driver: %s", driver)
	}
}

func amqpConfigFromMode(url, mode string) (wmamaqp.Config, error) {
	switch strings.ToLower(mode) {
	case "", "durable_queue":
		return wmamaqp.NewDurableQueueConfig(url), nil
	case "nondurable_queue":
		return wmamaqp.NewNonDurableQueueConfig(url), nil
	case "durable_pubsub":
		return wmamaqp.NewDurablePubSubConfig(url, nil), nil
	case "nondurable_pubsub":
		return wmamaqp.NewNonDurablePubSubConfig(url, nil), nil
	default:
		return wmamaqp.Config{}, fmt.Errorf("unsupported amqp mode: %s", mode)
	}
}

func sqlSchemaAdapter(dialect string) (wmsql.SchemaAdapter, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
}

func httpTargetURL(cfg HTTPConfig, topic string) (string, error) {
	switch strings.ToLower(cfg.Mode) {
	case "topic_url":
		if topic == "" {
			return "", errors.New("http topic url is empty")
		}
		return topic, nil
	case "base_url":
		if cfg.BaseURL == "" {
			return "", errors.New("http base_url is empty")
		}
		if topic == "" {
			return strings.TrimRight(cfg.BaseURL, "/"), nil
		}
		return strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(topic, "/"), nil
	default:
		return "", fmt.Errorf("unsupported http mode: %s", cfg.Mode)
	}
}
