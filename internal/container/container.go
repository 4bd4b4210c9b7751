// Package container wires the client's services into a samber/do injector.
package container

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/shortify/internal/client"
	"github.com/serroba/shortify/internal/events"
	"github.com/serroba/shortify/internal/health"
	"github.com/serroba/shortify/internal/history"
	"github.com/serroba/shortify/internal/messaging"
	"github.com/serroba/shortify/internal/session"
	"github.com/serroba/shortify/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	EventsMemory = "memory"
	EventsRedis  = "redis"
)

type Options struct {
	BaseURL         string `default:"http://localhost:8080"               help:"Base URL of the shortening service"                        short:"u" validate:"required,url"`
	Store           string `default:"sqlite"                              help:"History backend: memory, sqlite, redis or postgres"         short:"s" validate:"oneof=memory sqlite redis postgres"`
	SQLitePath      string `default:"shortify.db"                         help:"SQLite database file"                                       name:"sqlite-path"`
	RedisAddr       string `default:"localhost:6379"                      help:"Redis server address"                                       short:"r"`
	PostgresDSN     string `default:"postgres://localhost:5432/shortify"  help:"PostgreSQL connection string"                               name:"postgres-dsn"`
	CacheTTLSeconds int    `default:"0"                                   help:"Cache postgres blobs in Redis for this many seconds, 0 off" name:"cache-ttl"       validate:"gte=0"`
	Events          string `default:"memory"                              help:"Event transport: memory or redis"                           validate:"oneof=memory redis"`
	SettleDelayMS   int    `default:"500"                                 help:"Wait before refetching after a shorten, in milliseconds"    name:"settle-delay-ms" validate:"gte=0"`
	TimeoutSeconds  int    `default:"10"                                  help:"Request timeout in seconds"                                 name:"timeout"         short:"t"  validate:"gt=0"`
	LogFormat       string `default:"console"                             help:"Log format: console or json"                                validate:"oneof=console json"`
	LogLevel        string `default:"warn"                                help:"Log level: debug, info, warn or error"                      validate:"oneof=debug info warn error"`
}

// Validate checks option values that flag parsing cannot.
func (o *Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	return nil
}

func (o *Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

func (o *Options) SettleDelay() time.Duration {
	return time.Duration(o.SettleDelayMS) * time.Millisecond
}

func (o *Options) usesRedis() bool {
	return o.Store == StoreRedis || o.Events == EventsRedis || (o.Store == StorePostgres && o.CacheTTLSeconds > 0)
}

// NewLogger builds a zap logger writing to stderr.
func NewLogger(format, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config

	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts, err := do.Invoke[*Options](i)
		if err != nil {
			return nil, err
		}

		return NewLogger(opts.LogFormat, opts.LogLevel)
	})
}

// RedisConn is the shared Redis client; the injector closes it on shutdown.
type RedisConn struct {
	*redis.Client
}

func (r *RedisConn) Shutdown() error {
	return r.Close()
}

func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*RedisConn, error) {
		opts, err := do.Invoke[*Options](i)
		if err != nil {
			return nil, err
		}

		return &RedisConn{Client: redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
		})}, nil
	})
}

func StorePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (store.BlobStore, error) {
		opts, err := do.Invoke[*Options](i)
		if err != nil {
			return nil, err
		}

		switch opts.Store {
		case StoreMemory:
			return store.NewMemoryStore(), nil
		case StoreSQLite:
			return store.NewSQLiteStore(opts.SQLitePath)
		case StoreRedis:
			conn, err := do.Invoke[*RedisConn](i)
			if err != nil {
				return nil, err
			}

			return store.NewRedisStore(conn.Client), nil
		case StorePostgres:
			ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout())
			defer cancel()

			pg, err := store.NewPostgresStore(ctx, opts.PostgresDSN)
			if err != nil {
				return nil, err
			}

			if opts.CacheTTLSeconds == 0 {
				return pg, nil
			}

			conn, err := do.Invoke[*RedisConn](i)
			if err != nil {
				_ = pg.Shutdown()

				return nil, err
			}

			logger, err := do.Invoke[*zap.Logger](i)
			if err != nil {
				_ = pg.Shutdown()

				return nil, err
			}

			ttl := time.Duration(opts.CacheTTLSeconds) * time.Second

			return store.NewRedisCacheStore(pg, conn.Client, ttl, logger.Named("cache")), nil
		default:
			return nil, fmt.Errorf("unknown store %q", opts.Store)
		}
	})
}

func ClientPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*http.Client, error) {
		opts, err := do.Invoke[*Options](i)
		if err != nil {
			return nil, err
		}

		logger, err := do.Invoke[*zap.Logger](i)
		if err != nil {
			return nil, err
		}

		blobs, err := do.Invoke[store.BlobStore](i)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout())
		defer cancel()

		jar, err := client.NewPersistentJar(ctx, opts.BaseURL, blobs, logger)
		if err != nil {
			return nil, err
		}

		return &http.Client{Jar: jar, Timeout: opts.Timeout()}, nil
	})

	do.Provide(injector, func(i *do.Injector) (*client.Shortener, error) {
		opts, httpClient, logger, err := clientDeps(i)
		if err != nil {
			return nil, err
		}

		return client.NewShortener(httpClient, opts.BaseURL, logger), nil
	})

	do.Provide(injector, func(i *do.Injector) (*client.UserURLs, error) {
		opts, httpClient, logger, err := clientDeps(i)
		if err != nil {
			return nil, err
		}

		return client.NewUserURLs(httpClient, opts.BaseURL, logger), nil
	})
}

func clientDeps(i *do.Injector) (*Options, *http.Client, *zap.Logger, error) {
	opts, err := do.Invoke[*Options](i)
	if err != nil {
		return nil, nil, nil, err
	}

	httpClient, err := do.Invoke[*http.Client](i)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := do.Invoke[*zap.Logger](i)
	if err != nil {
		return nil, nil, nil, err
	}

	return opts, httpClient, logger, nil
}

func HistoryPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*history.Store, error) {
		blobs, err := do.Invoke[store.BlobStore](i)
		if err != nil {
			return nil, err
		}

		logger, err := do.Invoke[*zap.Logger](i)
		if err != nil {
			return nil, err
		}

		return history.NewStore(blobs, logger)
	})
}

// MessagingPackage provides the event transport. The in-memory transport
// uses one gochannel for both directions; the Redis transport fans every
// event out to every subscribed process.
func MessagingPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*gochannel.GoChannel, error) {
		logger, err := do.Invoke[*zap.Logger](i)
		if err != nil {
			return nil, err
		}

		return gochannel.NewGoChannel(gochannel.Config{}, messaging.NewZapLogger(logger)), nil
	})

	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		opts, err := do.Invoke[*Options](i)
		if err != nil {
			return nil, err
		}

		if opts.Events != EventsRedis {
			pubsub, err := do.Invoke[*gochannel.GoChannel](i)
			if err != nil {
				return nil, err
			}

			return messaging.NewPublisherGroup(pubsub), nil
		}

		conn, logger, err := redisTransportDeps(i)
		if err != nil {
			return nil, err
		}

		publisher, err := redisstream.NewPublisher(RedisPublisherConfig(conn.Client), messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create redis publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(injector, func(i *do.Injector) (message.Subscriber, error) {
		opts, err := do.Invoke[*Options](i)
		if err != nil {
			return nil, err
		}

		if opts.Events != EventsRedis {
			pubsub, err := do.Invoke[*gochannel.GoChannel](i)
			if err != nil {
				return nil, err
			}

			return pubsub, nil
		}

		conn, logger, err := redisTransportDeps(i)
		if err != nil {
			return nil, err
		}

		subscriber, err := redisstream.NewSubscriber(RedisSubscriberConfig(conn.Client, time.Now()), messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create redis subscriber: %w", err)
		}

		return subscriber, nil
	})

	do.Provide(injector, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		subscriber, err := do.Invoke[message.Subscriber](i)
		if err != nil {
			return nil, err
		}

		logger, err := do.Invoke[*zap.Logger](i)
		if err != nil {
			return nil, err
		}

		return messaging.NewConsumerGroup(subscriber, logger), nil
	})
}

const (
	// StreamMaxLen caps each event stream, approximately.
	StreamMaxLen = 1000

	// StreamReplayWindow is how far before subscribing a process starts
	// reading, so events published before the first read are not lost.
	StreamReplayWindow = 5 * time.Second
)

// RedisPublisherConfig trims the url.shortened stream to StreamMaxLen.
func RedisPublisherConfig(client redis.UniversalClient) redisstream.PublisherConfig {
	return redisstream.PublisherConfig{
		Client:     client,
		Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		Maxlens:    map[string]int64{events.TopicURLShortened: StreamMaxLen},
	}
}

// RedisSubscriberConfig reads without a consumer group, so every process
// sees every event, starting StreamReplayWindow before now.
func RedisSubscriberConfig(client redis.UniversalClient, now time.Time) redisstream.SubscriberConfig {
	return redisstream.SubscriberConfig{
		Client:         client,
		Unmarshaller:   redisstream.DefaultMarshallerUnmarshaller{},
		FanOutOldestId: fmt.Sprintf("%d-0", now.Add(-StreamReplayWindow).UnixMilli()),
	}
}

func redisTransportDeps(i *do.Injector) (*RedisConn, *zap.Logger, error) {
	conn, err := do.Invoke[*RedisConn](i)
	if err != nil {
		return nil, nil, err
	}

	logger, err := do.Invoke[*zap.Logger](i)
	if err != nil {
		return nil, nil, err
	}

	return conn, logger, nil
}

// SessionPackage provides the session and registers its url.shortened
// consumer with the consumer group. Starting the group is up to the caller.
func SessionPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*session.Session, error) {
		opts, err := do.Invoke[*Options](i)
		if err != nil {
			return nil, err
		}

		logger, err := do.Invoke[*zap.Logger](i)
		if err != nil {
			return nil, err
		}

		group, err := do.Invoke[*messaging.ConsumerGroup](i)
		if err != nil {
			return nil, err
		}

		subscriber, err := do.Invoke[message.Subscriber](i)
		if err != nil {
			return nil, err
		}

		publishers, err := do.Invoke[*messaging.PublisherGroup](i)
		if err != nil {
			return nil, err
		}

		shortener, err := do.Invoke[*client.Shortener](i)
		if err != nil {
			return nil, err
		}

		urls, err := do.Invoke[*client.UserURLs](i)
		if err != nil {
			return nil, err
		}

		h, err := do.Invoke[*history.Store](i)
		if err != nil {
			return nil, err
		}

		s := session.New(
			shortener,
			urls,
			h,
			messaging.NewPublishFunc[events.URLShortenedEvent](publishers.Publisher(), events.TopicURLShortened),
			logger,
			session.WithSettleDelay(opts.SettleDelay()),
		)

		group.Add(messaging.NewConsumer(subscriber, events.TopicURLShortened, s.HandleURLShortened, logger))

		return s, nil
	})
}

// HealthPackage provides a handler that checks the history backend, the
// shortening service and, when configured, Redis.
func HealthPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*health.Handler, error) {
		opts, err := do.Invoke[*Options](i)
		if err != nil {
			return nil, err
		}

		logger, err := do.Invoke[*zap.Logger](i)
		if err != nil {
			return nil, err
		}

		checks := []health.Check{
			{
				Name:    "service",
				Checker: health.NewServiceChecker(&http.Client{Timeout: opts.Timeout()}, opts.BaseURL),
			},
		}

		if opts.usesRedis() {
			conn, err := do.Invoke[*RedisConn](i)
			if err != nil {
				return nil, err
			}

			checks = append(checks, health.Check{Name: "redis", Checker: health.NewRedisChecker(conn.Client)})
		}

		blobs, storeErr := do.Invoke[store.BlobStore](i)
		if storeErr != nil {
			checks = append(checks, health.Check{
				Name:    "store:" + opts.Store,
				Checker: health.CheckerFunc(func(context.Context) error { return storeErr }),
			})
		} else {
			checks = append(checks, health.Check{Name: "store:" + opts.Store, Checker: blobs})
		}

		return health.NewHandler(logger, checks...), nil
	})
}

// Register provides options and every package on injector.
func Register(injector *do.Injector, options *Options) {
	options.BaseURL = strings.TrimRight(options.BaseURL, "/")

	do.ProvideValue(injector, options)
	LoggerPackage(injector)
	RedisPackage(injector)
	StorePackage(injector)
	ClientPackage(injector)
	HistoryPackage(injector)
	MessagingPackage(injector)
	SessionPackage(injector)
	HealthPackage(injector)
}
