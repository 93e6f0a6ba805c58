package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/bgbye/bgbye/internal/backend"
	"github.com/bgbye/bgbye/internal/config"
	"github.com/bgbye/bgbye/internal/domain/events"
	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/processor"
	"github.com/bgbye/bgbye/internal/service"
	"github.com/bgbye/bgbye/internal/storage"
	"github.com/bgbye/bgbye/internal/storage/cache"
	"github.com/bgbye/bgbye/internal/storage/file"
	"github.com/bgbye/bgbye/internal/storage/memory"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/messaging"
	"github.com/bgbye/bgbye/pkg/messaging/kafka"
	rabbitmq "github.com/bgbye/bgbye/pkg/messaging/rabbitMQ"
	"github.com/bgbye/bgbye/pkg/metrics"
	"github.com/bgbye/bgbye/pkg/utils"
)

// Components holds all the application components
type Components struct {
	registry    *models.Registry
	memoryRepo  *memory.MemoryRepository
	redisRepo   *cache.RedisRepository
	prefs       storage.PreferenceStore
	broker      messaging.MessageBroker
	metrics     *metrics.PrometheusMetrics
	bus         *events.EventBusImpl
	coordinator *processor.Coordinator
	service     *service.DefaultSessionService
}

// componentOptions selects what a command needs beyond the core service.
type componentOptions struct {
	// inProcess forces memory session and payload stores
	inProcess bool

	// withMetrics enables the Prometheus recorder
	withMetrics bool

	// withBroker forwards events to the configured broker
	withBroker bool
}

// Close releases connections held by the components
func (c *Components) Close(ctx context.Context, log logger.Logger) {
	if c.service != nil {
		if err := c.service.Shutdown(ctx); err != nil {
			log.Warnf("Submissions still running at shutdown: %v", err)
		}
	}
	if c.broker != nil {
		if err := c.broker.Close(); err != nil {
			log.Errorf("Error closing broker: %v", err)
		}
	}
	if c.redisRepo != nil {
		if err := c.redisRepo.Close(); err != nil {
			log.Errorf("Error closing Redis: %v", err)
		}
	}
}

// Initialize all the components
func initializeComponents(cfg *config.Config, instanceID string, logInstance logger.Logger, opts componentOptions) (*Components, error) {
	components := &Components{}

	// Method registry
	catalogue := models.DefaultMethods()
	urls := cfg.BaseURLs(catalogue)
	components.registry = models.NewRegistry(catalogue, urls)
	logInstance.Infof("Method registry initialized: %d methods, %d with a back-end", len(catalogue), len(urls))

	// Create memory repository
	components.memoryRepo = memory.NewMemoryRepository()

	// Initialize Redis if configured
	needRedis := !opts.inProcess && cfg.Storage.SessionStore == "redis"
	if needRedis || cfg.Storage.PrefsStore == "redis" {
		redisOptions := cache.RedisOptions{
			Address:    cfg.Storage.Redis.Address,
			Password:   cfg.Storage.Redis.Password,
			DB:         cfg.Storage.Redis.DB,
			SessionTTL: cfg.Storage.SessionTTL,
			PayloadTTL: cfg.Storage.PayloadTTL,
		}

		var err error
		components.redisRepo, err = cache.NewRedisRepository(redisOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Storage.Redis.Address, err)
		}
		logInstance.Infof("Redis connected to %s", cfg.Storage.Redis.Address)
	}

	// Determine which repository holds sessions and payloads
	var (
		sessionRepo storage.SessionRepository = components.memoryRepo
		payloads    storage.PayloadStore      = components.memoryRepo
	)
	if needRedis {
		sessionRepo = components.redisRepo
		payloads = components.redisRepo
		logInstance.Infof("Using Redis for sessions and payloads")
	} else {
		logInstance.Infof("Using in-memory repository for sessions and payloads")
	}

	// Preferences
	switch cfg.Storage.PrefsStore {
	case "redis":
		components.prefs = components.redisRepo
	case "file":
		prefs, err := file.NewPreferenceStore(cfg.Storage.PrefsPath)
		if err != nil {
			return nil, err
		}
		components.prefs = prefs
		logInstance.Infof("Preferences stored in %s", prefs.Path())
	default:
		components.prefs = components.memoryRepo
	}

	// Event bus and optional forwarding
	components.bus = events.NewEventBus()
	if opts.withBroker {
		broker, err := connectBroker(cfg.Notifications, instanceID, logInstance)
		if err != nil {
			return nil, err
		}
		if broker != nil {
			components.broker = broker
			components.bus.Subscribe(events.AllEvents, events.Forward(broker, cfg.Notifications.Topic))
			logInstance.Infof("Forwarding events to %s topic %s", cfg.Notifications.Broker, cfg.Notifications.Topic)
		}
	}

	// Metrics
	var recorder processor.Metrics = processor.NopMetrics()
	var notifications service.NotificationRecorder
	if opts.withMetrics {
		components.metrics = metrics.NewPrometheusMetrics("bgbye")
		r := service.NewPrometheusRecorder(components.metrics)
		recorder = r
		notifications = r
	}

	// Back-end client, poller and coordinator
	client := backend.NewClient(backend.Options{
		Timeout: cfg.Backends.RequestTimeout,
		Logger:  logInstance,
	})
	poller := processor.NewPoller(client, processor.PollerOptions{
		Interval: cfg.Submission.PollInterval,
		Metrics:  recorder,
		Logger:   logInstance,
	})

	coordinatorOptions := processor.CoordinatorOptions{
		Concurrency: cfg.Submission.Concurrency,
		Metrics:     recorder,
		Logger:      logInstance,
	}
	if fg := cfg.Submission.FrameGuard; fg.Enabled {
		coordinatorOptions.Guard = &processor.FrameGuard{
			MaxFrames: fg.MaxFrames,
			FPS:       fg.AssumedFPS,
			Prober:    processor.FFProbe{Binary: fg.FFProbeBinary},
		}
		logInstance.Infof("Frame guard enabled: %d frames at %.0f fps", fg.MaxFrames, fg.AssumedFPS)
	}
	components.coordinator = processor.NewCoordinator(client, components.registry, poller, coordinatorOptions)

	// Create session service
	components.service = service.NewSessionService(
		sessionRepo,
		payloads,
		components.prefs,
		components.coordinator,
		components.registry,
		service.ServiceOptions{
			DismissAfter:   cfg.Notifications.DismissAfter,
			DefaultMethods: cfg.DefaultSelection(components.registry),
			Events:         components.bus,
			Notifications:  notifications,
			Logger:         logInstance,
		},
	)
	logInstance.Infof("Session service initialized")

	return components, nil
}

// connectBroker dials the configured broker, retrying while it starts up.
// It returns nil when forwarding is disabled.
func connectBroker(cfg config.NotificationsConfig, instanceID string, logInstance logger.Logger) (messaging.MessageBroker, error) {
	var broker messaging.MessageBroker
	dial := func() error {
		var err error
		switch cfg.Broker {
		case "kafka":
			broker, err = kafka.NewKafka(cfg.Brokers, instanceID)
		case "rabbitmq":
			broker, err = rabbitmq.NewRabbitMQ(cfg.URL)
		}
		if err != nil {
			logInstance.Warnf("Broker %s not reachable: %v", cfg.Broker, err)
		}
		return err
	}

	switch cfg.Broker {
	case "", "none":
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := utils.RetryWithBackoff(ctx, dial, 5, 500*time.Millisecond, 5*time.Second); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
	}
	return broker, nil
}
