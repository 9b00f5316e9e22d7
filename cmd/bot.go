package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/api"
	"example.com/flightguild/bot/internal/api/handlers"
	"example.com/flightguild/bot/internal/audit"
	"example.com/flightguild/bot/internal/cache"
	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/database"
	"example.com/flightguild/bot/internal/interactions"
	"example.com/flightguild/bot/internal/messaging"
	"example.com/flightguild/bot/internal/metrics"
	"example.com/flightguild/bot/internal/netstatus"
	"example.com/flightguild/bot/internal/repositories"
	"example.com/flightguild/bot/internal/scheduler"
	"example.com/flightguild/bot/internal/search"
	"example.com/flightguild/bot/internal/services"
	"example.com/flightguild/bot/internal/tracing"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	auditSource       = "guildbot"
	heartbeatInterval = 15 * time.Minute
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the bot",
	Long:  `Connect to Discord, restore persisted bans and run the lifecycle schedulers and the keep-alive listener`,
	RunE:  runBot,
}

func init() {
	rootCmd.AddCommand(botCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	clock := clockwork.NewRealClock()
	metricsCollector := metrics.NewMetrics()

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}
	defer tracer.Close()

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = &cache.RedisCache{}
	}
	defer redisCache.Close()

	// Initialize the durable ban store
	store, closeStore, err := openBanStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize audit sinks
	sink, searcher, closeSinks := openAuditSinks(cfg)
	defer closeSinks()

	// Initialize the Discord session
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return errors.Wrap(err, "failed to create Discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages
	dispatcher := chat.NewDiscordDispatcher(session, cfg.Discord.GuildID, cfg.RateLimit)

	sched, err := scheduler.NewCronScheduler(ctx, clock)
	if err != nil {
		return err
	}

	// Initialize services
	bans := services.NewBanService(store, sched, dispatcher, clock, cfg.Roles, cfg.Channels, sink, metricsCollector)
	events := services.NewEventService(repositories.NewEventRegistry(), sched, dispatcher, clock, cfg.Channels, cfg.Events, sink, metricsCollector)
	requests := services.NewRoleRequestService(repositories.NewRequestRegistry(), store, dispatcher, clock, cfg.Discord, cfg.Roles, sink, metricsCollector)
	announcements := services.NewAnnouncementService(dispatcher)

	var registerOnce sync.Once
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info().Str("user", r.User.String()).Msg("Logged in to Discord")
		registerOnce.Do(func() {
			if err := interactions.RegisterCommands(s, r.User.ID, cfg.Discord.GuildID); err != nil {
				log.Error().Err(err).Msg("Failed to register slash commands")
			}
		})
	})

	if err := session.Open(); err != nil {
		return errors.Wrap(err, "failed to open Discord session")
	}
	metricsCollector.SetHealth("discord", true)

	// Restore persisted bans before taking any new work
	if err := bans.ReconcileOnStartup(ctx); err != nil {
		metricsCollector.SetHealth("ban_store", false)
		_ = session.Close()
		return errors.Wrap(err, "failed to reconcile bans")
	}
	metricsCollector.SetHealth("ban_store", true)

	// Interactions are only handled once persisted bans are known
	router := interactions.NewRouter(bans, events, requests, announcements, cfg.Roles)
	interactions.NewHandler(router, requests, tracer).Register(session)

	if err := sched.Every("heartbeat", heartbeatInterval, func(ctx context.Context) {
		metricsCollector.IncrementCounter(metrics.Heartbeats)
		log.Info().Int64("wakeups", metricsCollector.GetCounters()[metrics.Heartbeats]).Msg("Heartbeat")
	}); err != nil {
		return err
	}

	// The guild handler treats a nil status source as a disabled board
	var status handlers.StatusSource
	if cfg.NetStatus.Enabled {
		board, err := startNetStatus(ctx, g, cfg, sched, dispatcher, redisCache, clock, tracer, metricsCollector)
		if err != nil {
			return err
		}
		status = board
	}

	var auditSearcher handlers.AuditSearcher
	if searcher != nil {
		auditSearcher = searcher
	}

	sched.Start()

	// Initialize and start the server
	server := api.NewServer(cfg.Server, metricsCollector, handlers.NewGuildHandler(bans, status, auditSearcher, tracer), tracer)
	g.Go(server.Start)

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down bot")

		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		if err := sched.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Scheduler shutdown error")
		}
		if err := session.Close(); err != nil {
			log.Error().Err(err).Msg("Discord session close error")
		}
		return nil
	})

	log.Info().Str("guild_id", cfg.Discord.GuildID).Msg("Bot started")

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Bot error")
		return err
	}

	log.Info().Msg("Bot shut down gracefully")
	return nil
}

func openBanStore(cfg config.Config) (repositories.BanStore, func(), error) {
	if cfg.Bans.Backend != config.BanBackendPostgres {
		log.Info().Str("path", cfg.Bans.File).Msg("Using file ban store")
		return repositories.NewFileBanStore(cfg.Bans.File), func() {}, nil
	}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	gormDB, err := db.DB()
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	log.Info().Msg("Using postgres ban store")
	return repositories.NewGormBanStore(gormDB), func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}, nil
}

// openAuditSinks returns the configured audit sinks; the searcher is nil unless elastic is enabled
func openAuditSinks(cfg config.Config) (audit.Sink, *search.ElasticClient, func()) {
	var (
		sinks    audit.Multi
		searcher *search.ElasticClient
		closers  []func()
	)

	if cfg.Azure.QueueConnStr != "" {
		publisher, err := messaging.NewServiceBusPublisher(cfg.Azure, auditSource)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Service Bus publisher, continuing without the audit feed")
		} else {
			sinks = append(sinks, publisher)
			closers = append(closers, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := publisher.Close(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to close Service Bus publisher")
				}
			})
		}
	}

	if cfg.Elastic.Enabled {
		client, err := search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		} else {
			sinks = append(sinks, client)
			searcher = client
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		return audit.Nop{}, nil, closeAll
	}
	return sinks, searcher, closeAll
}

func startNetStatus(
	ctx context.Context,
	g *errgroup.Group,
	cfg config.Config,
	sched *scheduler.CronScheduler,
	dispatcher chat.Dispatcher,
	c cache.Cache,
	clock clockwork.Clock,
	tracer tracing.Tracer,
	m *metrics.Metrics,
) (*netstatus.Board, error) {
	fetcher := netstatus.NewHTTPFetcher(cfg.NetStatus.URL, cfg.NetStatus.Timeout)
	worker := netstatus.NewWorker(fetcher, cfg.NetStatus.Prefixes, clock, tracer, m)
	board := netstatus.NewBoard(
		dispatcher,
		repositories.NewFileMessageRefStore(cfg.NetStatus.MessageFile),
		c,
		clock,
		cfg.Channels.NetStatus,
		cfg.Discord.GuildID,
		cfg.NetStatus.MaxItems,
	)

	if err := board.EnsureMessage(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not prepare the status board, it will be posted on the first update")
	}

	g.Go(func() error {
		return board.Run(ctx, worker.Updates())
	})

	if err := sched.Every("netstatus", cfg.NetStatus.Interval, worker.Poll); err != nil {
		return nil, err
	}
	log.Info().Dur("interval", cfg.NetStatus.Interval).Strs("prefixes", cfg.NetStatus.Prefixes).Msg("Network status polling enabled")
	return board, nil
}
