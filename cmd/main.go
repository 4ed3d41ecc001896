package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	transfers "transfer_requests_back"
	"transfer_requests_back/pkg/cache"
	"transfer_requests_back/pkg/chainclient"
	"transfer_requests_back/pkg/config"
	"transfer_requests_back/pkg/handler"
	"transfer_requests_back/pkg/listener"
	"transfer_requests_back/pkg/middleware"
	"transfer_requests_back/pkg/repository"
	"transfer_requests_back/pkg/service"
	"transfer_requests_back/pkg/sweeper"
	"transfer_requests_back/pkg/utils"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))
	logrus.Infoln("starting transfer requests service")
	if err := godotenv.Load(); err != nil {
		logrus.Infof("no .env loaded: %s", err)
	}

	if err := InitConfig(); err != nil {
		logrus.Fatalf("read config .yaml: %s", err.Error())
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logrus.Fatalf("load config: %s", err.Error())
	}
	applySecrets(&cfg)
	if lvl, err := logrus.ParseLevel(viper.GetString("app.log_level")); err == nil {
		logrus.SetLevel(lvl)
	}
	logrus.WithField("env", cfg.App.Env).Infoln("config loaded")

	if err := run(cfg); err != nil {
		logrus.Fatalf("%s", err.Error())
	}
	logrus.Info("stopped")
}

// run owns every resource opened after configuration. It returns instead of
// exiting so deferred closers always run.
func run(cfg config.Config) error {
	db, err := repository.NewPostgresDB(repository.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		Username: cfg.DB.Username,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.DBName,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		return errors.Wrap(err, "connect database")
	}
	defer db.Close()
	logrus.Info("database connected")

	decimals := make(map[string]int32, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		decimals[ch.Name] = ch.TokenDecimals
	}

	repos := repository.NewRepository(db)
	services := service.NewService(repos, utils.NewMailer(cfg.Mail), service.Options{
		Env:           cfg.App.Env,
		TokenDecimals: decimals,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		wg      sync.WaitGroup
		closers []func()
	)
	// Listeners are waited for before the chain clients they share a
	// process with are closed.
	defer func() {
		stop()
		wg.Wait()
		for _, closeFn := range closers {
			closeFn()
		}
	}()

	receipts := cache.NewReceiptCache(10 * time.Minute)
	checkers := make(map[string]chainclient.ReceiptChecker, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		if ch.WSURL != "" && ch.ForwarderAddress != "" {
			l := listener.New(ch, services.Reconciliation, nil)
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.Run(ctx)
			}()
		}

		checker, closeFn, err := chainclient.NewForChain(ctx, ch, receipts)
		if err != nil {
			logrus.WithField("chain", ch.Name).WithError(err).Warn("receipt checks disabled")
			continue
		}
		closers = append(closers, closeFn)
		checkers[ch.Name] = checker
	}

	if len(checkers) > 0 {
		sw := sweeper.New(repos.Transfers, checkers, cfg.Sweeper.Chain, cfg.Sweeper.Batch)
		c, err := sw.Start(cfg.Sweeper.Schedule)
		if err != nil {
			return errors.Wrap(err, "schedule receipt sweeper")
		}
		defer func() { <-c.Stop().Done() }()
	}

	limits := handler.Limits{
		PerIP:   middleware.NewRateLimiter(float64(cfg.RateLimit.IPRequestsPerSecond), cfg.RateLimit.IPBurst),
		PerUser: middleware.NewRateLimiter(float64(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limits.PerIP.Cleanup(30 * time.Minute)
				limits.PerUser.Cleanup(30 * time.Minute)
			}
		}
	}()

	srv := transfers.NewServer(cfg.HTTP.Port, handler.NewHandler(services, cfg.HTTP, limits).InitRoute())
	go func() {
		select {
		case addr := <-srv.Ready():
			logrus.WithField("addr", addr.String()).Info("http server started")
		case <-ctx.Done():
		}
	}()
	err = srv.Run(ctx)
	logrus.Info("shutting down")
	return errors.Wrap(err, "http server")
}

func InitConfig() error {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	config.SetDefaults(viper.GetViper())
	return viper.ReadInConfig()
}

// applySecrets fills credentials that never live in config.yaml.
func applySecrets(cfg *config.Config) {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("MAILJET_API_KEY"); v != "" {
		cfg.Mail.MailjetKey = v
	}
	if v := os.Getenv("MAILJET_SECRET_KEY"); v != "" {
		cfg.Mail.MailjetSecret = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Mail.SMTPPassword = v
	}
	if v := os.Getenv("EXPLORER_API_KEY"); v != "" {
		for i := range cfg.Chains {
			if cfg.Chains[i].ExplorerAPIKey == "" {
				cfg.Chains[i].ExplorerAPIKey = v
			}
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Port = v
	}
}
