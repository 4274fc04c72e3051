// Package app wires the order API together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/colormuse/print-api/internal/archive"
	"github.com/colormuse/print-api/internal/document"
	"github.com/colormuse/print-api/internal/domain/order"
	"github.com/colormuse/print-api/internal/handler"
	"github.com/colormuse/print-api/internal/lulu"
	"github.com/colormuse/print-api/internal/notify"
	"github.com/colormuse/print-api/internal/paypal"
	"github.com/colormuse/print-api/pkg/health"
	"github.com/colormuse/print-api/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	archiveCfg := cfg.Archive.Store()
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.Bool("archive", archiveCfg.Enabled()),
	)

	// Every provider call goes through one instrumented client.
	outbound := &http.Client{
		Timeout: cfg.Outbound.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	ledger, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return errors.Wrap(err, "open ledger")
	}
	defer ledger.close()
	if ledger.pinger != nil {
		healthSvc.AddReadinessCheck(cfg.Ledger.Backend, 5*time.Second, health.PingCheck(ledger.pinger))
	}

	opts := []order.Option{order.WithMeterProvider(m.MeterProvider())}
	if amount, ok := cfg.Order.Amount(); ok {
		opts = append(opts, order.WithExpectedAmount(amount, cfg.Order.Currency))
	}
	if archiveCfg.Enabled() {
		store, err := archive.New(ctx, outbound, archiveCfg)
		if err != nil {
			return errors.Wrap(err, "create archive")
		}
		opts = append(opts, order.WithArchiver(store))
	}

	mailer := notify.NewMailer(notify.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	})
	if !mailer.Configured() {
		lg.Warn("Mail relay is not configured, confirmations will not be delivered")
	}
	if cfg.PayPal.ClientID == "" || cfg.Lulu.ClientKey == "" {
		lg.Warn("Provider credentials are missing, orders will fail until configured",
			zap.Bool("paypal", cfg.PayPal.ClientID != ""),
			zap.Bool("lulu", cfg.Lulu.ClientKey != ""),
		)
	}

	orderService, err := order.NewService(
		paypal.NewClient(outbound, paypal.Config{
			BaseURL:      cfg.PayPal.BaseURL,
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
		}),
		document.NewAssembler(outbound, document.Config{
			MaxImageBytes:    cfg.Document.MaxImageBytes,
			FetchConcurrency: cfg.Document.FetchConcurrency,
			MaxImagePixels:   cfg.Document.MaxImagePixels,
		}),
		lulu.NewClient(outbound, lulu.Config{
			AuthURL:       cfg.Lulu.AuthURL,
			APIURL:        cfg.Lulu.APIURL,
			ClientKey:     cfg.Lulu.ClientKey,
			ClientSecret:  cfg.Lulu.ClientSecret,
			Title:         cfg.Lulu.Title,
			Format:        cfg.Lulu.Format,
			CoverType:     cfg.Lulu.CoverType,
			ShippingLevel: cfg.Lulu.ShippingLevel,
		}),
		mailer,
		ledger,
		opts...,
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.New(handler.Config{MaxBodyBytes: cfg.Order.MaxBodyBytes}, orderService).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Methods:     []string{http.MethodPost, http.MethodOptions},
				Headers:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument("colormuse-api", m.MeterProvider(), m.TracerProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
