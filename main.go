package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/lcalzado/vpn-monitor/internal/audit"
	"github.com/lcalzado/vpn-monitor/internal/config"
	"github.com/lcalzado/vpn-monitor/internal/database"
	"github.com/lcalzado/vpn-monitor/internal/handlers"
	"github.com/lcalzado/vpn-monitor/internal/logging"
	"github.com/lcalzado/vpn-monitor/internal/sshchannel"
	"github.com/lcalzado/vpn-monitor/internal/vpnstatus"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	logging.Init(cfg.LogPath)
	defer logging.Close()

	h := &handlers.Handler{
		Guard:       handlers.NewFailureGuard(cfg.FailureThreshold),
		LogPath:     cfg.LogPath,
		PollTimeout: cfg.PollTimeout,
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Printf("WARNING: audit database unavailable: %v", err)
	} else {
		defer database.Close(db)
		h.DB = db
		h.Auditor = audit.NewAuditor(db, cfg.AuditRetentionDays)
	}

	device := cfg.DeviceConfig()
	mon, err := vpnstatus.NewMonitor(device, sshchannel.NewDialer())
	if err != nil {
		log.Printf("WARNING: %v; vpn status requests will be refused until the device is configured", err)
	} else {
		if h.Auditor != nil {
			mon.OnStateChange(h.Auditor.StateListener(mon.Config().Address(), device.Username))
		}
		h.Monitor = mon
		log.Printf("Monitoring %s (%s, context %s)", mon.Config().Address(), device.TransportKind, mon.Config().Context)
	}

	scheduler, err := startPurgeSchedule(cfg, h.Auditor)
	if err != nil {
		log.Printf("WARNING: audit purge not scheduled: %v", err)
	}

	r := newRouter(h)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
	log.Println("Server stopped")
}

func newRouter(h *handlers.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/vpn-status", h.GetVPNStatus)
		r.Get("/audit", h.GetAuditLogs)
		r.Get("/server-logs", h.GetServerLogs)
	})
	return r
}

// startPurgeSchedule runs the audit retention purge on cfg.AuditPurgeSchedule.
// It returns nil when there is no auditor.
func startPurgeSchedule(cfg *config.Settings, auditor *audit.Auditor) (*cron.Cron, error) {
	if auditor == nil {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(cfg.AuditPurgeSchedule, func() {
		if _, err := auditor.PurgeOlderThan(0); err != nil {
			log.Printf("[audit] scheduled purge: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	log.Printf("Audit purge scheduled %q (retention %d days)", cfg.AuditPurgeSchedule, auditor.RetentionDays())
	return c, nil
}
