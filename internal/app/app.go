// Package app wires configuration, logging, the transport session and the
// dispatch services into the two run modes (one-shot batch and serve).
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"blastbot/internal/config"
	"blastbot/internal/contacts"
	"blastbot/internal/dispatch"
	"blastbot/internal/gateway"
	"blastbot/internal/notify"
	"blastbot/internal/phone"
	"blastbot/internal/sched"
	"blastbot/internal/session"
	"blastbot/internal/transport"
	"blastbot/internal/transport/whatsapp"
	logx "blastbot/pkg/logx"
)

// DefaultDelay paces consecutive sends when the config does not say
// otherwise. An explicit "0s" in the config disables the pause.
const DefaultDelay = 5 * time.Second

type App struct {
	cfgPath string
	logSvc  *logx.Service
	log     logx.Logger

	norm     phone.Normalizer
	source   *contacts.Source
	engine   *dispatch.Engine
	registry *session.Registry
	notifier *notify.Notifier

	// dispatch defaults, swappable on config reload
	defMu       sync.Mutex
	defContacts string
	defMessage  string
	defDelay    time.Duration
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(loggingConfig(cfg))

	a := &App{cfgPath: cfgPath, logSvc: logSvc, log: log}

	a.norm = phone.New(cfg.Transport.CountryCode, cfg.Transport.TrunkPrefix, "")
	a.source = contacts.NewSource(a.norm, log)
	a.engine = dispatch.NewEngine(log)

	var notifierCfg notify.Config
	if cfg.Telegram != nil {
		notifierCfg = notify.Config{
			Enabled: cfg.Telegram.Enabled,
			Token:   cfg.Telegram.Token,
			ChatID:  cfg.Telegram.ChatID,
		}
	}
	a.notifier, err = notify.New(notifierCfg, log)
	if err != nil {
		return nil, err
	}

	dialer := whatsapp.NewDialer(
		whatsapp.Config{StorePath: cfg.Transport.StorePath},
		a.onTransportEvent,
		log,
	)
	readyTimeout, err := config.ParseDurationOrDefault(
		"transport.ready_timeout", cfg.Transport.ReadyTimeout, session.DefaultReadyTimeout)
	if err != nil {
		return nil, err
	}
	a.registry = session.NewRegistry(dialer.Dial, readyTimeout, log)

	if err := a.applyDispatchDefaults(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || !cfg.Logging.File.Enabled,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func (a *App) applyDispatchDefaults(cfg *config.Config) error {
	delay := DefaultDelay
	if strings.TrimSpace(cfg.Dispatch.Delay) != "" {
		d, err := config.ParseDurationField("dispatch.delay", cfg.Dispatch.Delay)
		if err != nil {
			return err
		}
		delay = d
	}
	a.defMu.Lock()
	a.defContacts = cfg.Dispatch.Contacts
	a.defMessage = cfg.Dispatch.Message
	a.defDelay = delay
	a.defMu.Unlock()
	return nil
}

func (a *App) dispatchDefaults() (string, time.Duration) {
	a.defMu.Lock()
	defer a.defMu.Unlock()
	return a.defMessage, a.defDelay
}

func (a *App) onTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventQR:
		a.log.Info("pairing challenge issued")
		a.notifier.Event("Transport needs pairing: scan the QR code on the host terminal.")
	case transport.EventAuthenticated:
		a.log.Info("transport authenticated")
	case transport.EventReady:
		a.log.Info("transport ready")
	case transport.EventAuthFailure:
		a.log.Error("transport authentication failed", logx.Err(ev.Err))
		a.notifier.Event("Transport authentication failed; re-pairing required.")
	case transport.EventDisconnected:
		a.log.Warn("transport disconnected")
		a.notifier.Event("Transport disconnected.")
	}
}

// RunBatch is the one-shot mode: load the contact file, dial the shared
// session, blast sequentially, report, and shut the session down.
func (a *App) RunBatch(ctx context.Context, contactsPath string) (dispatch.Summary, error) {
	if strings.TrimSpace(contactsPath) == "" {
		a.defMu.Lock()
		contactsPath = a.defContacts
		a.defMu.Unlock()
	}
	if strings.TrimSpace(contactsPath) == "" {
		return dispatch.Summary{}, errors.New("no contact file configured (dispatch.contacts or --contacts)")
	}

	list, err := a.source.Load(contactsPath)
	if err != nil {
		return dispatch.Summary{}, err
	}
	if len(list) == 0 {
		a.log.Warn("contact file has no sendable rows", logx.String("path", contactsPath))
		return dispatch.Summary{}, nil
	}

	sess, err := a.registry.Get(ctx)
	if err != nil {
		return dispatch.Summary{}, err
	}

	defMessage, defDelay := a.dispatchDefaults()
	sum := a.engine.RunBatch(ctx, sess, list, defMessage, defDelay)
	a.notifier.Summary(contactsPath, sum)

	// One-shot mode owns the session lifecycle end to end; close even when
	// the run was interrupted.
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.registry.Close(closeCtx); err != nil {
		a.log.Warn("session close failed", logx.Err(err))
	}
	return sum, nil
}

// Serve is the persistent mode: HTTP gateway, cron schedules and config
// watching, until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}

	var gw *gateway.Server
	if cfg.Gateway.Enabled {
		gwCfg, err := gatewayConfig(cfg.Gateway)
		if err != nil {
			return err
		}
		gw = gateway.New(gwCfg, a.registry, a.engine, a.norm, a.log)
		if err := gw.Start(ctx); err != nil {
			return err
		}
	}

	scheduler := sched.New(a.log)
	for _, sc := range cfg.Schedules {
		if err := scheduler.Add(a.scheduleJob(sc)); err != nil {
			return err
		}
	}
	if len(cfg.Schedules) > 0 {
		scheduler.Start(ctx)
	}

	watcher := config.NewWatcher(a.cfgPath, a.log, a.applyReload)
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify: ready")
	}

	a.log.Info("serving", logx.Bool("gateway", gw != nil), logx.Int("schedules", len(cfg.Schedules)))
	<-ctx.Done()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop(stopCtx)
	if gw != nil {
		if err := gw.Stop(stopCtx); err != nil {
			a.log.Warn("gateway stop failed", logx.Err(err))
		}
	}
	if err := a.registry.Close(stopCtx); err != nil {
		a.log.Warn("session close failed", logx.Err(err))
	}
	return nil
}

func (a *App) scheduleJob(sc config.ScheduleConfig) sched.Job {
	return sched.Job{
		Name: sc.Name,
		Spec: sc.Cron,
		Run: func(ctx context.Context) {
			defMessage, defDelay := a.dispatchDefaults()
			message := sc.Message
			if message == "" {
				message = defMessage
			}
			delay := defDelay
			if strings.TrimSpace(sc.Delay) != "" {
				if d, err := config.ParseDurationField("schedule.delay", sc.Delay); err == nil {
					delay = d
				}
			}

			list, err := a.source.Load(sc.Contacts)
			if err != nil {
				a.log.Error("scheduled blast aborted", logx.String("schedule", sc.Name), logx.Err(err))
				return
			}
			sess, err := a.registry.Get(ctx)
			if err != nil {
				a.log.Error("scheduled blast aborted: session", logx.String("schedule", sc.Name), logx.Err(err))
				return
			}
			sum := a.engine.RunBatch(ctx, sess, list, message, delay)
			a.notifier.Summary(sc.Name, sum)
		},
	}
}

// applyReload re-applies the hot-reloadable parts of a changed config:
// logging and dispatch defaults. Transport, gateway binding and schedule
// changes require a restart and are called out in the log.
func (a *App) applyReload(cfg *config.Config) {
	a.logSvc.Apply(loggingConfig(cfg))
	if err := a.applyDispatchDefaults(cfg); err != nil {
		a.log.Warn("reload: dispatch defaults rejected", logx.Err(err))
		return
	}
	a.log.Info("applied logging and dispatch defaults; transport/gateway/schedule changes need a restart")
}

// Close releases resources owned by the app (not the session; the run modes
// own that).
func (a *App) Close() {
	a.notifier.Close()
	_ = a.logSvc.Close()
}

func gatewayConfig(gc config.GatewayConfig) (gateway.Config, error) {
	out := gateway.Config{
		Addr:       gc.Addr,
		Token:      gc.Token,
		RatePerSec: gc.RatePerSec,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("gateway.read_timeout", gc.ReadTimeout, 10*time.Second); err != nil {
		return out, err
	}
	// WriteTimeout defaults to 0 (disabled): a cold-start /send waits for
	// transport pairing, which can take minutes.
	if out.WriteTimeout, err = config.ParseDurationField("gateway.write_timeout", gc.WriteTimeout); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("gateway.idle_timeout", gc.IdleTimeout, time.Minute); err != nil {
		return out, err
	}
	return out, nil
}
