package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"wablast/internal/config"
	"wablast/internal/contact"
	"wablast/internal/dispatch"
	"wablast/internal/eventbus"
	"wablast/internal/media"
	"wablast/internal/storage"
	"wablast/internal/transport"
	"wablast/internal/transport/telegram"
	"wablast/internal/transport/whatsapp"
	"wablast/pkg/logx"
)

func main() {
	var (
		cfgPath     string
		contactsCSV string
		message     string
		messageFile string
		imagePath   string
		imageURL    string
		at          string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.StringVar(&contactsCSV, "contacts", "", "path to contacts csv (header row; phone_number column required)")
	flag.StringVar(&message, "message", "", "message template, e.g. \"Hi {name}\"")
	flag.StringVar(&messageFile, "message-file", "", "read the message template from a file")
	flag.StringVar(&imagePath, "image", "", "local image to attach (telegram transport)")
	flag.StringVar(&imageURL, "image-url", "", "image URL to attach (whatsapp transport)")
	flag.StringVar(&at, "at", "", "defer the run to a cron activation, e.g. \"0 9 * * *\"")
	flag.Parse()

	// .env is optional; real env always wins.
	_ = godotenv.Load()

	if err := run(cfgPath, contactsCSV, message, messageFile, imagePath, imageURL, at); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath, contactsCSV, message, messageFile, imagePath, imageURL, at string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	tmpl, err := loadTemplate(message, messageFile)
	if err != nil {
		return err
	}
	if contactsCSV == "" {
		return fmt.Errorf("-contacts is required")
	}

	loaded, err := contact.LoadCSV(contactsCSV)
	if err != nil {
		return fmt.Errorf("loading contacts: %w", err)
	}
	for _, rej := range loaded.Rejects {
		log.Warn("contact rejected", logx.Int("line", rej.Line), logx.Err(rej.Err))
	}
	if len(loaded.Recipients) == 0 {
		return fmt.Errorf("no loadable contacts in %s", contactsCSV)
	}

	att, err := buildAttachment(cfg, imagePath, imageURL)
	if err != nil {
		return err
	}

	sender, err := buildSender(cfg, log)
	if err != nil {
		return err
	}

	var store storage.Store
	if cfg.Storage != nil {
		busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return fmt.Errorf("opening send log: %w", err)
		}
		if store != nil {
			defer store.Close()
		}
	}

	bus := eventbus.New()
	engine := dispatch.New(engineConfig(cfg), sender, log.With(logx.String("comp", "dispatch")), bus, store)

	// Two-stage shutdown: the first signal stops cooperatively (in-flight
	// sends finish, pending jobs stay pending), the second aborts.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		log.Info("stop requested; letting in-flight sends finish (interrupt again to abort)")
		engine.Stop()
		select {
		case <-sigCh:
			log.Warn("aborting run")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Hot reload: rate/retry/logging settings may be retuned mid-run.
	cfgCh := mgr.Subscribe(1)
	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn("config watch unavailable", logx.Err(err))
		}
	}()
	go func() {
		for next := range cfgCh {
			engine.Apply(engineConfig(next))
			logSvc.Apply(loggingConfig(next))
		}
	}()

	go printProgress(ctx, bus, log)

	if at != "" {
		if err := waitForActivation(ctx, at, log); err != nil {
			return err
		}
	}

	rep, err := engine.Run(ctx, &dispatch.Batch{
		Template:   tmpl,
		Recipients: loaded.Recipients,
		Attachment: att,
	})
	if err != nil {
		return err
	}

	printReport(rep, loaded.Rejects)
	return nil
}

func loadTemplate(message, messageFile string) (string, error) {
	switch {
	case message != "" && messageFile != "":
		return "", fmt.Errorf("-message and -message-file are mutually exclusive")
	case messageFile != "":
		b, err := os.ReadFile(messageFile)
		if err != nil {
			return "", fmt.Errorf("reading message file: %w", err)
		}
		return strings.TrimRight(string(b), "\n"), nil
	case message != "":
		return message, nil
	default:
		return "", fmt.Errorf("-message or -message-file is required")
	}
}

func buildAttachment(cfg *config.Config, imagePath, imageURL string) (*transport.Attachment, error) {
	if imagePath == "" && imageURL == "" {
		return nil, nil
	}
	if imagePath != "" && imageURL != "" {
		return nil, fmt.Errorf("-image and -image-url are mutually exclusive")
	}
	if imagePath != "" {
		pol := media.Policy{MaxBytes: cfg.Attachment.MaxBytes, AllowedExts: cfg.Attachment.AllowedTypes}
		if err := pol.ValidateFile(imagePath); err != nil {
			return nil, err
		}
		if strings.EqualFold(cfg.Transport.Driver, "whatsapp") {
			return nil, fmt.Errorf("whatsapp transport needs a hosted image; use -image-url")
		}
		return &transport.Attachment{Path: imagePath}, nil
	}
	return &transport.Attachment{URL: imageURL}, nil
}

func buildSender(cfg *config.Config, log logx.Logger) (transport.Sender, error) {
	switch strings.ToLower(cfg.Transport.Driver) {
	case "whatsapp":
		wa := cfg.Transport.WhatsApp
		if wa == nil {
			return nil, fmt.Errorf("config: transport.whatsapp section is required (or set WABLAST_WA_TOKEN)")
		}
		timeout, err := config.ParseDurationField("transport.whatsapp.timeout", wa.Timeout)
		if err != nil {
			return nil, err
		}
		return whatsapp.New(whatsapp.Config{
			BaseURL:       wa.BaseURL,
			Token:         wa.Token,
			PhoneNumberID: wa.PhoneNumberID,
			Timeout:       timeout,
		}, log.With(logx.String("comp", "whatsapp")))
	case "telegram":
		tg := cfg.Transport.Telegram
		if tg == nil {
			return nil, fmt.Errorf("config: transport.telegram section is required (or set WABLAST_TG_TOKEN)")
		}
		poll, err := config.ParseDurationField("transport.telegram.poll_timeout", tg.PollTimeout)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:       tg.Token,
			PollTimeout: poll,
		}, log.With(logx.String("comp", "telegram")))
	default:
		return nil, fmt.Errorf("config: unknown transport driver %q", cfg.Transport.Driver)
	}
}

func engineConfig(cfg *config.Config) dispatch.Config {
	base, _ := config.ParseDurationField("retry.base_delay", cfg.Retry.BaseDelay)
	maxD, _ := config.ParseDurationField("retry.max_delay", cfg.Retry.MaxDelay)
	sendTO, _ := config.ParseDurationField("send_timeout", cfg.SendTimeout)
	return dispatch.Config{
		Workers:        cfg.Workers,
		RateCap:        cfg.Rate.Cap,
		RateWindow:     cfg.RateWindow(),
		MaxAttempts:    cfg.Retry.MaxAttempts,
		RetryBase:      base,
		RetryMaxDelay:  maxD,
		SendTimeout:    sendTO,
		ProgressPerSec: cfg.Progress.EventsPerSec,
		FailureLogSize: cfg.Progress.FailureLogSize,
	}
}

func loggingConfig(cfg *config.Config) logx.Config {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// waitForActivation sleeps until the cron expression's next activation.
func waitForActivation(ctx context.Context, spec string, log logx.Logger) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid -at expression %q: %w", spec, err)
	}
	next := sched.Next(time.Now())
	log.Info("run deferred", logx.Time("until", next))
	t := time.NewTimer(time.Until(next))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printProgress(ctx context.Context, bus eventbus.Bus, log logx.Logger) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case dispatch.EventProgress:
				if s, ok := ev.Data.(dispatch.Snapshot); ok {
					log.Info("progress",
						logx.Int("succeeded", s.Succeeded),
						logx.Int("exhausted", s.Exhausted),
						logx.Int("retrying", s.Retrying),
						logx.Int("pending", s.Pending),
						logx.Int("total", s.Total))
				}
			case dispatch.EventExhausted:
				if j, ok := ev.Data.(dispatch.JobEvent); ok {
					log.Warn("recipient failed", logx.String("phone", j.Phone), logx.Int("attempts", j.Attempts), logx.String("err", j.Error))
				}
			}
		}
	}
}

func printReport(rep *dispatch.Report, rejects []contact.Reject) {
	fmt.Printf("\nbatch %s finished in %s\n", rep.BatchID, rep.Elapsed.Round(time.Millisecond))
	fmt.Printf("  total:     %d\n", rep.Total)
	fmt.Printf("  succeeded: %d\n", rep.Succeeded)
	fmt.Printf("  exhausted: %d\n", rep.Exhausted)
	if rep.Remaining > 0 {
		fmt.Printf("  remaining: %d (stopped before completion)\n", rep.Remaining)
	}
	if len(rejects) > 0 {
		fmt.Printf("  rejected rows: %d (see log)\n", len(rejects))
	}
	for _, r := range rep.Results {
		if r.Status != dispatch.StatusExhausted {
			continue
		}
		fmt.Printf("  FAILED %s after %d attempt(s): %s\n", r.Phone, r.Attempts, r.Error)
	}
}
