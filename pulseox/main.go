// Command pulseox reads a MAX30100 (or a simulated sensor) and reports heart
// rate and SpO2. Readings can be stored in BadgerDB, published on NATS,
// served over HTTP and shown in the terminal.
//
// Environment:
//
//	PULSEOX_BUS        I²C bus name, first available if empty
//	PULSEOX_ADDR       I²C address (0x57)
//	PULSEOX_NATS_URL   NATS server, publishing is off if empty
//	PULSEOX_DB_PATH    BadgerDB directory, storage is off if empty
//	PULSEOX_HTTP_ADDR  monitor address (:8090), off if empty
//	PULSEOX_BATCH      readings per store flush and samples per wave message (25)
//	PULSEOX_TRACE      export OpenTelemetry traces over OTLP/HTTP
//	PULSEOX_DEBUG      log every beat and LED adjustment
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cgxeiji/pulseox"
	"github.com/cgxeiji/pulseox/display"
	"github.com/cgxeiji/pulseox/max30100"
	"github.com/cgxeiji/pulseox/monitor"
	"github.com/cgxeiji/pulseox/obvy"
	"github.com/cgxeiji/pulseox/publish"
	"github.com/cgxeiji/pulseox/sim"
	"github.com/cgxeiji/pulseox/store"
	"github.com/sethvargo/go-envconfig"
)

type config struct {
	Bus      string `env:"PULSEOX_BUS"`
	Addr     uint16 `env:"PULSEOX_ADDR,default=0x57"`
	NATSURL  string `env:"PULSEOX_NATS_URL"`
	DBPath   string `env:"PULSEOX_DB_PATH"`
	HTTPAddr string `env:"PULSEOX_HTTP_ADDR,default=:8090"`
	Batch    int    `env:"PULSEOX_BATCH,default=25"`
	Trace    bool   `env:"PULSEOX_TRACE"`
	Debug    bool   `env:"PULSEOX_DEBUG"`
}

func main() {
	var (
		useSim = flag.Bool("sim", false, "use a simulated sensor")
		simBPM = flag.Float64("bpm", sim.DefaultHeartRate, "simulated heart rate")
		simR   = flag.Float64("ratio", sim.DefaultRatio, "simulated red/IR ratio")
		tui    = flag.Bool("tui", false, "show the terminal view")
		hrOnly = flag.Bool("hr", false, "heart rate only mode")
		regs   = flag.Bool("regs", false, "print the sensor registers and exit")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatal(err)
	}

	var sensor pulseox.Sensor
	if *useSim {
		sensor = sim.New(sim.HeartRate(*simBPM), sim.Ratio(*simR), sim.Realtime(true, time.Now))
	} else {
		dev, err := max30100.New(cfg.Bus, cfg.Addr)
		if err != nil {
			log.Fatal(err)
		}
		defer dev.Close()
		rev, err := dev.RevID()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("MAX30100 rev.%d detected\n", rev)
		sensor = dev
	}

	if err := run(ctx, cfg, sensor, *tui, *hrOnly, *regs); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config, sensor pulseox.Sensor, tui, hrOnly, regs bool) error {
	var view *display.View
	if tui {
		screen, err := display.NewScreen()
		if err != nil {
			return err
		}
		defer screen.Fini()
		view = display.NewView(screen)
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	options := []pulseox.Option{pulseox.Debug(cfg.Debug)}
	if hrOnly {
		options = append(options, pulseox.Mode(max30100.ModeHR))
	}
	d, err := pulseox.New(sensor, options...)
	if err != nil {
		return err
	}
	if regs {
		return d.PrintRegisters(os.Stdout)
	}

	if cfg.Trace {
		tp, err := obvy.InitTracing(ctx)
		if err != nil {
			return err
		}
		defer tp.Shutdown(context.Background())
	}

	var db *store.Store
	if cfg.DBPath != "" {
		if db, err = store.Open(cfg.DBPath, cfg.Batch); err != nil {
			return err
		}
		defer db.Close()
	}

	var pub *publish.Publisher
	if cfg.NATSURL != "" {
		nc, err := publish.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer nc.Drain()
		pub = publish.New(nc, cfg.Batch)
		defer pub.Flush(context.Background())
	}

	mon := monitor.New(obvy.NewStats())
	if db != nil {
		mon.History = db
	}
	if cfg.HTTPAddr != "" {
		server := &http.Server{Addr: cfg.HTTPAddr, Handler: mon.Router()}
		go func() {
			slog.Info("monitor running", slog.String("addr", cfg.HTTPAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("monitor stopped", slog.Any("error", err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(sctx)
		}()
	}

	var updates chan pulseox.Output
	if view != nil {
		updates = make(chan pulseox.Output, 256)
		vctx, stop := context.WithCancel(ctx)
		defer stop()
		done := make(chan error, 1)
		go func() { done <- view.Run(vctx, updates) }()
		go func() {
			// quitting the view ends the session
			<-done
			stop()
		}()
		ctx = vctx
	}

	session := pulseox.NewSession(time.Now(), d.Config().SampleRate)
	slog.Info("session started", slog.String("session", session.ID.String()))

	// poll twice per sample period so the FIFO never fills
	period := time.Duration(float64(time.Second) / d.Config().SampleRate.Hz() / 2)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for {
			out, ok, err := d.Update()
			if err != nil {
				return err
			}
			if !ok {
				break
			}

			mon.Publish(out)
			if updates != nil {
				select {
				case updates <- out:
				default:
				}
			}
			if pub != nil {
				if err := pub.Sample(ctx, out); err != nil {
					slog.Error("could not publish wave", slog.Any("error", err))
				}
			}

			if !out.PulseDetected || out.HeartBPM == 0 {
				continue
			}
			r := session.Reading(out)
			mon.PublishReading(r)
			if db != nil {
				if err := db.Write(ctx, r); err != nil {
					slog.Error("could not store reading", slog.Any("error", err))
				}
			}
			if pub != nil {
				if err := pub.Reading(ctx, r); err != nil {
					slog.Error("could not publish reading", slog.Any("error", err))
				}
			}
			if view == nil {
				fmt.Printf("\rbpm = %5.1f  spo2 = %5.1f%% ", r.BPM, r.SpO2)
			}
		}
	}
}
