// Command houndd runs a hound instance wired to the Counter fixture
// driver, useful for exercising the engine against a real
// process rather than in-process tests.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/behrlich/hound"
	"github.com/behrlich/hound/internal/logging"
	"github.com/behrlich/hound/internal/testdrivers"
)

func main() {
	period := flag.Duration("period", 100*time.Millisecond, "counter driver sample period")
	flag.Parse()

	logging.SetDefault(logging.NewLogger(&logging.Config{Level: logging.LevelInfo, Output: os.Stderr}))

	h := hound.New(nil)
	h.Run()
	defer h.Shutdown()

	drv := testdrivers.NewCounter(1)
	if err := h.RegisterDriver("counter", drv); err != nil {
		logging.Error("register driver failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	devID, err := h.InitDriver(ctx, "counter", "", "", "", nil)
	if err != nil {
		logging.Error("init driver failed", "err", err)
		os.Exit(1)
	}
	if err := h.StartDriver(ctx, devID); err != nil {
		logging.Error("start driver failed", "err", err)
		os.Exit(1)
	}

	logRecord := func(_ any, rec *hound.Record) {
		logging.Info("record", "seq", rec.SeqNo, "data_id", rec.DataID, "bytes", len(rec.Payload))
	}
	consumer, err := h.AllocCtx(devID, hound.RequestList{{DataID: 1, Period: hound.Period(*period)}}, 64, logRecord, nil)
	if err != nil {
		logging.Error("alloc context failed", "err", err)
		os.Exit(1)
	}
	if err := consumer.Start(); err != nil {
		logging.Error("start context failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		_ = consumer.Stop()
		_ = consumer.Free()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			if err := consumer.Read(ctx, 1); err != nil {
				return
			}
		}
	}()

	<-sig
	logging.Info("shutting down")
}
