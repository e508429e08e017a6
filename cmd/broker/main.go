package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"l2broker/internal/audit"
	"l2broker/internal/broker"
	"l2broker/internal/catalog"
	"l2broker/internal/config"
	"l2broker/internal/driver"
	"l2broker/internal/driver/binance"
	"l2broker/internal/driver/btcc"
	"l2broker/internal/obs"
	"l2broker/internal/registrar"
	"l2broker/pkg/transport"

	"github.com/yanun0323/errors"
)

var errUnknownDriver = errors.New("broker: unconfigured driver name")

func main() {
	if err := run(); err != nil {
		logs.Errorf("broker: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "path to the broker's JSON config file")
	pyroscopeAddr := flag.String("pyroscope-addr", "", "Pyroscope server address for continuous profiling (disabled if empty)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "grace period for in-flight packets to drain on shutdown")
	flag.Parse()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "l2broker",
			ServerAddress:   *pyroscopeAddr,
			Logger:          pyroscopeLogAdapter{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	file, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	mask, err := file.Mask()
	if err != nil {
		return err
	}
	registry, err := file.BuildCatalog()
	if err != nil {
		return err
	}

	driverByExchange, err := resolveDrivers(registry, file.DriverNames())
	if err != nil {
		return err
	}

	var auditor registrar.Auditor
	if file.Audit != nil && file.Audit.DSN != "" {
		ledger, err := audit.Open(file.Audit.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = ledger.Close() }()
		auditor = ledger
	}

	metrics := obs.NewMetrics()

	b, err := broker.New(broker.Config{
		Mask:              mask,
		Registry:          registry,
		DriverByExchange:  driverByExchange,
		Dialer:            &transport.GorillaDialer{HandshakeTimeout: time.Duration(file.Transport.HandshakeTimeoutMS) * time.Millisecond},
		MaxStreamsPerConn: file.Transport.MaxStreamsPerConn,
		Backoff:           transport.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: 0.2},
		Audit:             auditor,
		Metrics:           metrics,
		Logger:            obs.DefaultLogger(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logs.Infof("broker: starting on cores %v with %d symbols", mask.Cores(), registry.SymbolCount())

	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	logs.Infof("broker: shutdown signal received, draining")
	b.Shutdown(*shutdownTimeout)
	<-done
	return nil
}

// resolveDrivers turns the config's per-exchange driver names into
// broker.DriverFactory closures keyed by the catalog's assigned
// ExchangeID. An exchange naming a driver this binary does not know about
// is a startup error rather than a silently-idle exchange.
func resolveDrivers(registry *catalog.Registry, names map[string]string) (map[catalog.ExchangeID]broker.DriverFactory, error) {
	out := make(map[catalog.ExchangeID]broker.DriverFactory, len(names))
	for name, driverName := range names {
		id, ok := registry.ExchangeByName(name)
		if !ok {
			continue
		}
		factory, err := driverFactoryFor(driverName)
		if err != nil {
			return nil, err
		}
		out[id] = factory
	}
	return out, nil
}

func driverFactoryFor(name string) (broker.DriverFactory, error) {
	switch name {
	case "binance":
		return func(exchange catalog.ExchangeID) (driver.Driver, driver.ExchangeCodec) {
			drv := binance.NewDriver(exchange)
			return drv, binance.NewCodec(drv)
		}, nil
	case "btcc":
		return func(exchange catalog.ExchangeID) (driver.Driver, driver.ExchangeCodec) {
			drv := btcc.NewDriver(exchange)
			return drv, btcc.NewCodec(drv)
		}, nil
	default:
		return nil, errors.Wrapf(errUnknownDriver, "%q", name)
	}
}

type pyroscopeLogAdapter struct{}

func (pyroscopeLogAdapter) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (pyroscopeLogAdapter) Debugf(format string, args ...interface{}) { logs.Debugf(format, args...) }
func (pyroscopeLogAdapter) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
