// Package broker is the composition root: it turns an affinity mask, a
// catalog, and a set of exchange driver factories into a running set of
// pinned pipeline units fronted by one registrar. Nothing downstream of
// this package depends on a concrete transport, config format, or
// driver — those are assembled here, once, at startup.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"l2broker/internal/affinity"
	"l2broker/internal/catalog"
	"l2broker/internal/driver"
	"l2broker/internal/obs"
	"l2broker/internal/pipeline"
	"l2broker/internal/registrar"
	"l2broker/pkg/transport"
)

var errEmptyMask = errors.New("broker: core mask designates no cores")

// DriverFactory builds a fresh driver.Driver/driver.ExchangeCodec pair for
// exchange. Called once per pipeline unit per exchange present in the
// catalog, so drivers never share mutable state across units — each unit
// gets its own driver instance, its own codec, and its own
// transport.Manager (and therefore its own physical connections) for that
// exchange.
type DriverFactory func(exchange catalog.ExchangeID) (driver.Driver, driver.ExchangeCodec)

// Config assembles a Broker.
type Config struct {
	Mask     affinity.Mask
	Registry *catalog.Registry

	// DriverByExchange maps every exchange the catalog knows about to the
	// factory that speaks its wire protocol. An exchange with no entry is
	// silently skipped when building each unit's driver set — it exists
	// in the catalog but a Subscribe against it is logged by the unit as
	// unresolvable and its attachment stays Idle.
	DriverByExchange map[catalog.ExchangeID]DriverFactory

	Dialer            transport.Dialer
	MaxStreamsPerConn int
	Backoff           transport.Backoff

	Pipeline pipeline.Config
	Audit    registrar.Auditor
	Metrics  *obs.Metrics
	Logger   obs.Logger
}

// Broker owns the registrar, the pinned pipeline units, and every
// transport.Manager they opened. Its lifetime dominates all of them.
type Broker struct {
	reg      *registrar.Registrar
	registry *catalog.Registry
	units    []*pipeline.Unit
	cores    []int
	managers []*transport.Manager

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds one pipeline unit per set bit of cfg.Mask, each with its own
// driver/manager/codec instances for every catalog exchange cfg resolves a
// factory for, and a registrar fronting all of them.
func New(cfg Config) (*Broker, error) {
	cores := cfg.Mask.Cores()
	if len(cores) == 0 {
		return nil, errEmptyMask
	}
	if cfg.Pipeline == (pipeline.Config{}) {
		cfg.Pipeline = pipeline.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = obs.DefaultLogger()
	}
	if cfg.Pipeline.Logger == nil {
		cfg.Pipeline.Logger = cfg.Logger
	}

	b := &Broker{registry: cfg.Registry, cores: cores, units: make([]*pipeline.Unit, len(cores))}
	sinks := make([]registrar.UnitSink, len(cores))

	for i, core := range cores {
		drivers := make(map[catalog.ExchangeID]driver.Driver)
		managers := make(map[catalog.ExchangeID]*transport.Manager)
		codecs := make(map[catalog.ExchangeID]driver.ExchangeCodec)

		for _, ex := range cfg.Registry.Exchanges() {
			factory, ok := cfg.DriverByExchange[ex.ID]
			if !ok {
				continue
			}
			drv, codec := factory(ex.ID)
			mgr := transport.NewManager(context.Background(), transport.ManagerConfig{
				URL:               drv.Endpoint(catalog.Symbol{}),
				Dialer:            cfg.Dialer,
				Decoder:           codec,
				Encoder:           codec,
				Backoff:           cfg.Backoff,
				MaxStreamsPerConn: cfg.MaxStreamsPerConn,
			})
			drivers[ex.ID] = drv
			managers[ex.ID] = mgr
			codecs[ex.ID] = codec
			b.managers = append(b.managers, mgr)
		}

		unit := pipeline.New(core, cfg.Pipeline, cfg.Registry, drivers, managers, codecs)
		b.units[i] = unit
		sinks[i] = unit
	}

	b.reg = registrar.New(sinks, cfg.Registry, cfg.Audit, cfg.Metrics)
	return b, nil
}

// Run pins and starts every pipeline unit, one goroutine per core via
// affinity.Spawn, and blocks until ctx is cancelled. Each unit's Run error
// is discarded without being logged; a unit whose loop returns simply
// stops, and siblings keep serving their own subscriptions.
func (b *Broker) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	for i, u := range b.units {
		b.wg.Add(1)
		core := b.cores[i]
		unit := u
		affinity.Spawn(core, func() {
			defer b.wg.Done()
			_ = unit.Run(runCtx)
		})
	}
	<-runCtx.Done()
}

// Subscribe increments key's refcount, allocating and attaching a fresh
// book on 0→1. Returns exception.ErrNoSuchExchange if key names a symbol
// the catalog does not know.
func (b *Broker) Subscribe(key catalog.Key) (*registrar.Handle, error) {
	return b.reg.Subscribe(key)
}

// Shutdown posts Shutdown to every unit and waits (up to timeout) for
// their Run loops to exit after the in-flight packet on each finishes.
func (b *Broker) Shutdown(timeout time.Duration) {
	b.reg.Shutdown()
	if b.cancel != nil {
		defer b.cancel()
	}
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
	for _, m := range b.managers {
		_ = m.Close()
	}
}
