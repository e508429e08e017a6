// Package config loads the broker's startup configuration: the core mask,
// the exchange/driver registry, and the catalog of (exchange, symbol,
// product) entries with their fixed price/qty exponents. Nothing in this
// package runs on the hot path; it is consulted once at process start and
// its output (a *catalog.Registry and an affinity.Mask) is then treated as
// immutable for the broker's lifetime.
package config

import (
	"encoding/json"
	"os"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"l2broker/internal/affinity"
	"l2broker/internal/catalog"
	"l2broker/internal/fixedpoint"
)

var (
	errNoCoreMask    = errors.New("config: core_mask must designate at least one core")
	errUnknownVenue  = errors.New("config: symbol references unregistered exchange")
	errBadTickSize   = errors.New("config: tick size must be a positive decimal")
)

// File mirrors the on-disk JSON layout.
type File struct {
	CoreMask  uint64         `json:"core_mask"`
	Exchanges []Exchange     `json:"exchanges"`
	Symbols   []Symbol       `json:"symbols"`
	Audit     *AuditConfig   `json:"audit,omitempty"`
	Transport TransportConfig `json:"transport"`
}

// Exchange names one venue and the driver that speaks its wire protocol.
type Exchange struct {
	Name   string `json:"name"`
	Driver string `json:"driver"` // "binance" | "btcc"
}

// Symbol registers one (exchange, symbol, product) catalog entry. PriceTick
// and QtyTick are human-entered decimals (e.g. "0.01") converted to the
// catalog's scaled-integer exponents at load time, never on the hot path.
type Symbol struct {
	Exchange  string          `json:"exchange"`
	Name      string          `json:"name"`
	Product   string          `json:"product,omitempty"`
	PriceTick decimal.Decimal `json:"price_tick"`
	QtyTick   decimal.Decimal `json:"qty_tick"`
}

// AuditConfig configures the optional Postgres-backed subscribe ledger.
type AuditConfig struct {
	DSN string `json:"dsn"`
}

// TransportConfig tunes the shared WebSocket transport.
type TransportConfig struct {
	MaxStreamsPerConn int `json:"max_streams_per_conn"`
	HandshakeTimeoutMS int `json:"handshake_timeout_ms"`
}

// Load reads and parses a JSON config file at path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}
	return &f, nil
}

// Mask returns the affinity mask designated by the config, validating that
// it selects at least one core.
func (f *File) Mask() (affinity.Mask, error) {
	if f.CoreMask == 0 {
		return 0, errNoCoreMask
	}
	return affinity.Mask(f.CoreMask), nil
}

// BuildCatalog resolves every configured exchange and symbol into a
// catalog.Registry, converting each tick-size decimal string into the
// (priceExp, qtyExp) pair the hot path consumes.
func (f *File) BuildCatalog() (*catalog.Registry, error) {
	reg := catalog.NewRegistry()
	exchangeIDs := make(map[string]catalog.ExchangeID, len(f.Exchanges))

	for _, e := range f.Exchanges {
		id, err := reg.AddExchange(e.Name)
		if err != nil {
			return nil, err
		}
		exchangeIDs[e.Name] = id
	}

	for _, s := range f.Symbols {
		exID, ok := exchangeIDs[s.Exchange]
		if !ok {
			return nil, errors.Wrapf(errUnknownVenue, "%s/%s", s.Exchange, s.Name)
		}
		priceExp, err := tickExponent(s.PriceTick)
		if err != nil {
			return nil, errors.Wrapf(err, "symbol %s/%s price_tick", s.Exchange, s.Name)
		}
		qtyExp, err := tickExponent(s.QtyTick)
		if err != nil {
			return nil, errors.Wrapf(err, "symbol %s/%s qty_tick", s.Exchange, s.Name)
		}
		product := parseProduct(s.Product)
		if _, err := reg.AddSymbol(exID, s.Name, priceExp, qtyExp, product); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// tickExponent validates a config-supplied decimal tick size and recovers
// the scale exponent the hot path's Tick/Qty representation needs, by
// running the decimal's canonical string form back through
// fixedpoint.ParseSignedScaled.
func tickExponent(d decimal.Decimal) (int8, error) {
	if d.Sign() <= 0 {
		return 0, errors.Wrapf(errBadTickSize, "%q", d.String())
	}
	_, exp, err := fixedpoint.ParseSignedScaled([]byte(d.String()))
	if err != nil {
		return 0, err
	}
	return exp, nil
}

// DriverNames returns each configured exchange's name mapped to its driver
// name ("binance", "btcc", ...), for resolving catalog.ExchangeID to a
// concrete driver factory once BuildCatalog has assigned ids.
func (f *File) DriverNames() map[string]string {
	out := make(map[string]string, len(f.Exchanges))
	for _, e := range f.Exchanges {
		out[e.Name] = e.Driver
	}
	return out
}

func parseProduct(s string) catalog.ProductType {
	switch s {
	case "future":
		return catalog.ProductFuture
	case "perpetual":
		return catalog.ProductPerpetual
	case "option":
		return catalog.ProductOption
	default:
		return catalog.ProductSpot
	}
}
