// Package catalog holds the process-lifetime registry of exchanges, symbols,
// and product types that the hot path addresses by stable integer id.
//
// Nothing in this package is mutated after startup registration is done
// (config.File.BuildCatalog): a
// symbol's price/qty exponents are frozen into its catalog entry at
// build time rather than discovered from the wire.
package catalog

import "github.com/yanun0323/errors"

// ExchangeID is the stable numeric identifier for a venue.
type ExchangeID uint16

// SymbolID is the stable numeric identifier for a symbol.
type SymbolID uint32

// ProductType is the instrument class of a subscription.
type ProductType uint8

const (
	_productBeg ProductType = iota
	ProductSpot
	ProductFuture
	ProductPerpetual
	ProductOption
	_productEnd
)

// IsAvailable reports whether p is a known, non-sentinel product type.
func (p ProductType) IsAvailable() bool {
	return p > _productBeg && p < _productEnd
}

func (p ProductType) String() string {
	switch p {
	case ProductSpot:
		return "spot"
	case ProductFuture:
		return "future"
	case ProductPerpetual:
		return "perpetual"
	case ProductOption:
		return "option"
	default:
		return "unknown"
	}
}

// Key identifies a single book: exchange, symbol, and product type.
type Key struct {
	Exchange ExchangeID
	Symbol   SymbolID
	Product  ProductType
}

// Exchange describes a registered venue.
type Exchange struct {
	ID   ExchangeID
	Name string
}

// Symbol describes a registered instrument within one exchange.
type Symbol struct {
	ID         SymbolID
	Exchange   ExchangeID
	Name       string
	PriceExp   int8
	QtyExp     int8
	Product    ProductType
}

var (
	errEmptyName        = errors.New("catalog: name is empty")
	errDuplicateName    = errors.New("catalog: name already registered")
	errUnknownExchange  = errors.New("catalog: unknown exchange id")
)

// Registry is the immutable-after-build lookup table consulted by the
// registrar and the pipeline units. It is safe for concurrent read-only use
// once startup registration is done; callers must not mutate it concurrently
// with reads.
type Registry struct {
	exchanges      []Exchange
	exchangeByName map[string]ExchangeID
	symbols        []Symbol
	symbolByKey    map[symbolNameKey]SymbolID
}

type symbolNameKey struct {
	exchange ExchangeID
	name     string
	product  ProductType
}

// NewRegistry creates an empty, mutable registry. Call AddExchange/AddSymbol
// during startup, then treat the result as read-only.
func NewRegistry() *Registry {
	return &Registry{
		exchangeByName: make(map[string]ExchangeID),
		symbolByKey:    make(map[symbolNameKey]SymbolID),
	}
}

// AddExchange registers a venue and returns its stable id.
func (r *Registry) AddExchange(name string) (ExchangeID, error) {
	if name == "" {
		return 0, errEmptyName
	}
	if id, ok := r.exchangeByName[name]; ok {
		return id, errors.Wrapf(errDuplicateName, "exchange: %s", name)
	}
	id := ExchangeID(len(r.exchanges) + 1)
	r.exchanges = append(r.exchanges, Exchange{ID: id, Name: name})
	r.exchangeByName[name] = id
	return id, nil
}

// AddSymbol registers a symbol under an exchange with a fixed scale and
// product type and returns its stable id.
func (r *Registry) AddSymbol(exchange ExchangeID, name string, priceExp, qtyExp int8, product ProductType) (SymbolID, error) {
	if name == "" {
		return 0, errEmptyName
	}
	if _, ok := r.Exchange(exchange); !ok {
		return 0, errors.Wrapf(errUnknownExchange, "id: %d", exchange)
	}
	if !product.IsAvailable() {
		product = ProductSpot
	}
	key := symbolNameKey{exchange: exchange, name: name, product: product}
	if id, ok := r.symbolByKey[key]; ok {
		return id, errors.Wrapf(errDuplicateName, "symbol: %s", name)
	}
	id := SymbolID(len(r.symbols) + 1)
	r.symbols = append(r.symbols, Symbol{
		ID:       id,
		Exchange: exchange,
		Name:     name,
		PriceExp: priceExp,
		QtyExp:   qtyExp,
		Product:  product,
	})
	r.symbolByKey[key] = id
	return id, nil
}

// Exchange returns the exchange registered under id.
func (r *Registry) Exchange(id ExchangeID) (Exchange, bool) {
	if id == 0 || int(id) > len(r.exchanges) {
		return Exchange{}, false
	}
	return r.exchanges[id-1], true
}

// ExchangeByName returns the exchange id registered under name.
func (r *Registry) ExchangeByName(name string) (ExchangeID, bool) {
	id, ok := r.exchangeByName[name]
	return id, ok
}

// Symbol returns the symbol registered under id.
func (r *Registry) Symbol(id SymbolID) (Symbol, bool) {
	if id == 0 || int(id) > len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[id-1], true
}

// SymbolByName resolves a symbol id for an exchange/name/product triple.
func (r *Registry) SymbolByName(exchange ExchangeID, name string, product ProductType) (SymbolID, bool) {
	if !product.IsAvailable() {
		product = ProductSpot
	}
	id, ok := r.symbolByKey[symbolNameKey{exchange: exchange, name: name, product: product}]
	return id, ok
}

// SymbolCount returns the number of registered symbols.
func (r *Registry) SymbolCount() int {
	return len(r.symbols)
}

// Exchanges returns every registered venue, in registration order.
func (r *Registry) Exchanges() []Exchange {
	return r.exchanges
}
