package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"l2broker/internal/catalog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sampleConfig = `{
	"core_mask": 6,
	"exchanges": [
		{"name": "binance", "driver": "binance"},
		{"name": "btcc", "driver": "btcc"}
	],
	"symbols": [
		{"exchange": "binance", "name": "BTCUSDT", "price_tick": "0.01", "qty_tick": "0.00001"},
		{"exchange": "binance", "name": "BTCUSDT", "product": "perpetual", "price_tick": "0.1", "qty_tick": "0.001"},
		{"exchange": "btcc", "name": "BTCUSDT", "price_tick": "0.0001", "qty_tick": "0.0001"}
	],
	"transport": {"max_streams_per_conn": 20, "handshake_timeout_ms": 5000}
}`

func TestLoadParsesConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	file, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(6), file.CoreMask)
	require.Len(t, file.Exchanges, 2)
	require.Len(t, file.Symbols, 3)
	require.Equal(t, 20, file.Transport.MaxStreamsPerConn)
}

func TestMaskRejectsEmptyCoreMask(t *testing.T) {
	file := &File{CoreMask: 0}
	_, err := file.Mask()
	require.ErrorIs(t, err, errNoCoreMask)
}

func TestMaskReturnsConfiguredCores(t *testing.T) {
	file := &File{CoreMask: 6}
	mask, err := file.Mask()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, mask.Cores())
}

func TestBuildCatalogResolvesExchangesAndSymbols(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	file, err := Load(path)
	require.NoError(t, err)

	reg, err := file.BuildCatalog()
	require.NoError(t, err)
	require.Equal(t, 3, reg.SymbolCount())

	binanceID, ok := reg.ExchangeByName("binance")
	require.True(t, ok)

	spotID, ok := reg.SymbolByName(binanceID, "BTCUSDT", catalog.ProductSpot)
	require.True(t, ok)
	spot, ok := reg.Symbol(spotID)
	require.True(t, ok)
	require.Equal(t, int8(-2), spot.PriceExp)
	require.Equal(t, int8(-5), spot.QtyExp)

	perpID, ok := reg.SymbolByName(binanceID, "BTCUSDT", catalog.ProductPerpetual)
	require.True(t, ok)
	require.NotEqual(t, spotID, perpID)
}

func TestBuildCatalogRejectsUnknownExchange(t *testing.T) {
	path := writeConfig(t, `{
		"exchanges": [{"name": "binance", "driver": "binance"}],
		"symbols": [{"exchange": "ftx", "name": "BTCUSDT", "price_tick": "0.01", "qty_tick": "0.001"}]
	}`)
	file, err := Load(path)
	require.NoError(t, err)

	_, err = file.BuildCatalog()
	require.ErrorIs(t, err, errUnknownVenue)
}

func TestBuildCatalogRejectsNonPositiveTick(t *testing.T) {
	path := writeConfig(t, `{
		"exchanges": [{"name": "binance", "driver": "binance"}],
		"symbols": [{"exchange": "binance", "name": "BTCUSDT", "price_tick": "0", "qty_tick": "0.001"}]
	}`)
	file, err := Load(path)
	require.NoError(t, err)

	_, err = file.BuildCatalog()
	require.ErrorIs(t, err, errBadTickSize)
}

func TestDriverNamesMapsExchangeToDriver(t *testing.T) {
	file := &File{Exchanges: []Exchange{
		{Name: "binance", Driver: "binance"},
		{Name: "btcc", Driver: "btcc"},
	}}
	require.Equal(t, map[string]string{"binance": "binance", "btcc": "btcc"}, file.DriverNames())
}
