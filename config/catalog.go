package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	yaml "gopkg.in/yaml.v2"

	"github.com/polyarb/polyarb/types"
)

// Catalog is the venue and cycle universe the engine scans. It is plain
// data; the composition root turns it into live pricing sources and search
// policies.
type Catalog struct {
	Settlement string        `yaml:"settlement"` // symbol of the loan/settlement asset
	Native     string        `yaml:"native"`     // symbol of the gas asset
	Assets     []AssetEntry  `yaml:"assets"`
	Venues     []VenueEntry  `yaml:"venues"`
	Cycles     []CycleConfig `yaml:"cycles"`
}

// AssetEntry is an asset row in the catalog file. Addresses are hex strings
// so the file stays hand-editable.
type AssetEntry struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

// VenueEntry is a venue row in the catalog file.
type VenueEntry struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"` // "aggregator" or "reserves"
	Source  string `yaml:"source,omitempty"`
	Factory string `yaml:"factory,omitempty"`
	Router  string `yaml:"router,omitempty"`
	FeeBps  int64  `yaml:"fee_bps,omitempty"`
}

// CycleConfig declares one asset loop and its size-search policy. Exactly
// one of Candidates or SweepSeed must be set.
type CycleConfig struct {
	Path       []string `yaml:"path"` // asset symbols, first is the loan asset
	Kind       string   `yaml:"kind"`
	Candidates []string `yaml:"candidates,omitempty"` // fixed input amounts, smallest units
	SweepSeed  string   `yaml:"sweep_seed,omitempty"`
	SweepSteps int      `yaml:"sweep_steps,omitempty"`
}

// LoadCatalog reads and validates a catalog file. An empty path yields the
// built-in Polygon defaults.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Validate checks referential integrity: every symbol resolves, every
// address parses, every cycle has a usable policy and starts at the
// settlement asset.
func (c *Catalog) Validate() error {
	if _, ok := c.lookupAsset(c.Settlement); !ok {
		return fmt.Errorf("settlement asset %q not in catalog", c.Settlement)
	}
	if _, ok := c.lookupAsset(c.Native); !ok {
		return fmt.Errorf("native asset %q not in catalog", c.Native)
	}

	for _, a := range c.Assets {
		if !common.IsHexAddress(a.Address) {
			return fmt.Errorf("asset %s has invalid address %q", a.Symbol, a.Address)
		}
	}

	for _, v := range c.Venues {
		switch types.VenueKind(v.Kind) {
		case types.VenueAggregator:
			if v.Source == "" {
				return fmt.Errorf("aggregator venue %s needs a source name", v.Name)
			}
		case types.VenueReserves:
			if !common.IsHexAddress(v.Factory) || !common.IsHexAddress(v.Router) {
				return fmt.Errorf("reserve venue %s needs factory and router addresses", v.Name)
			}
			if v.FeeBps <= 0 || v.FeeBps >= 10000 {
				return fmt.Errorf("reserve venue %s has invalid fee %d bps", v.Name, v.FeeBps)
			}
		default:
			return fmt.Errorf("venue %s has unknown kind %q", v.Name, v.Kind)
		}
	}

	for i, cy := range c.Cycles {
		if len(cy.Path) < 2 {
			return fmt.Errorf("cycle %d needs at least 2 assets", i)
		}
		if cy.Path[0] != c.Settlement {
			return fmt.Errorf("cycle %d must start at the settlement asset %s", i, c.Settlement)
		}
		for _, sym := range cy.Path {
			if _, ok := c.lookupAsset(sym); !ok {
				return fmt.Errorf("cycle %d references unknown asset %q", i, sym)
			}
		}
		if len(c.VenuesOfKind(types.VenueKind(cy.Kind))) < 2 {
			return fmt.Errorf("cycle %d needs at least 2 venues of kind %q", i, cy.Kind)
		}
		hasCandidates := len(cy.Candidates) > 0
		hasSweep := cy.SweepSeed != ""
		if hasCandidates == hasSweep {
			return fmt.Errorf("cycle %d must set exactly one of candidates or sweep_seed", i)
		}
		for _, amt := range cy.Candidates {
			if _, err := parseAmount(amt); err != nil {
				return fmt.Errorf("cycle %d: %w", i, err)
			}
		}
		if hasSweep {
			if _, err := parseAmount(cy.SweepSeed); err != nil {
				return fmt.Errorf("cycle %d: %w", i, err)
			}
			if cy.SweepSteps <= 0 {
				return fmt.Errorf("cycle %d sweep_steps must be positive", i)
			}
		}
	}

	return nil
}

// Asset resolves a symbol to its typed asset. Call only after Validate.
func (c *Catalog) Asset(symbol string) (types.Asset, error) {
	entry, ok := c.lookupAsset(symbol)
	if !ok {
		return types.Asset{}, fmt.Errorf("unknown asset %q", symbol)
	}
	return types.Asset{
		Symbol:   entry.Symbol,
		Address:  common.HexToAddress(entry.Address),
		Decimals: entry.Decimals,
	}, nil
}

// TypedVenues converts every venue row to its typed form.
func (c *Catalog) TypedVenues() []types.Venue {
	out := make([]types.Venue, 0, len(c.Venues))
	for _, v := range c.Venues {
		out = append(out, types.Venue{
			Name:    v.Name,
			Kind:    types.VenueKind(v.Kind),
			Source:  v.Source,
			Factory: common.HexToAddress(v.Factory),
			Router:  common.HexToAddress(v.Router),
			FeeBps:  v.FeeBps,
		})
	}
	return out
}

// VenuesOfKind returns the venue rows of one pricing kind.
func (c *Catalog) VenuesOfKind(kind types.VenueKind) []VenueEntry {
	var out []VenueEntry
	for _, v := range c.Venues {
		if types.VenueKind(v.Kind) == kind {
			out = append(out, v)
		}
	}
	return out
}

// CandidateAmounts parses a cycle's candidate list. Call only after Validate.
func (cy CycleConfig) CandidateAmounts() ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(cy.Candidates))
	for _, amt := range cy.Candidates {
		v, err := parseAmount(amt)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SeedAmount parses a sweep cycle's seed. Call only after Validate.
func (cy CycleConfig) SeedAmount() (*big.Int, error) {
	return parseAmount(cy.SweepSeed)
}

func (c *Catalog) lookupAsset(symbol string) (AssetEntry, bool) {
	for _, a := range c.Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return AssetEntry{}, false
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// DefaultCatalog is the built-in Polygon universe: USDC settlement, WMATIC
// gas, QuickSwap and SushiSwap priced both through the aggregator and from
// raw reserves.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Settlement: "USDC",
		Native:     "WMATIC",
		Assets: []AssetEntry{
			{Symbol: "USDC", Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6},
			{Symbol: "WMATIC", Address: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", Decimals: 18},
			{Symbol: "WETH", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
		},
		Venues: []VenueEntry{
			{Name: "0x-quickswap", Kind: "aggregator", Source: "QuickSwap"},
			{Name: "0x-sushiswap", Kind: "aggregator", Source: "SushiSwap"},
			{
				Name:    "quickswap",
				Kind:    "reserves",
				Factory: "0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32",
				Router:  "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff",
				FeeBps:  30,
			},
			{
				Name:    "sushiswap",
				Kind:    "reserves",
				Factory: "0xc35DADB65012eC5796536bD9864eD8773aBc74C4",
				Router:  "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506",
				FeeBps:  30,
			},
		},
		Cycles: []CycleConfig{
			{
				Path: []string{"USDC", "WMATIC"},
				Kind: "aggregator",
				// 100 to 10k USDC
				Candidates: []string{"100000000", "500000000", "1000000000", "5000000000", "10000000000"},
			},
			{
				Path:       []string{"USDC", "WMATIC", "WETH"},
				Kind:       "reserves",
				SweepSeed:  "100000000",
				SweepSteps: 7,
			},
		},
	}
}
