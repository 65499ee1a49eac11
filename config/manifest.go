package config

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"crowdsale/crypto"
	"crowdsale/native/crowdsale"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Manifest is the YAML description of a sale. Units are written as
// "<decimals>,<code>" and amounts as quantities such as "1.0000 EOS".
type Manifest struct {
	Issuer   string `yaml:"issuer"`
	Contract string `yaml:"contract"`
	Notifier string `yaml:"notifier"`

	Units struct {
		Base      string `yaml:"base"`
		Secondary string `yaml:"secondary"`
		USD       string `yaml:"usd"`
		Sale      string `yaml:"sale"`
	} `yaml:"units"`

	Cap             string `yaml:"cap"`
	MinContribution string `yaml:"min_contribution"`
	MaxContribution string `yaml:"max_contribution"`
	UnitsPerUSD     string `yaml:"units_per_usd"`

	Allocations []struct {
		To     string `yaml:"to"`
		Amount string `yaml:"amount"`
	} `yaml:"allocations"`

	Transferable bool     `yaml:"transferable"`
	Debug        bool     `yaml:"debug"`
	RateWindow   Duration `yaml:"rate_window"`
}

// LoadManifest reads and decodes the sale manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.RateWindow.Duration <= 0 {
		m.RateWindow.Duration = 24 * time.Hour
	}
	return &m, nil
}

// Params converts the manifest into validated sale parameters.
func (m *Manifest) Params() (crowdsale.Params, error) {
	var (
		p   crowdsale.Params
		err error
	)
	if p.Issuer, err = crypto.ParseAccount(m.Issuer); err != nil {
		return p, fmt.Errorf("issuer: %w", err)
	}
	if p.Contract, err = crypto.ParseAccount(m.Contract); err != nil {
		return p, fmt.Errorf("contract: %w", err)
	}
	if p.Notifier, err = crypto.ParseAccount(m.Notifier); err != nil {
		return p, fmt.Errorf("notifier: %w", err)
	}
	if p.BaseUnit, err = ParseUnit(m.Units.Base); err != nil {
		return p, fmt.Errorf("units.base: %w", err)
	}
	if p.SecondaryUnit, err = ParseUnit(m.Units.Secondary); err != nil {
		return p, fmt.Errorf("units.secondary: %w", err)
	}
	if p.USDUnit, err = ParseUnit(m.Units.USD); err != nil {
		return p, fmt.Errorf("units.usd: %w", err)
	}
	if p.SaleUnit, err = ParseUnit(m.Units.Sale); err != nil {
		return p, fmt.Errorf("units.sale: %w", err)
	}
	if p.Cap, err = amountIn("cap", m.Cap, p.USDUnit, true); err != nil {
		return p, err
	}
	if p.MinContrib, err = amountIn("min_contribution", m.MinContribution, p.BaseUnit, false); err != nil {
		return p, err
	}
	if p.MaxContrib, err = amountIn("max_contribution", m.MaxContribution, p.BaseUnit, false); err != nil {
		return p, err
	}
	for i, alloc := range m.Allocations {
		to, err := crypto.ParseAccount(alloc.To)
		if err != nil {
			return p, fmt.Errorf("allocations[%d].to: %w", i, err)
		}
		amount, err := amountIn(fmt.Sprintf("allocations[%d].amount", i), alloc.Amount, p.SaleUnit, true)
		if err != nil {
			return p, err
		}
		p.Allocations = append(p.Allocations, crowdsale.Allocation{To: to, Amount: amount})
	}
	p.Transferable = m.Transferable
	p.Debug = m.Debug
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// SalePrice returns the number of sale units issued per whole USD.
func (m *Manifest) SalePrice(saleUnit crowdsale.Unit) (crowdsale.Quantity, error) {
	amount, err := amountIn("units_per_usd", m.UnitsPerUSD, saleUnit, true)
	if err != nil {
		return crowdsale.Quantity{}, err
	}
	return crowdsale.Quantity{Amount: amount, Unit: saleUnit}, nil
}

// ParseUnit parses "<decimals>,<code>".
func ParseUnit(raw string) (crowdsale.Unit, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ",", 2)
	if len(parts) != 2 {
		return crowdsale.Unit{}, fmt.Errorf("unit %q must be \"<decimals>,<code>\"", raw)
	}
	decimals, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 8)
	if err != nil {
		return crowdsale.Unit{}, fmt.Errorf("unit %q: decimals: %w", raw, err)
	}
	code := strings.ToUpper(strings.TrimSpace(parts[1]))
	if code == "" {
		return crowdsale.Unit{}, fmt.Errorf("unit %q: code required", raw)
	}
	return crowdsale.Unit{Code: code, Decimals: uint8(decimals)}, nil
}

// amountIn parses a quantity and checks it carries unit.
func amountIn(field, raw string, unit crowdsale.Unit, required bool) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		if required {
			return nil, fmt.Errorf("%s required", field)
		}
		return big.NewInt(0), nil
	}
	q, err := crowdsale.ParseQuantity(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if q.Unit != unit {
		return nil, fmt.Errorf("%s: expected unit %s, got %s", field, unit, q.Unit)
	}
	return q.Amount, nil
}
