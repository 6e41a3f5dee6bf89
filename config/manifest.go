package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fairlaunch/crypto"
	"fairlaunch/native/fairlaunch"
)

// Timestamp is a unix second count that also accepts RFC3339 strings.
type Timestamp int64

func parseTimestamp(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Timestamp(secs), nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: expected unix seconds or RFC3339", raw)
	}
	return Timestamp(parsed.Unix()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Timestamp) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseTimestamp(node.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	parsed, err := parseTimestamp(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Duration is a second count that also accepts Go duration strings.
type Duration int64

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Duration(secs), nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if parsed%time.Second != 0 {
		return 0, fmt.Errorf("duration %q is not a whole number of seconds", raw)
	}
	return Duration(parsed / time.Second), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	parsed, err := parseDuration(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// AntiRugManifest describes the optional treasury lock of a sale.
type AntiRugManifest struct {
	ReserveBP        uint16    `yaml:"reserve_bp" json:"reserveBp"`
	TokenRequirement uint64    `yaml:"token_requirement" json:"tokenRequirement"`
	SelfDestructDate Timestamp `yaml:"self_destruct_date" json:"selfDestructDate"`
}

// SaleManifest is the operator-facing description of a sale.
type SaleManifest struct {
	Code            string           `yaml:"code" json:"code"`
	Authority       string           `yaml:"authority" json:"authority"`
	TokenMint       string           `yaml:"token_mint" json:"tokenMint"`
	PriceRangeStart uint64           `yaml:"price_range_start" json:"priceRangeStart"`
	PriceRangeEnd   uint64           `yaml:"price_range_end" json:"priceRangeEnd"`
	TickSize        uint64           `yaml:"tick_size" json:"tickSize"`
	TokenSupply     uint64           `yaml:"token_supply" json:"tokenSupply"`
	PhaseOneStart   Timestamp        `yaml:"phase_one_start" json:"phaseOneStart"`
	PhaseOneEnd     Timestamp        `yaml:"phase_one_end" json:"phaseOneEnd"`
	PhaseTwoEnd     Timestamp        `yaml:"phase_two_end" json:"phaseTwoEnd"`
	LotteryDuration Duration         `yaml:"lottery_duration" json:"lotteryDuration"`
	AntiRug         *AntiRugManifest `yaml:"anti_rug,omitempty" json:"antiRug,omitempty"`
}

type manifestFile struct {
	Sales []SaleManifest `yaml:"sales"`
}

// SaleConfig converts the manifest into an engine configuration. Range and
// schedule checks are left to the engine.
func (m *SaleManifest) SaleConfig() (*fairlaunch.SaleConfig, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest: nil sale")
	}
	authority, err := crypto.ParseAccount(m.Authority)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: authority: %w", m.Code, err)
	}
	cfg := &fairlaunch.SaleConfig{
		Code:            strings.TrimSpace(m.Code),
		Authority:       authority,
		TokenMint:       strings.ToUpper(strings.TrimSpace(m.TokenMint)),
		PriceRangeStart: m.PriceRangeStart,
		PriceRangeEnd:   m.PriceRangeEnd,
		TickSize:        m.TickSize,
		TokenSupply:     m.TokenSupply,
		PhaseOneStart:   int64(m.PhaseOneStart),
		PhaseOneEnd:     int64(m.PhaseOneEnd),
		PhaseTwoEnd:     int64(m.PhaseTwoEnd),
		LotteryDuration: int64(m.LotteryDuration),
	}
	if m.AntiRug != nil {
		cfg.AntiRug = &fairlaunch.AntiRugSetting{
			ReserveBP:        m.AntiRug.ReserveBP,
			TokenRequirement: m.AntiRug.TokenRequirement,
			SelfDestructDate: int64(m.AntiRug.SelfDestructDate),
		}
	}
	return cfg, nil
}

// ParseManifests decodes a YAML document listing one or more sales.
func ParseManifests(data []byte) ([]*fairlaunch.SaleConfig, error) {
	var file manifestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Sales))
	out := make([]*fairlaunch.SaleConfig, 0, len(file.Sales))
	for i := range file.Sales {
		cfg, err := file.Sales[i].SaleConfig()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[cfg.Code]; dup {
			return nil, fmt.Errorf("manifest: duplicate sale code %q", cfg.Code)
		}
		seen[cfg.Code] = struct{}{}
		out = append(out, cfg)
	}
	return out, nil
}

// ParseManifest decodes a single sale from JSON, the format used by the
// create endpoint.
func ParseManifest(data []byte) (*fairlaunch.SaleConfig, error) {
	var m SaleManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return m.SaleConfig()
}

// LoadManifests reads a YAML manifest file.
func LoadManifests(path string) ([]*fairlaunch.SaleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifests(data)
}
