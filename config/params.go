package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SuiteParams is the static genesis configuration of the suite to be created:
// token metadata, initial distribution, and the swap's participation window.
// It is the payload of the suite-creation proposal and is validated in full
// before any network call.
type SuiteParams struct {
	Name        string `yaml:"name"`
	Symbol      string `yaml:"symbol"`
	Description string `yaml:"description"`
	LogoPath    string `yaml:"logo"`

	Distribution struct {
		TreasuryTokens  uint64 `yaml:"treasury_tokens"`
		SwapTokens      uint64 `yaml:"swap_tokens"`
		DeveloperTokens uint64 `yaml:"developer_tokens"`
	} `yaml:"distribution"`

	Swap struct {
		MinParticipants        uint64 `yaml:"min_participants"`
		MinParticipationAmount uint64 `yaml:"min_participation_amount"`
		MaxParticipationAmount uint64 `yaml:"max_participation_amount"`
		MinCommitment          uint64 `yaml:"min_commitment"`
		MaxCommitment          uint64 `yaml:"max_commitment"`
		DurationSecs           uint64 `yaml:"duration_secs"`
	} `yaml:"swap"`
}

// LoadSuiteParams reads and validates the YAML suite parameter file. The logo
// asset, when configured, is inlined base64-free as raw bytes by the proposal
// builder; here we only check it exists.
func LoadSuiteParams(path string) (*SuiteParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read suite params: %v", ErrInvalid, err)
	}
	params := &SuiteParams{}
	if err := yaml.Unmarshal(raw, params); err != nil {
		return nil, fmt.Errorf("%w: parse suite params: %v", ErrInvalid, err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *SuiteParams) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: suite name is empty", ErrInvalid)
	}
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("%w: token symbol is empty", ErrInvalid)
	}
	if p.Distribution.SwapTokens == 0 {
		return fmt.Errorf("%w: distribution.swap_tokens must be positive", ErrInvalid)
	}
	if p.Swap.MinParticipants == 0 {
		return fmt.Errorf("%w: swap.min_participants must be positive", ErrInvalid)
	}
	if p.Swap.MinParticipationAmount == 0 {
		return fmt.Errorf("%w: swap.min_participation_amount must be positive", ErrInvalid)
	}
	if p.Swap.MaxParticipationAmount < p.Swap.MinParticipationAmount {
		return fmt.Errorf("%w: swap.max_participation_amount below minimum", ErrInvalid)
	}
	if p.Swap.MinCommitment == 0 {
		return fmt.Errorf("%w: swap.min_commitment must be positive", ErrInvalid)
	}
	if p.Swap.MaxCommitment < p.Swap.MinCommitment {
		return fmt.Errorf("%w: swap.max_commitment below minimum", ErrInvalid)
	}
	if p.LogoPath != "" {
		if _, err := os.Stat(p.LogoPath); err != nil {
			return fmt.Errorf("%w: logo asset %s: %v", ErrInvalid, p.LogoPath, err)
		}
	}
	return nil
}
