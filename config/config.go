package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"daoctl/crypto"
)

// ErrInvalid marks a configuration that fails validation before any network
// call is made.
var ErrInvalid = errors.New("config: invalid configuration")

// Poll bounds every wait for an asynchronous remote state transition. Both
// fields must be positive: unbounded waiting is disallowed.
type Poll struct {
	IntervalSecs int `toml:"IntervalSecs"`
	MaxAttempts  int `toml:"MaxAttempts"`
}

func (p Poll) Interval() time.Duration { return time.Duration(p.IntervalSecs) * time.Second }

// Polls tunes the four bounded wait loops of a deployment run.
type Polls struct {
	Execution  Poll `toml:"Execution"`
	SwapOpen   Poll `toml:"SwapOpen"`
	Commitment Poll `toml:"Commitment"`
	Finalize   Poll `toml:"Finalize"`
}

// Config is the tool's static configuration, constructed once at process start
// and passed by parameter into every operation.
type Config struct {
	RPCEndpoint        string `toml:"RPCEndpoint"`
	RPCAuthTokenEnv    string `toml:"RPCAuthTokenEnv"`
	BaseGovernance     string `toml:"BaseGovernance"`
	BaseLedger         string `toml:"BaseLedger"`
	Wrapper            string `toml:"Wrapper"`
	OwnerKeystorePath  string `toml:"OwnerKeystorePath"`
	OwnerPassphraseEnv string `toml:"OwnerPassphraseEnv"`
	SuiteParamsFile    string `toml:"SuiteParamsFile"`
	DataDir            string `toml:"DataDir"`
	Polls              Polls  `toml:"Polls"`
}

// Well-known service principals of the local test network. These match the
// fixed ids the network bootstrapper assigns.
const (
	DefaultBaseGovernance = "dao1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqph2whvw"
	DefaultBaseLedger     = "dao1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzeempz3"
	DefaultWrapper        = "dao1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqry005lr"
)

func defaultConfig() *Config {
	return &Config{
		RPCEndpoint:        "http://127.0.0.1:4943",
		RPCAuthTokenEnv:    "DAOCTL_RPC_TOKEN",
		BaseGovernance:     DefaultBaseGovernance,
		BaseLedger:         DefaultBaseLedger,
		Wrapper:            DefaultWrapper,
		OwnerKeystorePath:  "owner.keystore",
		OwnerPassphraseEnv: "DAOCTL_OWNER_PASSPHRASE",
		SuiteParamsFile:    "suite.yaml",
		DataDir:            "generated",
		Polls: Polls{
			Execution:  Poll{IntervalSecs: 10, MaxAttempts: 60},
			SwapOpen:   Poll{IntervalSecs: 2, MaxAttempts: 300},
			Commitment: Poll{IntervalSecs: 1, MaxAttempts: 30},
			Finalize:   Poll{IntervalSecs: 2, MaxAttempts: 60},
		},
	}
}

// Load reads the configuration from the given path, creating a default file
// when none exists. Environment overrides: DAOCTL_RPC_URL replaces the
// endpoint without touching the file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	if url := strings.TrimSpace(os.Getenv("DAOCTL_RPC_URL")); url != "" {
		cfg.RPCEndpoint = url
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AuthToken resolves the optional RPC bearer token from the configured
// environment variable.
func (c *Config) AuthToken() string {
	if c.RPCAuthTokenEnv == "" {
		return ""
	}
	return os.Getenv(c.RPCAuthTokenEnv)
}

// OwnerPassphrase resolves the keystore passphrase from the configured
// environment variable. Empty means prompt or passphrase-less keystore.
func (c *Config) OwnerPassphrase() string {
	if c.OwnerPassphraseEnv == "" {
		return ""
	}
	return os.Getenv(c.OwnerPassphraseEnv)
}

// ParticipantDir is where participant seed files live.
func (c *Config) ParticipantDir() string {
	return filepath.Join(c.DataDir, "participants")
}

// RecordPath is the deployment record location.
func (c *Config) RecordPath() string {
	return filepath.Join(c.DataDir, "deployment.json")
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCEndpoint) == "" {
		return fmt.Errorf("%w: RPCEndpoint is empty", ErrInvalid)
	}
	for name, value := range map[string]string{
		"BaseGovernance": c.BaseGovernance,
		"BaseLedger":     c.BaseLedger,
		"Wrapper":        c.Wrapper,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s service principal is empty", ErrInvalid, name)
		}
		if _, err := crypto.DecodePrincipal(value); err != nil {
			return fmt.Errorf("%w: %s service principal: %v", ErrInvalid, name, err)
		}
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: DataDir is empty", ErrInvalid)
	}
	for name, poll := range map[string]Poll{
		"Execution":  c.Polls.Execution,
		"SwapOpen":   c.Polls.SwapOpen,
		"Commitment": c.Polls.Commitment,
		"Finalize":   c.Polls.Finalize,
	} {
		if poll.IntervalSecs <= 0 || poll.MaxAttempts <= 0 {
			return fmt.Errorf("%w: Polls.%s must have positive interval and attempt bound", ErrInvalid, name)
		}
	}
	return nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
