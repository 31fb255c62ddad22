package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/stakeledger/src/common"
)

// Default filenames.
const (
	// DefaultConfigFile is the name, without extension, of the configuration
	// file read from the data directory.
	DefaultConfigFile = "stakeledger"

	// DefaultLogFile is the default name of the log file written in the data
	// directory when file logging is enabled.
	DefaultLogFile = "stakeledger.log"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultServiceAddr        = "127.0.0.1:8000"
	DefaultStake              = 100
	DefaultGossipInterval     = 500 * time.Millisecond
	DefaultGossipDelay        = 100 * time.Millisecond
	DefaultLeaderInterval     = 500 * time.Millisecond
	DefaultElectionInterval   = 30 * time.Second
	DefaultElectionDelay      = time.Second
	DefaultAnnounceGrace      = 500 * time.Millisecond
	DefaultElectGrace         = 500 * time.Millisecond
	DefaultRoundTimeout       = 10 * time.Second
	DefaultTolerance          = 2.0 / 3.0
	DefaultBlockWidth         = 5
	DefaultEarlyElection      = 0
	DefaultStartingBalance    = 1000
	DefaultExpectedValidators = 4
	DefaultExpectedClients    = 2
)

// Config contains all the configuration properties of a node.
type Config struct {
	// DataDir is the top-level directory containing the configuration file
	// and the log file.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, also writes logs to DataDir/stakeledger.log.
	LogFile bool `mapstructure:"log-file"`

	// ID identifies the node in the network. It doubles as the account id of
	// clients.
	ID int64 `mapstructure:"id"`

	// Stake is the weight of this validator in leader elections.
	Stake int64 `mapstructure:"stake"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// GossipInterval is the period of the transaction gossip. The first
	// gossip happens GossipDelay after the node starts validating.
	GossipInterval time.Duration `mapstructure:"gossip-interval"`
	GossipDelay    time.Duration `mapstructure:"gossip-delay"`

	// LeaderInterval is the period at which the leader checks whether it has
	// pending transactions to propose.
	LeaderInterval time.Duration `mapstructure:"leader-interval"`

	// ElectionInterval is the period of leader elections. The first election
	// is started ElectionDelay after the node starts validating.
	ElectionInterval time.Duration `mapstructure:"election-interval"`
	ElectionDelay    time.Duration `mapstructure:"election-delay"`

	// AnnounceGrace is how long validators keep collecting stakes once a
	// quorum of them was seen, before drawing the winner.
	AnnounceGrace time.Duration `mapstructure:"announce-grace"`

	// ElectGrace is how long validators keep collecting results once a
	// quorum of them was seen, before ratifying.
	ElectGrace time.Duration `mapstructure:"elect-grace"`

	// RoundTimeout is the time after which an election round that hasn't
	// been ratified is abandoned.
	RoundTimeout time.Duration `mapstructure:"round-timeout"`

	// Tolerance is the fraction of validators that make an election quorum.
	Tolerance float64 `mapstructure:"tolerance"`

	// BlockWidth is the max number of transactions in a block.
	BlockWidth int `mapstructure:"block-width"`

	// EarlyElection, when > 0, starts an election as soon as that many
	// transactions are pending.
	EarlyElection int `mapstructure:"early-election"`

	// StartingBalance is the amount granted to every client once the network
	// is formed.
	StartingBalance int64 `mapstructure:"starting-balance"`

	// ExpectedValidators and ExpectedClients are the size of the network.
	// Validators wait until they know of ExpectedValidators validators before
	// they start validating, and the coordinator waits for both before it
	// grants the starting balances.
	ExpectedValidators int `mapstructure:"expected-validators"`
	ExpectedClients    int `mapstructure:"expected-clients"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		ServiceAddr:        DefaultServiceAddr,
		Stake:              DefaultStake,
		GossipInterval:     DefaultGossipInterval,
		GossipDelay:        DefaultGossipDelay,
		LeaderInterval:     DefaultLeaderInterval,
		ElectionInterval:   DefaultElectionInterval,
		ElectionDelay:      DefaultElectionDelay,
		AnnounceGrace:      DefaultAnnounceGrace,
		ElectGrace:         DefaultElectGrace,
		RoundTimeout:       DefaultRoundTimeout,
		Tolerance:          DefaultTolerance,
		BlockWidth:         DefaultBlockWidth,
		EarlyElection:      DefaultEarlyElection,
		StartingBalance:    DefaultStartingBalance,
		ExpectedValidators: DefaultExpectedValidators,
		ExpectedClients:    DefaultExpectedClients,
	}

	return config
}

// NewTestConfig returns a config object with short timeouts and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.NoService = true
	config.GossipInterval = 20 * time.Millisecond
	config.GossipDelay = 10 * time.Millisecond
	config.LeaderInterval = 20 * time.Millisecond
	config.ElectionInterval = 2 * time.Second
	config.ElectionDelay = 50 * time.Millisecond
	config.AnnounceGrace = 30 * time.Millisecond
	config.ElectGrace = 30 * time.Millisecond
	config.RoundTimeout = 2 * time.Second
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetLogger replaces the logger used by Logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// ConfigFile returns the full path of the configuration file, without
// extension.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, DefaultConfigFile)
}

// LogFilePath returns the full path of the log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.DataDir, DefaultLogFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "stakeledger".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "stakeledger")
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".StakeLedger")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "StakeLedger")
		} else {
			return filepath.Join(home, ".stakeledger")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
