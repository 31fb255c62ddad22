package commands

import (
	"time"

	"github.com/mosaicnetworks/stakeledger/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Node       config.Config `mapstructure:",squash"`
	TxInterval time.Duration `mapstructure:"tx-interval"`
	MaxAmount  int64         `mapstructure:"max-amount"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Node:       *config.NewDefaultConfig(),
		TxInterval: 0,
		MaxAmount:  100,
	}
}
