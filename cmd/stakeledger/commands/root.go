package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for stakeledger
var RootCmd = &cobra.Command{
	Use:              "stakeledger",
	Short:            "stake-weighted leader election ledger",
	TraverseChildren: true,
}
