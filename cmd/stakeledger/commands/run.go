package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/stakeledger/src/config"
	"github.com/mosaicnetworks/stakeledger/src/service"
	"github.com/mosaicnetworks/stakeledger/src/sim"
)

//NewRunCmd returns the command that starts a local stakeledger network
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a network of validators and clients",
		PreRunE: loadConfig,
		RunE:    runNetwork,
	}

	AddRunFlags(cmd)

	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNetwork(cmd *cobra.Command, args []string) error {
	logger := _config.Node.Logger()

	network := sim.NewNetwork(sim.Config{
		Validators: _config.Node.ExpectedValidators,
		Clients:    _config.Node.ExpectedClients,
		TxInterval: _config.TxInterval,
		MaxAmount:  _config.MaxAmount,
		NodeConfig: func(i int) *config.Config {
			conf := _config.Node
			return &conf
		},
		Logger: logger,
	})

	if err := network.Start(); err != nil {
		logger.WithError(err).Error("Cannot start network")
		network.Shutdown()
		return err
	}

	if !_config.Node.NoService && len(network.Nodes) > 0 {
		srv := service.NewService(
			_config.Node.ServiceAddr,
			network.Nodes[0],
			logger.WithField("component", "service"),
		)
		go srv.Serve()
	}

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh

	logger.Info("Shutting down")
	network.Shutdown()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Node.DataDir, "Top-level directory for configuration and logs")
	cmd.Flags().String("log", _config.Node.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Bool("log-file", _config.Node.LogFile, "Also write logs to a file in datadir")

	// Network
	cmd.Flags().Int("expected-validators", _config.Node.ExpectedValidators, "Number of validators to spawn")
	cmd.Flags().Int("expected-clients", _config.Node.ExpectedClients, "Number of clients to spawn")
	cmd.Flags().Duration("tx-interval", _config.TxInterval, "Time between random client transfers (0 disables them)")
	cmd.Flags().Int64("max-amount", _config.MaxAmount, "Max amount of a random transfer")

	// Service
	cmd.Flags().Bool("no-service", _config.Node.NoService, "Disable the HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Node.ServiceAddr, "Listen IP:Port for HTTP service")

	// Validator
	cmd.Flags().Int64("stake", _config.Node.Stake, "Stake of every validator")
	cmd.Flags().Int("block-width", _config.Node.BlockWidth, "Max number of transactions in a block")
	cmd.Flags().Int64("starting-balance", _config.Node.StartingBalance, "Amount granted to every client")
	cmd.Flags().Duration("gossip-interval", _config.Node.GossipInterval, "Time between transaction gossips")
	cmd.Flags().Duration("gossip-delay", _config.Node.GossipDelay, "Delay before the first gossip")
	cmd.Flags().Duration("leader-interval", _config.Node.LeaderInterval, "Time between block proposals")

	// Election
	cmd.Flags().Duration("election-interval", _config.Node.ElectionInterval, "Time between leader elections")
	cmd.Flags().Duration("election-delay", _config.Node.ElectionDelay, "Delay before the first election")
	cmd.Flags().Duration("announce-grace", _config.Node.AnnounceGrace, "Time to collect stakes after quorum")
	cmd.Flags().Duration("elect-grace", _config.Node.ElectGrace, "Time to collect results after quorum")
	cmd.Flags().Duration("round-timeout", _config.Node.RoundTimeout, "Time after which an election round is abandoned")
	cmd.Flags().Float64("tolerance", _config.Node.Tolerance, "Fraction of validators that make a quorum")
	cmd.Flags().Int("early-election", _config.Node.EarlyElection, "Pending transactions that trigger an election (0 disables)")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	if err := setLogger(); err != nil {
		return err
	}

	logFields := logrus.Fields{
		"DataDir":            _config.Node.DataDir,
		"LogLevel":           _config.Node.LogLevel,
		"LogFile":            _config.Node.LogFile,
		"ExpectedValidators": _config.Node.ExpectedValidators,
		"ExpectedClients":    _config.Node.ExpectedClients,
		"Stake":              _config.Node.Stake,
		"BlockWidth":         _config.Node.BlockWidth,
		"StartingBalance":    _config.Node.StartingBalance,
		"GossipInterval":     _config.Node.GossipInterval,
		"LeaderInterval":     _config.Node.LeaderInterval,
		"ElectionInterval":   _config.Node.ElectionInterval,
		"RoundTimeout":       _config.Node.RoundTimeout,
		"Tolerance":          _config.Node.Tolerance,
		"EarlyElection":      _config.Node.EarlyElection,
		"TxInterval":         _config.TxInterval,
		"MaxAmount":          _config.MaxAmount,
	}

	if !_config.Node.NoService {
		logFields["ServiceAddr"] = _config.Node.ServiceAddr
	}

	_config.Node.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/stakeledger.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile)
	viper.AddConfigPath(_config.Node.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Node.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Node.Logger().Debugf("No config file found in: %s", _config.Node.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// setLogger builds the logger shared by every node, with a file hook when
// log-file is set.
func setLogger() error {
	logger := logrus.New()
	logger.Level = config.LogLevel(_config.Node.LogLevel)
	logger.Formatter = new(prefixed.TextFormatter)

	if _config.Node.LogFile {
		if err := os.MkdirAll(_config.Node.DataDir, 0700); err != nil {
			return err
		}

		path := _config.Node.LogFilePath()
		pathMap := lfshook.PathMap{}
		for _, level := range logrus.AllLevels {
			pathMap[level] = path
		}

		logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.JSONFormatter{}))
	}

	_config.Node.SetLogger(logger)

	return nil
}
