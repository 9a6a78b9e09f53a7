package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianchain/statecore/abci"
	cmdconfig "github.com/meridianchain/statecore/cmd/config"
	"github.com/meridianchain/statecore/config"
	"github.com/meridianchain/statecore/epoch"
	"github.com/meridianchain/statecore/feedist"
	"github.com/meridianchain/statecore/pkg/utils"
	"github.com/meridianchain/statecore/pools"
	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

func main() {
	rootCmd := &cobra.Command{Use: "statecore"}
	rootCmd.PersistentFlags().String("env", "", "config environment to merge over default")
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(epochCmd())
	rootCmd.AddCommand(storagePoolCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(metricsCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) {
	env, _ := cmd.Flags().GetString("env")
	if env == "" {
		env = utils.EnvOrDefault("STATECORE_ENV", "")
	}
	cmdconfig.LoadConfig(env)
	if lvl, err := logrus.ParseLevel(cmdconfig.AppConfig.Logging.Level); err == nil {
		logrus.SetLevel(lvl)
	}
}

func openStore() (*store.Store, error) {
	cfg := cmdconfig.AppConfig.Store
	return store.Open(store.Options{
		DataDir:          cfg.DataDir,
		WALFile:          cfg.WALFile,
		SnapshotFile:     cfg.SnapshotFile,
		SnapshotInterval: cfg.SnapshotInterval,
	})
}

func chainParams() config.Params {
	p := config.Default()
	cfg := cmdconfig.AppConfig.Chain
	if cfg.EpochDurationMS > 0 {
		p.EpochDurationMS = uint64(cfg.EpochDurationMS)
	}
	if cfg.EpochsPerYear > 0 {
		p.EpochsPerYear = cfg.EpochsPerYear
	}
	if cfg.ForwardEpochWindow > 0 {
		p.ForwardEpochWindow = cfg.ForwardEpochWindow
	}
	if cfg.ProposersPerCall > 0 {
		p.ProposersLimitPerCall = cfg.ProposersPerCall
	}
	return p
}

func newDriver(st *store.Store) *abci.Driver {
	identities := feedist.NewKVIdentityStore(st)
	shares := feedist.NewMapRewardShareSource()
	return abci.NewDriver(st, identities, shares, chainParams(), nil)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "create the initial chain state",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadConfig(cmd)
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			driver := newDriver(st)
			tx := st.Begin()
			if _, err := driver.InitChain(abci.InitChainRequest{}, tx); err != nil {
				tx.Rollback()
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			fmt.Println("chain initialised")
			return nil
		},
	}
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [stream]",
		Short: "drive the block lifecycle from a framed event stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadConfig(cmd)
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			responses, err := abci.Replay(f, newDriver(st), st)
			if err != nil {
				return err
			}
			for _, resp := range responses {
				line := fmt.Sprintf("epoch=%d change=%t paid=%d", resp.CurrentEpochIndex, resp.IsEpochChange, resp.MasternodesPaidCount)
				if resp.PaidEpochIndex != nil {
					line += fmt.Sprintf(" paid_epoch=%d", *resp.PaidEpochIndex)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func epochCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "epoch [index]",
		Short: "inspect one epoch pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadConfig(cmd)
			idx, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil {
				return fmt.Errorf("parsing epoch index: %w", err)
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			e := types.Epoch(idx)
			pool := pools.NewEpochPoolStore(st)

			printField := func(name string, get func() (uint64, error)) {
				if v, err := get(); err == nil {
					fmt.Printf("%s: %d\n", name, v)
				} else {
					fmt.Printf("%s: <%v>\n", name, err)
				}
			}
			printField("start_time_ms", func() (uint64, error) { return pool.GetStartTime(nil, e) })
			printField("start_block_height", func() (uint64, error) { return pool.GetStartBlockHeight(nil, e) })
			printField("fee_multiplier", func() (uint64, error) { return pool.GetFeeMultiplier(nil, e) })
			printField("processing_fees", func() (uint64, error) { return pool.GetProcessingFees(nil, e) })
			printField("storage_fees", func() (uint64, error) { return pool.GetStorageFees(nil, e) })

			proposers, err := pool.GetProposers(nil, e, 0)
			if err != nil {
				return err
			}
			fmt.Printf("proposers: %d\n", len(proposers))
			for _, p := range proposers {
				fmt.Printf("  %s blocks=%d\n", p.ID.Hex(), p.Count)
			}
			return nil
		},
	}
}

func storagePoolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "storage-pool",
		Short: "print the unsettled storage fee pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadConfig(cmd)
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			v, err := pools.NewStorageFeeDistributionPool(st).Get(nil)
			if err != nil {
				return err
			}
			fmt.Printf("storage_fee_pool: %d\n", v)
			return nil
		},
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [identity]",
		Short: "print an identity's credit balance",
		Long: "Prints the credit balance of the identity named by a 64-char " +
			"hex id, or by any other string hashed to an id with keccak-256.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadConfig(cmd)
			id, err := parseIdentifier(args[0])
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			balance, err := feedist.GetBalance(st, nil, id)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d\n", id.Hex(), balance)
			return nil
		},
	}
}

// parseIdentifier accepts a 32-byte hex id, or derives one from an arbitrary
// label by keccak-256 so fixtures can use human-readable names.
func parseIdentifier(s string) (types.Identifier, error) {
	raw := s
	if len(raw) >= 2 && raw[0] == '0' && (raw[1] == 'x' || raw[1] == 'X') {
		raw = raw[2:]
	}
	if len(raw) == 64 {
		if b, err := hex.DecodeString(raw); err == nil {
			return types.IdentifierFromBytes(b)
		}
	}
	return types.IdentifierFromBytes(crypto.Keccak256([]byte(s)))
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-metrics",
		Short: "serve the store's prometheus metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadConfig(cmd)
			if !cmdconfig.AppConfig.Metrics.Enabled {
				return fmt.Errorf("metrics are disabled in config")
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			addr := cmdconfig.AppConfig.Metrics.Addr
			logger.Sugar().Infow("serving metrics", "addr", addr,
				"epoch_duration_ms", chainParams().EpochDurationMS,
				"epochs_per_year", epoch.EpochsPerYear)
			http.Handle("/metrics", promhttp.HandlerFor(st.Registry(), promhttp.HandlerOpts{}))
			return http.ListenAndServe(addr, nil)
		},
	}
}
