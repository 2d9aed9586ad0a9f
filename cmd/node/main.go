// Command delegatechaind runs a delegatechain node: storage, chain state,
// mempool, transaction evaluation, market matching, block application,
// delegate block production, secondary indexes, and the query/RPC and
// peer-sync network layers, all wired from one on-disk config file.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tolelom/delegatechain/blockapp"
	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
	"github.com/tolelom/delegatechain/config"
	"github.com/tolelom/delegatechain/consensus"
	"github.com/tolelom/delegatechain/crypto/certgen"
	"github.com/tolelom/delegatechain/events"
	"github.com/tolelom/delegatechain/indexer"
	"github.com/tolelom/delegatechain/network"
	"github.com/tolelom/delegatechain/query"
	"github.com/tolelom/delegatechain/rpc"
	"github.com/tolelom/delegatechain/storage"
	"github.com/tolelom/delegatechain/txeval"
	"github.com/tolelom/delegatechain/wallet"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "delegatechaind",
		Short: "delegatechain node",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.json", "path to config file")
	root.AddCommand(runCmd(), genKeyCmd(), genCertsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func genKeyCmd() *cobra.Command {
	var out string
	var passwordEnv string
	c := &cobra.Command{
		Use:   "genkey",
		Short: "generate a new delegate signing key and save it to an encrypted keystore",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(passwordEnv)
			if password == "" {
				return fmt.Errorf("env var %s is empty; refusing to write a keystore with an empty password", passwordEnv)
			}
			key, err := codec.GenerateKey()
			if err != nil {
				return err
			}
			if err := wallet.SaveKey(out, password, key); err != nil {
				return err
			}
			fmt.Printf("generated key, active key hex: %x\n", key.Public().Bytes())
			fmt.Printf("saved to: %s\n", out)
			return nil
		},
	}
	c.Flags().StringVar(&out, "out", "delegate.key", "output keystore path")
	c.Flags().StringVar(&passwordEnv, "password-env", "DELEGATECHAIN_KEYSTORE_PASSWORD", "env var holding the keystore password")
	return c
}

func genCertsCmd() *cobra.Command {
	var dir string
	c := &cobra.Command{
		Use:   "gencerts",
		Short: "generate a CA and node TLS certificate pair for this node's config.node_id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := certgen.GenerateAll(dir, cfg.NodeID, nil); err != nil {
				return err
			}
			fmt.Printf("certificates generated in %s for node %q\n", dir, cfg.NodeID)
			return nil
		},
	}
	c.Flags().StringVar(&dir, "dir", "certs", "output directory for CA and node certificates")
	return c
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func run() error {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "main").Logger()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDirectory, 0755); err != nil {
		return fmt.Errorf("mkdir data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDirectory + "/chain")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	state := storage.NewStateDB(db)

	// ---- genesis (fresh chain only) ----
	head, err := state.HeadNumber()
	if err != nil {
		return fmt.Errorf("read head: %w", err)
	}
	if head < 0 {
		proposerKey, err := codec.GenerateKey() // ephemeral: genesis's signature is never re-verified against a delegate's active key
		if err != nil {
			return fmt.Errorf("genesis proposer key: %w", err)
		}
		genesisBlock, err := config.BuildGenesisBlock(cfg, state, proposerKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := state.SetBlock(genesisBlock); err != nil {
			return fmt.Errorf("store genesis: %w", err)
		}
		if err := state.SetHeadNumber(0); err != nil {
			return fmt.Errorf("set genesis head: %w", err)
		}
		log.Info().Str("block_id", genesisBlock.Header.ID().String()).Msg("genesis block committed")
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter, log)
	mempool := chain.NewMempool(chain.DefaultMaxPoolSize, cfg.MaxTransactionTTL)
	evaluator := txeval.NewEvaluator(cfg)
	app := blockapp.NewApplicator(cfg, state, evaluator, emitter, log)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		log.Info().Msg("mTLS enabled for P2P")
	}

	node := network.NewNode(cfg.NodeID, cfg.ListenEndpoint, mempool, tlsCfg)
	syncer := network.NewSyncer(node, state, app, mempool)
	_ = syncer
	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()
	log.Info().Str("addr", cfg.ListenEndpoint).Msg("p2p listening")

	for _, peer := range cfg.PeerBootstrap {
		if err := node.AddPeer(peer.ID, peer.Addr); err != nil {
			log.Error().Err(err).Str("peer", peer.ID).Msg("failed to connect to seed peer")
		}
	}

	producer, err := consensus.NewProducer(cfg, state, app, mempool, node, emitter, log)
	if err != nil {
		return fmt.Errorf("consensus: %w", err)
	}

	api := query.New(state, state, idx, mempool)
	rpcHandler := rpc.NewHandler(api, mempool, app, node)
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	log.Info().Str("addr", rpcAddr).Msg("rpc listening")

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		producer.Run(time.Duration(cfg.BlockIntervalSeconds)*time.Second, done)
	}()
	log.Info().Strs("owned_delegates", accountIDStrings(producer.Owned())).Msg("block production running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	close(done)
	wg.Wait()
	return nil
}

func accountIDStrings(ids []chain.AccountID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("%d", id)
	}
	return out
}
