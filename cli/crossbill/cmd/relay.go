package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ainvaltin/httpsrv"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crossbill-org/crossbill/bindings"
	"github.com/crossbill-org/crossbill/keyvaluedb/boltdb"
	"github.com/crossbill-org/crossbill/ledger"
	"github.com/crossbill-org/crossbill/proof"
	"github.com/crossbill-org/crossbill/relay"
	"github.com/crossbill-org/crossbill/rpc"
	"github.com/crossbill-org/crossbill/types"
	"github.com/crossbill-org/crossbill/watcher"
)

const (
	relayHomeDir = "relay"

	bindingStoreFileName   = "bindings.db"
	watcherJournalFileName = "journal.db"
)

type relayConfiguration struct {
	Base *baseConfiguration

	ServerAddr       string
	BaseChainID      uint64
	DerivedChainID   uint64
	AuthorityKeyFile string
	SubmitterKeyFile string
	GenerateKeys     bool
	DBDir            string
	Fund             map[string]string
	SpawnTimeout     time.Duration
}

func newRelayCmd(baseConfig *baseConfiguration) *cobra.Command {
	config := &relayConfiguration{Base: baseConfig}
	var relayCmd = &cobra.Command{
		Use:   "relay",
		Short: "Starts the relay node",
		Long:  `Starts the relay node: boots both ledgers, replays the binding audit log and serves the relay REST API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelayNode(cmd.Context(), config)
		},
	}

	relayCmd.Flags().StringVarP(&config.ServerAddr, "server-addr", "s", "localhost:9656", "REST server address, API disabled when empty")
	relayCmd.Flags().Uint64Var(&config.BaseChainID, "base-chain-id", 400, "chain id of the base ledger")
	relayCmd.Flags().Uint64Var(&config.DerivedChainID, "derived-chain-id", 401, "chain id of the derived ledger")
	relayCmd.Flags().StringVar(&config.AuthorityKeyFile, "authority-key-file", "",
		fmt.Sprintf("path to the authority key file, signs derived ledger deliveries and state proofs (default: $XB_HOME/%s/%s)", defaultKeysDir, authorityKeyFileName))
	relayCmd.Flags().StringVar(&config.SubmitterKeyFile, "submitter-key-file", "",
		fmt.Sprintf("path to the submitter key file, signs base ledger submissions (default: $XB_HOME/%s/%s)", defaultKeysDir, submitterKeyFileName))
	relayCmd.Flags().BoolVarP(&config.GenerateKeys, genKeysCmdFlag, "g", false, "generates new keys if none exist")
	relayCmd.Flags().StringVar(&config.DBDir, "db-dir", "",
		fmt.Sprintf("directory for the binding audit log and watcher journal databases (default: $XB_HOME/%s)", relayHomeDir))
	relayCmd.Flags().StringToStringVar(&config.Fund, "fund", nil, "accounts funded on both ledgers at genesis, address=balance pairs with the balance in wei")
	relayCmd.Flags().DurationVar(&config.SpawnTimeout, "spawn-timeout", relay.DefaultSpawnTimeout, "time limit for spawning a scratch sandbox")

	return relayCmd
}

func (c *relayConfiguration) authorityKeyFilePath() string {
	if c.AuthorityKeyFile != "" {
		return c.AuthorityKeyFile
	}
	return filepath.Join(c.Base.defaultKeysDir(), authorityKeyFileName)
}

func (c *relayConfiguration) submitterKeyFilePath() string {
	if c.SubmitterKeyFile != "" {
		return c.SubmitterKeyFile
	}
	return filepath.Join(c.Base.defaultKeysDir(), submitterKeyFileName)
}

func (c *relayConfiguration) dbDir() (string, error) {
	dir := c.DBDir
	if dir == "" {
		dir = filepath.Join(c.Base.HomeDir, relayHomeDir)
	}
	if err := os.MkdirAll(dir, 0700); err != nil { // -rwx------
		return "", fmt.Errorf("creating database directory: %w", err)
	}
	return dir, nil
}

func runRelayNode(ctx context.Context, cfg *relayConfiguration) (err error) {
	obs := cfg.Base.observe
	log := obs.Logger()

	if cfg.BaseChainID == cfg.DerivedChainID {
		return fmt.Errorf("base and derived chain ids must differ, both are %d", cfg.BaseChainID)
	}
	baseChainID := new(big.Int).SetUint64(cfg.BaseChainID)
	derivedChainID := new(big.Int).SetUint64(cfg.DerivedChainID)

	authorityKey, err := LoadKey(cfg.authorityKeyFilePath(), cfg.GenerateKeys)
	if err != nil {
		return fmt.Errorf("loading authority key: %w", err)
	}
	submitterKey, err := LoadKey(cfg.submitterKeyFilePath(), cfg.GenerateKeys)
	if err != nil {
		return fmt.Errorf("loading submitter key: %w", err)
	}
	// the authority key doubles as the attestation key so the anchor
	// contract recovers the same address the derived ledger trusts
	attestor, err := proof.NewSecpAttestor(authorityKey)
	if err != nil {
		return fmt.Errorf("creating attestor: %w", err)
	}

	accounts, err := fundedAccounts(cfg.Fund)
	if err != nil {
		return err
	}

	derivedGen := ledger.DerivedGenesis(derivedChainID, crypto.PubkeyToAddress(authorityKey.PublicKey), accounts...)
	derived, err := derivedGen.Build(ctx, obs)
	if err != nil {
		return fmt.Errorf("building derived ledger: %w", err)
	}
	defer func() { err = errors.Join(err, derived.Dispose()) }()

	baseGen := ledger.BaseGenesis(baseChainID, crypto.PubkeyToAddress(submitterKey.PublicKey), attestor.Address(), &types.Commitment{
		BlockNumber: derived.CurrentBlock().Number,
		StateRoot:   derived.StateRoot().Bytes(),
	}, accounts...)
	base, err := baseGen.Build(ctx, obs)
	if err != nil {
		return fmt.Errorf("building base ledger: %w", err)
	}
	defer func() { err = errors.Join(err, base.Dispose()) }()

	mirrorAddr, err := derivedGen.Address(ledger.ContractMirrorCounter)
	if err != nil {
		return err
	}
	counterAddr, err := baseGen.Address(ledger.ContractCounter)
	if err != nil {
		return err
	}
	commitmentAddr, err := baseGen.Address(ledger.ContractCommitment)
	if err != nil {
		return err
	}

	dbDir, err := cfg.dbDir()
	if err != nil {
		return err
	}
	bindingDB, err := boltdb.New(filepath.Join(dbDir, bindingStoreFileName))
	if err != nil {
		return fmt.Errorf("opening binding audit log database: %w", err)
	}
	defer func() { err = errors.Join(err, bindingDB.Close()) }()
	store, err := bindings.NewStore(bindingDB)
	if err != nil {
		return fmt.Errorf("opening binding audit log: %w", err)
	}
	registry, err := store.LoadRegistry()
	if err != nil {
		return fmt.Errorf("replaying binding audit log: %w", err)
	}
	// canonical counter pair, bound both ways so either ledger's copy may
	// originate a mirrored call
	if err := registry.Register(mirrorAddr, counterAddr); err != nil {
		return fmt.Errorf("registering mirror counter binding: %w", err)
	}
	if err := registry.Register(counterAddr, mirrorAddr); err != nil {
		return fmt.Errorf("registering counter binding: %w", err)
	}

	journalDB, err := boltdb.New(filepath.Join(dbDir, watcherJournalFileName))
	if err != nil {
		return fmt.Errorf("opening watcher journal database: %w", err)
	}
	defer func() { err = errors.Join(err, journalDB.Close()) }()
	journal, err := watcher.NewJournal(journalDB)
	if err != nil {
		return fmt.Errorf("opening watcher journal: %w", err)
	}

	w, err := watcher.New(ctx, watcher.Config{
		Base:           base,
		ReplicaGenesis: derivedGen,
		CommitmentAddr: commitmentAddr,
		Attestor:       attestor.Address(),
		Journal:        journal,
	}, obs)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { err = errors.Join(err, w.Close()) }()

	node, err := relay.New(relay.Config{
		Base:           base,
		Derived:        derived,
		Scratch:        relay.CloneFactory(derived),
		Registry:       registry,
		Attestor:       attestor,
		SubmitterKey:   submitterKey,
		AuthorityKey:   authorityKey,
		CommitmentAddr: commitmentAddr,
		SpawnTimeout:   cfg.SpawnTimeout,
	}, obs)
	if err != nil {
		return fmt.Errorf("creating relay node: %w", err)
	}

	log.InfoContext(ctx, fmt.Sprintf("starting relay node: base chain %s, derived chain %s, commitment contract %s", baseChainID, derivedChainID, commitmentAddr))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.Run(ctx) })

	g.Go(func() error {
		if cfg.ServerAddr == "" {
			return nil // return nil in this case in order not to kill the group!
		}
		registrars := []rpc.Registrar{
			rpc.MetricsEndpoints(obs.PrometheusRegisterer()),
			rpc.RelayEndpoints(node, log),
			rpc.BindingEndpoints(registry, store, log),
			rpc.WatcherEndpoints(w, log),
			rpc.InfoEndpoints(rpc.NodeInfo{
				Name:               "relay node",
				BaseChainID:        baseChainID,
				DerivedChainID:     derivedChainID,
				CommitmentContract: commitmentAddr,
			}, log),
		}
		server := rpc.NewRESTServer(cfg.ServerAddr, rpc.MaxBodySize, obs, registrars...)
		log.InfoContext(ctx, fmt.Sprintf("relay REST server starting on %s", server.Addr))
		return httpsrv.Run(ctx, *server, httpsrv.ShutdownTimeout(5*time.Second))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// fundedAccounts parses address=balance pairs into genesis accounts, sorted
// by address so the genesis is stable regardless of map iteration order.
func fundedAccounts(fund map[string]string) ([]ledger.GenesisAccount, error) {
	accounts := make([]ledger.GenesisAccount, 0, len(fund))
	for addr, balance := range fund {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid funding address %q", addr)
		}
		wei, ok := new(big.Int).SetString(balance, 10)
		if !ok || wei.Sign() < 0 {
			return nil, fmt.Errorf("invalid funding balance %q for address %s", balance, addr)
		}
		accounts = append(accounts, ledger.GenesisAccount{Address: common.HexToAddress(addr), Balance: wei})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address[:], accounts[j].Address[:]) < 0
	})
	return accounts, nil
}
