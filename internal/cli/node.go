package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/config"
	"github.com/LeJamon/goVaultd/internal/core/access"
	"github.com/LeJamon/goVaultd/internal/core/clock"
	"github.com/LeJamon/goVaultd/internal/core/journal"
	"github.com/LeJamon/goVaultd/internal/core/liability"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/core/token"
	"github.com/LeJamon/goVaultd/internal/core/vault"
	"github.com/LeJamon/goVaultd/internal/core/voucher"
	"github.com/LeJamon/goVaultd/internal/storage/audit"
	"github.com/LeJamon/goVaultd/internal/storage/kv"
	"github.com/LeJamon/goVaultd/internal/storage/kv/backend"
	"github.com/LeJamon/goVaultd/internal/storage/statestore"
	"github.com/LeJamon/goVaultd/internal/types"
)

const stateDBName = "vault"

// node is one fully wired vault: ledgers, pool, account, engine and the
// stores behind them.
type node struct {
	cfg      *config.Config
	logger   *zap.Logger
	clock    *clock.Clock
	shares   *token.Ledger
	cash     *token.Ledger
	ledger   *liability.Ledger
	pool     *pool.Pool
	vault    *vault.Account
	vouchers *voucher.Registry
	roles    *access.Registry
	engine   *redemption.Engine
	serial   *redemption.Serialized
	registry *prometheus.Registry

	kv    kv.Manager
	store *statestore.Store
	audit *audit.Log
}

// openNode wires a node from cfg and restores any persisted state.
func openNode(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *node, err error) {
	n := &node{cfg: cfg, logger: logger, clock: clock.New(), registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	vaultAddr := types.Address(cfg.Vault.Address)
	engineAddr := types.Address(cfg.Vault.Operator)
	decimals := cfg.Vault.AssetDecimals

	j := journal.New()
	n.shares = token.NewLedger(cfg.Vault.ShareSymbol, j)
	n.cash = token.NewLedger(cfg.Vault.AssetSymbol, j)
	n.ledger = liability.New(n.clock, j, logger.Named("liability"))

	prices := pool.NewStaticPrices()
	for i := range cfg.Pool.Assets {
		price, err := cfg.Pool.Assets[i].PriceUnits(decimals)
		if err != nil {
			return nil, err
		}
		prices.Set(cfg.Pool.Assets[i].Token, price)
	}
	ratios, err := cfg.Pool.Ratios()
	if err != nil {
		return nil, err
	}
	n.pool, err = pool.New(pool.Config{
		Vault:        vaultAddr,
		Cash:         n.cash,
		Prices:       prices,
		Adapter:      pool.NewMarketAdapter(n.cash, prices, vaultAddr, types.Address(cfg.Pool.Market), cfg.Pool.SpreadBps),
		ValuationTTL: cfg.Pool.ValuationTTL,
		LayerRatios:  ratios,
		Journal:      j,
		Logger:       logger.Named("pool"),
	})
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	for i := range cfg.Pool.Assets {
		asset, err := cfg.Pool.Assets[i].Build()
		if err != nil {
			return nil, err
		}
		if err := n.pool.RegisterAsset(asset); err != nil {
			return nil, fmt.Errorf("register %s: %w", asset.Token, err)
		}
	}

	n.roles = buildRoles(cfg, engineAddr)

	quota, err := cfg.Vault.EmergencyQuotaUnits()
	if err != nil {
		return nil, err
	}
	n.vault, err = vault.New(vault.Config{
		Address:               vaultAddr,
		Shares:                n.shares,
		Cash:                  n.cash,
		Pool:                  n.pool,
		Liabilities:           n.ledger,
		Access:                n.roles,
		Journal:               j,
		Logger:                logger.Named("vault"),
		StandardQuotaRatioBps: cfg.Vault.StandardQuotaRatioBps,
		EmergencyQuota:        quota,
		EmergencyMode:         cfg.Vault.EmergencyMode,
	})
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	n.kv, err = backend.NewManager(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	db, err := n.kv.OpenDB(stateDBName)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	n.vouchers = voucher.NewRegistry()
	n.store, err = statestore.New(statestore.Config{
		DB:          db,
		Compression: cfg.Storage.Compression,
		Tokens:      []statestore.TokenLedger{n.shares, n.cash},
		Pool:        n.pool,
		Vouchers:    n.vouchers,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Audit.Enabled() {
		n.audit, err = audit.Open(ctx, audit.Config{Driver: cfg.Audit.Driver, DSN: cfg.Audit.DSN}, logger)
		if err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
	}

	params, err := cfg.Redemption.EngineParams(decimals)
	if err != nil {
		return nil, err
	}
	engineCfg := redemption.Config{
		Address:     engineAddr,
		Vault:       n.vault,
		Liabilities: n.ledger,
		Pool:        n.pool,
		Access:      n.roles,
		Clock:       n.clock,
		Journal:     j,
		Params:      params,
		Events:      redemption.NewLogSink(logger.Named("events")),
		Metrics:     redemption.NewMetrics(n.registry),
		Store:       n.store,
		Logger:      logger,
	}
	if cfg.Redemption.VouchersEnabled {
		engineCfg.Vouchers = n.vouchers
	}
	if n.audit != nil {
		engineCfg.Audit = n.audit
	}
	n.engine, err = redemption.New(engineCfg)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	cp, err := n.store.Load(ctx)
	switch {
	case errors.Is(err, statestore.ErrNoState):
		logger.Info("no persisted state, starting empty")
	case err != nil:
		return nil, fmt.Errorf("load state: %w", err)
	default:
		if err := n.engine.Restore(cp); err != nil {
			return nil, fmt.Errorf("restore engine: %w", err)
		}
	}

	n.serial = redemption.NewSerialized(n.engine)
	return n, nil
}

// buildRoles grants the configured capabilities. The engine's own address
// always holds the operator capability.
func buildRoles(cfg *config.Config, engine types.Address) *access.Registry {
	roles := access.NewRegistry()
	roles.Grant(engine, access.CapOperator)
	grant := func(list []string, c access.Capability) {
		for _, addr := range list {
			roles.Grant(types.Address(addr), c)
		}
	}
	grant(cfg.Roles.Admins, access.CapAdmin)
	grant(cfg.Roles.Approvers, access.CapApprover)
	grant(cfg.Roles.FeeCollectors, access.CapFeeCollector)
	grant(cfg.Roles.LiabilityRecovery, access.CapLiabilityRecovery)
	grant(cfg.Roles.AssetManagers, access.CapAssetManager)
	return roles
}

func (n *node) close() {
	if n.audit != nil {
		if err := n.audit.Close(); err != nil {
			n.logger.Warn("close audit log", zap.Error(err))
		}
	}
	if n.kv != nil {
		if err := n.kv.Close(); err != nil {
			n.logger.Warn("close storage", zap.Error(err))
		}
	}
}
