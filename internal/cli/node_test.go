package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/config"
	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/rpc"
	"github.com/LeJamon/goVaultd/internal/storage/audit"
	"github.com/LeJamon/goVaultd/internal/types"
)

const (
	alice types.Address = "alice"
	boss  types.Address = "boss"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig(config.ConfigPaths{})
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Storage.Path = filepath.Join(dir, "state")
	cfg.Audit.Driver = audit.DriverSQLite
	cfg.Audit.DSN = filepath.Join(dir, "audit.db")
	cfg.Roles.Admins = []string{string(boss)}
	cfg.Pool.Assets = []config.AssetConfig{
		{Token: "TBILL", Tier: "money_market", Decimals: 6, MaxSlippageBps: 100, Active: true, Price: "1"},
	}
	return cfg
}

func open(t *testing.T, cfg *config.Config) *node {
	t.Helper()
	n, err := openNode(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	return n
}

func TestNodeRestartKeepsState(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	n := open(t, cfg)
	require.NoError(t, n.cash.Mint(alice, amount.Units(1_000_000, 6)))
	require.NoError(t, n.serial.Do(func(e *redemption.Engine) error {
		_, err := e.Deposit(ctx, alice, amount.Units(1_000_000, 6), alice)
		return err
	}))
	r, err := n.serial.RequestRedemption(ctx, alice, amount.Units(1_000, 6), alice, redemption.ChannelStandard)
	require.NoError(t, err)
	require.NoError(t, n.serial.Do(func(e *redemption.Engine) error {
		return e.SetBaseFeeBps(ctx, boss, 50)
	}))
	n.close()

	n = open(t, cfg)
	defer n.close()
	got, err := n.serial.GetRequest(r.ID)
	require.NoError(t, err)
	assert.Equal(t, redemption.StatusPending, got.Status)
	assert.Equal(t, amount.Units(1_000, 6), got.Shares)
	assert.Equal(t, amount.Units(999_000, 6), n.shares.BalanceOf(alice))
	assert.Equal(t, amount.Units(1_000_000, 6), n.cash.BalanceOf("vault"))
	assert.Equal(t, uint64(50), n.engine.Params().BaseFeeBps)

	entries, err := n.audit.List(ctx, audit.Filter{Actor: boss})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "100", entries[0].Old)
	assert.Equal(t, "50", entries[0].New)
}

func TestNodeRestartKeepsPoolSettings(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Roles.AssetManagers = []string{"manager"}
	ratios := map[pool.Tier]uint64{pool.TierCash: 5000, pool.TierMoneyMarket: 3000, pool.TierHighYield: 2000}

	n := open(t, cfg)
	require.NoError(t, n.serial.Do(func(e *redemption.Engine) error {
		if err := e.SetLayerRatios(ctx, boss, ratios); err != nil {
			return err
		}
		return e.SetAssetActive(ctx, "manager", "TBILL", false)
	}))
	n.close()

	n = open(t, cfg)
	defer n.close()
	assert.Equal(t, ratios, n.pool.LayerRatios())
	asset, ok := n.pool.Asset("TBILL")
	require.True(t, ok)
	assert.False(t, asset.Active)
}

func TestNodeRoles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Roles.Approvers = []string{"reviewer"}
	n := open(t, cfg)
	defer n.close()

	assert.Equal(t, "admin", n.roles.Roles(boss).String())
	assert.Equal(t, "approver", n.roles.Roles("reviewer").String())
	assert.Equal(t, "operator", n.roles.Roles(types.Address(cfg.Vault.Operator)).String())
}

func TestNodeHandler(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Audit.Driver = audit.DriverNone
	n := open(t, cfg)
	defer n.close()

	require.NoError(t, n.cash.Mint(alice, amount.Units(5_000, 6)))
	require.NoError(t, n.serial.Do(func(e *redemption.Engine) error {
		_, err := e.Deposit(ctx, alice, amount.Units(5_000, 6), alice)
		return err
	}))
	_, err := n.serial.RequestRedemption(ctx, alice, amount.Units(500, 6), alice, redemption.ChannelStandard)
	require.NoError(t, err)

	srv := httptest.NewServer(n.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var doc rpc.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()
	assert.Equal(t, "5000", doc.RawCash)
	assert.Equal(t, "500", doc.TotalRedemptionLiability)
	assert.Equal(t, uint64(1), doc.RequestCount)
	assert.False(t, doc.Paused)

	resp, err = http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "vaultd_")
}

// call posts one JSON-RPC request and returns its result object.
func call(t *testing.T, url, method string, params map[string]interface{}) map[string]interface{} {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"method": method,
		"params": []interface{}{params},
	})
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Result map[string]interface{} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Result
}

func TestNodeRPCRedemptionLifecycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Driver = audit.DriverNone
	cfg.Roles.Approvers = []string{"reviewer"}
	n := open(t, cfg)
	defer n.close()
	n.clock.Set(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, n.cash.Mint(alice, amount.Units(5_000, 6)))

	srv := httptest.NewServer(n.handler())
	defer srv.Close()

	res := call(t, srv.URL, "deposit", map[string]interface{}{"caller": "alice", "assets": "5000"})
	require.Equal(t, "success", res["status"], res)
	assert.Equal(t, "alice", res["receiver"])
	assert.True(t, n.shares.BalanceOf(alice).Sign() > 0)

	// 2000 is above 20% of the standard quota, so it parks for approval.
	res = call(t, srv.URL, "request_redemption", map[string]interface{}{"caller": "alice", "shares": "2000"})
	require.Equal(t, "success", res["status"], res)
	req := res["redemption"].(map[string]interface{})
	assert.Equal(t, "PENDING_APPROVAL", req["status"])
	id := req["id"]

	res = call(t, srv.URL, "pending_approvals", nil)
	require.Equal(t, "success", res["status"])
	assert.Len(t, res["redemptions"], 1)

	res = call(t, srv.URL, "approve_redemption", map[string]interface{}{"caller": "alice", "id": id})
	assert.Equal(t, "error", res["status"])
	assert.Equal(t, "authorization", res["error"])
	assert.Equal(t, float64(rpc.CodeAuthorization), res["error_code"])

	res = call(t, srv.URL, "approve_redemption", map[string]interface{}{"caller": "reviewer", "id": id})
	require.Equal(t, "success", res["status"], res)
	assert.Equal(t, "APPROVED", res["redemption"].(map[string]interface{})["status"])

	res = call(t, srv.URL, "settle_redemption", map[string]interface{}{"caller": "keeper", "id": id})
	assert.Equal(t, "temporal_guard", res["error"])

	n.clock.Advance(8 * 24 * time.Hour)
	res = call(t, srv.URL, "settle_redemption", map[string]interface{}{"caller": "keeper", "id": id})
	require.Equal(t, "success", res["status"], res)
	st := res["settlement"].(map[string]interface{})
	assert.Equal(t, "SETTLED", st["request"].(map[string]interface{})["status"])
	payout, err := amount.ParseUnits(st["payout"].(string), 6)
	require.NoError(t, err)
	assert.Equal(t, payout, n.cash.BalanceOf(alice))

	got, err := n.serial.GetRequest(uint64(id.(float64)))
	require.NoError(t, err)
	assert.Equal(t, redemption.StatusSettled, got.Status)
}

func TestNodeRPCErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Driver = audit.DriverNone
	n := open(t, cfg)
	defer n.close()

	srv := httptest.NewServer(n.handler())
	defer srv.Close()

	res := call(t, srv.URL, "mint_everything", nil)
	assert.Equal(t, "error", res["status"])
	assert.Equal(t, "unknownCmd", res["error"])

	res = call(t, srv.URL, "pause", map[string]interface{}{})
	assert.Equal(t, "invalidParams", res["error"])
	assert.False(t, n.engine.Paused())

	res = call(t, srv.URL, "pause", map[string]interface{}{"caller": "alice"})
	assert.Equal(t, "authorization", res["error"])
	assert.Equal(t, "pause", res["request"].(map[string]interface{})["command"])

	res = call(t, srv.URL, "pause", map[string]interface{}{"caller": "boss"})
	assert.Equal(t, "success", res["status"])
	assert.True(t, n.engine.Paused())

	// Mutating methods are POST only.
	resp, err := http.Get(srv.URL + "/?command=unpause")
	require.NoError(t, err)
	var out struct {
		Result map[string]interface{} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, "notQuery", out.Result["error"])
	assert.True(t, n.engine.Paused())

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	out.Result = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, "success", out.Result["status"])
	assert.Equal(t, true, out.Result["info"].(map[string]interface{})["paused"])
}

func TestNewLoggerFlags(t *testing.T) {
	defer func() { debugLog, quiet = false, false }()

	logger, err := newLogger(config.LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))

	debugLog = true
	logger, err = newLogger(config.LogConfig{Level: "info", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	debugLog, quiet = false, true
	logger, err = newLogger(config.LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = newLogger(config.LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
