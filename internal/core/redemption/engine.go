// Package redemption implements the redemption lifecycle: request,
// approval or rejection, and settlement funded through the liquidity
// waterfall, together with the administrative surface that tunes it.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/access"
	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/journal"
	"github.com/LeJamon/goVaultd/internal/core/liability"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/vault"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/core/voucher"
	"github.com/LeJamon/goVaultd/internal/types"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// AssetPool is the liquidity collaborator used to fund settlements.
type AssetPool interface {
	Liquidate(ctx context.Context, needed *uint256.Int, maxTier pool.Tier) (*uint256.Int, error)
	TierValue(ctx context.Context, tier pool.Tier) (*uint256.Int, error)
	Asset(token string) (pool.AssetConfig, bool)
	LayerRatios() map[pool.Tier]uint64
	SetLayerRatios(ratios map[pool.Tier]uint64) error
	SetAssetActive(token string, active bool) error
}

// Store persists engine checkpoints.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
}

// AuditEntry describes one privileged change.
type AuditEntry struct {
	Actor  types.Address
	Action string
	Target string
	Old    string
	New    string
	At     time.Time
}

// AuditSink records privileged changes.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Config wires an Engine.
type Config struct {
	// Address is the engine's identity on the vault; it must hold the
	// operator capability.
	Address     types.Address
	Vault       *vault.Account
	Liabilities *liability.Ledger
	Pool        AssetPool
	Vouchers    voucher.Issuer
	Access      access.Checker
	Clock       Clock
	Journal     *journal.Journal
	Params      Params
	Events      EventSink
	Metrics     *Metrics
	Store       Store
	Audit       AuditSink
	Logger      *zap.Logger
}

// Engine owns the redemption state machine. It is not safe for concurrent
// use; wrap it with Serialized when several goroutines share it.
type Engine struct {
	address     types.Address
	vault       *vault.Account
	liabilities *liability.Ledger
	pool        AssetPool
	vouchers    voucher.Issuer
	access      access.Checker
	clock       Clock
	journal     *journal.Journal
	events      EventSink
	metrics     *Metrics
	store       Store
	audit       AuditSink
	logger      *zap.Logger

	params       Params
	paused       bool
	nextID       uint64
	requests     map[uint64]*Request
	byOwner      map[types.Address][]uint64
	byVoucher    map[uint64]uint64
	pending      *pendingIndex
	pendingTotal *uint256.Int

	entered bool
	outbox  []Event
	dirty   map[uint64]struct{}
	audits  []AuditEntry
}

// New creates an engine with no requests.
func New(cfg Config) (*Engine, error) {
	if cfg.Address.IsZero() {
		return nil, vaulterr.ErrZeroAddress
	}
	if cfg.Vault == nil || cfg.Liabilities == nil || cfg.Pool == nil || cfg.Clock == nil {
		return nil, fmt.Errorf("redemption: vault, liability ledger, pool and clock are required")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("redemption params: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.New()
	}
	return &Engine{
		address:      cfg.Address,
		vault:        cfg.Vault,
		liabilities:  cfg.Liabilities,
		pool:         cfg.Pool,
		vouchers:     cfg.Vouchers,
		access:       cfg.Access,
		clock:        cfg.Clock,
		journal:      cfg.Journal,
		events:       cfg.Events,
		metrics:      cfg.Metrics,
		store:        cfg.Store,
		audit:        cfg.Audit,
		logger:       cfg.Logger,
		params:       cfg.Params,
		nextID:       1,
		requests:     make(map[uint64]*Request),
		byOwner:      make(map[types.Address][]uint64),
		byVoucher:    make(map[uint64]uint64),
		pending:      newPendingIndex(),
		pendingTotal: amount.Zero(),
		dirty:        make(map[uint64]struct{}),
	}, nil
}

// execute runs fn as one all-or-nothing operation. Re-entry while another
// operation is in flight is rejected. Events, audit records and the
// checkpoint are only emitted once fn's effects are committed.
func (e *Engine) execute(ctx context.Context, op string, fn func() error) error {
	if e.entered {
		return vaulterr.E(op, vaulterr.ErrReentrantCall)
	}
	e.entered = true
	defer func() { e.entered = false }()

	e.journal.Begin()
	if err := fn(); err != nil {
		e.journal.Revert()
		e.outbox = e.outbox[:0]
		e.audits = e.audits[:0]
		var ve *vaulterr.Error
		if errors.As(err, &ve) {
			return err
		}
		return vaulterr.E(op, err)
	}
	e.journal.Commit()

	e.metrics.observe(e.vault.TotalRedemptionLiability(), e.pendingTotal)
	e.flush(ctx)
	return e.persist(ctx, op)
}

func (e *Engine) flush(ctx context.Context) {
	events := e.outbox
	e.outbox = nil
	if e.events != nil {
		for _, ev := range events {
			e.events.Publish(ev)
		}
	}

	entries := e.audits
	e.audits = nil
	if e.audit == nil {
		return
	}
	for _, entry := range entries {
		if err := e.audit.Record(ctx, entry); err != nil {
			e.logger.Error("audit record failed",
				zap.String("action", entry.Action),
				zap.String("actor", entry.Actor.String()),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) persist(ctx context.Context, op string) error {
	if e.store == nil {
		clear(e.dirty)
		return nil
	}
	// Touched requests stay dirty until a save succeeds so a failed write
	// is carried by the next one.
	cp := e.checkpoint(true)
	if err := e.store.Save(ctx, cp); err != nil {
		e.logger.Error("persist checkpoint failed",
			zap.String("op", op),
			zap.Int("unsaved", len(e.dirty)),
			zap.Error(err),
		)
		return fmt.Errorf("%s: persist: %w", op, err)
	}
	clear(e.dirty)
	return nil
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

func (e *Engine) lookup(id uint64) (*Request, error) {
	r, ok := e.requests[id]
	if !ok {
		return nil, vaulterr.Ef("lookup", vaulterr.ErrUnknownRequest, "id %d", id)
	}
	return r, nil
}

// putRequest stores r, recording the previous version for revert.
func (e *Engine) putRequest(r *Request) {
	prev, had := e.requests[r.ID]
	_, wasDirty := e.dirty[r.ID]
	e.requests[r.ID] = r
	e.dirty[r.ID] = struct{}{}
	e.journal.Record(func() {
		if had {
			e.requests[r.ID] = prev
		} else {
			delete(e.requests, r.ID)
		}
		if !wasDirty {
			delete(e.dirty, r.ID)
		}
	})
}

// update applies mutate to a copy of the stored request and stores the copy.
func (e *Engine) update(r *Request, mutate func(*Request)) *Request {
	next := r.Clone()
	mutate(next)
	e.putRequest(next)
	return next
}

func (e *Engine) allocateID() uint64 {
	id := e.nextID
	e.nextID++
	e.journal.Record(func() { e.nextID = id })
	return id
}

func (e *Engine) indexOwner(owner types.Address, id uint64) {
	e.byOwner[owner] = append(e.byOwner[owner], id)
	e.journal.Record(func() {
		ids := e.byOwner[owner]
		if len(ids) <= 1 {
			delete(e.byOwner, owner)
			return
		}
		e.byOwner[owner] = ids[:len(ids)-1]
	})
}

func (e *Engine) linkVoucher(tokenID, requestID uint64) {
	e.byVoucher[tokenID] = requestID
	e.journal.Record(func() { delete(e.byVoucher, tokenID) })
}

func (e *Engine) unlinkVoucher(tokenID uint64) {
	requestID, ok := e.byVoucher[tokenID]
	if !ok {
		return
	}
	delete(e.byVoucher, tokenID)
	e.journal.Record(func() { e.byVoucher[tokenID] = requestID })
}

func (e *Engine) addPendingTotal(v *uint256.Int) error {
	next, err := amount.Add(e.pendingTotal, v)
	if err != nil {
		return err
	}
	e.setPendingTotal(next)
	return nil
}

func (e *Engine) subPendingTotal(v *uint256.Int) error {
	next, err := amount.Sub(e.pendingTotal, v)
	if err != nil {
		return vaulterr.E("pendingTotal", err)
	}
	e.setPendingTotal(next)
	return nil
}

func (e *Engine) setPendingTotal(v *uint256.Int) {
	prev := e.pendingTotal
	e.pendingTotal = v
	e.journal.Record(func() { e.pendingTotal = prev })
}

func (e *Engine) setParams(next Params) {
	prev := e.params
	e.params = next
	e.journal.Record(func() { e.params = prev })
}

func (e *Engine) setPaused(on bool) {
	prev := e.paused
	e.paused = on
	e.journal.Record(func() { e.paused = prev })
}

func (e *Engine) record(actor types.Address, action, target, old, next string) {
	e.audits = append(e.audits, AuditEntry{
		Actor:  actor,
		Action: action,
		Target: target,
		Old:    old,
		New:    next,
		At:     e.now(),
	})
}
