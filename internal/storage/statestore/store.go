// Package statestore persists redemption engine checkpoints in a kv
// backend. Each record is msgpack encoded and framed by a compressor.
//
// Layout:
//
//	meta               next id, pending total, pause flag, params
//	req/<id>           one request, id as 16 hex digits
//	owner/<address>    request ids of one owner
//	pending            pending approval ids in index order
//	vault              vault account scalars and custody buckets
//	liability          day buckets and overdue cache
//	token/<symbol>     balances of an attached token ledger
//	pool               units held per pool asset
//	poolcfg            layer ratios and asset activity flags
//	vouchers           voucher registry contents
package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/ugorji/go/codec"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/core/voucher"
	"github.com/LeJamon/goVaultd/internal/storage/compression"
	"github.com/LeJamon/goVaultd/internal/storage/kv"
	"github.com/LeJamon/goVaultd/internal/types"
)

const formatVersion = 1

var (
	keyMeta      = []byte("meta")
	keyPending   = []byte("pending")
	keyVault     = []byte("vault")
	keyLiability = []byte("liability")
	keyPool      = []byte("pool")
	keyPoolCfg   = []byte("poolcfg")
	keyVouchers  = []byte("vouchers")

	prefixRequest = []byte("req/")
	prefixOwner   = []byte("owner/")
	prefixToken   = []byte("token/")
)

// ErrNoState is returned by Load when nothing was saved yet.
var ErrNoState = errors.New("no persisted state")

// TokenLedger is a balance table that can be captured and replaced.
type TokenLedger interface {
	Symbol() string
	Snapshot() map[types.Address]*uint256.Int
	Restore(map[types.Address]*uint256.Int) error
}

// PoolState is the pool's per-asset unit table and its runtime settings.
type PoolState interface {
	SnapshotHoldings() map[string]*uint256.Int
	RestoreHoldings(map[string]*uint256.Int) error
	SnapshotSettings() pool.Settings
	RestoreSettings(pool.Settings) error
}

// Vouchers is a voucher registry that can be captured and replaced.
type Vouchers interface {
	Snapshot() ([]voucher.Voucher, uint64)
	Restore([]voucher.Voucher, uint64)
}

// Config wires a Store. Tokens, Pool and Vouchers are optional; when set
// their state is written with every checkpoint and restored by Load.
type Config struct {
	DB          kv.DB
	Compression string
	Tokens      []TokenLedger
	Pool        PoolState
	Vouchers    Vouchers
	Logger      *zap.Logger
}

// Store implements redemption.Store.
type Store struct {
	db         kv.DB
	compressor compression.Compressor
	handle     *codec.MsgpackHandle
	tokens     []TokenLedger
	pool       PoolState
	vouchers   Vouchers
	logger     *zap.Logger
}

// New creates a store over cfg.DB.
func New(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, errors.New("statestore: nil database")
	}
	c, err := compression.Get(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("statestore: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return &Store{
		db:         cfg.DB,
		compressor: c,
		handle:     h,
		tokens:     cfg.Tokens,
		pool:       cfg.Pool,
		vouchers:   cfg.Vouchers,
		logger:     logger.Named("statestore"),
	}, nil
}

// Save writes cp and the attached collaborators in one batch. Requests not
// in cp keep their stored version.
func (s *Store) Save(ctx context.Context, cp *redemption.Checkpoint) error {
	if cp == nil {
		return errors.New("statestore: nil checkpoint")
	}
	var ops []kv.BatchOperation
	put := func(key []byte, v interface{}) error {
		b, err := s.encode(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		ops = append(ops, kv.Put(key, b))
		return nil
	}

	meta := metaRecord{
		Version:      formatVersion,
		NextID:       cp.NextID,
		PendingTotal: dec(cp.PendingTotal),
		Paused:       cp.Paused,
		Params:       toParams(cp.Params),
	}
	if err := put(keyMeta, meta); err != nil {
		return err
	}
	for _, r := range cp.Requests {
		if err := put(requestKey(r.ID), toRequest(r)); err != nil {
			return err
		}
	}
	for owner, ids := range cp.Owners {
		if err := put(ownerKey(owner), ids); err != nil {
			return err
		}
	}
	pending := cp.Pending
	if pending == nil {
		pending = []uint64{}
	}
	if err := put(keyPending, pending); err != nil {
		return err
	}
	if err := put(keyVault, toVault(cp.Vault)); err != nil {
		return err
	}
	if err := put(keyLiability, toLiability(cp.Liability)); err != nil {
		return err
	}

	for _, t := range s.tokens {
		if err := put(tokenKey(t.Symbol()), encodeOwners(t.Snapshot())); err != nil {
			return err
		}
	}
	if s.pool != nil {
		holdings := make(map[string]string)
		for token, units := range s.pool.SnapshotHoldings() {
			holdings[token] = dec(units)
		}
		if err := put(keyPool, holdings); err != nil {
			return err
		}
		if err := put(keyPoolCfg, toPoolSettings(s.pool.SnapshotSettings())); err != nil {
			return err
		}
	}
	if s.vouchers != nil {
		if err := put(keyVouchers, toVouchers(s.vouchers.Snapshot())); err != nil {
			return err
		}
	}

	if err := s.db.Batch(ctx, ops); err != nil {
		return fmt.Errorf("statestore: write batch: %w", err)
	}
	s.logger.Debug("checkpoint saved",
		zap.Int("requests", len(cp.Requests)),
		zap.Int("records", len(ops)),
	)
	return nil
}

// Load reads the full checkpoint and restores the attached collaborators.
func (s *Store) Load(ctx context.Context) (*redemption.Checkpoint, error) {
	var meta metaRecord
	if err := s.get(ctx, keyMeta, &meta); err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, ErrNoState
		}
		return nil, err
	}
	if meta.Version != formatVersion {
		return nil, fmt.Errorf("statestore: unsupported format version %d", meta.Version)
	}

	params, err := meta.Params.params()
	if err != nil {
		return nil, err
	}
	pendingTotal, err := parse("pending total", meta.PendingTotal)
	if err != nil {
		return nil, err
	}
	cp := &redemption.Checkpoint{
		NextID:       meta.NextID,
		PendingTotal: pendingTotal,
		Params:       params,
		Paused:       meta.Paused,
		Owners:       make(map[types.Address][]uint64),
	}

	err = s.scan(ctx, prefixRequest, func(_ string, raw []byte) error {
		var rec requestRecord
		if err := s.decode(raw, &rec); err != nil {
			return err
		}
		r, err := rec.request()
		if err != nil {
			return err
		}
		cp.Requests = append(cp.Requests, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan(ctx, prefixOwner, func(owner string, raw []byte) error {
		var ids []uint64
		if err := s.decode(raw, &ids); err != nil {
			return err
		}
		cp.Owners[types.Address(owner)] = ids
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.get(ctx, keyPending, &cp.Pending); err != nil {
		return nil, err
	}

	var vr vaultRecord
	if err := s.get(ctx, keyVault, &vr); err != nil {
		return nil, err
	}
	if cp.Vault, err = vr.state(); err != nil {
		return nil, err
	}

	var lr liabilityRecord
	if err := s.get(ctx, keyLiability, &lr); err != nil {
		return nil, err
	}
	if cp.Liability, err = lr.state(); err != nil {
		return nil, err
	}

	if err := s.restoreCollaborators(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("checkpoint loaded",
		zap.Int("requests", len(cp.Requests)),
		zap.Int("pending", len(cp.Pending)),
		zap.Uint64("nextID", cp.NextID),
	)
	return cp, nil
}

func (s *Store) restoreCollaborators(ctx context.Context) error {
	for _, t := range s.tokens {
		var raw map[string]string
		err := s.get(ctx, tokenKey(t.Symbol()), &raw)
		if errors.Is(err, kv.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		balances, err := decodeOwners(t.Symbol()+" balance", raw)
		if err != nil {
			return err
		}
		if err := t.Restore(balances); err != nil {
			return fmt.Errorf("restore %s balances: %w", t.Symbol(), err)
		}
	}

	if s.pool != nil {
		var raw map[string]string
		err := s.get(ctx, keyPool, &raw)
		switch {
		case errors.Is(err, kv.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			holdings := make(map[string]*uint256.Int, len(raw))
			for token, units := range raw {
				v, err := parse(token+" units", units)
				if err != nil {
					return err
				}
				holdings[token] = v
			}
			if err := s.pool.RestoreHoldings(holdings); err != nil {
				return fmt.Errorf("restore pool holdings: %w", err)
			}
		}

		var rec poolSettingsRecord
		err = s.get(ctx, keyPoolCfg, &rec)
		switch {
		case errors.Is(err, kv.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			settings, err := rec.settings()
			if err != nil {
				return err
			}
			if err := s.pool.RestoreSettings(settings); err != nil {
				return fmt.Errorf("restore pool settings: %w", err)
			}
		}
	}

	if s.vouchers != nil {
		var rec vouchersRecord
		err := s.get(ctx, keyVouchers, &rec)
		switch {
		case errors.Is(err, kv.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			vs, err := rec.vouchers()
			if err != nil {
				return err
			}
			s.vouchers.Restore(vs, rec.NextID)
		}
	}
	return nil
}

func (s *Store) get(ctx context.Context, key []byte, v interface{}) error {
	raw, err := s.db.Read(ctx, key)
	if err != nil {
		return err
	}
	if err := s.decode(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// scan calls fn with the key suffix and value of every record under prefix.
func (s *Store) scan(ctx context.Context, prefix []byte, fn func(suffix string, raw []byte) error) error {
	it, err := s.db.Iterator(ctx, prefix, kv.PrefixEnd(prefix))
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		key := it.Key()
		if err := fn(string(key[len(prefix):]), it.Value()); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return it.Error()
}

func (s *Store) encode(v interface{}) ([]byte, error) {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, s.handle).Encode(v); err != nil {
		return nil, err
	}
	return s.compressor.Compress(buf)
}

func (s *Store) decode(frame []byte, v interface{}) error {
	raw, err := s.compressor.Decompress(frame)
	if err != nil {
		return err
	}
	return codec.NewDecoderBytes(raw, s.handle).Decode(v)
}

func requestKey(id uint64) []byte {
	return append(append([]byte(nil), prefixRequest...), fmt.Sprintf("%016x", id)...)
}

func ownerKey(owner types.Address) []byte {
	return append(append([]byte(nil), prefixOwner...), owner.String()...)
}

func tokenKey(symbol string) []byte {
	return append(append([]byte(nil), prefixToken...), symbol...)
}

var _ redemption.Store = (*Store)(nil)
