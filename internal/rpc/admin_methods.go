package rpc

import (
	"encoding/json"
	"time"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/liability"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/types"
)

// mutate runs fn under the engine lock and reports bare success.
func (s *Server) mutate(fn func(e *redemption.Engine) error) (interface{}, *Error) {
	if err := s.vault.Do(fn); err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{}, nil
}

type amountParams struct {
	callerParams
	Amount string `json:"amount"`
}

type bpsParams struct {
	callerParams
	Bps *uint64 `json:"bps"`
}

func (p bpsParams) bps() (uint64, *Error) {
	if p.Bps == nil {
		return 0, ErrorInvalidParams("bps is required")
	}
	return *p.Bps, nil
}

func (s *Server) parseAmount(params json.RawMessage) (types.Address, *uint256.Int, *Error) {
	var p amountParams
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return "", nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return "", nil, rpcErr
	}
	amt, rpcErr := s.units("amount", p.Amount)
	return caller, amt, rpcErr
}

func parseBps(params json.RawMessage) (types.Address, uint64, *Error) {
	var p bpsParams
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return "", 0, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return "", 0, rpcErr
	}
	bps, rpcErr := p.bps()
	return caller, bps, rpcErr
}

func parseCaller(params json.RawMessage) (types.Address, *Error) {
	var p callerParams
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return "", rpcErr
	}
	return p.caller()
}

func (s *Server) deposit(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		Assets   string `json:"assets"`
		Receiver string `json:"receiver"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	assets, rpcErr := s.units("assets", p.Assets)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receiver := types.Address(p.Receiver)
	if receiver.IsZero() {
		receiver = caller
	}

	var shares *uint256.Int
	err := s.vault.Do(func(e *redemption.Engine) error {
		var err error
		shares, err = e.Deposit(ctx, caller, assets, receiver)
		return err
	})
	if err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{"receiver": receiver.String(), "shares": s.format(shares)}, nil
}

func (s *Server) withdrawFees(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		amountParams
		To string `json:"to"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	amt, rpcErr := s.units("amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to := types.Address(p.To)
	if to.IsZero() {
		to = caller
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.WithdrawFees(ctx, caller, to, amt)
	})
}

func (s *Server) invest(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		amountParams
		Token string `json:"token"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	cash, rpcErr := s.units("amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var units *uint256.Int
	err := s.vault.Do(func(e *redemption.Engine) error {
		var err error
		units, err = e.Invest(ctx, caller, p.Token, cash)
		return err
	})
	if err != nil {
		return nil, FromError(err)
	}
	// Asset units use the asset's own decimals, so they are reported raw.
	return map[string]interface{}{"token": p.Token, "units": units.Dec()}, nil
}

func (s *Server) lockMintAssets(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	caller, amt, rpcErr := s.parseAmount(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.LockMintAssets(ctx, caller, amt)
	})
}

func (s *Server) unlockMintAssets(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	caller, amt, rpcErr := s.parseAmount(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.UnlockMintAssets(ctx, caller, amt)
	})
}

func (s *Server) setBaseFee(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	caller, bps, rpcErr := parseBps(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.SetBaseFeeBps(ctx, caller, bps)
	})
}

func (s *Server) setEmergencyPenaltyFee(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	caller, bps, rpcErr := parseBps(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.SetEmergencyPenaltyFeeBps(ctx, caller, bps)
	})
}

func (s *Server) setApprovalThresholds(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		amountParams
		Channel  string  `json:"channel"`
		RatioBps *uint64 `json:"ratio_bps"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	abs, rpcErr := s.units("amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if p.RatioBps == nil {
		return nil, ErrorInvalidParams("ratio_bps is required")
	}
	ch, rpcErr := parseChannel(p.Channel)
	if rpcErr != nil {
		return nil, rpcErr
	}
	ratio := *p.RatioBps
	return s.mutate(func(e *redemption.Engine) error {
		if ch == redemption.ChannelEmergency {
			return e.SetEmergencyApprovalThresholds(ctx, caller, abs, ratio)
		}
		return e.SetStandardApprovalThresholds(ctx, caller, abs, ratio)
	})
}

func (s *Server) setVoucherThreshold(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		Threshold string `json:"threshold"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	d, err := time.ParseDuration(p.Threshold)
	if err != nil {
		return nil, ErrorInvalidParams("threshold: " + err.Error())
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.SetVoucherThreshold(ctx, caller, d)
	})
}

func (s *Server) setStandardQuotaRatio(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	caller, bps, rpcErr := parseBps(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.SetStandardQuotaRatio(ctx, caller, bps)
	})
}

func (s *Server) setEmergencyQuota(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	caller, amt, rpcErr := s.parseAmount(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.SetEmergencyQuota(ctx, caller, amt)
	})
}

func (s *Server) setEmergencyMode(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		Enabled bool `json:"enabled"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.SetEmergencyMode(ctx, caller, p.Enabled)
	})
}

func (s *Server) setLayerRatios(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		Ratios map[string]uint64 `json:"ratios"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	ratios := make(map[pool.Tier]uint64, len(p.Ratios))
	for name, bps := range p.Ratios {
		tier, err := pool.ParseTier(name)
		if err != nil {
			return nil, ErrorInvalidParams("ratios: " + err.Error())
		}
		ratios[tier] = bps
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.SetLayerRatios(ctx, caller, ratios)
	})
}

func (s *Server) setAssetActive(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		Token  string `json:"token"`
		Active bool   `json:"active"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.SetAssetActive(ctx, caller, p.Token, p.Active)
	})
}

func (s *Server) pause(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	caller, rpcErr := parseCaller(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.Pause(ctx, caller)
	})
}

func (s *Server) unpause(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	caller, rpcErr := parseCaller(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.Unpause(ctx, caller)
	})
}

func (s *Server) overrideDailyLiability(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		amountParams
		Day string `json:"day"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	amt, rpcErr := s.units("amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	day, err := time.Parse(time.DateOnly, p.Day)
	if err != nil {
		return nil, ErrorInvalidParams("day: " + err.Error())
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.OverrideDailyLiability(ctx, caller, liability.DayIndex(day), amt)
	})
}

func (s *Server) overrideOverdueLiability(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	caller, amt, rpcErr := s.parseAmount(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.mutate(func(e *redemption.Engine) error {
		return e.OverrideOverdueLiability(ctx, caller, amt)
	})
}
