package rpc

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/types"
)

func (s *Server) vaultInfo(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	info, err := Snapshot(ctx, s.vault, s.decimals)
	if err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{"info": info}, nil
}

func (s *Server) previewRedemption(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		Shares  string `json:"shares"`
		Channel string `json:"channel"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	shares, rpcErr := s.units("shares", p.Shares)
	if rpcErr != nil {
		return nil, rpcErr
	}
	ch, rpcErr := parseChannel(p.Channel)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var pv *redemption.Preview
	err := s.vault.Do(func(e *redemption.Engine) error {
		var err error
		pv, err = e.PreviewRedemption(ctx, shares, ch)
		return err
	})
	if err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{
		"channel":           pv.Channel.String(),
		"shares":            s.format(pv.Shares),
		"nav":               amount.FormatUnits(amount.Or(pv.Nav), amount.PrecisionDecimals),
		"gross_amount":      s.format(pv.GrossAmount),
		"fee":               s.format(pv.Fee),
		"net_amount":        s.format(pv.NetAmount),
		"requires_approval": pv.RequiresApproval,
		"channel_quota":     s.format(pv.ChannelQuota),
		"settlement_delay":  pv.SettlementDelay.String(),
	}, nil
}

func (s *Server) redemption(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		ID uint64 `json:"id"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	r, err := s.vault.GetRequest(p.ID)
	if err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{"redemption": s.requestJSON(r)}, nil
}

func (s *Server) accountRedemptions(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		Account string `json:"account"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Account == "" {
		return nil, ErrorInvalidParams("account is required")
	}

	var out []map[string]interface{}
	_ = s.vault.Do(func(e *redemption.Engine) error {
		for _, r := range e.GetUserRequests(types.Address(p.Account)) {
			out = append(out, s.requestJSON(r))
		}
		return nil
	})
	if out == nil {
		out = []map[string]interface{}{}
	}
	return map[string]interface{}{"account": p.Account, "redemptions": out}, nil
}

func (s *Server) pendingApprovals(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var out []map[string]interface{}
	err := s.vault.Do(func(e *redemption.Engine) error {
		ids := e.GetPendingApprovals()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			r, err := e.GetRequest(id)
			if err != nil {
				return err
			}
			out = append(out, s.requestJSON(r))
		}
		return nil
	})
	if err != nil {
		return nil, FromError(err)
	}
	if out == nil {
		out = []map[string]interface{}{}
	}
	return map[string]interface{}{"redemptions": out}, nil
}

func (s *Server) requestRedemption(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		Shares   string `json:"shares"`
		Receiver string `json:"receiver"`
		Channel  string `json:"channel"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	shares, rpcErr := s.units("shares", p.Shares)
	if rpcErr != nil {
		return nil, rpcErr
	}
	ch, rpcErr := parseChannel(p.Channel)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receiver := types.Address(p.Receiver)
	if receiver.IsZero() {
		receiver = caller
	}

	r, err := s.vault.RequestRedemption(ctx, caller, shares, receiver, ch)
	if err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{"redemption": s.requestJSON(r)}, nil
}

func (s *Server) approveRedemption(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		ID             uint64 `json:"id"`
		SettlementTime string `json:"settlement_time"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}
	var at time.Time
	if p.SettlementTime != "" {
		var err error
		if at, err = time.Parse(time.RFC3339, p.SettlementTime); err != nil {
			return nil, ErrorInvalidParams("settlement_time: " + err.Error())
		}
	}

	r, err := s.vault.ApproveRedemption(ctx, caller, p.ID, at)
	if err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{"redemption": s.requestJSON(r)}, nil
}

func (s *Server) rejectRedemption(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		ID     uint64 `json:"id"`
		Reason string `json:"reason"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}

	r, err := s.vault.RejectRedemption(ctx, caller, p.ID, p.Reason)
	if err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{"redemption": s.requestJSON(r)}, nil
}

func (s *Server) settleRedemption(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		ID uint64 `json:"id"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}

	st, err := s.vault.SettleRedemption(ctx, caller, p.ID)
	if err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{"settlement": s.settlementJSON(st)}, nil
}

func (s *Server) settleVoucher(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		callerParams
		VoucherID uint64 `json:"voucher_id"`
	}
	if rpcErr := parseParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := p.caller()
	if rpcErr != nil {
		return nil, rpcErr
	}

	st, err := s.vault.SettleWithVoucher(ctx, caller, p.VoucherID)
	if err != nil {
		return nil, FromError(err)
	}
	return map[string]interface{}{"settlement": s.settlementJSON(st)}, nil
}
