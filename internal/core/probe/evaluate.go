package probe

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/solatis/dispatchkeeper/internal/core/cache"
	"github.com/solatis/dispatchkeeper/internal/rules"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// ctxCheckInterval is how many alerts are replayed between cancellation checks.
const ctxCheckInterval = 1024

// candidate is one group taking part in a replay.
type candidate struct {
	info   types.GroupInfo
	rules  []types.RuleParams
	chains []*rules.CompiledChain // nil entries never match (disabled or broken)
}

// Evaluate replays the alerts of window through the stored groups as
// modified by req.
//
// Groups are tried highest priority first; on equal priority the probed
// group goes first. The first group with a matching rule claims the alert,
// and inside that group the first matching rule counts the hit.
func (s *Service) Evaluate(ctx context.Context, req types.DebugRequest, window types.TimeWindow) (types.DebugResponse, error) {
	if err := validateRequest(req, window, s.cfg.MaxRules); err != nil {
		return types.DebugResponse{}, err
	}

	stored, err := s.store.ListGroups(ctx)
	if err != nil {
		return types.DebugResponse{}, err
	}

	// Only closed windows are cacheable; an open one still gains alerts.
	var key string
	if s.cache != nil && !window.End.After(s.now()) {
		if key, err = cache.Key(req, window, stored); err != nil {
			return types.DebugResponse{}, err
		}
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("probe cache lookup failed", zap.Error(err))
		}
		s.metrics.CacheLookup(cached != nil)
		if cached != nil {
			return *cached, nil
		}
	}

	candidates, err := s.candidates(ctx, req, stored)
	if err != nil {
		return types.DebugResponse{}, err
	}

	alerts, err := s.store.ListAlerts(ctx, window, s.cfg.MaxAlerts)
	if err != nil {
		return types.DebugResponse{}, err
	}

	resp, err := replay(ctx, candidates, alerts)
	if err != nil {
		return types.DebugResponse{}, err
	}
	s.metrics.ObserveDebug(resp)

	if key != "" {
		if err := s.cache.Set(ctx, key, resp); err != nil {
			s.logger.Warn("probe cache store failed", zap.Error(err))
		}
	}
	return resp, nil
}

// validateRequest rejects windows and payloads that cannot be replayed.
func validateRequest(req types.DebugRequest, window types.TimeWindow, maxRules int) error {
	if !window.End.After(window.Start) {
		return types.ErrInvalidWindow
	}
	if req.IsDeletion() {
		return nil
	}
	if req.AssignGroupID == 0 && req.GroupName == "" && len(req.Rules) == 0 {
		return types.ErrNothingToDebug
	}
	if req.Priority != 0 || req.AssignGroupID == 0 {
		if req.Priority < types.MinPriority || req.Priority > types.MaxPriority {
			return fmt.Errorf("%w: %d", types.ErrInvalidPriority, req.Priority)
		}
	}
	if len(req.Rules) > maxRules {
		return fmt.Errorf("%w: %d > %d", types.ErrTooManyRules, len(req.Rules), maxRules)
	}
	return rules.ValidateRules(req.Rules)
}

// candidates assembles the groups of a replay in evaluation order.
func (s *Service) candidates(ctx context.Context, req types.DebugRequest, stored []types.GroupInfo) ([]candidate, error) {
	excluded := make(map[int64]bool, len(req.ExcludeGroups))
	for _, id := range req.ExcludeGroups {
		excluded[id] = true
	}

	var out []candidate
	probing := !req.IsDeletion()
	if probing {
		info := types.GroupInfo{ID: req.AssignGroupID, Name: req.GroupName, Priority: req.Priority, Settings: req.Settings}
		for _, g := range stored {
			if req.AssignGroupID != 0 && g.ID == req.AssignGroupID {
				if info.Priority == 0 {
					info.Priority = g.Priority
				}
				if info.Name == "" {
					info.Name = g.Name
				}
			}
		}
		c, err := compileCandidate(info, req.Rules)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	for _, g := range stored {
		if excluded[g.ID] || (probing && req.AssignGroupID != 0 && g.ID == req.AssignGroupID) {
			continue
		}
		params, err := s.store.ListRules(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		c, err := compileCandidate(g, params)
		if err != nil {
			// A stored rule that no longer compiles cannot claim alerts.
			s.logger.Warn("skipping uncompilable stored rule", zap.Int64("group_id", g.ID), zap.Error(err))
		}
		out = append(out, c)
	}

	// Stable: the probed group sits first and wins priority ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].info.Priority > out[j].info.Priority
	})
	return out, nil
}

// compileCandidate compiles every enabled rule. On error the failing rule is
// left nil and the first error is returned with the otherwise usable candidate.
func compileCandidate(info types.GroupInfo, params []types.RuleParams) (candidate, error) {
	c := candidate{info: info, rules: params, chains: make([]*rules.CompiledChain, len(params))}
	var firstErr error
	for i, p := range params {
		if !p.IsEnabled {
			continue
		}
		chain, err := rules.CompileChain(p.Conditions)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %d: %w", i, err)
			}
			continue
		}
		c.chains[i] = chain
	}
	return c, firstErr
}

// replay dispatches every alert to the first matching group and rule.
func replay(ctx context.Context, candidates []candidate, alerts []types.Alert) (types.DebugResponse, error) {
	hits := make([][]int, len(candidates))
	for i, c := range candidates {
		hits[i] = make([]int, len(c.rules))
	}

	resp := types.DebugResponse{TotalAlerts: len(alerts)}
	for n, alert := range alerts {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return types.DebugResponse{}, err
			}
		}
		if gi, ri, ok := dispatchAlert(candidates, alert.Dimensions); ok {
			hits[gi][ri]++
		} else {
			resp.Unmatched++
		}
	}

	resp.Groups = make([]types.GroupHits, 0, len(candidates))
	for gi, c := range candidates {
		g := types.GroupHits{
			GroupID:   c.info.ID,
			GroupName: c.info.Name,
			Priority:  c.info.Priority,
			Rules:     make([]types.RuleHits, len(c.rules)),
		}
		for ri, p := range c.rules {
			g.Rules[ri] = types.RuleHits{Index: ri, RuleID: p.ID, AlertsCount: hits[gi][ri]}
			g.AlertsCount += hits[gi][ri]
		}
		resp.Groups = append(resp.Groups, g)
	}
	return resp, nil
}

// dispatchAlert returns the group and rule positions that claim dims.
func dispatchAlert(candidates []candidate, dims types.Dimensions) (group, rule int, ok bool) {
	for gi, c := range candidates {
		for ri, chain := range c.chains {
			if chain != nil && rules.Match(chain, dims) {
				return gi, ri, true
			}
		}
	}
	return 0, 0, false
}
