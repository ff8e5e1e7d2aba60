package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/NielsdaWheelz/wasmverify/internal/proposal"
	"github.com/NielsdaWheelz/wasmverify/internal/state"
)

// Monitor lists recent proposals and returns the ids newly eligible for
// verification. Every proposal already in the state store counts as
// dispatched. Selected ids are written as pending entries before they are
// returned so a second monitor pass does not select them again.
func (p *Pipeline) Monitor(ctx context.Context) ([]uint64, error) {
	logger := p.logger().With(zap.String("stage", "monitor"))
	list, err := p.Proposals.List(ctx, p.Config.Monitor.Limit)
	if err != nil {
		return nil, err
	}

	titles := make(map[uint64]string, len(list))
	for _, g := range list {
		titles[g.ProposalID] = g.Title
	}

	dispatched := p.State.Load().IDs()
	ids := proposal.Eligible(proposal.CandidatesFrom(list), p.Config.Monitor.Topics, dispatched, p.Config.Monitor.MinProposalID)
	for _, id := range ids {
		patch := state.Patch{Status: state.Ptr(state.StatusPending)}
		if t := titles[id]; t != "" {
			patch.Title = state.Ptr(t)
		}
		if _, err := p.State.Upsert(id, patch); err != nil {
			return nil, err
		}
	}
	if err := p.State.MarkChecked(); err != nil {
		return nil, err
	}

	logger.Info("monitor pass finished",
		zap.Int("listed", len(list)),
		zap.Int("dispatched", len(dispatched)),
		zap.Int("eligible", len(ids)),
	)
	return ids, nil
}
