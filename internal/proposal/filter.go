package proposal

import "sort"

// Candidate is a proposal as seen by the monitor.
type Candidate struct {
	ID    uint64
	Topic int
}

// CandidatesFrom maps governance documents to candidates.
func CandidatesFrom(list []GovernanceProposal) []Candidate {
	out := make([]Candidate, 0, len(list))
	for _, g := range list {
		out = append(out, Candidate{ID: g.ProposalID, Topic: g.TopicID()})
	}
	return out
}

// Eligible returns the ids of candidates whose topic is tracked, whose id is
// at least minID and that are not already dispatched. The result is
// ascending and free of duplicates.
func Eligible(candidates []Candidate, trackedTopics []int, dispatched []uint64, minID uint64) []uint64 {
	tracked := make(map[int]struct{}, len(trackedTopics))
	for _, t := range trackedTopics {
		tracked[t] = struct{}{}
	}
	seen := make(map[uint64]struct{}, len(dispatched))
	for _, id := range dispatched {
		seen[id] = struct{}{}
	}

	var ids []uint64
	for _, c := range candidates {
		if _, ok := tracked[c.Topic]; !ok {
			continue
		}
		if c.ID < minID {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		ids = append(ids, c.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
