package search

import (
	"sort"

	"github.com/kbforge/searchd/internal/db"
)

// fuseRRF merges rankings via Reciprocal Rank Fusion:
// score(d) = sum over rankings of 1/(k + rank(d)), ranks starting at 1.
// The fused order depends only on the ranks within each list, never on the
// order the lists are passed in; ties break on document id.
func fuseRRF(k int, lists ...[]db.Hit) []db.Hit {
	type scored struct {
		hit   db.Hit
		score float64
	}

	merged := make(map[string]*scored)
	for _, list := range lists {
		for rank, h := range list {
			s := 1.0 / float64(k+rank+1)
			if existing, ok := merged[h.ID]; ok {
				existing.score += s
			} else {
				merged[h.ID] = &scored{hit: h, score: s}
			}
		}
	}

	fused := make([]db.Hit, 0, len(merged))
	for _, s := range merged {
		h := s.hit
		h.Score = s.score
		fused = append(fused, h)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})

	return fused
}

// mergeScored unions hit lists by raw score, summing the scores of
// documents present in more than one list. Ties break on document id.
func mergeScored(lists ...[]db.Hit) []db.Hit {
	merged := make(map[string]*db.Hit)
	order := make([]string, 0)
	for _, list := range lists {
		for _, h := range list {
			if existing, ok := merged[h.ID]; ok {
				existing.Score += h.Score
				continue
			}
			h := h
			merged[h.ID] = &h
			order = append(order, h.ID)
		}
	}

	hits := make([]db.Hit, 0, len(order))
	for _, id := range order {
		hits = append(hits, *merged[id])
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	return hits
}
