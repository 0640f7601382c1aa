// Package merge reconciles chat collections into one canonical,
// duplicate-free set. It is pure: inputs are never mutated, outputs are
// fully determined by the inputs, and no call ever fails.
package merge

import (
	"sort"
	"strings"

	"github.com/otaviocarvalho/chatsync/internal/model"
)

// Chats merges two chat collections. For a chat id present in both, the
// record with the more recent activity wins. Direct chats sharing the
// same participant pair collapse to the single most recently active
// record; the losers are dropped entirely. Output order is unspecified.
func Chats(existing, incoming []model.Chat) []model.Chat {
	byID := make(map[string]model.Chat, len(existing)+len(incoming))
	for _, c := range existing {
		if c.ID == "" {
			continue
		}
		byID[c.ID] = pickNewer(byID[c.ID], c)
	}
	for _, c := range incoming {
		if c.ID == "" {
			continue
		}
		byID[c.ID] = pickNewer(byID[c.ID], c)
	}

	// Second pass: one canonical direct chat per participant pair.
	winners := make(map[string]string, len(byID))
	for id, c := range byID {
		if c.Kind != model.KindDirect {
			continue
		}
		key := PairKey(c.ParticipantIDs)
		if key == "" {
			continue
		}
		cur, ok := winners[key]
		if !ok || newer(c, byID[cur]) {
			winners[key] = id
		}
	}

	out := make([]model.Chat, 0, len(byID))
	for id, c := range byID {
		if c.Kind == model.KindDirect {
			if key := PairKey(c.ParticipantIDs); key != "" && winners[key] != id {
				continue // duplicate direct chat, a newer record owns the pair
			}
		}
		out = append(out, c)
	}
	return out
}

// PairKey derives the order-independent identity of a direct chat from
// its participant ids. Empty when no participants are known.
func PairKey(participantIDs []string) string {
	if len(participantIDs) == 0 {
		return ""
	}
	ids := make([]string, 0, len(participantIDs))
	seen := make(map[string]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// pickNewer keeps the record with the later activity. The zero Chat has
// recency 0 and an empty id, so it always loses to a real record.
func pickNewer(a, b model.Chat) model.Chat {
	if a.ID == "" {
		return b
	}
	if newer(b, a) {
		return b
	}
	return a
}

// newer reports whether a is strictly more recent than b. Ties keep the
// already-chosen record, which makes the merge stable under re-application.
func newer(a, b model.Chat) bool {
	return a.Recency() > b.Recency()
}

// SortByRecency orders chats most recently active first, with the id as
// a deterministic tie-break. Used by callers re-sorting merge output.
func SortByRecency(chats []model.Chat) {
	sort.Slice(chats, func(i, j int) bool {
		ri, rj := chats[i].Recency(), chats[j].Recency()
		if ri != rj {
			return ri > rj
		}
		return chats[i].ID < chats[j].ID
	})
}
