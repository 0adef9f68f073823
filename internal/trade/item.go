package trade

import "voxeltrade.ai/internal/protocol"

// ItemRecord is one tradeable stack. Records are immutable once staged:
// escrows hold clones, never references into a player's live inventory.
type ItemRecord struct {
	Item  string
	Count int
	Meta  map[string]string
}

func (r ItemRecord) IsZero() bool {
	return r.Item == "" || r.Count <= 0
}

func (r ItemRecord) Clone() ItemRecord {
	out := ItemRecord{Item: r.Item, Count: r.Count}
	if r.Meta != nil {
		out.Meta = make(map[string]string, len(r.Meta))
		for k, v := range r.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

func (r ItemRecord) Stack() protocol.ItemStack {
	return protocol.ItemStack{Item: r.Item, Count: r.Count, Meta: r.Meta}
}

func FromStack(s protocol.ItemStack) ItemRecord {
	return ItemRecord{Item: s.Item, Count: s.Count, Meta: s.Meta}
}
