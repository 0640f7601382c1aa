package merge

import (
	"testing"

	"github.com/otaviocarvalho/chatsync/internal/model"
)

func direct(id string, participants []string, updatedAt int64) model.Chat {
	return model.Chat{
		ID:             id,
		Kind:           model.KindDirect,
		ParticipantIDs: participants,
		UpdatedAt:      updatedAt,
	}
}

func ids(chats []model.Chat) map[string]bool {
	out := make(map[string]bool, len(chats))
	for _, c := range chats {
		out[c.ID] = true
	}
	return out
}

func TestChatsKeepsNewerByID(t *testing.T) {
	old := direct("1", []string{"a", "b"}, 100)
	old.Name = "old"
	upd := direct("1", []string{"a", "b"}, 200)
	upd.Name = "new"

	got := Chats([]model.Chat{old}, []model.Chat{upd})
	if len(got) != 1 {
		t.Fatalf("got %d chats, want 1", len(got))
	}
	if got[0].Name != "new" {
		t.Errorf("name = %q, want new (later updatedAt wins)", got[0].Name)
	}

	// Reversed inputs give the same winner.
	got = Chats([]model.Chat{upd}, []model.Chat{old})
	if len(got) != 1 || got[0].Name != "new" {
		t.Errorf("reversed merge kept %q, want new", got[0].Name)
	}
}

func TestChatsDropsDuplicateDirectChat(t *testing.T) {
	x := direct("1", []string{"a", "b"}, 100)
	y := direct("2", []string{"b", "a"}, 200) // same pair, different order, newer

	got := Chats([]model.Chat{x}, []model.Chat{y})
	if len(got) != 1 {
		t.Fatalf("got %d chats, want 1", len(got))
	}
	if got[0].ID != "2" {
		t.Errorf("surviving id = %q, want 2 (most recent activity wins the pair)", got[0].ID)
	}
}

func TestChatsGroupChatsNeverCollapse(t *testing.T) {
	g1 := model.Chat{ID: "g1", Kind: model.KindGroup, ParticipantIDs: []string{"a", "b"}, UpdatedAt: 100}
	g2 := model.Chat{ID: "g2", Kind: model.KindGroup, ParticipantIDs: []string{"a", "b"}, UpdatedAt: 200}

	got := Chats([]model.Chat{g1}, []model.Chat{g2})
	if len(got) != 2 {
		t.Fatalf("got %d chats, want 2 (pair-key applies to direct chats only)", len(got))
	}
}

func TestChatsIdempotent(t *testing.T) {
	a := []model.Chat{
		direct("1", []string{"a", "b"}, 100),
		direct("2", []string{"a", "b"}, 200),
		{ID: "3", Kind: model.KindGroup, ParticipantIDs: []string{"a", "b", "c"}, UpdatedAt: 50},
	}
	b := []model.Chat{
		direct("4", []string{"a", "c"}, 300),
	}

	once := Chats(a, b)
	twice := Chats(once, nil)
	if len(once) != len(twice) {
		t.Fatalf("re-merge changed size: %d -> %d", len(once), len(twice))
	}
	want := ids(once)
	for _, c := range twice {
		if !want[c.ID] {
			t.Errorf("re-merge produced unexpected chat %q", c.ID)
		}
	}
}

func TestChatsOrderIndependent(t *testing.T) {
	a := []model.Chat{
		direct("1", []string{"a", "b"}, 100),
		direct("2", []string{"b", "a"}, 200),
		{ID: "3", Kind: model.KindGroup, UpdatedAt: 50},
	}
	reversed := []model.Chat{a[2], a[1], a[0]}

	got1 := ids(Chats(a, nil))
	got2 := ids(Chats(reversed, nil))
	got3 := ids(Chats(nil, a))
	for id := range got1 {
		if !got2[id] || !got3[id] {
			t.Errorf("chat %q missing after reordering inputs", id)
		}
	}
	if len(got1) != len(got2) || len(got1) != len(got3) {
		t.Errorf("sizes differ: %d / %d / %d", len(got1), len(got2), len(got3))
	}
}

func TestChatsTotalOnMalformedInput(t *testing.T) {
	chats := []model.Chat{
		{},                                    // no id at all
		{ID: "1", Kind: model.KindDirect},     // direct with no participants
		{ID: "2", Kind: "weird"},              // unknown kind
		direct("3", []string{"", ""}, 0),      // blank participants
		direct("4", []string{"a", "b"}, 1000), // healthy record
	}

	got := Chats(chats, nil)
	// Records without ids are dropped; everything else survives since no
	// pair-key collides.
	if len(got) != 4 {
		t.Fatalf("got %d chats, want 4", len(got))
	}
	// Malformed records lose ties against real activity.
	winner := Chats([]model.Chat{direct("5", []string{"a", "b"}, 0)}, []model.Chat{direct("4", []string{"a", "b"}, 1000)})
	if len(winner) != 1 || winner[0].ID != "4" {
		t.Errorf("malformed record should lose the pair, got %v", ids(winner))
	}
}

func TestChatsRecencyPrefersLastMessage(t *testing.T) {
	stale := direct("1", []string{"a", "b"}, 100)
	busy := direct("2", []string{"a", "b"}, 50)
	busy.LastMessage = &model.LastMessage{Content: "hi", CreatedAt: 500}

	got := Chats([]model.Chat{stale}, []model.Chat{busy})
	if len(got) != 1 || got[0].ID != "2" {
		t.Errorf("last message time should count as activity, got %v", ids(got))
	}
}

func TestPairKey(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want string
	}{
		{"sorted", []string{"a", "b"}, "a:b"},
		{"unsorted", []string{"b", "a"}, "a:b"},
		{"dedup", []string{"a", "a", "b"}, "a:b"},
		{"blank entries", []string{"", "a"}, "a"},
		{"empty", nil, ""},
		{"all blank", []string{"", ""}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PairKey(tc.in); got != tc.want {
				t.Errorf("PairKey(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSortByRecency(t *testing.T) {
	chats := []model.Chat{
		direct("1", nil, 100),
		direct("2", nil, 300),
		direct("3", nil, 200),
	}
	SortByRecency(chats)
	want := []string{"2", "3", "1"}
	for i, id := range want {
		if chats[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, chats[i].ID, id)
		}
	}
}
