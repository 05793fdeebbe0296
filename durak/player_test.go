package durak

import (
	"errors"
	"testing"
)

func rankOf(n int) *int { return &n }

func seated(roles ...Role) *Session {
	s := &Session{Rules: DefaultRules(len(roles))}
	for i, r := range roles {
		s.Players = append(s.Players, &Player{Addr: string(rune('a' + i)), Position: i, Role: r, Slots: []int{i}})
	}
	return s
}

func addrs(ps []*Player) string {
	out := ""
	for _, p := range ps {
		out += p.Addr
	}
	return out
}

func TestRoster_ActingOrderWraps(t *testing.T) {
	s := seated(RoleAttacker, RoleDefender, RoleCoAttacker, RoleNone)
	if got := addrs(s.actingOrder(2)); got != "cdab" {
		t.Errorf("Expected cdab, got %s", got)
	}
	if got := addrs(s.actingOrder(0)); got != "abcd" {
		t.Errorf("Expected abcd, got %s", got)
	}
}

func TestRoster_RankOrder(t *testing.T) {
	s := seated(RoleAttacker, RoleDefender, RoleCoAttacker, RoleNone)
	s.Players[3].Rank = rankOf(0)
	s.Players[1].Rank = rankOf(1)
	if got := addrs(s.rankOrder()); got != "dbac" {
		t.Errorf("Expected dbac, got %s", got)
	}
}

func TestRoster_InitRoles(t *testing.T) {
	s := seated(RoleNone, RoleNone, RoleNone, RoleNone)
	if err := s.initRoles(); err != nil {
		t.Fatalf("initRoles failed: %v", err)
	}
	want := []Role{RoleAttacker, RoleDefender, RoleCoAttacker, RoleNone}
	for i, p := range s.Players {
		if p.Role != want[i] {
			t.Errorf("seat %d: expected %s, got %s", i, want[i], p.Role)
		}
	}
	if err := (&Session{}).initRoles(); !errors.Is(err, ErrEmptyPlayers) {
		t.Errorf("Expected ErrEmptyPlayers, got %v", err)
	}
}

func TestRoster_RotateRoles(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
		ranks map[int]int
		taken bool
		want  []Role
	}{
		{
			name:  "defended, defender attacks",
			roles: []Role{RoleAttacker, RoleDefender, RoleCoAttacker},
			want:  []Role{RoleCoAttacker, RoleAttacker, RoleDefender},
		},
		{
			name:  "taken, defender skipped",
			roles: []Role{RoleAttacker, RoleDefender, RoleCoAttacker},
			taken: true,
			want:  []Role{RoleDefender, RoleCoAttacker, RoleAttacker},
		},
		{
			name:  "two players taken",
			roles: []Role{RoleAttacker, RoleDefender},
			taken: true,
			want:  []Role{RoleAttacker, RoleDefender},
		},
		{
			name:  "two players defended",
			roles: []Role{RoleAttacker, RoleDefender},
			want:  []Role{RoleDefender, RoleAttacker},
		},
		{
			name:  "four players with a spare seat",
			roles: []Role{RoleAttacker, RoleDefender, RoleCoAttacker, RoleNone},
			want:  []Role{RoleNone, RoleAttacker, RoleDefender, RoleCoAttacker},
		},
		{
			name:  "finished player cleared",
			roles: []Role{RoleAttacker, RoleDefender, RoleCoAttacker},
			ranks: map[int]int{0: 0},
			want:  []Role{RoleNone, RoleAttacker, RoleDefender},
		},
		{
			name:  "taken with a finished co-attacker",
			roles: []Role{RoleAttacker, RoleDefender, RoleCoAttacker, RoleNone},
			ranks: map[int]int{2: 0},
			taken: true,
			want:  []Role{RoleDefender, RoleCoAttacker, RoleNone, RoleAttacker},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seated(tt.roles...)
			for seat, rank := range tt.ranks {
				s.Players[seat].Rank = rankOf(rank)
			}
			if err := s.rotateRoles(tt.taken); err != nil {
				t.Fatalf("rotateRoles failed: %v", err)
			}
			for i, p := range s.Players {
				if p.Role != tt.want[i] {
					t.Errorf("seat %d: expected %s, got %s", i, tt.want[i], p.Role)
				}
			}
		})
	}
}

func TestPlayer_TakeCard(t *testing.T) {
	p := &Player{Addr: "a", Slots: []int{4, 1, 9}}
	if err := p.TakeCard(1); err != nil {
		t.Fatalf("TakeCard failed: %v", err)
	}
	if p.HasSlot(1) || len(p.Slots) != 2 {
		t.Errorf("Expected slot 1 gone, got %v", p.Slots)
	}
	if err := p.TakeCard(1); !errors.Is(err, ErrInvalidCardIndex) {
		t.Errorf("Expected ErrInvalidCardIndex, got %v", err)
	}
	p.AddSlots(0, 7)
	if p.Slots[0] != 0 || p.Slots[len(p.Slots)-1] != 9 {
		t.Errorf("Expected a sorted hand, got %v", p.Slots)
	}
}

func TestRoster_UpdateFinished(t *testing.T) {
	s := seated(RoleNone, RoleAttacker, RoleDefender)
	s.DeckOffset = s.Rules.TrumpSlot()
	s.Players[0].Slots = nil
	s.Players[2].Slots = nil

	if err := s.updateFinished(); err != nil {
		t.Fatalf("updateFinished failed: %v", err)
	}
	// scanning from the attacker at seat 1 reaches seat 2 before seat 0.
	if r := s.Players[2].Rank; r == nil || *r != 0 {
		t.Errorf("Expected c to rank first, got %v", r)
	}
	if r := s.Players[0].Rank; r == nil || *r != 1 {
		t.Errorf("Expected a to rank second, got %v", r)
	}
	if s.Players[1].Ranked() || s.Finished != 2 {
		t.Errorf("Expected only two ranks, finished %d", s.Finished)
	}
}

func TestRoster_UpdateFinishedWaitsForReveal(t *testing.T) {
	s := seated(RoleAttacker, RoleDefender, RoleCoAttacker)
	s.DeckOffset = s.Rules.TrumpSlot()
	s.Players[0].Slots = nil
	s.Attacks = Ledger{NewAttack(0, "s7", "a")}

	if err := s.updateFinished(); err != nil {
		t.Fatalf("updateFinished failed: %v", err)
	}
	if s.Players[0].Ranked() {
		t.Fatal("A player with an unconfirmed card must not rank")
	}

	if err := s.Attacks[0].ConfirmOpen("s7"); err != nil {
		t.Fatal(err)
	}
	if err := s.updateFinished(); err != nil {
		t.Fatalf("updateFinished failed: %v", err)
	}
	if r := s.Players[0].Rank; r == nil || *r != 0 {
		t.Errorf("Expected a to rank once the card confirmed, got %v", r)
	}
}
