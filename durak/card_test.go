package durak

import "testing"

func TestCard_ClosedBy(t *testing.T) {
	trump := Card{Slot: 35, Value: "dk"}
	tests := []struct {
		name      string
		open      string
		candidate string
		want      bool
	}{
		{"higher same suit", "s6", "sj", true},
		{"lower kind", "s6", "s5", false},
		{"equal kind", "s9", "s9", false},
		{"trump beats plain ace", "ha", "d6", true},
		{"plain never beats trump", "d6", "ha", false},
		{"higher trump", "d6", "d7", true},
		{"lower trump", "d8", "d7", false},
		{"different plain suits", "s6", "ha", false},
		{"ten below jack", "ct", "cj", true},
		{"king below ace", "hk", "ha", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open := Card{Slot: 1, Value: tt.open}
			candidate := Card{Slot: 2, Value: tt.candidate}
			if got := open.ClosedBy(candidate, trump); got != tt.want {
				t.Errorf("%s closed by %s: expected %v, got %v", tt.open, tt.candidate, tt.want, got)
			}
		})
	}
}

func TestCard_Unrevealed(t *testing.T) {
	c := Card{Slot: 4}
	if c.Revealed() || c.Suit() != 0 || c.Rank() != 0 {
		t.Errorf("An unrevealed card has no face, got %+v", c)
	}
	if c.SameKind(Card{Slot: 5}) {
		t.Error("Two unrevealed cards must not share a kind")
	}
	if c.String() != "#4" {
		t.Errorf("Unexpected String() %q", c.String())
	}
}

func TestValidValue(t *testing.T) {
	for _, v := range []string{"sa", "h6", "dt", "c2"} {
		if !ValidValue(v) {
			t.Errorf("%q should be valid", v)
		}
	}
	for _, v := range []string{"", "s", "x6", "s1", "sa1", "S6"} {
		if ValidValue(v) {
			t.Errorf("%q should be invalid", v)
		}
	}
}

func TestStandardDeck(t *testing.T) {
	for _, size := range []int{36, 52} {
		deck := StandardDeck(size)
		if len(deck) != size {
			t.Fatalf("Expected %d values, got %d", size, len(deck))
		}
		seen := make(map[string]bool)
		for _, v := range deck {
			if !ValidValue(v) || seen[v] {
				t.Fatalf("Bad or duplicate value %q", v)
			}
			seen[v] = true
		}
	}
	deck := StandardDeck(36)
	if deck[0] != "sa" || deck[3] != "ca" || deck[35] != "c6" {
		t.Errorf("Unexpected order %v", deck)
	}
}
