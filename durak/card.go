package durak

import (
	"strconv"
	"strings"
)

const (
	suits = "shdc"
	// kinds in ascending order; the rank of a kind is its index plus two.
	kinds = "23456789tjqka"
)

// Card is one deck slot. Value stays empty until the slot is revealed.
type Card struct {
	Slot  int    `json:"slot"`
	Value string `json:"value,omitempty"`
}

func (c Card) Revealed() bool {
	return ValidValue(c.Value)
}

func (c Card) Suit() byte {
	if len(c.Value) != 2 {
		return 0
	}
	return c.Value[0]
}

func (c Card) Kind() byte {
	if len(c.Value) != 2 {
		return 0
	}
	return c.Value[1]
}

// Rank orders kinds from 2 up to the ace (14). Unknown kinds rank 0.
func (c Card) Rank() int {
	return KindRank(c.Kind())
}

func KindRank(kind byte) int {
	i := strings.IndexByte(kinds, kind)
	if i < 0 || kind == 0 {
		return 0
	}
	return i + 2
}

func (c Card) SameKind(other Card) bool {
	return c.Kind() != 0 && c.Kind() == other.Kind()
}

// CoveredBy reports whether other has the same suit and a strictly higher rank.
func (c Card) CoveredBy(other Card) bool {
	return c.Suit() != 0 && c.Suit() == other.Suit() && other.Rank() > c.Rank()
}

func (c Card) IsTrump(trump Card) bool {
	return c.Suit() != 0 && c.Suit() == trump.Suit()
}

// ClosedBy reports whether candidate beats c under the given trump.
func (c Card) ClosedBy(candidate Card, trump Card) bool {
	switch {
	case c.IsTrump(trump):
		return c.CoveredBy(candidate)
	case candidate.IsTrump(trump):
		return true
	default:
		return c.CoveredBy(candidate)
	}
}

func (c Card) String() string {
	if c.Value == "" {
		return "#" + strconv.Itoa(c.Slot)
	}
	return c.Value + "#" + strconv.Itoa(c.Slot)
}

// ValidValue checks a two character face value such as "s7" or "ha".
func ValidValue(v string) bool {
	return len(v) == 2 && strings.IndexByte(suits, v[0]) >= 0 && KindRank(v[1]) > 0
}

// StandardDeck lists face values from aces downwards, four suits per kind,
// until size values are produced. Valid sizes are multiples of four up to 52.
func StandardDeck(size int) []string {
	deck := make([]string, 0, size)
	for k := len(kinds) - 1; k >= 0 && len(deck) < size; k-- {
		for s := 0; s < len(suits) && len(deck) < size; s++ {
			deck = append(deck, string([]byte{suits[s], kinds[k]}))
		}
	}
	return deck
}
