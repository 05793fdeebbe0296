package durak

import "time"

const (
	MinPlayers = 2
	MaxPlayers = 6
)

// Rules holds the per-table constants. They are fixed for the life of a
// session and persisted with it.
type Rules struct {
	NumPlayers        int           `json:"num_players" mapstructure:"num_players"`
	DeckSize          int           `json:"deck_size" mapstructure:"deck_size"`
	MinHandSize       int           `json:"min_hand_size" mapstructure:"min_hand_size"`
	AttackCapacity    int           `json:"attack_capacity" mapstructure:"attack_capacity"`
	MaxSeats          int           `json:"max_seats" mapstructure:"max_seats"`
	BetAmount         uint64        `json:"bet_amount" mapstructure:"bet_amount"`
	ActTimeout        time.Duration `json:"act_timeout" mapstructure:"act_timeout"`
	EndOfRoundTimeout time.Duration `json:"end_of_round_timeout" mapstructure:"end_of_round_timeout"`
	ThrowInTimeout    time.Duration `json:"throw_in_timeout" mapstructure:"throw_in_timeout"`
	ResetTimeout      time.Duration `json:"reset_timeout" mapstructure:"reset_timeout"`
	// OneKindLead limits an opening attack and every co-attack to cards of
	// a single kind. Off by default.
	OneKindLead bool `json:"one_kind_lead" mapstructure:"one_kind_lead"`
}

// DefaultRules picks a 36 card deck for up to four players and the full 52
// card deck above that.
func DefaultRules(numPlayers int) Rules {
	deck := 36
	if numPlayers > 4 {
		deck = 52
	}
	return Rules{
		NumPlayers:        numPlayers,
		DeckSize:          deck,
		MinHandSize:       6,
		AttackCapacity:    6,
		MaxSeats:          MaxPlayers,
		ActTimeout:        20 * time.Second,
		EndOfRoundTimeout: 10 * time.Second,
		ThrowInTimeout:    10 * time.Second,
		ResetTimeout:      30 * time.Second,
	}
}

// TrumpSlot is the last deck slot. It is revealed first and never dealt.
func (r Rules) TrumpSlot() int {
	return r.DeckSize - 1
}

func (r Rules) Validate() error {
	switch {
	case r.NumPlayers < MinPlayers || r.NumPlayers > MaxPlayers:
		return ErrInvalidRules.withf("num_players %d outside [%d, %d]", r.NumPlayers, MinPlayers, MaxPlayers)
	case r.DeckSize%4 != 0 || r.DeckSize > 52:
		return ErrInvalidRules.withf("deck_size %d", r.DeckSize)
	case r.MinHandSize < 1:
		return ErrInvalidRules.withf("min_hand_size %d", r.MinHandSize)
	case r.NumPlayers*r.MinHandSize > r.DeckSize-1:
		return ErrInvalidRules.withf("deck of %d cannot deal %d hands of %d", r.DeckSize, r.NumPlayers, r.MinHandSize)
	case r.AttackCapacity < 1:
		return ErrInvalidRules.withf("attack_capacity %d", r.AttackCapacity)
	case r.MaxSeats < r.NumPlayers:
		return ErrInvalidRules.withf("max_seats %d below num_players %d", r.MaxSeats, r.NumPlayers)
	case r.ActTimeout <= 0 || r.EndOfRoundTimeout <= 0 || r.ThrowInTimeout <= 0 || r.ResetTimeout <= 0:
		return ErrInvalidRules.withf("timeouts must be positive")
	}
	return nil
}
