package durak

import (
	"errors"
	"fmt"
)

// Class separates rejected moves from engine faults.
type Class int

const (
	// ClassPrecondition covers wrong stage, wrong role or an illegal card.
	ClassPrecondition Class = iota
	// ClassInternal means the session broke one of its own invariants.
	ClassInternal
)

func (c Class) String() string {
	if c == ClassInternal {
		return "internal"
	}
	return "precondition"
}

// Error is a named rejection reason. Two errors match under errors.Is when
// their codes are equal, regardless of detail.
type Error struct {
	Code   string
	Class  Class
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "durak: " + e.Code
	}
	return "durak: " + e.Code + ": " + e.Detail
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) withf(format string, args ...any) *Error {
	return &Error{Code: e.Code, Class: e.Class, Detail: fmt.Sprintf(format, args...)}
}

func precondition(code string) *Error { return &Error{Code: code, Class: ClassPrecondition} }
func internal(code string) *Error     { return &Error{Code: code, Class: ClassInternal} }

var (
	ErrInvalidRules          = precondition("invalid_rules")
	ErrInvalidStage          = precondition("invalid_stage")
	ErrInvalidAction         = precondition("invalid_action")
	ErrUnknownEvent          = precondition("unknown_event")
	ErrPlayerNotFound        = precondition("player_not_found")
	ErrPlayerExists          = precondition("player_exists")
	ErrSeatTaken             = precondition("seat_taken")
	ErrInvalidNumOfPlayers   = precondition("invalid_num_of_players")
	ErrPlayerIsNotAttacker   = precondition("player_is_not_attacker")
	ErrPlayerIsNotCoAttacker = precondition("player_is_not_co_attacker")
	ErrPlayerIsNotDefender   = precondition("player_is_not_defender")
	ErrCantAttack            = precondition("cant_attack")
	ErrCantForward           = precondition("cant_forward")
	ErrNoCards               = precondition("no_cards")
	ErrInvalidCardIndex      = precondition("invalid_card_index")
	ErrDuplicateCard         = precondition("duplicate_card")
	ErrInvalidCardValue      = precondition("invalid_card_value")
	ErrCardMismatch          = precondition("card_mismatch")
	ErrNotValidAttackCard    = precondition("not_valid_attack_card")
	ErrInvalidForwardCard    = precondition("invalid_forward_card")
	ErrInvalidDefendCard     = precondition("invalid_defend_card")
	ErrInvalidAttackIndex    = precondition("invalid_attack_index")
	ErrInvalidAttackStatus   = precondition("invalid_attack_status")
	ErrNoAttackSpace         = precondition("no_attack_space")
	ErrNoAttacks             = precondition("no_attacks")
	ErrUnconfirmedCard       = precondition("unconfirmed_card")
	ErrUncoveredAttack       = precondition("uncovered_attack")

	ErrNoTrump                  = internal("no_trump")
	ErrTrumpNotRevealed         = internal("trump_not_revealed")
	ErrNoPlayerFoundByRole      = internal("no_player_found_by_role")
	ErrEmptyPlayers             = internal("empty_players")
	ErrUnexpectedUnrevealedCard = internal("unexpected_unrevealed_card")
	ErrIllegalTransition        = internal("illegal_transition")
	ErrRandomness               = internal("randomness_unavailable")
)

// ClassOf returns the class of an engine error, or false for foreign errors.
func ClassOf(err error) (Class, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return ClassPrecondition, false
}

// CodeOf returns the error code, or "unknown" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "unknown"
}
