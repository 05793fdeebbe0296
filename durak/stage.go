package durak

import (
	"fmt"

	"github.com/wfunc/durak/state"
)

type Stage int

const (
	StageWaiting Stage = iota
	StageShuffling
	StageRevealingTrump
	StageDealing
	StageActing
	StageEndOfRound
	StageEndOfGame
)

var stageNames = map[Stage]string{
	StageWaiting:        "waiting",
	StageShuffling:      "shuffling",
	StageRevealingTrump: "revealing_trump",
	StageDealing:        "dealing",
	StageActing:         "acting",
	StageEndOfRound:     "end_of_round",
	StageEndOfGame:      "end_of_game",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	if _, ok := stageNames[s]; !ok {
		return nil, fmt.Errorf("unknown stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}

// stages is the game phase graph. Every stage change goes through it.
var stages = state.NewGraph[Stage]().
	Allow(StageWaiting, StageShuffling).
	Allow(StageShuffling, StageRevealingTrump).
	Allow(StageRevealingTrump, StageDealing).
	Allow(StageDealing, StageActing, StageEndOfGame).
	Allow(StageActing, StageDealing, StageEndOfRound, StageEndOfGame).
	Allow(StageEndOfRound, StageDealing, StageActing, StageEndOfGame).
	Allow(StageEndOfGame, StageWaiting)

type Role int

const (
	RoleNone Role = iota
	RoleAttacker
	RoleDefender
	RoleCoAttacker
)

var roleNames = map[Role]string{
	RoleNone:       "none",
	RoleAttacker:   "attacker",
	RoleDefender:   "defender",
	RoleCoAttacker: "co_attacker",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func (r Role) MarshalText() ([]byte, error) {
	if _, ok := roleNames[r]; !ok {
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	for role, name := range roleNames {
		if name == string(text) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", text)
}

// seatRoles is the role handed out by position in an acting order.
var seatRoles = []Role{RoleAttacker, RoleDefender, RoleCoAttacker}
