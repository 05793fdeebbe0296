package durak

import (
	"encoding/json"
	"fmt"
)

// Action is a decoded player move.
type Action interface {
	actionType() string
}

type (
	AttackAction   struct{ Cards []Card }
	CoAttackAction struct{ Cards []Card }
	DefendAction   struct {
		Card   Card
		Target int
	}
	ForwardAction struct{ Card Card }
	TakeAction    struct{}
	BeatedAction  struct{}
)

func (AttackAction) actionType() string   { return "attack" }
func (CoAttackAction) actionType() string { return "coattack" }
func (DefendAction) actionType() string   { return "defend" }
func (ForwardAction) actionType() string  { return "forward" }
func (TakeAction) actionType() string     { return "take" }
func (BeatedAction) actionType() string   { return "beated" }

type wireAction struct {
	Type   string `json:"type"`
	Cards  []Card `json:"cards,omitempty"`
	Card   *Card  `json:"card,omitempty"`
	Target *int   `json:"target,omitempty"`
}

func EncodeAction(a Action) ([]byte, error) {
	w := wireAction{Type: a.actionType()}
	switch v := a.(type) {
	case AttackAction:
		w.Cards = v.Cards
	case CoAttackAction:
		w.Cards = v.Cards
	case DefendAction:
		w.Card = &v.Card
		w.Target = &v.Target
	case ForwardAction:
		w.Card = &v.Card
	case TakeAction, BeatedAction:
	default:
		return nil, fmt.Errorf("durak: unknown action %T", a)
	}
	return json.Marshal(w)
}

func DecodeAction(payload []byte) (Action, error) {
	var w wireAction
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, ErrInvalidAction.withf("%v", err)
	}
	switch w.Type {
	case "attack":
		return AttackAction{Cards: w.Cards}, nil
	case "coattack":
		return CoAttackAction{Cards: w.Cards}, nil
	case "defend":
		if w.Card == nil || w.Target == nil {
			return nil, ErrInvalidAction.withf("defend needs card and target")
		}
		return DefendAction{Card: *w.Card, Target: *w.Target}, nil
	case "forward":
		if w.Card == nil {
			return nil, ErrInvalidAction.withf("forward needs a card")
		}
		return ForwardAction{Card: *w.Card}, nil
	case "take":
		return TakeAction{}, nil
	case "beated":
		return BeatedAction{}, nil
	default:
		return nil, ErrInvalidAction.withf("unknown type %q", w.Type)
	}
}

// ActionName is the wire type of an action.
func ActionName(a Action) string {
	if a == nil {
		return "nil"
	}
	return a.actionType()
}
