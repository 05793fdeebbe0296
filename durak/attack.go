package durak

import "fmt"

// AttackState is the position of one ledger entry on its confirmation line:
// ConfirmOpen -> Open -> ConfirmClose -> Closed.
type AttackState int

const (
	AttackConfirmOpen AttackState = iota
	AttackOpen
	AttackConfirmClose
	AttackClosed
)

var attackStateNames = map[AttackState]string{
	AttackConfirmOpen:  "confirm_open",
	AttackOpen:         "open",
	AttackConfirmClose: "confirm_close",
	AttackClosed:       "closed",
}

func (s AttackState) String() string {
	if name, ok := attackStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("attack_state(%d)", int(s))
}

func (s AttackState) MarshalText() ([]byte, error) {
	if _, ok := attackStateNames[s]; !ok {
		return nil, fmt.Errorf("unknown attack state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *AttackState) UnmarshalText(text []byte) error {
	for st, name := range attackStateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown attack state %q", text)
}

// Attack is one contested card. Open is the attacking card and Close the
// covering card; Close is meaningful from ConfirmClose on. While a confirm
// state is pending, the claim fields hold the value the player said they
// played and the slot's Value is still empty.
type Attack struct {
	State      AttackState `json:"state"`
	Open       Card        `json:"open"`
	Close      Card        `json:"close"`
	OpenBy     string      `json:"open_by"`
	CloseBy    string      `json:"close_by,omitempty"`
	OpenClaim  string      `json:"open_claim,omitempty"`
	CloseClaim string      `json:"close_claim,omitempty"`
	Forwarded  bool        `json:"forwarded,omitempty"`
}

func NewAttack(slot int, claim string, by string) Attack {
	return Attack{
		State:     AttackConfirmOpen,
		Open:      Card{Slot: slot},
		OpenClaim: claim,
		OpenBy:    by,
	}
}

func (a *Attack) ConfirmOpen(value string) error {
	if a.State != AttackConfirmOpen {
		return ErrInvalidAttackStatus.withf("confirm open on %s", a.State)
	}
	a.Open.Value = value
	a.OpenClaim = ""
	a.State = AttackOpen
	return nil
}

func (a *Attack) RequestClose(card Card, claim string, by string) error {
	if a.State != AttackOpen {
		return ErrInvalidAttackStatus.withf("close on %s", a.State)
	}
	a.Close = Card{Slot: card.Slot}
	a.CloseClaim = claim
	a.CloseBy = by
	a.State = AttackConfirmClose
	return nil
}

func (a *Attack) ConfirmClose(value string) error {
	if a.State != AttackConfirmClose {
		return ErrInvalidAttackStatus.withf("confirm close on %s", a.State)
	}
	a.Close.Value = value
	a.CloseClaim = ""
	a.State = AttackClosed
	return nil
}

// ReopenClose undoes a pending close, handing the closing slot back.
func (a *Attack) ReopenClose() (int, error) {
	if a.State != AttackConfirmClose {
		return 0, ErrInvalidAttackStatus.withf("reopen on %s", a.State)
	}
	slot := a.Close.Slot
	a.Close = Card{}
	a.CloseClaim = ""
	a.CloseBy = ""
	a.State = AttackOpen
	return slot, nil
}

// CanBeClosedBy is defined on Open entries only.
func (a Attack) CanBeClosedBy(candidate Card, trump Card) (bool, error) {
	if a.State != AttackOpen {
		return false, ErrInvalidAttackStatus.withf("entry is %s", a.State)
	}
	return a.Open.ClosedBy(candidate, trump), nil
}

func (a Attack) Confirmed() bool {
	return a.State == AttackOpen || a.State == AttackClosed
}

// Faces returns the known or claimed face of every card in the entry.
func (a Attack) Faces() []Card {
	open := a.Open
	if a.State == AttackConfirmOpen {
		open.Value = a.OpenClaim
	}
	faces := []Card{open}
	switch a.State {
	case AttackConfirmClose:
		faces = append(faces, Card{Slot: a.Close.Slot, Value: a.CloseClaim})
	case AttackClosed:
		faces = append(faces, a.Close)
	}
	return faces
}

// Slots lists every slot the entry occupies, revealed or not.
func (a Attack) Slots() []int {
	if a.State == AttackConfirmClose || a.State == AttackClosed {
		return []int{a.Open.Slot, a.Close.Slot}
	}
	return []int{a.Open.Slot}
}

// Ledger is the ordered list of attacks in the current round.
type Ledger []Attack

func (l Ledger) AllConfirmed() bool {
	for _, a := range l {
		if !a.Confirmed() {
			return false
		}
	}
	return true
}

func (l Ledger) AllClosed() bool {
	for _, a := range l {
		if a.State != AttackClosed {
			return false
		}
	}
	return true
}

func (l Ledger) AnyOpen() bool {
	for _, a := range l {
		if a.State == AttackOpen {
			return true
		}
	}
	return false
}

// Uncovered counts entries still waiting for a covering card.
func (l Ledger) Uncovered() int {
	n := 0
	for _, a := range l {
		if a.State == AttackConfirmOpen || a.State == AttackOpen {
			n++
		}
	}
	return n
}

// IsValidAttackCard reports whether some entry already shows card's kind.
func (l Ledger) IsValidAttackCard(card Card) bool {
	for _, a := range l {
		for _, face := range a.Faces() {
			if face.SameKind(card) {
				return true
			}
		}
	}
	return false
}

// AwaitsReveal reports whether addr has a card on the table that a reveal
// could still hand back.
func (l Ledger) AwaitsReveal(addr string) bool {
	for _, a := range l {
		switch {
		case a.State == AttackConfirmOpen && a.OpenBy == addr:
			return true
		case a.State == AttackConfirmClose && a.CloseBy == addr:
			return true
		}
	}
	return false
}

func (l Ledger) Slots() []int {
	var slots []int
	for _, a := range l {
		slots = append(slots, a.Slots()...)
	}
	return slots
}

// ForwardKind returns the single kind shared by an all-Open ledger.
func (l Ledger) ForwardKind() (byte, bool) {
	if len(l) == 0 {
		return 0, false
	}
	kind := l[0].Open.Kind()
	for _, a := range l {
		if a.State != AttackOpen || a.Open.Kind() != kind {
			return 0, false
		}
	}
	return kind, true
}
