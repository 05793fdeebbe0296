package durak

import (
	"errors"
	"testing"
	"time"
)

// threePlayerDeck: alice slots 0-5, bob 6-11, carol 12-17, diamonds trump.
func threePlayerDeck() []string {
	return arrange(36, "dk",
		"s7", "h8", "c9", "c6", "h6", "s6",
		"sj", "h7", "ca", "d7", "h9", "c7",
		"sq", "hq", "s9", "d8", "ha", "c8",
	)
}

func startThreePlayer(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, DefaultRules(3), threePlayerDeck())
	h.seat("alice", "bob", "carol")
	return h
}

func TestDispatch_ThreePlayerRoles(t *testing.T) {
	h := startThreePlayer(t)
	if h.role("alice") != RoleAttacker || h.role("bob") != RoleDefender || h.role("carol") != RoleCoAttacker {
		t.Fatalf("Unexpected roles alice=%s bob=%s carol=%s", h.role("alice"), h.role("bob"), h.role("carol"))
	}
	for _, addr := range []string{"alice", "bob", "carol"} {
		if n := len(h.player(addr).Slots); n != 6 {
			t.Errorf("Expected %s to hold 6, got %d", addr, n)
		}
	}
}

func TestDispatch_DefendRules(t *testing.T) {
	h := startTwoPlayer(t)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(0)}})

	if err := h.act("bob", DefendAction{Card: h.card(7), Target: 0}); !errors.Is(err, ErrInvalidDefendCard) {
		t.Fatalf("h7 must not cover s7, got %v", err)
	}
	// d7 is a trump.
	h.mustAct("bob", DefendAction{Card: h.card(9), Target: 0})
	if err := h.act("bob", DefendAction{Card: h.card(6), Target: 0}); !errors.Is(err, ErrInvalidAttackStatus) {
		t.Fatalf("Expected ErrInvalidAttackStatus on a closed entry, got %v", err)
	}
}

func TestDispatch_AttackMustMatchTable(t *testing.T) {
	h := startTwoPlayer(t)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(3)}})

	if err := h.act("alice", AttackAction{Cards: []Card{h.card(1)}}); !errors.Is(err, ErrNotValidAttackCard) {
		t.Fatalf("h8 does not match c6, got %v", err)
	}
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(4)}})
	if len(h.s.Attacks) != 2 {
		t.Errorf("Expected two attacks, got %d", len(h.s.Attacks))
	}
}

func TestDispatch_NoAttackSpace(t *testing.T) {
	rules := DefaultRules(2)
	rules.AttackCapacity = 2
	h := newHarness(t, rules, twoPlayerDeck())
	h.seat("alice", "bob")

	err := h.act("alice", AttackAction{Cards: []Card{h.card(3), h.card(4), h.card(5)}})
	if !errors.Is(err, ErrNoAttackSpace) {
		t.Fatalf("Expected ErrNoAttackSpace, got %v", err)
	}
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(3), h.card(4)}})
	if err := h.act("alice", AttackAction{Cards: []Card{h.card(5)}}); !errors.Is(err, ErrCantAttack) {
		t.Fatalf("Expected ErrCantAttack on a full table, got %v", err)
	}
}

func TestDispatch_CoAttack(t *testing.T) {
	h := startThreePlayer(t)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(0)}})

	if err := h.act("bob", CoAttackAction{Cards: []Card{h.card(6)}}); !errors.Is(err, ErrPlayerIsNotCoAttacker) {
		t.Fatalf("Expected ErrPlayerIsNotCoAttacker, got %v", err)
	}
	// hq and s9 are both new to the table.
	h.mustAct("carol", CoAttackAction{Cards: []Card{h.card(13), h.card(14)}})
	if err := h.act("carol", CoAttackAction{Cards: []Card{h.card(12)}}); !errors.Is(err, ErrNotValidAttackCard) {
		t.Fatalf("sq repeats the queen on the table, got %v", err)
	}
	if len(h.s.Attacks) != 3 || h.s.Attacks[1].OpenBy != "carol" || h.s.Attacks[2].OpenBy != "carol" {
		t.Errorf("Expected carol to own the second and third attacks, got %+v", h.s.Attacks)
	}
}

func TestDispatch_OpeningAttackMixesKinds(t *testing.T) {
	h := startThreePlayer(t)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(0), h.card(1)}})
	if len(h.s.Attacks) != 2 {
		t.Fatalf("Expected s7 and h8 on the table, got %+v", h.s.Attacks)
	}
}

func TestDispatch_OneKindLead(t *testing.T) {
	rules := DefaultRules(3)
	rules.OneKindLead = true
	h := newHarness(t, rules, threePlayerDeck())
	h.seat("alice", "bob", "carol")

	if err := h.act("alice", AttackAction{Cards: []Card{h.card(0), h.card(1)}}); !errors.Is(err, ErrNotValidAttackCard) {
		t.Fatalf("Expected s7 and h8 to be refused together, got %v", err)
	}
	// c6 and h6 share a kind.
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(3), h.card(4)}})
	if err := h.act("carol", CoAttackAction{Cards: []Card{h.card(13), h.card(14)}}); !errors.Is(err, ErrNotValidAttackCard) {
		t.Fatalf("Expected hq and s9 to be refused together, got %v", err)
	}
	h.mustAct("carol", CoAttackAction{Cards: []Card{h.card(13)}})
}

func TestDispatch_Forward(t *testing.T) {
	h := startThreePlayer(t)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(0)}})

	if err := h.act("bob", ForwardAction{Card: h.card(6)}); !errors.Is(err, ErrInvalidForwardCard) {
		t.Fatalf("sj cannot forward a seven, got %v", err)
	}
	if err := h.act("alice", ForwardAction{Card: h.card(1)}); !errors.Is(err, ErrPlayerIsNotDefender) {
		t.Fatalf("Expected ErrPlayerIsNotDefender, got %v", err)
	}

	h.mustAct("bob", ForwardAction{Card: h.card(7)})
	if h.role("bob") != RoleAttacker || h.role("carol") != RoleDefender || h.role("alice") != RoleCoAttacker {
		t.Fatalf("Unexpected roles after forward alice=%s bob=%s carol=%s", h.role("alice"), h.role("bob"), h.role("carol"))
	}
	if len(h.s.Attacks) != 2 || h.s.Attacks[1].State != AttackOpen {
		t.Fatalf("Expected two open attacks, got %+v", h.s.Attacks)
	}
	if h.s.ForwardRoles != nil {
		t.Error("Forward roles should be dropped once the card is confirmed")
	}
	if h.s.Awaiting != "carol" {
		t.Errorf("Expected the new defender to be awaited, got %q", h.s.Awaiting)
	}
}

func TestDispatch_ForwardBlockedOnceDefended(t *testing.T) {
	h := startThreePlayer(t)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(0)}})
	h.mustAct("bob", DefendAction{Card: h.card(6), Target: 0})
	if err := h.act("bob", ForwardAction{Card: h.card(7)}); !errors.Is(err, ErrCantForward) {
		t.Fatalf("Expected ErrCantForward, got %v", err)
	}
}

func TestDispatch_MisplayedAttack(t *testing.T) {
	h := startTwoPlayer(t)
	// slot 0 is s7, alice claims s6.
	h.mustAct("alice", AttackAction{Cards: []Card{{Slot: 0, Value: "s6"}}})

	if len(h.s.Attacks) != 0 {
		t.Fatalf("Expected the misplayed card to leave the table, got %+v", h.s.Attacks)
	}
	if !h.player("alice").HasSlot(0) {
		t.Error("Expected alice to get slot 0 back")
	}
	var found bool
	for _, n := range h.last().Notices {
		if n.Kind == NoticeMisplay && n.Addr == "alice" && n.Slot == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a misplay notice, got %+v", h.last().Notices)
	}
	// The card is public now; a wrong claim is refused up front.
	if err := h.act("alice", AttackAction{Cards: []Card{{Slot: 0, Value: "s6"}}}); !errors.Is(err, ErrCardMismatch) {
		t.Fatalf("Expected ErrCardMismatch, got %v", err)
	}
	h.mustAct("alice", AttackAction{Cards: []Card{{Slot: 0}}})
	if h.s.Attacks[0].State != AttackOpen {
		t.Errorf("A revealed card should open at once, got %s", h.s.Attacks[0].State)
	}
}

func TestDispatch_MisplayedDefense(t *testing.T) {
	h := startTwoPlayer(t)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(0)}})
	// slot 11 is c7, bob claims s8.
	h.mustAct("bob", DefendAction{Card: Card{Slot: 11, Value: "s8"}, Target: 0})

	if h.s.Attacks[0].State != AttackOpen {
		t.Fatalf("Expected the attack to reopen, got %s", h.s.Attacks[0].State)
	}
	if !h.player("bob").HasSlot(11) {
		t.Error("Expected bob to get slot 11 back")
	}
	if h.s.Awaiting != "bob" {
		t.Errorf("Expected bob to be awaited again, got %q", h.s.Awaiting)
	}
}

func TestDispatch_MisplayedForwardRestoresRoles(t *testing.T) {
	h := startThreePlayer(t)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(0)}})
	// slot 6 is sj, bob claims h7.
	h.mustAct("bob", ForwardAction{Card: Card{Slot: 6, Value: "h7"}})

	if h.role("alice") != RoleAttacker || h.role("bob") != RoleDefender || h.role("carol") != RoleCoAttacker {
		t.Fatalf("Expected the original roles back, alice=%s bob=%s carol=%s", h.role("alice"), h.role("bob"), h.role("carol"))
	}
	if len(h.s.Attacks) != 1 || !h.player("bob").HasSlot(6) {
		t.Fatalf("Expected the forward to be undone, ledger %+v", h.s.Attacks)
	}
}

func TestDispatch_RevealsOutOfOrder(t *testing.T) {
	h := startTwoPlayer(t)
	h.holdReveals = true
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(3)}})
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(4)}})
	if len(h.held) != 2 {
		t.Fatalf("Expected two pending reveals, got %d", len(h.held))
	}

	h.release(1)
	if h.s.Attacks[0].State != AttackConfirmOpen || h.s.Attacks[1].State != AttackOpen {
		t.Fatalf("Expected only the second attack confirmed, got %s and %s", h.s.Attacks[0].State, h.s.Attacks[1].State)
	}
	if h.s.Awaiting != "" {
		t.Errorf("No timer should run while a reveal is pending, awaiting %q", h.s.Awaiting)
	}
	if err := h.act("bob", TakeAction{}); !errors.Is(err, ErrUnconfirmedCard) {
		t.Fatalf("Expected ErrUnconfirmedCard, got %v", err)
	}

	h.holdReveals = false
	h.held = []Reveal{{Handle: h.s.RandomID, Slots: []int{3}}}
	h.release(0)
	if !h.s.Attacks.AllConfirmed() || h.s.Awaiting != "bob" {
		t.Fatalf("Expected both confirmed with bob awaited, got %+v awaiting %q", h.s.Attacks, h.s.Awaiting)
	}
}

func TestDispatch_AttackerTimeoutBeats(t *testing.T) {
	h := startTwoPlayer(t)
	h.expire()

	fx := h.last()
	if len(fx.Notices) != 1 || fx.Notices[0] != (Notice{Kind: NoticeBeated, Addr: "alice"}) {
		t.Errorf("Expected a beated notice for alice, got %+v", fx.Notices)
	}
	if h.role("bob") != RoleAttacker {
		t.Errorf("Expected bob to attack after alice timed out, got %s", h.role("bob"))
	}
	if fx.Timeout == nil || fx.Timeout.Addr != "bob" {
		t.Errorf("Expected the new attacker's timer, got %+v", fx.Timeout)
	}
}

func TestDispatch_DefenderTimeoutTakes(t *testing.T) {
	h := startTwoPlayer(t)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(0)}})
	h.expire()

	if h.s.Stage != StageEndOfRound {
		t.Fatalf("Expected end_of_round after bob timed out, got %s", h.s.Stage)
	}
	fx := h.last()
	if len(fx.Notices) != 1 || fx.Notices[0].Kind != NoticeTake {
		t.Errorf("Expected a take notice, got %+v", fx.Notices)
	}
	if fx.Timeout == nil || fx.Timeout.Addr != "alice" {
		t.Errorf("Expected a short timer on the attacker, got %+v", fx.Timeout)
	}

	h.expire()
	if !h.player("bob").HasSlot(0) {
		t.Error("Expected bob to collect the attack")
	}
}

func TestDispatch_StaleTimeouts(t *testing.T) {
	h := startTwoPlayer(t)
	before, _ := h.s.Snapshot()

	h.must(PlayerActionTimedOut{Addr: "bob"})
	h.must(PlayerActionTimedOut{Addr: "alice"}) // before the deadline
	after, _ := h.s.Snapshot()
	if string(before) != string(after) {
		t.Error("Stale timeouts must not change the session")
	}
	if !h.last().Empty() {
		t.Errorf("Expected no effects, got %+v", h.last())
	}

	h.env.now = h.env.now.Add(time.Hour)
	h.mustAct("alice", AttackAction{Cards: []Card{h.card(0)}})
	h.must(PlayerActionTimedOut{Addr: "alice"})
	if h.s.Stage != StageActing || len(h.s.Attacks) != 1 {
		t.Error("A timeout for a superseded timer must be ignored")
	}
}

func TestDispatch_TimeoutBeforeDeal(t *testing.T) {
	s, _ := NewSession(DefaultRules(2))
	env := newFakeEnv(twoPlayerDeck())
	if _, err := Handle(s, env, RosterSync{Joining: []Joiner{{Addr: "a", Position: 0}, {Addr: "b", Position: 1}}}); err != nil {
		t.Fatalf("RosterSync failed: %v", err)
	}
	if _, err := Handle(s, env, PlayerActionTimedOut{Addr: "a"}); !errors.Is(err, ErrInvalidStage) {
		t.Fatalf("Expected ErrInvalidStage in shuffling, got %v", err)
	}
}
