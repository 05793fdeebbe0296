package durak

import (
	"errors"
	"testing"
	"time"
)

// fakeEnv opens slots from a fixed deck layout.
type fakeEnv struct {
	now    time.Time
	deck   []string
	opened map[int]map[int]string
	down   bool
}

func newFakeEnv(deck []string) *fakeEnv {
	return &fakeEnv{
		now:    time.UnixMilli(1_700_000_000_000),
		deck:   deck,
		opened: make(map[int]map[int]string),
	}
}

func (e *fakeEnv) Now() time.Time { return e.now }

func (e *fakeEnv) Revealed(handle int) (map[int]string, error) {
	if e.down {
		return nil, errors.New("randomness down")
	}
	out := make(map[int]string, len(e.opened[handle]))
	for slot, v := range e.opened[handle] {
		out[slot] = v
	}
	return out, nil
}

func (e *fakeEnv) open(handle int, slots []int) {
	if e.opened[handle] == nil {
		e.opened[handle] = make(map[int]string)
	}
	for _, slot := range slots {
		e.opened[handle][slot] = e.deck[slot]
	}
}

// arrange lays out a deck: the given values first, the trump last and the
// remaining standard values in between.
func arrange(size int, trump string, first ...string) []string {
	deck := make([]string, size)
	used := map[string]bool{trump: true}
	copy(deck, first)
	for _, v := range first {
		used[v] = true
	}
	i := len(first)
	for _, v := range StandardDeck(52) {
		if i >= size-1 {
			break
		}
		if !used[v] {
			deck[i] = v
			i++
		}
	}
	deck[size-1] = trump
	return deck
}

// harness plays the host: it answers start, shuffle and reveal requests
// immediately and checks the slot and role invariants after every event.
type harness struct {
	t       *testing.T
	s       *Session
	env     *fakeEnv
	effects []*Effects
	// holdReveals leaves reveal requests unanswered until release is called.
	holdReveals bool
	held        []Reveal
}

func newHarness(t *testing.T, rules Rules, deck []string) *harness {
	t.Helper()
	s, err := NewSession(rules)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return &harness{t: t, s: s, env: newFakeEnv(deck)}
}

// seat starts a game with players at positions 0..n-1.
func (h *harness) seat(addrs ...string) {
	h.t.Helper()
	joining := make([]Joiner, len(addrs))
	for i, a := range addrs {
		joining[i] = Joiner{Addr: a, Position: i}
	}
	h.must(RosterSync{Joining: joining})
}

func (h *harness) send(ev Event) error {
	queue := []Event{ev}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		fx, err := Handle(h.s, h.env, next)
		if err != nil {
			return err
		}
		h.effects = append(h.effects, fx)
		checkInvariants(h.t, h.s)

		if fx.StartGame {
			queue = append(queue, GameStarted{})
		}
		if fx.Shuffle != nil {
			queue = append(queue, ShuffleReady{})
		}
		if h.holdReveals && len(fx.Reveals) > 0 && h.s.Stage != StageRevealingTrump {
			h.held = append(h.held, fx.Reveals...)
			continue
		}
		for _, r := range fx.Reveals {
			h.env.open(r.Handle, r.Slots)
		}
		if len(fx.Reveals) > 0 || len(fx.Assigns) > 0 {
			queue = append(queue, RevealReady{})
		}
	}
	return nil
}

func (h *harness) must(ev Event) {
	h.t.Helper()
	if err := h.send(ev); err != nil {
		h.t.Fatalf("%s failed: %v", EventName(ev), err)
	}
}

func (h *harness) act(addr string, a Action) error {
	h.t.Helper()
	payload, err := EncodeAction(a)
	if err != nil {
		h.t.Fatalf("EncodeAction failed: %v", err)
	}
	return h.send(PlayerAction{Addr: addr, Payload: payload})
}

func (h *harness) mustAct(addr string, a Action) {
	h.t.Helper()
	if err := h.act(addr, a); err != nil {
		h.t.Fatalf("%s by %s failed: %v", ActionName(a), addr, err)
	}
}

// release answers held reveal requests one at a time, in the given order.
func (h *harness) release(order ...int) {
	h.t.Helper()
	held := h.held
	h.held = nil
	for _, i := range order {
		h.env.open(held[i].Handle, held[i].Slots)
		h.must(RevealReady{})
	}
}

// expire fires the pending timeout at its deadline.
func (h *harness) expire() {
	h.t.Helper()
	if h.s.Awaiting == "" {
		h.t.Fatal("No timeout is armed")
	}
	h.env.now = time.UnixMilli(h.s.Deadline)
	h.must(PlayerActionTimedOut{Addr: h.s.Awaiting})
}

func (h *harness) last() *Effects {
	return h.effects[len(h.effects)-1]
}

func (h *harness) card(slot int) Card {
	return Card{Slot: slot, Value: h.env.deck[slot]}
}

func (h *harness) player(addr string) *Player {
	h.t.Helper()
	p, err := h.s.playerByAddr(addr)
	if err != nil {
		h.t.Fatalf("player %s: %v", addr, err)
	}
	return p
}

func (h *harness) role(addr string) Role {
	return h.player(addr).Role
}

func checkInvariants(t *testing.T, s *Session) {
	t.Helper()

	seen := make(map[int]string)
	place := func(slot int, where string) {
		if prev, ok := seen[slot]; ok {
			t.Fatalf("slot %d is in %s and %s", slot, prev, where)
		}
		seen[slot] = where
	}
	for _, p := range s.Players {
		for _, slot := range p.Slots {
			place(slot, "hand of "+p.Addr)
		}
	}
	for _, slot := range s.Attacks.Slots() {
		place(slot, "ledger")
	}
	for _, slot := range s.Discarded {
		place(slot, "discard")
	}
	for slot := s.DeckOffset; slot < s.Rules.TrumpSlot(); slot++ {
		place(slot, "deck")
	}
	place(s.Rules.TrumpSlot(), "trump")
	if len(seen) != s.Rules.DeckSize {
		t.Fatalf("accounted for %d of %d slots", len(seen), s.Rules.DeckSize)
	}

	switch s.Stage {
	case StageDealing, StageActing, StageEndOfRound:
	default:
		return
	}
	counts := make(map[Role]int)
	for _, p := range s.Players {
		counts[p.Role]++
	}
	unranked := s.unranked()
	if unranked < 2 {
		return
	}
	if counts[RoleAttacker] != 1 || counts[RoleDefender] != 1 {
		t.Fatalf("expected one attacker and one defender, got %v", counts)
	}
	if unranked >= 3 && counts[RoleCoAttacker] != 1 {
		t.Fatalf("expected one co-attacker with %d unranked, got %v", unranked, counts)
	}
}
