package room

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/models"
	"github.com/wfunc/durak/network"
	"github.com/wfunc/durak/randomness"
	"github.com/wfunc/durak/services"
	"github.com/wfunc/durak/session"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func newTestSession(addr string) *session.Session {
	return session.NewSession("conn-"+addr, addr, &MockConnection{})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fakeScheduler holds armed callbacks until the test fires them.
type fakeScheduler struct {
	mu      sync.Mutex
	pending map[string]func()
	delays  map[string]time.Duration
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{pending: make(map[string]func()), delays: make(map[string]time.Duration)}
}

func (s *fakeScheduler) Arm(key string, delay time.Duration, callback func()) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = callback
	s.delays[key] = delay
	return int64(len(s.pending))
}

func (s *fakeScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	delete(s.pending, key)
	return ok
}

func (s *fakeScheduler) armed(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return s.delays[key], ok
}

func (s *fakeScheduler) fire(t *testing.T, key string) {
	t.Helper()
	s.mu.Lock()
	cb, ok := s.pending[key]
	delete(s.pending, key)
	s.mu.Unlock()
	if !ok {
		t.Fatalf("no timer armed for %s", key)
	}
	cb()
}

type fakeSettler struct {
	mu       sync.Mutex
	outcomes []services.Outcome
	err      error
}

func (f *fakeSettler) Settle(_ context.Context, o services.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.outcomes = append(f.outcomes, o)
	return nil
}

type fakeStore struct {
	mu          sync.Mutex
	checkpoints []models.Checkpoint
}

func (f *fakeStore) SaveCheckpoint(_ context.Context, cp models.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints = append(f.checkpoints, cp)
	return nil
}

func (f *fakeStore) last() models.Checkpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkpoints[len(f.checkpoints)-1]
}

type fakeNotifier struct {
	mu      sync.Mutex
	updates []Update
}

func (f *fakeNotifier) Notify(u Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

func (f *fakeNotifier) notices() []durak.Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []durak.Notice
	for _, u := range f.updates {
		out = append(out, u.Effects.Notices...)
	}
	return out
}

type fakeRecorder struct {
	mu       sync.Mutex
	events   int
	rejected map[string]int
	started  int
	finished int
}

func (f *fakeRecorder) ObserveEvent(string, time.Duration) {
	f.mu.Lock()
	f.events++
	f.mu.Unlock()
}

func (f *fakeRecorder) IncRejected(code string) {
	f.mu.Lock()
	if f.rejected == nil {
		f.rejected = make(map[string]int)
	}
	f.rejected[code]++
	f.mu.Unlock()
}

func (f *fakeRecorder) IncGamesStarted() {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
}

func (f *fakeRecorder) IncGamesFinished() {
	f.mu.Lock()
	f.finished++
	f.mu.Unlock()
}

// fixture wires a table to fakes and a seeded randomness service.
type fixture struct {
	table    *Table
	rnd      *randomness.Service
	clock    *fakeClock
	sched    *fakeScheduler
	settler  *fakeSettler
	store    *fakeStore
	notifier *fakeNotifier
	recorder *fakeRecorder
}

func (f *fixture) options() []TableOption {
	return []TableOption{
		WithClock(f.clock.Now),
		WithScheduler(f.sched),
		WithSettler(f.settler),
		WithStore(f.store),
		WithNotifier(f.notifier),
		WithRecorder(f.recorder),
	}
}

func newFixture(t *testing.T, rules durak.Rules) *fixture {
	t.Helper()
	f := &fixture{
		rnd:      randomness.New(randomness.WithSeed([]byte(t.Name()))),
		clock:    newFakeClock(),
		sched:    newFakeScheduler(),
		settler:  &fakeSettler{},
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
		recorder: &fakeRecorder{},
	}
	table, err := NewTable("room-1", rules, f.rnd, f.options()...)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	f.table = table
	return f
}

func (f *fixture) seat(t *testing.T, addrs ...string) {
	t.Helper()
	for _, addr := range addrs {
		if err := f.table.Seat(context.Background(), addr); err != nil {
			t.Fatalf("Seat(%s) failed: %v", addr, err)
		}
	}
}

func (f *fixture) act(addr string, a durak.Action) error {
	payload, err := durak.EncodeAction(a)
	if err != nil {
		return err
	}
	return f.table.Apply(context.Background(), durak.PlayerAction{Addr: addr, Payload: payload})
}

// hand returns the cards addr holds, lowest rank first.
func (f *fixture) hand(t *testing.T, s *durak.Session, addr string) []durak.Card {
	t.Helper()
	p, ok := s.Player(addr)
	if !ok {
		t.Fatalf("%s is not seated", addr)
	}
	known, err := f.rnd.Revealed(s.RandomID)
	if err != nil {
		t.Fatalf("Revealed failed: %v", err)
	}
	owned, err := f.rnd.Owned(s.RandomID, addr)
	if err != nil {
		t.Fatalf("Owned failed: %v", err)
	}
	for slot, v := range owned {
		known[slot] = v
	}
	cards := make([]durak.Card, 0, len(p.Slots))
	for _, slot := range p.Slots {
		cards = append(cards, durak.Card{Slot: slot, Value: known[slot]})
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Rank() < cards[j].Rank() })
	return cards
}

// step plays one simple legal move: defend the first open attack with the
// lowest card that beats it or take, attack with the lowest card, and call
// beated once everything is covered.
func (f *fixture) step(t *testing.T) error {
	t.Helper()
	s := f.table.Session()
	attacker, _ := s.Holder(durak.RoleAttacker)
	defender, _ := s.Holder(durak.RoleDefender)

	switch s.Stage {
	case durak.StageEndOfRound:
		return f.act(attacker, durak.BeatedAction{})
	case durak.StageActing:
		for i, a := range s.Attacks {
			if a.State != durak.AttackOpen {
				continue
			}
			for _, c := range f.hand(t, s, defender) {
				if a.Open.ClosedBy(c, *s.Trump) {
					return f.act(defender, durak.DefendAction{Card: c, Target: i})
				}
			}
			return f.act(defender, durak.TakeAction{})
		}
		if len(s.Attacks) > 0 {
			return f.act(attacker, durak.BeatedAction{})
		}
		return f.act(attacker, durak.AttackAction{Cards: f.hand(t, s, attacker)[:1]})
	}
	return fmt.Errorf("no move in stage %s", s.Stage)
}
