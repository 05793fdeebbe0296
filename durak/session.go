package durak

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Session is the whole game aggregate for one table. It is owned by a single
// host goroutine and only changed through Handle.
type Session struct {
	Rules      Rules     `json:"rules"`
	Stage      Stage     `json:"stage"`
	RandomID   int       `json:"random_id"`
	DeckOffset int       `json:"deck_offset"`
	Players    []*Player `json:"players"`
	Attacks    Ledger    `json:"attacks"`
	Discarded  []int     `json:"discarded"`
	Trump      *Card     `json:"trump,omitempty"`
	// Awaiting is the player the pending timeout names, Deadline its expiry
	// in unix milliseconds.
	Awaiting     string          `json:"awaiting,omitempty"`
	Deadline     int64           `json:"deadline,omitempty"`
	Finished     int             `json:"finished"`
	ForwardRoles map[string]Role `json:"forward_roles,omitempty"`
}

func NewSession(rules Rules) (*Session, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Session{Rules: rules, Stage: StageWaiting}, nil
}

// Handle applies one event. The handler runs against a copy of the session;
// the copy replaces s only on success, so a rejected event leaves both the
// session and the host untouched.
func Handle(s *Session, env Env, ev Event) (*Effects, error) {
	next := s.clone()
	fx := &Effects{}
	if err := next.handle(env, fx, ev); err != nil {
		return nil, err
	}
	*s = *next
	return fx, nil
}

func (s *Session) handle(env Env, fx *Effects, ev Event) error {
	switch e := ev.(type) {
	case RosterSync:
		return s.syncRoster(fx, e.Joining)
	case StartRequested:
		return s.requestStart(fx)
	case GameStarted:
		return s.initShuffle(fx)
	case ShuffleReady:
		return s.revealTrump(fx)
	case RevealReady:
		return s.revealReady(env, fx)
	case PlayerLeft:
		return s.leave(fx, e.Addr)
	case PlayerActionTimedOut:
		return s.actionTimeout(env, fx, e.Addr)
	case ResetTimedOut:
		return s.resetTimeout(fx)
	case PlayerAction:
		action, err := DecodeAction(e.Payload)
		if err != nil {
			return err
		}
		return s.dispatch(env, fx, e.Addr, action)
	default:
		return ErrUnknownEvent.withf("%T", ev)
	}
}

func (s *Session) moveTo(stage Stage) error {
	if err := stages.ChangeState(&s.Stage, stage); err != nil {
		return ErrIllegalTransition.withf("%v", err)
	}
	return nil
}

func (s *Session) syncRoster(fx *Effects, joining []Joiner) error {
	if s.Stage != StageWaiting {
		return ErrInvalidStage.withf("roster sync in %s", s.Stage)
	}
	if len(s.Players)+len(joining) > s.Rules.NumPlayers {
		return ErrInvalidNumOfPlayers.withf("%d seated, %d joining, table of %d", len(s.Players), len(joining), s.Rules.NumPlayers)
	}
	seen := make(map[string]bool)
	seats := make(map[int]bool)
	for _, p := range s.Players {
		seen[p.Addr] = true
		seats[p.Position] = true
	}
	for _, j := range joining {
		switch {
		case j.Addr == "" || seen[j.Addr]:
			return ErrPlayerExists.withf("%q", j.Addr)
		case j.Position < 0 || j.Position >= s.Rules.MaxSeats || seats[j.Position]:
			return ErrSeatTaken.withf("position %d", j.Position)
		}
		seen[j.Addr] = true
		seats[j.Position] = true
	}

	for _, j := range joining {
		s.Players = append(s.Players, &Player{Addr: j.Addr, Position: j.Position})
	}
	sort.Slice(s.Players, func(i, k int) bool {
		return s.Players[i].Position < s.Players[k].Position
	})
	if len(s.Players) == s.Rules.NumPlayers {
		return s.startGame(fx)
	}
	return nil
}

func (s *Session) requestStart(fx *Effects) error {
	if s.Stage != StageWaiting {
		return ErrInvalidStage.withf("start in %s", s.Stage)
	}
	if len(s.Players) != s.Rules.NumPlayers {
		return ErrInvalidNumOfPlayers.withf("%d of %d seated", len(s.Players), s.Rules.NumPlayers)
	}
	return s.startGame(fx)
}

func (s *Session) startGame(fx *Effects) error {
	if err := s.moveTo(StageShuffling); err != nil {
		return err
	}
	fx.StartGame = true
	return nil
}

func (s *Session) leave(fx *Effects, addr string) error {
	if s.Stage != StageWaiting {
		return ErrInvalidStage.withf("leave in %s", s.Stage)
	}
	for i, p := range s.Players {
		if p.Addr == addr {
			s.Players = append(s.Players[:i], s.Players[i+1:]...)
			fx.Settles = append(fx.Settles, Settle{Kind: SettleEject, Addr: addr})
			fx.Checkpoint = true
			return nil
		}
	}
	return ErrPlayerNotFound.withf("%s", addr)
}

func (s *Session) resetTimeout(fx *Effects) error {
	switch s.Stage {
	case StageEndOfGame:
		s.reset()
		fx.setJoinable(true)
		return nil
	case StageWaiting:
		return nil
	case StageShuffling, StageRevealingTrump, StageDealing, StageActing, StageEndOfRound:
		return ErrInvalidStage.withf("reset in %s", s.Stage)
	default:
		return ErrInvalidStage.withf("unknown stage %d", int(s.Stage))
	}
}

// reset clears the table for the next game. The randomness handle counter
// keeps growing so handles are never reused.
func (s *Session) reset() {
	*s = Session{Rules: s.Rules, Stage: StageWaiting, RandomID: s.RandomID}
}

func (s *Session) clone() *Session {
	c := *s
	c.Players = make([]*Player, len(s.Players))
	for i, p := range s.Players {
		c.Players[i] = p.clone()
	}
	c.Attacks = append(Ledger(nil), s.Attacks...)
	c.Discarded = append([]int(nil), s.Discarded...)
	if s.Trump != nil {
		t := *s.Trump
		c.Trump = &t
	}
	if s.ForwardRoles != nil {
		c.ForwardRoles = make(map[string]Role, len(s.ForwardRoles))
		for k, v := range s.ForwardRoles {
			c.ForwardRoles[k] = v
		}
	}
	return &c
}

// Copy returns a deep copy the host may hand to readers outside the
// session goroutine.
func (s *Session) Copy() *Session {
	return s.clone()
}

// Snapshot encodes the session for checkpoints.
func (s *Session) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

// Restore decodes a snapshot taken with Snapshot.
func Restore(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("durak: restore session: %w", err)
	}
	if err := s.Rules.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Player returns a copy of the seated player with the given address.
func (s *Session) Player(addr string) (Player, bool) {
	p, err := s.playerByAddr(addr)
	if err != nil {
		return Player{}, false
	}
	return *p.clone(), true
}

// Holder returns the address holding role, if anyone does.
func (s *Session) Holder(role Role) (string, bool) {
	p, err := s.playerByRole(role)
	if err != nil {
		return "", false
	}
	return p.Addr, true
}

// RankOrder lists addresses from the best finisher to the worst.
func (s *Session) RankOrder() []string {
	order := s.rankOrder()
	addrs := make([]string, len(order))
	for i, p := range order {
		addrs[i] = p.Addr
	}
	return addrs
}
