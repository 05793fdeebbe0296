package durak

import "time"

// Event is one inbound message for a session. The set is closed.
type Event interface {
	eventName() string
}

// Joiner is a player taking a seat before the game starts.
type Joiner struct {
	Addr     string `json:"addr"`
	Position int    `json:"position"`
}

type (
	RosterSync           struct{ Joining []Joiner }
	StartRequested       struct{}
	GameStarted          struct{}
	ShuffleReady         struct{}
	RevealReady          struct{}
	PlayerLeft           struct{ Addr string }
	PlayerActionTimedOut struct{ Addr string }
	ResetTimedOut        struct{}
	// PlayerAction carries an encoded Action, see DecodeAction.
	PlayerAction struct {
		Addr    string
		Payload []byte
	}
)

func (RosterSync) eventName() string           { return "roster_sync" }
func (StartRequested) eventName() string       { return "start_requested" }
func (GameStarted) eventName() string          { return "game_started" }
func (ShuffleReady) eventName() string         { return "shuffle_ready" }
func (RevealReady) eventName() string          { return "reveal_ready" }
func (PlayerLeft) eventName() string           { return "player_left" }
func (PlayerActionTimedOut) eventName() string { return "player_action_timed_out" }
func (ResetTimedOut) eventName() string        { return "reset_timed_out" }
func (PlayerAction) eventName() string         { return "player_action" }

// EventName is used for logs and metric labels.
func EventName(ev Event) string {
	if ev == nil {
		return "nil"
	}
	return ev.eventName()
}

// Env is the read-only view of the host available while handling an event.
type Env interface {
	Now() time.Time
	// Revealed returns every slot opened so far for a shuffle handle.
	Revealed(handle int) (map[int]string, error)
}

type SettleKind string

const (
	SettleAdd   SettleKind = "add"
	SettleSub   SettleKind = "sub"
	SettleEject SettleKind = "eject"
)

type Settle struct {
	Kind   SettleKind `json:"kind"`
	Addr   string     `json:"addr"`
	Amount uint64     `json:"amount,omitempty"`
}

type Shuffle struct {
	Handle  int
	Options []string
}

type Reveal struct {
	Handle int
	Slots  []int
}

type Assign struct {
	Handle int
	Addr   string
	Slots  []int
}

type Timeout struct {
	Addr     string
	Duration time.Duration
}

type NoticeKind string

const (
	NoticeTake    NoticeKind = "take"
	NoticeBeated  NoticeKind = "beated"
	NoticeMisplay NoticeKind = "misplay"
)

// Notice tells clients about a move they did not send themselves.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Addr string     `json:"addr"`
	Slot int        `json:"slot,omitempty"`
}

// Effects are the outbound calls a handled event asks the host to make, in
// field order. A rejected event produces none.
type Effects struct {
	StartGame  bool
	Joinable   *bool
	Shuffle    *Shuffle
	Assigns    []Assign
	Reveals    []Reveal
	Timeout    *Timeout
	Settles    []Settle
	Checkpoint bool
	ResetTimer time.Duration
	Notices    []Notice
}

func (fx *Effects) setJoinable(v bool) {
	fx.Joinable = &v
}

func (fx *Effects) Empty() bool {
	return !fx.StartGame && fx.Joinable == nil && fx.Shuffle == nil &&
		len(fx.Assigns) == 0 && len(fx.Reveals) == 0 && fx.Timeout == nil &&
		len(fx.Settles) == 0 && !fx.Checkpoint && fx.ResetTimer == 0 && len(fx.Notices) == 0
}
