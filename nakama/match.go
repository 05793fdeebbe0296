package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wfunc/durak/broadcast"
	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/network"
	"github.com/wfunc/durak/randomness"
	"github.com/wfunc/durak/room"
)

// MatchState holds the authoritative runtime state for one Durak match.
type MatchState struct {
	ID        string
	Table     *room.Table
	Presences map[string]runtime.Presence // userId -> presence
	// EmptyTicks counts loop ticks with nobody connected and nobody seated.
	EmptyTicks int

	deck       *randomness.Service
	scheduler  *tickScheduler
	dispatcher runtime.MatchDispatcher
	logger     runtime.Logger
	label      string
}

type matchHandler struct {
	wallet  Wallet
	storage Storage
	now     func() time.Time
}

func newMatchHandler(nk runtime.NakamaModule) *matchHandler {
	mh := &matchHandler{now: time.Now}
	if nk != nil {
		mh.wallet = nk
		mh.storage = nk
	}
	return mh
}

// emptyTickLimit ends a match nobody uses after a minute.
const emptyTickLimit = 60 * tickRate

// rulesFrom reads the optional "players" and "bet" match parameters.
func rulesFrom(params map[string]interface{}) durak.Rules {
	players := durak.MinPlayers
	if v, ok := number(params["players"]); ok && v > 0 {
		players = int(v)
	}
	rules := durak.DefaultRules(players)
	if v, ok := number(params["bet"]); ok && v > 0 {
		rules.BetAmount = uint64(v)
	}
	return rules
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	matchID, _ := ctx.Value(runtime.RUNTIME_CTX_MATCH_ID).(string)
	state := &MatchState{
		ID:        matchID,
		Presences: make(map[string]runtime.Presence),
		deck:      randomness.New(),
		scheduler: newTickScheduler(mh.now),
		logger:    logger,
	}

	opts := []room.TableOption{
		room.WithScheduler(state.scheduler),
		room.WithNotifier(matchNotifier{state: state}),
		room.WithClock(mh.now),
	}
	if mh.wallet != nil {
		opts = append(opts, room.WithSettler(walletSettler{wallet: mh.wallet}))
	}
	if mh.storage != nil {
		opts = append(opts, room.WithStore(storageStore{storage: mh.storage}))
	}
	table, err := room.NewTable(matchID, rulesFrom(params), state.deck, opts...)
	if err != nil {
		logger.Error("MatchInit: invalid rules: %v", err)
		return nil, 0, ""
	}
	state.Table = table
	state.label = buildLabel(table)
	return state, tickRate, state.label
}

func buildLabel(t *room.Table) string {
	s := t.Session()
	label, err := structpb.NewStruct(map[string]interface{}{
		"game":    "durak",
		"open":    t.Open(),
		"stage":   s.Stage.String(),
		"players": len(s.Players),
		"seats":   t.Rules().NumPlayers,
		"bet":     float64(t.Rules().BetAmount),
	})
	if err != nil {
		return ""
	}
	b, err := protojson.Marshal(label)
	if err != nil {
		return ""
	}
	return string(b)
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	s, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}
	// Rejoin keeps the seat.
	if _, seated := s.Table.Session().Player(presence.GetUserId()); seated {
		return s, true, ""
	}
	if !s.Table.Open() {
		return s, false, "match_closed"
	}
	return s, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	s := state.(*MatchState)
	s.dispatcher = dispatcher

	for _, p := range presences {
		uid := p.GetUserId()
		s.Presences[uid] = p
		if _, seated := s.Table.Session().Player(uid); seated {
			continue
		}
		if err := s.Table.Seat(ctx, uid); err != nil {
			logger.Warn("MatchJoin: cannot seat %s: %v", uid, err)
			mh.sendError(s, uid, err)
		}
	}
	mh.updateLabel(s)
	return s
}

func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	s := state.(*MatchState)
	s.dispatcher = dispatcher

	for _, p := range presences {
		uid := p.GetUserId()
		delete(s.Presences, uid)
		// 游戏开始后座位保留，由超时代打
		if err := s.Table.Apply(ctx, durak.PlayerLeft{Addr: uid}); err != nil {
			logger.Debug("MatchLeave: %s keeps the seat: %v", uid, err)
		}
	}
	mh.updateLabel(s)
	return s
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	s := state.(*MatchState)
	s.dispatcher = dispatcher

	s.scheduler.fire()

	for _, msg := range messages {
		uid := msg.GetUserId()
		var err error
		switch msg.GetOpCode() {
		case OpStartGame:
			err = s.Table.Apply(ctx, durak.StartRequested{})
		case OpAction:
			err = s.Table.Apply(ctx, durak.PlayerAction{Addr: uid, Payload: msg.GetData()})
		default:
			logger.Debug("MatchLoop: unknown op code %d from %s", msg.GetOpCode(), uid)
			continue
		}
		if err != nil {
			mh.sendError(s, uid, err)
		}
	}
	mh.updateLabel(s)

	if len(s.Presences) == 0 && len(s.Table.Session().Players) == 0 {
		s.EmptyTicks++
		if s.EmptyTicks >= emptyTickLimit {
			logger.Info("MatchLoop: terminating empty match %s", s.ID)
			return nil
		}
	} else {
		s.EmptyTicks = 0
	}
	return s
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	s := state.(*MatchState)
	s.Table.Close()
	return s
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}

func (mh *matchHandler) updateLabel(s *MatchState) {
	label := buildLabel(s.Table)
	if label == s.label || s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.MatchLabelUpdate(label); err != nil {
		s.logger.Warn("label update failed: %v", err)
		return
	}
	s.label = label
}

// sendError sends the wire form of err to a single user.
func (mh *matchHandler) sendError(s *MatchState, userID string, err error) {
	presence, ok := s.Presences[userID]
	if !ok || s.dispatcher == nil {
		return
	}
	data, mErr := json.Marshal(network.ErrorFrom(err))
	if mErr != nil {
		return
	}
	_ = s.dispatcher.BroadcastMessage(OpError, data, []runtime.Presence{presence}, nil, true)
}

// matchNotifier turns table updates into per-presence messages.
type matchNotifier struct {
	state *MatchState
}

func (n matchNotifier) Notify(u room.Update) {
	s := n.state
	if s.dispatcher == nil {
		return
	}
	for uid, p := range s.Presences {
		view := broadcast.View(u, uid, broadcast.Hand(s.deck, u.Session, uid))
		data, err := json.Marshal(view)
		if err != nil {
			s.logger.Error("marshal view failed: %v", err)
			continue
		}
		_ = s.dispatcher.BroadcastMessage(OpTableState, data, []runtime.Presence{p}, nil, true)
	}
	if len(u.Effects.Notices) > 0 {
		n.broadcast(OpNotice, network.NoticeMessage{Notices: u.Effects.Notices})
	}
	if u.Effects.ResetTimer > 0 {
		n.broadcast(OpGameEnd, network.GameEndMessage{Ranking: u.Session.RankOrder(), Settles: u.Effects.Settles})
	}
}

func (n matchNotifier) broadcast(opCode int64, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		n.state.logger.Error("marshal op %d failed: %v", opCode, err)
		return
	}
	_ = n.state.dispatcher.BroadcastMessage(opCode, data, nil, nil, true)
}
