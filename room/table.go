package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/logger"
	"github.com/wfunc/durak/models"
	"github.com/wfunc/durak/services"
)

// Table hosts one durak session. It hands every event to the engine, carries
// out the returned effects and feeds the follow-up events back in before
// Apply returns.
type Table struct {
	ID string

	session  *durak.Session
	rules    durak.Rules
	joinable bool
	mu       sync.Mutex

	rnd      Randomness
	sched    Scheduler
	settler  Settler
	store    Store
	notifier Notifier
	recorder Recorder
	clock    func() time.Time
	post     func(durak.Event)
}

var tracer = otel.Tracer("github.com/wfunc/durak/room")

type TableOption func(*Table)

func WithScheduler(s Scheduler) TableOption { return func(t *Table) { t.sched = s } }
func WithSettler(s Settler) TableOption     { return func(t *Table) { t.settler = s } }
func WithStore(s Store) TableOption         { return func(t *Table) { t.store = s } }
func WithNotifier(n Notifier) TableOption   { return func(t *Table) { t.notifier = n } }
func WithRecorder(r Recorder) TableOption   { return func(t *Table) { t.recorder = r } }
func WithClock(now func() time.Time) TableOption {
	return func(t *Table) { t.clock = now }
}

// WithPoster routes fired timers. By default they call Apply directly.
func WithPoster(post func(durak.Event)) TableOption {
	return func(t *Table) { t.post = post }
}

func NewTable(id string, rules durak.Rules, rnd Randomness, opts ...TableOption) (*Table, error) {
	s, err := durak.NewSession(rules)
	if err != nil {
		return nil, err
	}
	t := newTable(id, s, rnd, opts)
	t.joinable = true
	return t, nil
}

// RestoreTable rebuilds a table from a checkpoint and re-arms its timers.
func RestoreTable(id string, snapshot []byte, rnd Randomness, opts ...TableOption) (*Table, error) {
	s, err := durak.Restore(snapshot)
	if err != nil {
		return nil, err
	}
	t := newTable(id, s, rnd, opts)
	t.joinable = s.Stage == durak.StageWaiting

	if s.Awaiting != "" {
		remaining := time.UnixMilli(s.Deadline).Sub(t.clock())
		t.armAction(s.Awaiting, max(remaining, 0))
	}
	if s.Stage == durak.StageEndOfGame {
		t.armReset(s.Rules.ResetTimeout)
	}
	return t, nil
}

func newTable(id string, s *durak.Session, rnd Randomness, opts []TableOption) *Table {
	t := &Table{
		ID:       id,
		session:  s,
		rules:    s.Rules,
		rnd:      rnd,
		sched:    nopScheduler{},
		settler:  nopSettler{},
		store:    nopStore{},
		notifier: nopNotifier{},
		recorder: nopRecorder{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.post == nil {
		t.post = func(ev durak.Event) {
			_ = t.Apply(context.Background(), ev)
		}
	}
	return t
}

// tableEnv is the engine's read-only view of the host.
type tableEnv struct{ t *Table }

func (e tableEnv) Now() time.Time { return e.t.clock() }

func (e tableEnv) Revealed(handle int) (map[int]string, error) {
	return e.t.rnd.Revealed(handle)
}

// Apply handles ev and every follow-up it causes. A rejected event leaves
// the table unchanged and is returned as is.
func (t *Table) Apply(ctx context.Context, ev durak.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apply(ctx, ev)
}

func (t *Table) apply(ctx context.Context, ev durak.Event) error {
	queue := []durak.Event{ev}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		follow, err := t.step(ctx, next)
		if err != nil {
			return err
		}
		queue = append(queue, follow...)
	}
	return nil
}

func (t *Table) step(ctx context.Context, ev durak.Event) ([]durak.Event, error) {
	name := durak.EventName(ev)
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("room", t.ID),
		attribute.String("stage", t.session.Stage.String()),
	))
	defer span.End()

	start := time.Now()
	fx, err := durak.Handle(t.session, tableEnv{t}, ev)
	t.recorder.ObserveEvent(name, time.Since(start))
	if err != nil {
		t.recorder.IncRejected(durak.CodeOf(err))
		span.RecordError(err)
		if class, _ := durak.ClassOf(err); class == durak.ClassInternal {
			span.SetStatus(codes.Error, durak.CodeOf(err))
			logger.Log.Errorw("engine fault", "room", t.ID, "event", name, "stage", t.session.Stage, "error", err)
		} else {
			logger.Log.Warnw("event rejected", "room", t.ID, "event", name, "stage", t.session.Stage, "error", err)
		}
		return nil, err
	}

	follow, err := t.execute(ctx, fx)
	if err != nil {
		span.SetStatus(codes.Error, "effects failed")
		logger.Log.Errorw("effects failed", "room", t.ID, "event", name, "error", err)
		return nil, err
	}
	t.notifier.Notify(Update{
		RoomID:   t.ID,
		Session:  t.session.Copy(),
		Effects:  fx,
		Joinable: t.joinable,
	})
	return follow, nil
}

// execute carries out fx in field order and returns the events the host
// owes the engine in reply.
func (t *Table) execute(ctx context.Context, fx *durak.Effects) ([]durak.Event, error) {
	var follow []durak.Event

	if fx.StartGame {
		t.recorder.IncGamesStarted()
		follow = append(follow, durak.GameStarted{})
	}
	if fx.Joinable != nil {
		t.joinable = *fx.Joinable
	}
	if sh := fx.Shuffle; sh != nil {
		if err := t.rnd.InitShuffle(sh.Handle, sh.Options); err != nil {
			return nil, fmt.Errorf("init shuffle %d: %w", sh.Handle, err)
		}
		follow = append(follow, durak.ShuffleReady{})
	}
	for _, a := range fx.Assigns {
		if err := t.rnd.Assign(a.Handle, a.Addr, a.Slots); err != nil {
			return nil, fmt.Errorf("assign %v to %s: %w", a.Slots, a.Addr, err)
		}
	}
	for _, r := range fx.Reveals {
		if err := t.rnd.Reveal(r.Handle, r.Slots); err != nil {
			return nil, fmt.Errorf("reveal %v: %w", r.Slots, err)
		}
	}
	if len(fx.Assigns) > 0 || len(fx.Reveals) > 0 {
		follow = append(follow, durak.RevealReady{})
	}

	switch {
	case fx.Timeout != nil:
		t.armAction(fx.Timeout.Addr, fx.Timeout.Duration)
	case t.session.Awaiting == "":
		t.sched.Cancel(t.actionKey())
	}

	// 先挂重置定时器，结算失败也不能把房间卡在 end_of_game
	if fx.ResetTimer > 0 {
		t.recorder.IncGamesFinished()
		t.armReset(fx.ResetTimer)
	}
	if len(fx.Settles) > 0 {
		outcome := services.Outcome{
			RoomID:  t.ID,
			Handle:  t.session.RandomID,
			Ranking: t.session.RankOrder(),
			Settles: fx.Settles,
			Final:   t.session.Stage == durak.StageEndOfGame,
		}
		// 会话已提交，结算失败只记录，完整 outcome 留在日志里供补账
		if err := t.settler.Settle(ctx, outcome); err != nil {
			t.recorder.IncRejected("settle_failed")
			logger.Log.Errorw("settlement not recorded", "room", t.ID, "handle", outcome.Handle,
				"ranking", outcome.Ranking, "settles", outcome.Settles, "error", err)
		}
	}
	if fx.Checkpoint {
		if err := t.checkpoint(ctx); err != nil {
			return nil, err
		}
	}
	for _, n := range fx.Notices {
		logger.Log.Infow("auto action", "room", t.ID, "kind", n.Kind, "addr", n.Addr)
	}
	return follow, nil
}

func (t *Table) checkpoint(ctx context.Context) error {
	data, err := t.session.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	cp := models.Checkpoint{RoomID: t.ID, Stage: t.session.Stage.String(), Snapshot: data}
	if err := t.store.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

func (t *Table) actionKey() string { return t.ID + "/action" }
func (t *Table) resetKey() string  { return t.ID + "/reset" }

func (t *Table) armAction(addr string, d time.Duration) {
	t.sched.Arm(t.actionKey(), d, func() {
		t.post(durak.PlayerActionTimedOut{Addr: addr})
	})
}

func (t *Table) armReset(d time.Duration) {
	t.sched.Arm(t.resetKey(), d, func() {
		t.post(durak.ResetTimedOut{})
	})
}

// Seat puts addr in the lowest free position.
func (t *Table) Seat(ctx context.Context, addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.freeSeat()
	if !ok {
		return durak.ErrInvalidNumOfPlayers
	}
	return t.apply(ctx, durak.RosterSync{Joining: []durak.Joiner{{Addr: addr, Position: pos}}})
}

func (t *Table) freeSeat() (int, bool) {
	if len(t.session.Players) >= t.session.Rules.NumPlayers {
		return 0, false
	}
	taken := make(map[int]bool, len(t.session.Players))
	for _, p := range t.session.Players {
		taken[p.Position] = true
	}
	for pos := 0; pos < t.session.Rules.MaxSeats; pos++ {
		if !taken[pos] {
			return pos, true
		}
	}
	return 0, false
}

// Rules never change for the life of a table.
func (t *Table) Rules() durak.Rules {
	return t.rules
}

// Open reports whether the table takes new players right now.
func (t *Table) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, free := t.freeSeat()
	return t.joinable && t.session.Stage == durak.StageWaiting && free
}

// Session returns a copy of the current session.
func (t *Table) Session() *durak.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.Copy()
}

func (t *Table) Snapshot() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.Snapshot()
}

// Close cancels the table's pending timers.
func (t *Table) Close() {
	t.sched.Cancel(t.actionKey())
	t.sched.Cancel(t.resetKey())
}
