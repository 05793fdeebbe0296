package room

import (
	"context"
	"time"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/models"
	"github.com/wfunc/durak/services"
)

// Randomness is the shuffle service a table drives. randomness.Service
// implements it.
type Randomness interface {
	InitShuffle(handle int, options []string) error
	Reveal(handle int, slots []int) error
	Revealed(handle int) (map[int]string, error)
	Assign(handle int, addr string, slots []int) error
}

// Scheduler arms one-shot callbacks by key; arming a key again replaces the
// pending callback. timer.TimerManager implements it.
type Scheduler interface {
	Arm(key string, delay time.Duration, callback func()) int64
	Cancel(key string) bool
}

type Settler interface {
	Settle(ctx context.Context, o services.Outcome) error
}

type Store interface {
	SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error
}

// Update is what a table publishes after every handled event. Session is a
// private copy.
type Update struct {
	RoomID   string
	Session  *durak.Session
	Effects  *durak.Effects
	Joinable bool
}

// Notifier is defined here to break the import cycle between room and
// broadcast.
type Notifier interface {
	Notify(u Update)
}

// Recorder receives table metrics. monitor.Monitor implements it.
type Recorder interface {
	ObserveEvent(event string, d time.Duration)
	IncRejected(code string)
	IncGamesStarted()
	IncGamesFinished()
}

type nopScheduler struct{}

func (nopScheduler) Arm(string, time.Duration, func()) int64 { return 0 }
func (nopScheduler) Cancel(string) bool                      { return false }

type nopSettler struct{}

func (nopSettler) Settle(context.Context, services.Outcome) error { return nil }

type nopStore struct{}

func (nopStore) SaveCheckpoint(context.Context, models.Checkpoint) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(Update) {}

type nopRecorder struct{}

func (nopRecorder) ObserveEvent(string, time.Duration) {}
func (nopRecorder) IncRejected(string)                 {}
func (nopRecorder) IncGamesStarted()                   {}
func (nopRecorder) IncGamesFinished()                  {}
