package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/randomness"
)

func newTestRoom(t *testing.T, id string, players int) *Room {
	t.Helper()
	room, err := NewRoom(id, "Test Room", durak.DefaultRules(players), randomness.New())
	if err != nil {
		t.Fatalf("NewRoom failed: %v", err)
	}
	t.Cleanup(room.Close)
	return room
}

func TestRoomManager_CreateAndGetRoom(t *testing.T) {
	manager := NewRoomManager()
	room := newTestRoom(t, "test_room_1", 2)
	manager.AddRoom(room)

	retrievedRoom, exists := manager.GetRoom("test_room_1")
	if !exists {
		t.Fatal("GetRoom should find the created room")
	}
	if retrievedRoom != room {
		t.Error("GetRoom should return the same room instance")
	}
	if manager.FindAvailableRoom() != room {
		t.Error("An empty waiting room should be available")
	}
	if all := manager.All(); len(all) != 1 || all[0] != room {
		t.Errorf("Expected All to list the room, got %v", all)
	}

	manager.RemoveRoom("test_room_1")
	if _, exists := manager.GetRoom("test_room_1"); exists {
		t.Error("Removed room should be gone")
	}
	if manager.Count() != 0 {
		t.Errorf("Expected 0 rooms, got %d", manager.Count())
	}
}

func TestRoom_Join(t *testing.T) {
	room := newTestRoom(t, "test_room_2", 2)
	ctx := context.Background()

	alice := newTestSession("alice")
	if err := room.Join(ctx, alice); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if alice.Room() != room.ID {
		t.Errorf("Expected session to point at the room, got %q", alice.Room())
	}
	if err := room.Join(ctx, newTestSession("alice")); !errors.Is(err, ErrRoomFull) {
		t.Errorf("Expected a duplicate address to be refused, got %v", err)
	}

	if err := room.Join(ctx, newTestSession("bob")); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if s := room.Table().Session(); s.Stage != durak.StageActing {
		t.Errorf("Expected the game to start, got %s", s.Stage)
	}

	err := room.Join(ctx, newTestSession("carol"))
	if !errors.Is(err, durak.ErrInvalidStage) && !errors.Is(err, durak.ErrInvalidNumOfPlayers) {
		t.Errorf("Expected a started table to refuse carol, got %v", err)
	}
	if _, exists := room.GetPlayer("carol"); exists {
		t.Error("Refused player must not stay in the room")
	}
}

func TestRoom_Leave(t *testing.T) {
	room := newTestRoom(t, "test_room_3", 3)
	ctx := context.Background()

	if err := room.Join(ctx, newTestSession("alice")); err != nil {
		t.Fatal(err)
	}
	if err := room.Leave(ctx, "alice"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if len(room.GetSessions()) != 0 {
		t.Error("Expected the room to be empty")
	}
	if s := room.Table().Session(); len(s.Players) != 0 {
		t.Errorf("Expected no seated players, got %d", len(s.Players))
	}
}

func TestRoom_Closed(t *testing.T) {
	room := newTestRoom(t, "test_room_4", 2)
	room.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := room.Submit(ctx, durak.StartRequested{}); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("Expected ErrRoomClosed, got %v", err)
	}
}
