package network

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/wfunc/durak/durak"
)

func TestEncodeDecode(t *testing.T) {
	packet, err := Encode(MsgTypePlayerAction, []byte(`{"type":"take"}`))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.MsgID != MsgTypePlayerAction || !bytes.Equal(got.Data, []byte(`{"type":"take"}`)) {
		t.Errorf("Unexpected packet: %+v", got)
	}
}

func TestDecode_Short(t *testing.T) {
	tests := [][]byte{
		{0x00},
		{0x00, 0xca, 0x00, 0x05, 'a'},
	}
	for _, data := range tests {
		if _, err := Decode(data); !errors.Is(err, io.ErrShortBuffer) {
			t.Errorf("Decode(%v): expected ErrShortBuffer, got %v", data, err)
		}
	}
}

func TestEncode_TooLarge(t *testing.T) {
	if _, err := Encode(MsgTypeRoomState, make([]byte, 1<<16)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("Expected ErrPacketTooLarge, got %v", err)
	}
}

func TestErrorFrom(t *testing.T) {
	msg := ErrorFrom(durak.ErrPlayerIsNotAttacker)
	if msg.Code != "player_is_not_attacker" || msg.Class != "precondition" {
		t.Errorf("Unexpected error message: %+v", msg)
	}
	if msg := ErrorFrom(errors.New("boom")); msg.Code != "unknown" || msg.Class != "" {
		t.Errorf("Unexpected foreign error message: %+v", msg)
	}
}
