package main

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/network"
)

func cardString(c durak.Card) string {
	if !c.Revealed() {
		return "??"
	}
	switch c.Suit() {
	case 'h', 'd':
		return pterm.LightRed(c.String())
	}
	return pterm.LightCyan(c.String())
}

func renderView(me string, v network.TableView) {
	pterm.DefaultSection.Printfln("Room %s | %s", v.RoomID, v.Stage)

	trump := "-"
	if v.Trump != nil {
		trump = cardString(*v.Trump)
	}
	pterm.Info.Printfln("Trump %s   deck %d   discarded %d", trump, v.DeckLeft, v.Discarded)

	rows := pterm.TableData{{"Seat", "Player", "Role", "Cards", "Rank"}}
	for _, s := range v.Seats {
		name := s.Addr
		if s.Addr == me {
			name = pterm.LightGreen(s.Addr + " (you)")
		}
		rank := ""
		if s.Rank != nil {
			rank = strconv.Itoa(*s.Rank + 1)
		}
		rows = append(rows, []string{strconv.Itoa(s.Position), name, s.Role.String(), strconv.Itoa(s.Cards), rank})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	if len(v.Attacks) > 0 {
		var lines []string
		for i, a := range v.Attacks {
			var faces []string
			for _, c := range a.Faces() {
				faces = append(faces, cardString(c))
			}
			lines = append(lines, strconv.Itoa(i+1)+". "+strings.Join(faces, " / ")+"  ("+a.State.String()+")")
		}
		pterm.DefaultBox.WithTitle("Table").Println(strings.Join(lines, "\n"))
	}

	if len(v.Hand) > 0 {
		var cards []string
		for i, c := range v.Hand {
			cards = append(cards, strconv.Itoa(i+1)+":"+cardString(c))
		}
		pterm.DefaultBox.WithTitle("Your hand").Println(strings.Join(cards, "  "))
	}

	if v.Awaiting != "" {
		left := time.Until(time.UnixMilli(v.Deadline)).Round(time.Second)
		who := v.Awaiting
		if who == me {
			who = "you"
		}
		pterm.Warning.Printfln("Waiting for %s (%s)", who, left)
	}
}

// render prints one server packet.
func render(me string, packet *network.Packet, state *clientState) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
	case network.MsgTypeRoomState:
		var v network.TableView
		if err := json.Unmarshal(packet.Data, &v); err != nil {
			pterm.Error.Printfln("bad room state: %v", err)
			return
		}
		state.setHand(v.Hand)
		renderView(me, v)
	case network.MsgTypeNotice:
		var n network.NoticeMessage
		if err := json.Unmarshal(packet.Data, &n); err == nil {
			for _, notice := range n.Notices {
				pterm.Info.Printfln("%s: %s", notice.Addr, notice.Kind)
			}
		}
	case network.MsgTypeGameEnd:
		var end network.GameEndMessage
		if err := json.Unmarshal(packet.Data, &end); err == nil {
			pterm.Success.Printfln("Game over. Ranking: %s", strings.Join(end.Ranking, " > "))
		}
	case network.MsgTypeError:
		var e network.ErrorMessage
		if err := json.Unmarshal(packet.Data, &e); err == nil {
			pterm.Error.Printfln("%s: %s", e.Code, e.Detail)
		}
	case network.MsgTypeCreateRoom, network.MsgTypeJoinRoom, network.MsgTypeLeaveRoom:
		var r network.RoomReply
		if err := json.Unmarshal(packet.Data, &r); err == nil {
			pterm.Success.Printfln("room %s", r.RoomID)
		}
	default:
		pterm.Debug.Printfln("RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
	}
}
