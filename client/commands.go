package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/network"
)

var errUsage = errors.New("usage: create [players] [bet] | join [room] | leave | start | attack N.. | coattack N.. | defend N TARGET | forward N | take | beated")

// command is one packet ready to send.
type command struct {
	msgID uint16
	data  []byte
}

// parse turns an input line into a packet. Cards are picked by their
// 1-based position in hand.
func parse(line string, hand []durak.Card) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errUsage
	}
	args := fields[1:]

	switch fields[0] {
	case "create":
		var req network.CreateRoomRequest
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return command{}, errUsage
			}
			req.Players = n
		}
		if len(args) > 1 {
			bet, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return command{}, errUsage
			}
			req.Bet = bet
		}
		return encode(network.MsgTypeCreateRoom, req)
	case "join":
		var req network.JoinRoomRequest
		if len(args) > 0 {
			req.RoomID = args[0]
		}
		return encode(network.MsgTypeJoinRoom, req)
	case "leave":
		return command{msgID: network.MsgTypeLeaveRoom}, nil
	case "start":
		return command{msgID: network.MsgTypeStartGame}, nil
	case "attack", "coattack":
		cards, err := pick(args, hand)
		if err != nil {
			return command{}, err
		}
		if fields[0] == "attack" {
			return action(durak.AttackAction{Cards: cards})
		}
		return action(durak.CoAttackAction{Cards: cards})
	case "defend":
		if len(args) != 2 {
			return command{}, errUsage
		}
		cards, err := pick(args[:1], hand)
		if err != nil {
			return command{}, err
		}
		target, err := strconv.Atoi(args[1])
		if err != nil || target < 1 {
			return command{}, errUsage
		}
		return action(durak.DefendAction{Card: cards[0], Target: target - 1})
	case "forward":
		if len(args) != 1 {
			return command{}, errUsage
		}
		cards, err := pick(args, hand)
		if err != nil {
			return command{}, err
		}
		return action(durak.ForwardAction{Card: cards[0]})
	case "take":
		return action(durak.TakeAction{})
	case "beated":
		return action(durak.BeatedAction{})
	}
	return command{}, errUsage
}

func pick(args []string, hand []durak.Card) ([]durak.Card, error) {
	if len(args) == 0 {
		return nil, errUsage
	}
	cards := make([]durak.Card, 0, len(args))
	for _, a := range args {
		i, err := strconv.Atoi(a)
		if err != nil || i < 1 || i > len(hand) {
			return nil, fmt.Errorf("no card %q in hand of %d", a, len(hand))
		}
		cards = append(cards, hand[i-1])
	}
	return cards, nil
}

func action(a durak.Action) (command, error) {
	data, err := durak.EncodeAction(a)
	if err != nil {
		return command{}, err
	}
	return command{msgID: network.MsgTypePlayerAction, data: data}, nil
}

func encode(msgID uint16, v interface{}) (command, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return command{}, err
	}
	return command{msgID: msgID, data: data}, nil
}
