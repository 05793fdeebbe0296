package main

import (
	"bufio"
	"flag"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/network"
	"github.com/wfunc/durak/server"
)

// clientState is the last hand the server showed us.
type clientState struct {
	mu   sync.Mutex
	hand []durak.Card
}

func (s *clientState) setHand(hand []durak.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hand = hand
}

func (s *clientState) currentHand() []durak.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]durak.Card(nil), s.hand...)
}

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	host := flag.String("addr", "localhost:8080", "game server address")
	player := flag.String("player", "", "player address, signs a token with -secret")
	secret := flag.String("secret", "", "server auth secret (development only)")
	token := flag.String("token", "", "bearer token issued by the server")
	flag.Parse()

	if *token == "" {
		if *player == "" || *secret == "" {
			pterm.Error.Println("either -token or both -player and -secret are required")
			os.Exit(2)
		}
		t, err := server.IssueToken([]byte(*secret), *player, 24*time.Hour)
		if err != nil {
			pterm.Fatal.Printfln("sign token: %v", err)
		}
		*token = t
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws", RawQuery: "token=" + url.QueryEscape(*token)}
	spinner, _ := pterm.DefaultSpinner.Start("Connecting to " + *host)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		spinner.Fail("Dial failed: " + err.Error())
		os.Exit(1)
	}
	defer c.Close()
	spinner.Success("Connected as " + *player)

	state := &clientState{}
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				pterm.Error.Println("Read error:", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				pterm.Warning.Printfln("Received invalid packet of size %d", len(message))
				continue
			}
			render(*player, packet, state)
		}
	}()

	// Heartbeat
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	pterm.Info.Println(errUsage.Error())
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			pterm.Info.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				pterm.Error.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			cmd, err := parse(line, state.currentHand())
			if err != nil {
				pterm.Warning.Println(err)
				continue
			}
			if err := send(c, cmd.msgID, cmd.data); err != nil {
				pterm.Error.Println("Write error:", err)
				return
			}
		}
	}
}
