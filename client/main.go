package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/wfunc/cardserver/network"
)

type options struct {
	host     string
	name     string
	code     string
	password string
	create   int
	auto     bool
}

// player tracks what the simulator needs to answer prompts from the console.
type player struct {
	opts *options

	mu          sync.Mutex
	conn        *websocket.Conn
	code        string
	hand        []string
	submissions []network.Submission
	judge       bool
}

func main() {
	log.SetFlags(log.Ltime)
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "client",
		Short:         "Console player for the card server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.name == "" {
				return errors.New("--name is required")
			}
			if o.code == "" && o.create < 1 {
				return errors.New("either --room or --create must be given")
			}
			return run(o)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&o.host, "host", "localhost:3000", "server address")
	fs.StringVarP(&o.name, "name", "n", "", "player name")
	fs.StringVarP(&o.code, "room", "r", "", "room code to join")
	fs.StringVarP(&o.password, "password", "p", "", "room password")
	fs.IntVar(&o.create, "create", 0, "create a room for this many players instead of joining")
	fs.BoolVar(&o.auto, "auto", false, "submit the first card and pick the first submission automatically")
	return cmd
}

func run(o *options) error {
	p := &player{opts: o, code: strings.ToUpper(o.code)}
	done, err := p.connect()
	if err != nil {
		return err
	}
	if o.create > 0 {
		p.send(network.EventCreateRoom, network.CreateRoomRequest{Name: o.name, Count: o.create, Password: o.password})
	} else {
		p.send(network.EventJoinRoom, network.JoinRoomRequest{Name: o.name, Code: p.code, Password: o.password})
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	log.Println("Commands: start, submit N, pick N, stop, close, leave, rejoin")
	for {
		select {
		case <-done:
			// keep reading the console so "rejoin" still works
			done = nil
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			p.close()
			return nil
		case line, ok := <-lines:
			if !ok {
				p.close()
				return nil
			}
			if next := p.command(line); next != nil {
				done = next
			}
		}
	}
}

func (p *player) connect() (<-chan struct{}, error) {
	u := url.URL{Scheme: "ws", Host: p.opts.host, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	p.mu.Lock()
	p.conn = c
	p.mu.Unlock()

	done := make(chan struct{})
	go p.readLoop(c, done)
	return done, nil
}

func (p *player) readLoop(c *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var env network.Envelope
		if err := c.ReadJSON(&env); err != nil {
			log.Println("Disconnected:", err)
			return
		}
		p.handle(env)
	}
}

func (p *player) handle(env network.Envelope) {
	switch env.Event {
	case network.EventRoomCreated:
		var code string
		_ = json.Unmarshal(env.Data, &code)
		p.mu.Lock()
		p.code = code
		p.mu.Unlock()
		log.Printf("Created room %s", code)
	case network.EventRoomJoined:
		var joined network.RoomJoinedPayload
		_ = json.Unmarshal(env.Data, &joined)
		names := make([]string, 0, len(joined.Players))
		for _, pl := range joined.Players {
			names = append(names, pl.Name)
		}
		log.Printf("Joined room %s. Current players: %s", joined.Code, strings.Join(names, ", "))
	case network.EventAllowStart:
		log.Println("Host can now start the game.")
	case network.EventNewRound:
		var round network.NewRoundPayload
		_ = json.Unmarshal(env.Data, &round)
		p.mu.Lock()
		p.hand = round.Hand
		p.submissions = nil
		p.judge = round.JudgeName == p.opts.name
		p.mu.Unlock()

		log.Printf("New round: %s (judge: %s)", round.Prompt, round.JudgeName)
		if len(round.Hand) == 0 {
			log.Println("You are the judge this round.")
			return
		}
		for i, card := range round.Hand {
			log.Printf("  %d: %s", i+1, card)
		}
		if p.opts.auto {
			p.submit(1)
		}
	case network.EventRevealSubmissions:
		var subs []network.Submission
		_ = json.Unmarshal(env.Data, &subs)
		p.mu.Lock()
		p.submissions = subs
		judge := p.judge
		p.mu.Unlock()

		log.Println("Submissions to judge:")
		for i, s := range subs {
			log.Printf("  %d: %s", i+1, s.Card)
		}
		if judge && p.opts.auto {
			p.pick(1)
		}
	case network.EventRoundWinner:
		var w network.RoundWinnerPayload
		_ = json.Unmarshal(env.Data, &w)
		log.Printf("Round won by %s! Total score: %d", w.Name, w.Score)
	case network.EventGameOver:
		var over network.GameOverPayload
		_ = json.Unmarshal(env.Data, &over)
		log.Printf("Game over. Winner: %s", over.Winner)
	case network.EventStatusMessage:
		var text string
		_ = json.Unmarshal(env.Data, &text)
		log.Printf("Status: %s", text)
	case network.EventUpdatePlayerList, network.EventGameStarted:
		// noisy, ignored
	default:
		log.Printf("<- %s %s", env.Event, string(env.Data))
	}
}

// command runs one console line. It returns a new done channel after a rejoin.
func (p *player) command(line string) <-chan struct{} {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	arg := 0
	if len(fields) > 1 {
		arg, _ = strconv.Atoi(fields[1])
	}

	switch fields[0] {
	case "start":
		p.send(network.EventStartRound, p.roomCode())
	case "submit":
		p.submit(arg)
	case "pick":
		p.pick(arg)
	case "stop":
		p.send(network.EventStopGame, p.roomCode())
	case "close":
		p.send(network.EventCloseRoom, p.roomCode())
	case "leave":
		log.Println("Simulating disconnect...")
		p.close()
	case "rejoin":
		log.Println("Simulating reconnect...")
		p.close()
		done, err := p.connect()
		if err != nil {
			log.Println(err)
			return nil
		}
		p.send(network.EventRejoinRoom, network.RejoinRoomRequest{Code: p.roomCode(), Name: p.opts.name})
		return done
	default:
		log.Printf("Unknown command %q", fields[0])
	}
	return nil
}

func (p *player) submit(n int) {
	p.mu.Lock()
	var card string
	if n >= 1 && n <= len(p.hand) {
		card = p.hand[n-1]
	}
	p.mu.Unlock()
	if card == "" {
		log.Println("Invalid card number.")
		return
	}
	p.send(network.EventSubmitCard, network.SubmitCardRequest{RoomCode: p.roomCode(), Card: card})
	log.Printf("Submitted card: %s", card)
}

func (p *player) pick(n int) {
	p.mu.Lock()
	var picked *network.Submission
	if n >= 1 && n <= len(p.submissions) {
		picked = &p.submissions[n-1]
	}
	p.mu.Unlock()
	if picked == nil {
		log.Println("Invalid pick number.")
		return
	}
	p.send(network.EventPickWinner, network.PickWinnerRequest{RoomCode: p.roomCode(), PlayerID: picked.PlayerID})
	log.Printf("Picked winner: %s", picked.Card)
}

func (p *player) roomCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *player) send(event string, payload any) {
	env, err := network.Encode(event, payload)
	if err != nil {
		log.Println("Encode error:", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		log.Println("Not connected.")
		return
	}
	if err := p.conn.WriteJSON(env); err != nil {
		log.Println("Write error:", err)
	}
}

func (p *player) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return
	}
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = p.conn.Close()
	p.conn = nil
}
