// Package repl provides an interactive liner-based console for driving a
// live overlay.Capability by hand, generalizing the teacher's
// cmd/client/main.go shell (put/get/delete/lookup/use against one remote
// gRPC connection) into commands against an in-process ring.
package repl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/peterh/liner"

	"dhtsim/internal/idspace"
	"dhtsim/internal/overlay"
)

// Shell drives cap interactively until the user types exit/quit or aborts.
type Shell struct {
	cap   overlay.Capability
	liner *liner.State
}

// New builds a Shell over cap.
func New(cap overlay.Capability) *Shell {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &Shell{cap: cap, liner: line}
}

// Close releases the underlying liner terminal state.
func (s *Shell) Close() error { return s.liner.Close() }

// Run reads commands until exit/quit or an unrecoverable prompt error.
func (s *Shell) Run() {
	fmt.Printf("dhtsim interactive console (%s). Commands: put/get/update/delete/join/leave/stats/live/exit\n", s.cap.Protocol())

	for {
		prompt := fmt.Sprintf("%s[%d]> ", s.cap.Protocol(), s.cap.Live())
		input, err := s.liner.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("Aborted")
				continue
			}
			return
		}
		s.liner.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		if s.dispatch(args[0], args[1:]) {
			return
		}
	}
}

// dispatch handles one command; it returns true when the shell should exit.
func (s *Shell) dispatch(cmd string, args []string) bool {
	switch cmd {
	case "put":
		if len(args) < 2 {
			fmt.Println("Usage: put <key> <value>")
			return false
		}
		hops, err := s.cap.Put(args[0], args[1])
		report("put", hops, err)

	case "get":
		if len(args) < 1 {
			fmt.Println("Usage: get <key>")
			return false
		}
		val, hops, err := s.cap.Get(args[0])
		if err != nil {
			report("get", hops, err)
			return false
		}
		fmt.Printf("get succeeded value=%v hops=%d\n", val, hops)

	case "update":
		if len(args) < 2 {
			fmt.Println("Usage: update <key> <value>")
			return false
		}
		hops, err := s.cap.Update(args[0], args[1])
		report("update", hops, err)

	case "delete":
		if len(args) < 1 {
			fmt.Println("Usage: delete <key>")
			return false
		}
		hops, err := s.cap.Delete(args[0])
		report("delete", hops, err)

	case "join":
		label := "shell-node"
		if len(args) > 0 {
			label = args[0]
		}
		id, hops, err := s.cap.Join(label)
		if err != nil {
			report("join", hops, err)
			return false
		}
		fmt.Printf("join succeeded id=%s hops=%d\n", id.Hex(), hops)

	case "leave":
		if len(args) < 1 {
			fmt.Println("Usage: leave <id-hex-prefix>")
			return false
		}
		id, ok := s.findLiveID(args[0])
		if !ok {
			fmt.Printf("no live node with id prefix %q\n", args[0])
			return false
		}
		hops, err := s.cap.Leave(id)
		report("leave", hops, err)

	case "stats":
		s.cap.MaintenanceBarrier()
		fmt.Printf("protocol=%s live=%d\n", s.cap.Protocol(), s.cap.Live())

	case "live":
		for _, id := range s.cap.LiveIDs() {
			fmt.Println(" ", id.Hex())
		}

	case "exit", "quit":
		fmt.Println("Bye!")
		return true

	default:
		fmt.Printf("Unknown command: %s\n", cmd)
	}
	return false
}

// findLiveID resolves a hex-prefix argument to one live identifier,
// matching only when the prefix is unambiguous.
func (s *Shell) findLiveID(prefix string) (idspace.ID, bool) {
	var match idspace.ID
	found := 0
	for _, id := range s.cap.LiveIDs() {
		if strings.HasPrefix(id.Hex(), prefix) {
			match = id
			found++
		}
	}
	if found != 1 {
		return nil, false
	}
	return match, true
}

func report(op string, hops int, err error) {
	if err != nil {
		fmt.Printf("%s failed: %v | hops=%d\n", op, err, hops)
		return
	}
	fmt.Printf("%s succeeded | hops=%d\n", op, hops)
}
