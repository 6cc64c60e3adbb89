package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	dkconfig "github.com/voicetyped/dialoguekit/config"
	"github.com/voicetyped/dialoguekit/internal/presentation"
	"github.com/voicetyped/dialoguekit/pkg/events"
	"github.com/voicetyped/dialoguekit/pkg/savegame"
)

const help = `Enter: continue or pick the highlighted choice
1-9: pick a choice    j/k: move highlight    n/p: next/previous page
a: skip to the next choice    pause: hold the line timer
save [slot] / load [slot]    q: quit`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := dkconfig.LoadPlayerConfig(os.Args[1:]...)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var d driver
	if cfg.RemoteURL != "" {
		d, err = newRemoteDriver(ctx, cfg)
	} else {
		d, err = newLocalDriver(ctx, cfg, logger)
	}
	if err != nil {
		log.Fatalf("starting player: %v", err)
	}
	defer d.Close()

	if err := play(ctx, d, cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("play: %v", err)
	}
}

type action struct {
	cmd  *presentation.Command
	save string
	load string
	quit bool
	help bool
}

func parseInput(line string, v events.DialogueView, defaultSlot string) (action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		if len(v.Choices) > 0 {
			return action{cmd: &presentation.Command{Type: "select", Hovered: true}}, nil
		}
		return action{cmd: &presentation.Command{Type: "skip"}}, nil
	}

	slot := defaultSlot
	if len(fields) > 1 {
		slot = fields[1]
	}
	switch fields[0] {
	case "q", "quit":
		return action{quit: true}, nil
	case "?", "help":
		return action{help: true}, nil
	case "a", "all":
		return action{cmd: &presentation.Command{Type: "skip", All: true}}, nil
	case "n":
		return action{cmd: &presentation.Command{Type: "page", Direction: 1}}, nil
	case "p":
		return action{cmd: &presentation.Command{Type: "page", Direction: -1}}, nil
	case "j":
		return action{cmd: &presentation.Command{Type: "navigate", Direction: 1}}, nil
	case "k":
		return action{cmd: &presentation.Command{Type: "navigate", Direction: -1}}, nil
	case "pause":
		return action{cmd: &presentation.Command{Type: "pause"}}, nil
	case "save":
		return action{save: slot}, nil
	case "load":
		return action{load: slot}, nil
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return action{}, fmt.Errorf("unknown input %q, type ? for help", line)
	}
	return action{cmd: &presentation.Command{Type: "select", Index: n - 1}}, nil
}

// play runs the read-render loop until the conversation ends, the input
// is exhausted or the player quits. Progress is saved to the configured
// slot on the way out.
func play(ctx context.Context, d driver, cfg dkconfig.PlayerConfig, in io.Reader, out io.Writer) error {
	var (
		v   events.DialogueView
		err error
	)
	switch {
	case cfg.Conversation != "":
		v, err = d.Start(ctx, cfg.Conversation, cfg.TargetID)
	default:
		v, err = d.Load(ctx, cfg.SaveSlot)
		if errors.Is(err, savegame.ErrSlotNotFound) {
			return fmt.Errorf("no save in slot %q: set CONVERSATION to start one", cfg.SaveSlot)
		}
	}
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for v.Active {
		render(out, v)
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		// Timed lines may have advanced while waiting for input.
		if v, err = d.State(ctx); err != nil {
			return err
		}
		a, err := parseInput(scanner.Text(), v, cfg.SaveSlot)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}

		switch {
		case a.quit:
			return d.Save(ctx, cfg.SaveSlot)
		case a.help:
			fmt.Fprintln(out, help)
		case a.save != "":
			if err := d.Save(ctx, a.save); err != nil {
				fmt.Fprintln(out, "save failed:", err)
			} else {
				fmt.Fprintln(out, "saved to", a.save)
			}
		case a.load != "":
			loaded, err := d.Load(ctx, a.load)
			if err != nil {
				fmt.Fprintln(out, "load failed:", err)
				continue
			}
			v = loaded
		case a.cmd != nil:
			accepted, next, err := d.Input(ctx, *a.cmd)
			if err != nil {
				return err
			}
			if !accepted {
				fmt.Fprintln(out, "nothing happens")
			}
			v = next
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintln(out, "(conversation over)")
	return d.Save(ctx, cfg.SaveSlot)
}
