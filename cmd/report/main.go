// Command report summarizes a trading session from the bot's journal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"orderly-mm-bot/internal/journal"
)

type summary struct {
	DB             string  `json:"db"`
	From           string  `json:"from,omitempty"`
	Events         int     `json:"events"`
	Ticks          int     `json:"ticks"`
	Quotes         int     `json:"quotes"`
	TakeProfits    int     `json:"take_profits"`
	InventoryStops int     `json:"inventory_stops"`
	LossProtected  int     `json:"loss_protected"`
	FirstMark      float64 `json:"first_mark,omitempty"`
	LastMark       float64 `json:"last_mark,omitempty"`
	MinPnL         float64 `json:"min_pnl"`
	MaxPnL         float64 `json:"max_pnl"`
	LastPnL        float64 `json:"last_pnl"`
	LastPosition   float64 `json:"last_position"`
}

func main() {
	dbPath := flag.String("db", "data/orderly-mm-bot.db", "path to the bot database")
	lookback := flag.Duration("lookback", 0, "only include events newer than this (0 = everything)")
	asJSON := flag.Bool("json", false, "emit the summary as JSON")
	flag.Parse()

	jnl, err := journal.Open(*dbPath)
	if err != nil {
		fatal(err)
	}
	defer jnl.Close()

	var sinceMS int64
	var from string
	if *lookback > 0 {
		start := time.Now().Add(-*lookback)
		sinceMS = start.UnixMilli()
		from = start.UTC().Format(time.RFC3339)
	}
	events, err := jnl.Events(context.Background(), sinceMS)
	if err != nil {
		fatal(err)
	}

	s := summarize(events)
	s.DB = *dbPath
	s.From = from

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			fatal(err)
		}
		return
	}
	printSummary(s)
}

func summarize(events []journal.Event) summary {
	var s summary
	s.Events = len(events)
	firstTick := true
	for _, event := range events {
		switch event.Kind {
		case journal.KindTick:
			s.Ticks++
			if firstTick {
				s.FirstMark = event.MarkPrice
				s.MinPnL = event.UnrealizedPnL
				s.MaxPnL = event.UnrealizedPnL
				firstTick = false
			}
			s.LastMark = event.MarkPrice
			s.LastPnL = event.UnrealizedPnL
			s.LastPosition = event.PositionQty
			if event.UnrealizedPnL < s.MinPnL {
				s.MinPnL = event.UnrealizedPnL
			}
			if event.UnrealizedPnL > s.MaxPnL {
				s.MaxPnL = event.UnrealizedPnL
			}
		case journal.KindQuote:
			s.Quotes++
		case journal.KindTakeProfit:
			s.TakeProfits++
		case journal.KindInventoryStop:
			s.InventoryStops++
		case journal.KindLossProtection:
			s.LossProtected++
		}
	}
	return s
}

func printSummary(s summary) {
	fmt.Printf("journal: %s\n", s.DB)
	if s.From != "" {
		fmt.Printf("from:    %s\n", s.From)
	}
	fmt.Printf("events:  %d (%d ticks, %d quote cycles)\n", s.Events, s.Ticks, s.Quotes)
	fmt.Printf("exits:   %d take-profit, %d inventory stop ticks, %d loss-protected plans\n",
		s.TakeProfits, s.InventoryStops, s.LossProtected)
	if s.Ticks > 0 {
		fmt.Printf("mark:    %.2f -> %.2f\n", s.FirstMark, s.LastMark)
		fmt.Printf("pnl:     last %.4f (min %.4f, max %.4f)\n", s.LastPnL, s.MinPnL, s.MaxPnL)
		fmt.Printf("position: %.4f\n", s.LastPosition)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "report: %v\n", err)
	os.Exit(1)
}
