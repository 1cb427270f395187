package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/playscore/pkg/config"
	"github.com/himanishpuri/playscore/pkg/logger"
	"github.com/himanishpuri/playscore/pkg/playscore"
	"github.com/himanishpuri/playscore/pkg/playscore/archive"
)

func handleInspect(cfg config.Config, args []string) int {
	log := logger.GetLogger()

	if len(args) != 1 {
		fmt.Println("Usage: playscore inspect <archive>")
		return 1
	}
	path := args[0]

	svc, err := createService(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		return 1
	}
	defer svc.Close()

	c := svc.Inspect(path)
	fmt.Printf("\n🔍 %s\n", path)
	fmt.Printf("   Payload: %s\n", c.Kind)

	switch c.Kind {
	case archive.KindCorrupt:
		fmt.Printf("   Error:   %v\n", c.Err)
		return playscore.CodeCorruptArchive.ExitCode()
	case archive.KindMusicXML, archive.KindMIDI:
		fmt.Printf("   Rule:    %s\n", c.Rule)
		fmt.Printf("   Entry:   %s (%s)\n", c.Entry, humanize.Bytes(uint64(len(c.Data))))
	}

	fmt.Printf("   Entries: %d\n", len(c.Entries))
	for _, name := range c.Entries {
		fmt.Printf("    - %s\n", name)
	}
	if c.Kind == archive.KindUnrecognized {
		return playscore.CodeNoUsablePayload.ExitCode()
	}
	return 0
}

func handleHistory(cfg config.Config, args []string) int {
	log := logger.GetLogger()

	historyCmd := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := historyCmd.Int("limit", 20, "Maximum number of conversions to list (0 for all)")
	if err := historyCmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	svc, err := createService(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		return 1
	}
	defer svc.Close()

	records, err := svc.History(*limit)
	if errors.Is(err, playscore.ErrHistoryDisabled) {
		fmt.Println("History is disabled; pass -db or set PLAYSCORE_DB_PATH")
		return 1
	}
	if err != nil {
		fmt.Printf("❌ Failed to list conversions: %v\n", err)
		log.Errorf("History failed: %v", err)
		return 1
	}

	if len(records) == 0 {
		fmt.Println("\n📭 No conversions recorded")
		return 0
	}

	fmt.Printf("\n📚 %d conversion(s):\n\n", len(records))
	for i, rec := range records {
		status := "✅"
		if rec.Code != string(playscore.CodeOK) {
			status = "❌"
		}
		fmt.Printf("%d. %s %s %s (%s)\n", i+1, status, rec.Mode, strings.Join(rec.Inputs, ", "), humanize.Time(rec.CreatedAt))
		if rec.Output != "" {
			fmt.Printf("   Output: %s", rec.Output)
			if rec.Parts > 0 {
				fmt.Printf(" (%d part(s))", rec.Parts)
			}
			fmt.Println()
		}
		if rec.Code != string(playscore.CodeOK) {
			fmt.Printf("   Result: %s\n", rec.Code)
		}
		fmt.Printf("   ID: %s | %dms\n", rec.ID, rec.DurationMs)
	}
	return 0
}
