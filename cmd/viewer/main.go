package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"netlab/domain"
	"netlab/repositories"
	"netlab/transcript"
)

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,default=logs/events"`
	TranscriptPath string `env:"TRANSCRIPT_PATH,default=chat_log.txt"`
	LogLevel       string `env:"LOG_LEVEL,default=WARN"`
	EventLimit     int    `env:"VIEWER_EVENT_LIMIT,default=50"`
	TranscriptTail int    `env:"VIEWER_TRANSCRIPT_TAIL,default=20"`
}

func main() {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// BypassLockGuard allows opening while the application holds the lock.
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	defer db.Close()

	repository := repositories.NewEventRepository(db, logger)
	events, err := repository.Recent(config.EventLimit)
	if err != nil {
		log.Fatalf("Failed to read events: %v", err)
	}

	fmt.Printf("Recent events (newest first, limit %d):\n", config.EventLimit)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Timestamp", "Severity", "Module", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	counts := map[string]int{}
	for _, e := range events {
		counts[string(e.Severity)]++
		table.Append([]string{
			e.At.Format(domain.TimeLayout),
			string(e.Severity),
			e.Module,
			e.Message,
		})
	}
	table.Render()
	fmt.Printf("Severity counts: INFO=%d WARN=%d ERROR=%d\n\n",
		counts["INFO"], counts["WARN"], counts["ERROR"])

	lines, err := transcript.New(config.TranscriptPath).Tail(config.TranscriptTail)
	if err != nil {
		log.Fatalf("Failed to read transcript: %v", err)
	}
	fmt.Printf("Transcript (last %d lines):\n", config.TranscriptTail)
	if len(lines) == 0 {
		fmt.Println("No transcript entries available.")
		return
	}
	transcriptTable := tablewriter.NewWriter(os.Stdout)
	transcriptTable.SetHeader([]string{"Timestamp", "Message"})
	transcriptTable.SetAutoWrapText(false)
	transcriptTable.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	transcriptTable.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, line := range lines {
		at, text := domain.ParseTranscriptLine(line)
		stamp := ""
		if !at.IsZero() {
			stamp = at.Format(domain.TimeLayout)
		}
		transcriptTable.Append([]string{stamp, text})
	}
	transcriptTable.Render()
}
