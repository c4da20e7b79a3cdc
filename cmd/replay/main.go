// Command replay rebuilds a document from a recorded message log, either
// plain protocol messages or the records exported to Kafka, one JSON value
// per line, or from a document downloaded from the relay. The document is
// replayed by several clients whose states must match; the result is
// printed as YAML.
package main

import (
	"flag"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/sheetsync/internal/core/observability/log"
)

func main() {
	var (
		path       = flag.String("log", "", "message log, JSON lines (- for stdin)")
		snapshot   = flag.String("snapshot", "", "document fetched from GET /documents/:id/messages")
		documentID = flag.String("document", "", "keep only exported records of this document")
		clients    = flag.Int("clients", 3, "number of replaying clients")
		withState  = flag.Bool("state", false, "include the final workbook state")
		level      = flag.String("level", "warn", "log level")
	)
	flag.Parse()

	logger := log.New(log.ParseLevel(*level))
	defer func() { _ = logger.Sync() }()
	if *path == "" && *snapshot == "" {
		flag.Usage()
		os.Exit(2)
	}

	source := Source{DocumentID: *documentID}
	if *snapshot != "" {
		file, err := os.Open(*snapshot)
		if err != nil {
			logger.Fatal("Failed to open snapshot", log.Error(err))
		}
		source.Snapshot, err = ReadSnapshot(file)
		_ = file.Close()
		if err != nil {
			logger.Fatal("Failed to read snapshot", log.Error(err))
		}
	}
	if *path != "" {
		input := os.Stdin
		if *path != "-" {
			file, err := os.Open(*path)
			if err != nil {
				logger.Fatal("Failed to open log", log.Error(err))
			}
			defer file.Close()
			input = file
		}
		messages, err := ReadLog(input, *documentID)
		if err != nil {
			logger.Fatal("Failed to read log", log.Error(err))
		}
		source.Messages = append(source.Messages, messages...)
	}

	report, err := Replay(source, *clients, logger)
	if err != nil {
		logger.Fatal("Replay failed", log.Error(err))
	}
	if !*withState {
		report.State = nil
	}

	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)
	if err = encoder.Encode(report); err != nil {
		logger.Fatal("Failed to print report", log.Error(err))
	}
	_ = encoder.Close()
	if !report.Converged {
		os.Exit(1)
	}
}
