package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wsmontes/Document-Reviewer/internal/config"
	"github.com/wsmontes/Document-Reviewer/internal/document"
	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/metaprompt"
	"github.com/wsmontes/Document-Reviewer/pkg/server"
)

var (
	askFile          string
	askQuery         string
	askTitle         string
	askDetermination int
	askTemperature   string
	askNoAgents      bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer one question about a text file",
	Example: `  docreview ask --file contract.txt --query "Summarise the termination clauses"
  docreview ask -f notes.txt -q "List every action item" --determination 5`,
	RunE: runAsk,
}

func init() {
	f := askCmd.Flags()
	f.StringVarP(&askFile, "file", "f", "", "text file to review (required)")
	f.StringVarP(&askQuery, "query", "q", "", "question to answer (required)")
	f.StringVar(&askTitle, "title", "", "document title (default: file name)")
	f.IntVarP(&askDetermination, "determination", "d", 0, "1-5, how hard to try improving the answer")
	f.StringVar(&askTemperature, "temperature", "", `sampling temperature, or "auto"`)
	f.BoolVar(&askNoAgents, "no-agents", false, "disable the automatic agent workflow")
	askCmd.MarkFlagRequired("file")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if askDetermination < 0 || askDetermination > 5 {
		return errors.New("--determination must be between 1 and 5")
	}

	raw, err := os.ReadFile(askFile)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return document.ErrEmptyDocument
	}
	title := askTitle
	if title == "" {
		title = filepath.Base(askFile)
	}
	doc := document.Static{
		Title:       title,
		Text:        text,
		PageCount:   document.EstimatePages(text),
		HasDocument: true,
	}

	meter, err := server.NewGateway(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	engine := server.NewEngine(cfg, meter, doc, events.LogSink{})

	opts := metaprompt.Options{Determination: askDetermination}
	if askNoAgents {
		off := false
		opts.AutoAgents = &off
	}
	if askTemperature != "" {
		t, err := gateway.ParseTemperature(askTemperature)
		if err != nil {
			return err
		}
		opts.Temperature = &t
	}

	res, err := engine.ProcessQuery(ctx, askQuery, opts)
	if err != nil {
		return errors.New(metaprompt.UserMessage(err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Answer)
	fmt.Fprintf(out, "\n---\nmode: %s  confidence: %.2f  quality: %.1f  prompts: %d  elapsed: %.1fs\n",
		res.Mode, res.Confidence, res.Quality, res.Usage.Prompts, res.Elapsed)
	return nil
}
