// Command docreview answers questions about documents by orchestrating a
// language model through planned reasoning stages, specialist agents and
// self-critique.
//
//	docreview serve
//	docreview ask --file report.txt --query "What are the main risks?"
package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "docreview",
	Short: "Document reviewer: meta-prompt orchestration for document Q&A",
	Long: `docreview answers questions about a document. Each query is analysed,
then answered through planned reasoning stages, a team of specialist agents,
or, for very large answers, a sequence of navigable segments.

Configuration is read from config/docreview.yaml (or $DOCREVIEW_CONFIG),
then from DOCREVIEW_* environment variables. A .env file is loaded first.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
