// Command docstruct is the command line interface for the document
// structure extraction pipeline: register PDFs, extract typed blocks,
// chunk and embed, caption assets, and query the resulting index.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docstruct"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docstruct",
	Short: "Document structure extraction and contextual chunking",
	Long: `docstruct turns PDF documents into typed blocks, contextual chunks
and embeddings stored in SQLite, then answers questions over them with
hybrid vector + full-text retrieval.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

func main() {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newEngine builds an engine from the config file and environment.
// Callers must Close it.
func newEngine() (docstruct.Engine, error) {
	cfg, err := docstruct.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	return docstruct.New(cfg)
}
