package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docstruct"
	"github.com/brunobiangulo/docstruct/retrieval"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search over indexed chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		opts := searchOptsFromFlags(cmd)

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		results, _, err := engine.Search(cmd.Context(), query, opts)
		if errors.Is(err, docstruct.ErrNoResults) {
			fmt.Println("No results.")
			return nil
		}
		if err != nil {
			return err
		}

		for i, r := range results {
			fmt.Printf("%d. [%.4f] %s p.%d\n", i+1, r.Score, r.Filename, r.Page)
			fmt.Printf("   %s\n\n", snippet(r.Text, 300))
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		opts := searchOptsFromFlags(cmd)

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		answer, err := engine.Ask(cmd.Context(), question, opts)
		if err != nil {
			return err
		}

		fmt.Println(answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Println("\nSources:")
			for _, s := range answer.Sources {
				fmt.Printf("  - %s p.%d\n", s.Filename, s.Page)
			}
		}
		return nil
	},
}

func searchOptsFromFlags(cmd *cobra.Command) retrieval.SearchOptions {
	maxResults, _ := cmd.Flags().GetInt("max-results")
	docID, _ := cmd.Flags().GetInt64("document")
	return retrieval.SearchOptions{
		MaxResults: maxResults,
		DocumentID: docID,
	}
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, askCmd} {
		c.Flags().Int("max-results", 0, "maximum results to return (0 = default)")
		c.Flags().Int64("document", 0, "restrict to one document id")
	}
	rootCmd.AddCommand(searchCmd, askCmd)
}
