package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docstruct/caption"
)

var addCmd = &cobra.Command{
	Use:   "add <file.pdf>",
	Short: "Register a PDF in the document registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		id, err := engine.AddDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Added document %d: %s\n", id, args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		docs, err := engine.ListDocuments(cmd.Context())
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPAGES\tFILENAME")
		for _, d := range docs {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", d.ID, d.Status, d.PageCount, d.Filename)
		}
		return w.Flush()
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <document-id>",
	Short: "Extract typed blocks from a document's PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := docIDArg(args[0])
		if err != nil {
			return err
		}
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		res, err := engine.ExtractStructure(cmd.Context(), id, overwrite)
		if err != nil {
			return err
		}
		if res.Skipped {
			fmt.Printf("Document %d already extracted, skipping (use --overwrite to redo)\n", id)
			return nil
		}
		fmt.Printf("Extracted %d blocks from %d pages (%d titles, %d list items)\n",
			res.BlocksCreated, res.PagesProcessed, res.TitlesCount, res.ListItemsCount)
		return nil
	},
}

var embedCmd = &cobra.Command{
	Use:   "embed <document-id>",
	Short: "Chunk a document's blocks and embed the chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := docIDArg(args[0])
		if err != nil {
			return err
		}
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		res, err := engine.ChunkAndEmbed(cmd.Context(), id, overwrite)
		if err != nil {
			return err
		}
		if res.Skipped {
			fmt.Printf("Document %d already embedded, skipping (use --overwrite to redo)\n", id)
			return nil
		}
		fmt.Printf("Embedded %d chunks with %s\n", res.ChunksCreated, res.EmbeddingModel)
		return nil
	},
}

var captionCmd = &cobra.Command{
	Use:   "caption <document-id>",
	Short: "Caption a document's figure and table assets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := docIDArg(args[0])
		if err != nil {
			return err
		}
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		limit, _ := cmd.Flags().GetInt("limit")
		skipTables, _ := cmd.Flags().GetBool("skip-tables")

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		sum, err := engine.CaptionAssets(cmd.Context(), id, caption.Options{
			Overwrite:  overwrite,
			Limit:      limit,
			SkipTables: skipTables,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Captioned %d/%d assets (%d failed, %d skipped)\n",
			sum.Captioned, sum.Processed, sum.Failed, sum.Skipped)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <document-id> <out.xlsx>",
	Short: "Export a document's blocks to an XLSX workbook",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := docIDArg(args[0])
		if err != nil {
			return err
		}

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		if err := engine.ExportBlocks(cmd.Context(), id, args[1]); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", args[1])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and all derived data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := docIDArg(args[0])
		if err != nil {
			return err
		}

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		if err := engine.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Deleted document %d\n", id)
		return nil
	},
}

// process runs extract + embed in one shot, the common path for a
// freshly added document.
var processCmd = &cobra.Command{
	Use:   "process <document-id>",
	Short: "Extract and embed a document in one step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := docIDArg(args[0])
		if err != nil {
			return err
		}
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		ext, err := engine.ExtractStructure(cmd.Context(), id, overwrite)
		if err != nil {
			return err
		}
		if !ext.Skipped {
			fmt.Printf("Extracted %d blocks from %d pages\n", ext.BlocksCreated, ext.PagesProcessed)
		}
		emb, err := engine.ChunkAndEmbed(cmd.Context(), id, overwrite)
		if err != nil {
			return err
		}
		if emb.Skipped {
			fmt.Printf("Document %d already embedded\n", id)
			return nil
		}
		fmt.Printf("Embedded %d chunks with %s\n", emb.ChunksCreated, emb.EmbeddingModel)
		return nil
	},
}

func docIDArg(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", s)
	}
	return id, nil
}

func init() {
	extractCmd.Flags().Bool("overwrite", false, "re-extract even if blocks exist")
	embedCmd.Flags().Bool("overwrite", false, "re-embed even if chunks exist")
	processCmd.Flags().Bool("overwrite", false, "redo extraction and embedding")
	captionCmd.Flags().Bool("overwrite", false, "re-caption assets that already have captions")
	captionCmd.Flags().Int("limit", 0, "caption at most this many assets (0 = all)")
	captionCmd.Flags().Bool("skip-tables", false, "skip table assets")

	rootCmd.AddCommand(addCmd, listCmd, extractCmd, embedCmd, processCmd,
		captionCmd, exportCmd, deleteCmd)
}
