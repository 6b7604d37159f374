package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/rag-be/types"
)

var (
	ingestFile string
	ingestUser string
)

var ingestCmd = &cobra.Command{
	Use:     "ingest",
	Short:   "Ingest a single document for a user",
	Example: `  rag-be ingest --file ./handbook.pdf --user alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		results, err := a.files.IngestPath(cmd.Context(), ingestUser, ingestFile)
		if err != nil {
			return err
		}
		return printResults(cmd, results)
	},
}

// printResults reports each file and fails when any of them failed.
func printResults(cmd *cobra.Command, results []types.FileIngestResult) error {
	failed := 0
	for _, r := range results {
		if r.DocumentID == nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %s\n", r.Filename, r.Error)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK   %s: document %s, %d chunks, %d tokens\n",
			r.Filename, *r.DocumentID, r.ChunkCount, r.TotalTokens)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "Path to the document")
	ingestCmd.Flags().StringVarP(&ingestUser, "user", "u", "", "Owner user id")
	ingestCmd.MarkFlagRequired("file")
	ingestCmd.MarkFlagRequired("user")
}
