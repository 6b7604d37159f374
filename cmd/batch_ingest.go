package cmd

import (
	"github.com/spf13/cobra"
)

var (
	batchDir  string
	batchUser string
)

var batchIngestCmd = &cobra.Command{
	Use:   "batch-ingest",
	Short: "Ingest every supported file of a directory",
	Long: `Ingests the regular files of a directory in name order. Files that fail
are reported and do not stop the rest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		results, err := a.files.IngestPath(cmd.Context(), batchUser, batchDir)
		if err != nil {
			return err
		}
		a.log.Info("Batch ingest finished", "directory", batchDir, "files", len(results))
		return printResults(cmd, results)
	},
}

func init() {
	rootCmd.AddCommand(batchIngestCmd)
	batchIngestCmd.Flags().StringVarP(&batchDir, "directory", "d", "", "Directory containing documents")
	batchIngestCmd.Flags().StringVarP(&batchUser, "user", "u", "", "Owner user id")
	batchIngestCmd.MarkFlagRequired("directory")
	batchIngestCmd.MarkFlagRequired("user")
}
