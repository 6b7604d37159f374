package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/rag-be/types"
)

var (
	queryUser         string
	queryQuestion     string
	queryConversation string
	queryDocs         []string
	queryMatchCount   int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Ask a question against a user's documents",
	Example: `  rag-be query --user alice --question "What is the refund policy?"
  rag-be query -u alice -q "And for digital goods?" --conversation <id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		matchCount := queryMatchCount
		if matchCount <= 0 {
			matchCount = a.cfg.RAG.MatchCount
		}
		res, err := a.rag.Query(cmd.Context(), types.QueryRequest{
			Question:       queryQuestion,
			UserID:         queryUser,
			ConversationID: queryConversation,
			DocumentIDs:    queryDocs,
			MatchCount:     matchCount,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, res.Answer)
		fmt.Fprintln(out)
		for i, s := range res.Sources {
			fmt.Fprintf(out, "[Source %d] %s (chunk %d, similarity %.3f)\n", i+1, s.Filename, s.ChunkIndex, s.Similarity)
		}
		fmt.Fprintf(out, "conversation: %s\n", res.ConversationID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryUser, "user", "u", "", "User id")
	queryCmd.Flags().StringVarP(&queryQuestion, "question", "q", "", "Question to ask")
	queryCmd.Flags().StringVar(&queryConversation, "conversation", "", "Continue an existing conversation")
	queryCmd.Flags().StringSliceVar(&queryDocs, "doc", nil, "Restrict retrieval to these document ids")
	queryCmd.Flags().IntVar(&queryMatchCount, "match-count", 0, "Number of passages to retrieve")
	queryCmd.MarkFlagRequired("user")
	queryCmd.MarkFlagRequired("question")
}
