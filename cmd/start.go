/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tieubaoca/rag-be/handler"
)

// startServerCmd represents the start command
var startServerCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the RAG API server",
	Long:  `Starts the HTTP and WebSocket server for ingestion, search and question answering`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		cfg := a.cfg
		ragHandler := handler.NewRAGHandler(a.files, a.retrieval, a.rag, a.ws, handler.HandlerOptions{
			SearchMatchCount:    cfg.RAG.SearchMatchCount,
			QueryMatchCount:     cfg.RAG.MatchCount,
			SimilarityThreshold: cfg.RAG.SimilarityThreshold,
		})
		router := handler.NewRouter(ragHandler, handler.RouterOptions{
			JWTSecret:          cfg.JWTSecret,
			AllowedOrigins:     cfg.AllowedOrigins,
			MaxMultipartMemory: cfg.RAG.MaxUploadBytes,
		})

		a.log.Info("Starting server", "port", cfg.Port, "store", cfg.Store.Driver)
		return router.Run(":" + cfg.Port)
	},
}

func init() {
	rootCmd.AddCommand(startServerCmd)
}
