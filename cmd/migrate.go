package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/types"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the tables, indexes and vector classes of the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()
		ctx := cmd.Context()

		switch cfg.Store.Driver {
		case "postgres":
			if cfg.Postgres.DSN == "" {
				return &types.ConfigError{Key: "postgres.dsn", Reason: "required for the postgres store"}
			}
			store, err := database.NewPostgresStore(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, log)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx, cfg.Embedding.Dimension); err != nil {
				return err
			}
		case "mongo":
			client, err := database.NewMongoClient(ctx, cfg.Mongo.URI)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)
			// Both constructors create what is missing.
			index, err := database.NewWeaviateChunkIndex(ctx, cfg.Weaviate.Host, cfg.Weaviate.APIKey, cfg.Weaviate.Class, log)
			if err != nil {
				return err
			}
			if _, err := database.NewMongoStore(ctx, client.Database(cfg.Mongo.Database), index); err != nil {
				return err
			}
		default:
			log.Info("Nothing to migrate", "driver", cfg.Store.Driver)
			return nil
		}
		log.Info("Migration complete", "driver", cfg.Store.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
