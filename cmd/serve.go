package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/ingest"
	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/server"
	"github.com/spigell/resume-gpt/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resume analysis HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("address", "", "listen address (default :8000)")
	viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
}

func serve() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	store, closeStore, err := openStore(config, logger)
	if err != nil {
		logger.Fatal("opening the database", zap.Error(err))
	}
	defer closeStore()

	if store == nil {
		logger.Warn("keeping resumes and analyses in memory", zap.Error(errNoDatabase))
		store = storage.NewMemoryStore()
	}

	svc, closeService, err := newService(ctx, config, store, logger)
	if err != nil {
		logger.Fatal("building the analyzer", zap.Error(err))
	}
	defer closeService()

	docs, err := ingest.New(ctx, config.Uploads.Dir, logger)
	if err != nil {
		logger.Fatal("building the document reader", zap.Error(err))
	}

	address := config.Server.Address
	if address == "" {
		address = ":8000"
	}

	logger.Info("starting the resume-gpt api",
		zap.String("address", address),
		zap.String("upload_dir", config.Uploads.Dir),
		zap.String("version", version),
	)

	server.New(address, svc, docs, logger).Run()
}
