package cmd

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/analyzer"
	"github.com/spigell/resume-gpt/internal/logger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse stored analyses",
	Run: func(cmd *cobra.Command, _ []string) {
		history(cmd)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Uint("user-id", 1, "owner of the analyses")
}

func history(cmd *cobra.Command) {
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
		logger.Error("exiting", zap.Error(errNoDatabase))
		return
	}

	userID, err := cmd.Flags().GetUint("user-id")
	if err != nil {
		logger.Fatal("reading user id", zap.Error(err))
	}

	// Browsing needs no model clients.
	svc := analyzer.New(nil, store, logger)

	results, err := svc.History(ctx, userID)
	if err != nil {
		logger.Error("listing analyses", zap.Error(err))
		return
	}

	logger.Info("stored analyses", zap.Int("count", len(results)), zap.Uint("user_id", userID))
	if len(results) == 0 {
		return
	}

	if err := browse(results); err != nil {
		logger.Error("exiting", zap.Error(err))
	}
}

func browse(results []analyzer.Result) error {
	byID := make(map[string]analyzer.Result, len(results))
	items := make([]string, 0, len(results)+1)
	for _, r := range results {
		created := ""
		if r.CreatedAt != nil {
			created = r.CreatedAt.Format("2006-01-02 15:04")
		}

		id := strconv.FormatUint(uint64(r.ID), 10)
		byID[id] = r
		items = append(items, fmt.Sprintf("%s %s / resume %d / tech %d matched, %d missing / soft %d matched, %d missing",
			id, created, r.ResumeID,
			len(r.MatchedTech), len(r.MissingTech),
			len(r.MatchedSoft), len(r.MissingSoft),
		))
	}

	for {
		analysisPrompt := promptui.Select{
			Label: "Choose an analysis and press ENTER",
			Items: append(items, PromptBack),
		}

		_, selected, err := analysisPrompt.Run()
		if err != nil {
			return err
		}

		if selected == PromptBack {
			return nil
		}

		id := strings.Split(selected, " ")[0]
		r, ok := byID[id]
		if !ok {
			return fmt.Errorf("there is no such analysis id %s", id)
		}

		if err := printJSON(r); err != nil {
			return err
		}
	}
}
