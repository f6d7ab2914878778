package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/analyzer"
	"github.com/spigell/resume-gpt/internal/ingest"
	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/matching"
	"github.com/spigell/resume-gpt/internal/skills"
)

const (
	PromptYes  = "Yes"
	PromptNo   = "No"
	PromptBack = "back"
)

var savePrompt = promptui.Select{
	Label: "Save the analysis?",
	Items: []string{PromptYes, PromptNo},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compare a resume with a job description",
	Run: func(cmd *cobra.Command, _ []string) {
		analyze(cmd)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("resume", "r", "", "a text or PDF file with the resume")
	analyzeCmd.Flags().String("job", "", "a text or PDF file with the job description")
	analyzeCmd.Flags().Uint("user-id", 1, "owner of the stored analysis")
	analyzeCmd.Flags().BoolP("auto-approve", "y", false, "save the analysis without asking")

	analyzeCmd.MarkFlagRequired("resume")
	analyzeCmd.MarkFlagRequired("job")
}

func analyze(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the resume-gpt", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	docs, err := ingest.New(ctx, "", logger)
	if err != nil {
		logger.Fatal("building the document reader", zap.Error(err))
	}

	resumeText, err := readTextFile(ctx, docs, cmd.Flag("resume").Value.String())
	if err != nil {
		logger.Fatal("reading the resume", zap.Error(err))
	}

	jobDescription, err := readTextFile(ctx, docs, cmd.Flag("job").Value.String())
	if err != nil {
		logger.Fatal("reading the job description", zap.Error(err))
	}

	store, closeStore, err := openStore(config, logger)
	if err != nil {
		logger.Fatal("opening the database", zap.Error(err))
	}
	defer closeStore()

	svc, closeService, err := newService(ctx, config, store, logger)
	if err != nil {
		logger.Fatal("building the analyzer", zap.Error(err))
	}
	defer closeService()

	cmp, err := svc.Compare(ctx, resumeText, jobDescription)
	if errors.Is(err, matching.ErrInvalidArgument) {
		logger.Error("nothing to analyze", zap.Error(err))
		return
	}
	if err != nil {
		logger.Error("analysis failed", zap.Error(err))
		return
	}

	if err := printJSON(cmp); err != nil {
		logger.Error("printing the analysis", zap.Error(err))
		return
	}

	if !svc.HasStore() {
		logger.Debug("not saving", zap.String("reason", "database is not configured"))
		return
	}

	if err := maybeSave(ctx, cmd, svc, logger, resumeText, jobDescription, cmp); err != nil {
		logger.Error("saving the analysis", zap.Error(err))
	}
}

func maybeSave(ctx context.Context, cmd *cobra.Command, svc *analyzer.Service, logger *zap.Logger, resumeText, jobDescription string, cmp *skills.Comparison) error {
	action := PromptYes
	if cmd.Flag("auto-approve").Value.String() == "false" {
		var err error
		_, action, err = savePrompt.Run()
		if err != nil {
			return err
		}
	}

	if action != PromptYes {
		logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return nil
	}

	userID, err := cmd.Flags().GetUint("user-id")
	if err != nil {
		return err
	}

	res, err := svc.Save(ctx, userID, nil, resumeText, jobDescription, cmp)
	if err != nil {
		return err
	}

	logger.Info("analysis saved", zap.Uint("id", res.ID), zap.Uint("resume_id", res.ResumeID))
	return nil
}

// readTextFile returns the text of a plain text or PDF file.
func readTextFile(ctx context.Context, docs *ingest.Reader, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("file path is required")
	}
	return docs.ReadFile(ctx, path)
}

func printJSON(v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

// redacted returns a copy of config safe for logging.
func redacted(config *Config) *Config {
	if config == nil {
		return nil
	}

	c := *config
	if c.Generation != nil && c.Generation.APIKey != "" {
		g := *c.Generation
		g.APIKey = "***"
		c.Generation = &g
	}
	if c.Embedding != nil && c.Embedding.Token != "" {
		e := *c.Embedding
		e.Token = "***"
		c.Embedding = &e
	}
	if c.Database != nil && c.Database.DSN != "" {
		c.Database = &DatabaseConfig{DSN: "***"}
	}
	if c.Cache != nil && c.Cache.Redis.Password != "" {
		cc := *c.Cache
		cc.Redis.Password = "***"
		c.Cache = &cc
	}
	return &c
}
