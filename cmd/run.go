package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/composer"
	"github.com/spigell/jd-validator/internal/logger"
	"github.com/spigell/jd-validator/internal/pipeline"
)

const (
	PromptShowAll = "Show all documents"
	PromptDump    = "Dump documents to directory"
	PromptExit    = "Exit"
)

var errExit = errors.New("exit requested")

var headerColor = color.New(color.FgCyan, color.Bold)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract jobs from pages and compose tailored documents",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayP("url", "u", nil, "job posting url (repeatable)")
	runCmd.Flags().StringP("text-file", "t", "", "file with already copied page text")
	runCmd.Flags().BoolP("yes", "y", false, "print every document without the interactive selector")
	runCmd.Flags().StringP("output", "o", "", "directory to dump documents and the report to")
}

// document is one composed result shown to the user.
type document struct {
	Source string
	Result pipeline.Result
}

func (d document) label(n int) string {
	return fmt.Sprintf("%d %s / %s", n, d.Result.Job.Role, d.Source)
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	urls, _ := cmd.Flags().GetStringArray("url")
	textFile, _ := cmd.Flags().GetString("text-file")
	yes, _ := cmd.Flags().GetBool("yes")
	output, _ := cmd.Flags().GetString("output")

	if len(urls) == 0 && textFile == "" {
		logger.Fatal("nothing to process", zap.String("hint", "pass --url or --text-file"))
	}

	logger.Info("starting the jd-validator", zap.String("version", version))

	a, err := newApplication(ctx, logger)
	if err != nil {
		logger.Fatal("building the application", zap.Error(err))
	}
	defer a.Close()

	runner, err := a.newRunner(ctx)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	reports := runner.Run(ctx, urls)

	if textFile != "" {
		reports = append(reports, processTextFile(ctx, runner, textFile, logger))
	}

	docs := collectDocuments(reports)

	logger.Info("pages processed",
		zap.Int("pages", len(reports)),
		zap.Int("failed pages", countFailed(reports)),
		zap.Int("documents", len(docs)),
	)

	if len(docs) == 0 {
		if output != "" {
			if _, err := dump(output, reports, docs); err != nil {
				logger.Fatal("dumping the report", zap.Error(err))
			}
		}
		logger.Info("exiting", zap.String("reason", "no documents composed"))
		return
	}

	if yes {
		printDocuments(docs)
		if output != "" {
			dir, err := dump(output, reports, docs)
			if err != nil {
				logger.Fatal("dumping documents", zap.Error(err))
			}
			logger.Info("dumping documents to directory", zap.String("directory", dir))
		}
		return
	}

	for {
		if err := selectDocument(logger, reports, docs, output); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func processTextFile(ctx context.Context, runner *pipeline.Runner, path string, logger *zap.Logger) pipeline.PageReport {
	pr := pipeline.PageReport{URL: path}

	data, err := os.ReadFile(path)
	if err == nil {
		pr.Report, err = runner.Text(ctx, string(data))
	}

	if err != nil {
		pr.Err = err
		pr.Error = err.Error()
		logger.Error("page failed", zap.String("file", path), zap.Error(err))
	}

	return pr
}

func collectDocuments(reports []pipeline.PageReport) []document {
	var docs []document
	for _, pr := range reports {
		if pr.Report == nil {
			continue
		}
		for _, res := range pr.Report.Results {
			if res.Err != nil {
				continue
			}
			docs = append(docs, document{Source: pr.URL, Result: res})
		}
	}
	return docs
}

func countFailed(reports []pipeline.PageReport) int {
	n := 0
	for _, pr := range reports {
		if pr.Err != nil {
			n++
		}
	}
	return n
}

func selectDocument(logger *zap.Logger, reports []pipeline.PageReport, docs []document, output string) error {
	items := []string{PromptShowAll}
	for i, d := range docs {
		items = append(items, d.label(i+1))
	}
	items = append(items, PromptDump, PromptExit)

	prompt := promptui.Select{
		Label: "Choose a document and press ENTER",
		Items: items,
		Size:  10,
	}

	idx, selected, err := prompt.Run()
	if err != nil {
		return err
	}

	switch selected {
	case PromptShowAll:
		printDocuments(docs)
	case PromptDump:
		dir, err := dump(output, reports, docs)
		if err != nil {
			return fmt.Errorf("dump documents: %w", err)
		}
		logger.Info("dumping documents to directory", zap.String("directory", dir))
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		// Labels may repeat, so the position is authoritative.
		printDocument(idx, docs[idx-1])
	}

	return nil
}

func printDocuments(docs []document) {
	for i, d := range docs {
		printDocument(i+1, d)
	}
}

func printDocument(n int, d document) {
	fmt.Println(headerColor.Sprintf("=== %s ===", d.label(n)))
	if len(d.Result.Missing) > 0 {
		fmt.Println(color.YellowString("missing sections: %s", strings.Join(d.Result.Missing, ", ")))
	}
	fmt.Println(highlight(d.Result.Document))
	fmt.Println()
}

// highlight colors the lines announcing a document section.
func highlight(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if _, ok := composer.HeaderOf(line); ok {
			lines[i] = headerColor.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

func fileName(n int, role string) string {
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(role), "-"), "-")
	if slug == "" {
		slug = "job"
	}
	return fmt.Sprintf("%02d-%s.md", n, slug)
}

// dump writes every document and the full report to dir. An empty dir
// creates a temporary one.
func dump(dir string, reports []pipeline.PageReport, docs []document) (string, error) {
	var err error
	if dir == "" {
		dir, err = os.MkdirTemp("", app+"-")
	} else {
		err = os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return "", err
	}

	for i, d := range docs {
		path := filepath.Join(dir, fileName(i+1, d.Result.Job.Role))
		if err := os.WriteFile(path, []byte(d.Result.Document), 0o644); err != nil {
			return "", err
		}
	}

	report, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(dir, "report.json"), report, 0o644); err != nil {
		return "", err
	}

	return dir, nil
}
