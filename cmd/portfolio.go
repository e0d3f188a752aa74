package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/logger"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Manage the skill index built from the portfolio corpus",
	Long: "Manage the skill index built from the portfolio corpus.\n" +
		"With the memory backend the index lives only as long as the process; use the redis backend to keep it between runs.",
}

var portfolioLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the portfolio into the skill index if it is empty",
	Run: func(cmd *cobra.Command, _ []string) {
		withApplication(func(ctx context.Context, a *application) error {
			return portfolioLoad(ctx, cmd, a)
		})
	},
}

var portfolioClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every document from the skill index",
	Run: func(cmd *cobra.Command, _ []string) {
		withApplication(func(ctx context.Context, a *application) error {
			return portfolioClear(ctx, cmd, a)
		})
	},
}

var portfolioCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of documents in the skill index",
	Run: func(_ *cobra.Command, _ []string) {
		withApplication(func(ctx context.Context, a *application) error {
			n, err := a.index.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d documents\n", a.index.Collection(), n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(portfolioCmd)
	portfolioCmd.AddCommand(portfolioLoadCmd, portfolioClearCmd, portfolioCountCmd)

	portfolioLoadCmd.Flags().BoolP("force", "f", false, "clear the index before loading")
	portfolioLoadCmd.Flags().String("file", "", "portfolio csv to use instead of portfolio.file; implies --force")

	portfolioClearCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

// withApplication builds the application for a short command and exits on
// the first error.
func withApplication(fn func(ctx context.Context, a *application) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	a, err := newApplication(ctx, logger)
	if err != nil {
		logger.Fatal("building the application", zap.Error(err))
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}
}

func portfolioLoad(ctx context.Context, cmd *cobra.Command, a *application) error {
	force, _ := cmd.Flags().GetBool("force")
	file, _ := cmd.Flags().GetString("file")

	if file != "" {
		if err := a.readCorpus(file); err != nil {
			return fmt.Errorf("reading portfolio %s: %w", file, err)
		}
		force = true
	}

	// A forced load would only clear the index.
	if force && !a.index.HasCorpus() {
		return errors.New("no portfolio corpus available: set portfolio.file or pass --file")
	}

	if err := a.index.Load(ctx, force); err != nil {
		return err
	}

	n, err := a.index.Count(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("skill index loaded", zap.Bool("force", force), zap.Int("documents", n))
	return nil
}

func portfolioClear(ctx context.Context, cmd *cobra.Command, a *application) error {
	yes, _ := cmd.Flags().GetBool("yes")

	if !yes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Remove every document from %s", a.index.Collection()),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			a.logger.Info("exiting", zap.String("reason", "clear was not confirmed"))
			return nil
		}
	}

	if err := a.index.Clear(ctx); err != nil {
		return err
	}

	a.logger.Info("skill index cleared", zap.String("collection", a.index.Collection()))
	return nil
}
