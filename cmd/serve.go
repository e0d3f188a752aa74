package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/logger"
	"github.com/spigell/jd-validator/internal/metrics"
	"github.com/spigell/jd-validator/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline and the skill index controls over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default is server.addr)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	metrics.Register()

	a, err := newApplication(ctx, logger)
	if err != nil {
		logger.Fatal("building the application", zap.Error(err))
	}
	defer a.Close()

	runner, err := a.newRunner(ctx)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	srv := server.New(server.Deps{
		Index:     a.index,
		Processor: runner,
		Parser:    a.reader,
		Logger:    logger,
	})

	addr := a.config.Server.Addr
	logger.Info("starting the jd-validator server", zap.String("version", version), zap.String("addr", addr))

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}
}
