// timeframes は日足の取り込みと、週足・月足の集計を行うバッチです。
//
//	timeframes ingest                     # Twelve Data から日足を取り込む
//	timeframes daily --date 2025-09-06    # 日次サイクル（再計算＋確定）
//	timeframes finalize --kind 1week      # 直前の週足を確定
//	timeframes rebuild --years 5          # 週足・月足をすべて作り直す
//	timeframes token --subject grafana    # 読み取りAPI用トークンを発行
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"stock_timeframes/internal/platform/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("timeframes failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "timeframes",
		Short:         "Ingest daily bars and derive weekly/monthly candles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil {
				log.Println("[INFO] .env not found; using system environment variables")
			}
			logging.Setup()
		},
	}
	root.AddCommand(
		newIngestCmd(),
		newDailyCmd(),
		newFinalizeCmd(),
		newRebuildCmd(),
		newTokenCmd(),
	)
	return root
}
