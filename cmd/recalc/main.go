// Command recalc rebuilds the metric rows of a wallet from its full
// transaction history. It is the administrative reconciliation entrypoint:
// incremental aggregation must always land on the same rows this rebuild
// produces.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"finledger-backend/internal/config"
	"finledger-backend/internal/di"
)

func main() {
	accountID := flag.String("account", "", "account id to recalculate")
	walletID := flag.String("wallet", "", "wallet id to recalculate")
	flag.Parse()

	if *accountID == "" || *walletID == "" {
		fmt.Fprintln(os.Stderr, "usage: recalc -account <id> -wallet <id>")
		os.Exit(2)
	}

	// Optional local overrides; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer container.Close()

	if err := container.Operations.RecalculateWalletMetrics(ctx, *accountID, *walletID); err != nil {
		container.Logger.Fatal("recalculation failed",
			zap.String("accountId", *accountID),
			zap.String("walletId", *walletID),
			zap.Error(err),
		)
	}

	container.Logger.Info("recalculation complete",
		zap.String("accountId", *accountID),
		zap.String("walletId", *walletID),
	)
}
