package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ohmynofan/mapp-task-bot/internal/app"
	"github.com/ohmynofan/mapp-task-bot/internal/config"
	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/ui"
)

func main() {
	sessionID := flag.String("sid", "", "watch a single ad session instead of working the task board")
	simulate := flag.Bool("simulate", false, "with -sid, request a simulated completion if the server allows it")
	withdrawMethod := flag.String("withdraw-method", "", "submit a withdrawal with this payout method")
	withdrawAccount := flag.String("withdraw-account", "", "payout account for -withdraw-method")
	withdrawAmount := flag.String("withdraw-amount", "", "amount to withdraw")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		print(err.Error())
		os.Exit(1)
	}

	opts := app.RunOptions{SessionID: *sessionID, Simulate: *simulate}
	if *withdrawMethod != "" {
		amount, err := decimal.NewFromString(*withdrawAmount)
		if err != nil {
			print(fmt.Sprintf("invalid -withdraw-amount %q", *withdrawAmount))
			os.Exit(1)
		}
		opts.Withdraw = &model.Withdrawal{Method: *withdrawMethod, Account: *withdrawAccount, Amount: amount}
	}

	_ = logger.Init(cfg.LogPath)
	defer logger.Close()

	ui.StartUISystem()
	defer ui.StopUISystem()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg).Run(ctx, opts); err != nil {
		ui.StopUISystem()
		print(err.Error())
		os.Exit(1)
	}

	time.Sleep(1 * time.Second)
}
