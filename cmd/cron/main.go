package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"juice-service/internal/biz"
	"juice-service/internal/conf"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

// CronApp Cron 应用结构
type CronApp struct {
	purchaseUsecase   *biz.PurchaseUseCase
	settlementUsecase *biz.SettlementUseCase
	expirationUsecase *biz.ExpirationUseCase
}

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化日志 (使用 go-pkg/logger)
	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/juice-cron.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}

	loggerInstance := logger.NewLogger(logConfig)

	// 添加基本字段
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "juice-cron",
	)

	logHelper := log.NewHelper(loggerInstance)

	// 初始化应用
	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 充值入账 - 每分钟执行
	_, err = cronScheduler.AddFunc("0 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		result, err := app.purchaseUsecase.CreditDuePurchases(ctx, 0)
		if err != nil {
			logHelper.Errorf("[CRON] Error crediting due purchases: %v", err)
			return
		}
		if result.Succeeded > 0 || result.Failed > 0 {
			logHelper.Infof("[CRON] Credit due purchases: credited=%d, failed=%d, skipped=%d",
				result.Succeeded, result.Failed, result.StillPending)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add purchase credit job: %v", err)
	}

	// 消费结算 - 每 30 秒执行
	_, err = cronScheduler.AddFunc("*/30 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		result, err := app.settlementUsecase.ProcessPendingSpends(ctx, 0)
		if err != nil {
			logHelper.Errorf("[CRON] Error processing pending spends: %v", err)
			return
		}
		if result.Succeeded > 0 || result.Failed > 0 {
			logHelper.Infof("[CRON] Spend settlement: succeeded=%d, failed=%d, pending=%d",
				result.Succeeded, result.Failed, result.StillPending)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add spend settlement job: %v", err)
	}

	// 提现结算 - 每分钟执行
	_, err = cronScheduler.AddFunc("30 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		result, err := app.settlementUsecase.ProcessPendingCashOuts(ctx, 0)
		if err != nil {
			logHelper.Errorf("[CRON] Error processing pending cash outs: %v", err)
			return
		}
		if result.Succeeded > 0 || result.Failed > 0 {
			logHelper.Infof("[CRON] Cash out settlement: succeeded=%d, failed=%d, pending=%d",
				result.Succeeded, result.Failed, result.StillPending)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add cash out settlement job: %v", err)
	}

	// 余额过期清理 - 每日 02:00 执行
	_, err = cronScheduler.AddFunc("0 0 2 * * *", func() {
		logHelper.Info("[CRON] Starting expiration sweep...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		// 分批清理直到没有满足条件的余额
		for {
			result, err := app.expirationUsecase.ExpireInactiveBalances(ctx, 0)
			if err != nil {
				logHelper.Errorf("[CRON] Error expiring inactive balances: %v", err)
				return
			}
			if result.Expired == 0 && result.Failed == 0 {
				break
			}
			logHelper.Infof("[CRON] Expiration sweep batch: expired=%d, failed=%d, total_amount=%s",
				result.Expired, result.Failed, result.TotalAmount.String())
			if result.Expired == 0 {
				// 只剩失败的记录，避免空转
				break
			}
		}
		logHelper.Info("[CRON] Finished expiration sweep")
	})
	if err != nil {
		logHelper.Errorf("Failed to add expiration sweep job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Cron jobs started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Info("  - Purchase crediting: Every minute")
	logHelper.Info("  - Spend settlement: Every 30 seconds")
	logHelper.Info("  - Cash out settlement: Every minute")
	logHelper.Info("  - Expiration sweep: Every day at 02:00")
	logHelper.Info("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}
