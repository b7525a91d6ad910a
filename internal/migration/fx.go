package migration

import (
	"github.com/smallbiznis/vendora/internal/config"
	customerdomain "github.com/smallbiznis/vendora/internal/customer/domain"
	deliverydomain "github.com/smallbiznis/vendora/internal/delivery/domain"
	inventorydomain "github.com/smallbiznis/vendora/internal/inventory/domain"
	purchasedomain "github.com/smallbiznis/vendora/internal/purchase/domain"
	subscriptiondomain "github.com/smallbiznis/vendora/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/vendora/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// golang-migrate is wired for postgres only; dev databases
			// (sqlite, mysql) are created from the models directly.
			return conn.AutoMigrate(
				&customerdomain.Customer{},
				&inventorydomain.GameAccount{},
				&purchasedomain.Purchase{},
				&deliverydomain.AccountDelivery{},
				&subscriptiondomain.Subscription{},
				&webhookdomain.EventRecord{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
