package migrations

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"allocengine/src/model"
)

// seedInitialMandates gives every account without a mandate a permissive
// version 1: unrestricted sectors and strategies, the standard 2% risk per
// trade and 2x/4x ATR brackets. Operators tighten it from there; the
// allocator refuses to run an account with no mandate at all.
func seedInitialMandates(db *gorm.DB) error {
	var accountIDs []uint
	err := db.Model(&model.Account{}).
		Where("id NOT IN (?)", db.Model(&model.Mandate{}).Distinct().Select("account_id")).
		Pluck("id", &accountIDs).Error
	if err != nil {
		return fmt.Errorf("collect accounts without mandates: %w", err)
	}

	for _, id := range accountIDs {
		m := model.Mandate{
			AccountID:                id,
			Version:                  1,
			HorizonMinDays:           1,
			HorizonMaxDays:           365,
			MaxRiskPerTradePercent:   2.0,
			MaxSectorExposurePercent: 30.0,
			SLMultiplier:             2.0,
			TPMultiplier:             4.0,
			EarningsBlackoutDays:     2,
			RiskPosture:              model.RiskPostureConservative,
		}
		if err := db.Create(&m).Error; err != nil {
			return fmt.Errorf("seed mandate for account %d: %w", id, err)
		}
	}

	return nil
}

// seedDefaultKillSwitches arms both switch kinds for accounts that have
// neither, with thresholds scaled to the account's capital: 5% max daily
// loss, 10% max drawdown.
func seedDefaultKillSwitches(db *gorm.DB) error {
	var accounts []model.Account
	err := db.
		Where("id NOT IN (?)", db.Model(&model.KillSwitch{}).Distinct().Select("account_id")).
		Find(&accounts).Error
	if err != nil {
		return fmt.Errorf("collect accounts without kill switches: %w", err)
	}

	for _, acct := range accounts {
		switches := []model.KillSwitch{
			{
				AccountID: acct.ID,
				Kind:      model.KillSwitchMaxDailyLoss,
				Threshold: acct.TotalCapital.Mul(decimal.NewFromFloat(-0.05)),
			},
			{
				AccountID: acct.ID,
				Kind:      model.KillSwitchMaxDrawdown,
				Threshold: acct.TotalCapital.Mul(decimal.NewFromFloat(-0.10)),
			},
		}
		for i := range switches {
			if err := db.Create(&switches[i]).Error; err != nil {
				return fmt.Errorf("seed kill switch for account %d: %w", acct.ID, err)
			}
		}
	}

	return nil
}
