package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"factura/models"
)

// TaxResult is the outcome of applying a tax config to a base amount.
type TaxResult struct {
	Tax   float64
	Total float64
}

// CalculateTax applies a tax config to an amount, rounding to 2 decimal
// places. "additional" adds the tax on top; "included" treats the amount as
// already containing the tax, so the total is unchanged.
func CalculateTax(amount float64, cfg *models.TaxConfig) TaxResult {
	amt := decimal.NewFromFloat(amount)
	rate := decimal.NewFromFloat(cfg.Rate).Div(decimal.NewFromInt(100))

	if cfg.ApplicationType == models.TaxIncluded {
		base := amt.Div(decimal.NewFromInt(1).Add(rate))
		tax := amt.Sub(base).Round(2)
		return TaxResult{Tax: tax.InexactFloat64(), Total: amount}
	}

	tax := amt.Mul(rate).Round(2)
	total := amt.Add(tax).Round(2)
	return TaxResult{Tax: tax.InexactFloat64(), Total: total.InexactFloat64()}
}

type TaxConfigService struct {
	db *gorm.DB
}

func NewTaxConfigService(db *gorm.DB) *TaxConfigService {
	return &TaxConfigService{db: db}
}

type TaxConfigInput struct {
	Name            string
	Rate            float64
	ApplicationType models.TaxApplicationType
	IsActive        *bool
	IsDefault       bool
	Description     string
}

func (s *TaxConfigService) validate(in TaxConfigInput) error {
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.Rate < 0 || in.Rate > 100 {
		return fmt.Errorf("%w: rate must be between 0 and 100", ErrValidation)
	}
	if in.ApplicationType != models.TaxIncluded && in.ApplicationType != models.TaxAdditional {
		return fmt.Errorf("%w: application type must be included or additional", ErrValidation)
	}
	return nil
}

func (s *TaxConfigService) Create(in TaxConfigInput) (*models.TaxConfig, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	cfg := models.TaxConfig{
		Name:            in.Name,
		Rate:            in.Rate,
		ApplicationType: in.ApplicationType,
		IsActive:        true,
		IsDefault:       in.IsDefault,
		Description:     in.Description,
	}
	if in.IsActive != nil {
		cfg.IsActive = *in.IsActive
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if cfg.IsDefault {
			if err := tx.Model(&models.TaxConfig{}).Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&cfg).Error
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *TaxConfigService) FindAll() ([]models.TaxConfig, error) {
	var configs []models.TaxConfig
	err := s.db.Order("is_default DESC, name ASC").Find(&configs).Error
	return configs, err
}

func (s *TaxConfigService) FindActive() ([]models.TaxConfig, error) {
	var configs []models.TaxConfig
	err := s.db.Where("is_active = ?", true).Order("is_default DESC, name ASC").Find(&configs).Error
	return configs, err
}

func (s *TaxConfigService) FindOne(id uint) (*models.TaxConfig, error) {
	return findTaxConfig(s.db, id)
}

func findTaxConfig(db *gorm.DB, id uint) (*models.TaxConfig, error) {
	var cfg models.TaxConfig
	if err := db.First(&cfg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: tax config %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &cfg, nil
}

// FindDefault returns the active default config, or nil when none is set.
func (s *TaxConfigService) FindDefault() (*models.TaxConfig, error) {
	return findDefaultTaxConfig(s.db)
}

func findDefaultTaxConfig(db *gorm.DB) (*models.TaxConfig, error) {
	var cfg models.TaxConfig
	err := db.Where("is_default = ? AND is_active = ?", true, true).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *TaxConfigService) Update(id uint, in TaxConfigInput) (*models.TaxConfig, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	var cfg *models.TaxConfig
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		cfg, err = findTaxConfig(tx, id)
		if err != nil {
			return err
		}
		if in.IsDefault && !cfg.IsDefault {
			if err := tx.Model(&models.TaxConfig{}).Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		cfg.Name = in.Name
		cfg.Rate = in.Rate
		cfg.ApplicationType = in.ApplicationType
		cfg.IsDefault = in.IsDefault
		cfg.Description = in.Description
		if in.IsActive != nil {
			cfg.IsActive = *in.IsActive
		}
		return tx.Save(cfg).Error
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *TaxConfigService) Remove(id uint) error {
	cfg, err := s.FindOne(id)
	if err != nil {
		return err
	}
	if cfg.IsDefault {
		return fmt.Errorf("%w: cannot delete the default tax config", ErrConflict)
	}
	return s.db.Delete(cfg).Error
}

// SetDefault makes one config the default. The unset-all / set-one pair runs
// in a single transaction so there is never more than one default visible.
func (s *TaxConfigService) SetDefault(id uint) (*models.TaxConfig, error) {
	var cfg *models.TaxConfig
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		cfg, err = findTaxConfig(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.TaxConfig{}).Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		cfg.IsDefault = true
		return tx.Save(cfg).Error
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
