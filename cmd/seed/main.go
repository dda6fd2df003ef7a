package main

import (
	"github.com/storefront-next/internal/config"
	"github.com/storefront-next/internal/logger"
	"github.com/storefront-next/internal/models"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 添加分类
	categories := []models.Category{
		{Slug: "electronics", Name: "electronics", DisplayName: "Electronics", SortOrder: 30},
		{Slug: "lifestyle", Name: "lifestyle", DisplayName: "Lifestyle", SortOrder: 20},
		{Slug: "accessories", Name: "accessories", DisplayName: "Accessories", SortOrder: 10},
	}

	for _, cat := range categories {
		var existing models.Category
		if err := models.DB.Where("slug = ?", cat.Slug).First(&existing).Error; err != nil {
			if err := models.DB.Create(&cat).Error; err != nil {
				stdLog.Printf("Failed to create category %s: %v", cat.Slug, err)
			} else {
				stdLog.Printf("Created category: %s", cat.Slug)
			}
		} else {
			stdLog.Printf("Category already exists: %s", cat.Slug)
		}
	}

	// 获取分类ID
	categoryIDs := map[string]uint{}
	var categoryList []models.Category
	if err := models.DB.Where("slug IN ?", []string{"electronics", "lifestyle", "accessories"}).Find(&categoryList).Error; err != nil {
		stdLog.Fatalf("Failed to load categories: %v", err)
	}
	for _, cat := range categoryList {
		categoryIDs[cat.Slug] = cat.ID
	}

	// 添加商品
	products := []models.Product{
		{
			CategoryID:    categoryIDs["electronics"],
			Slug:          "wireless-earbuds",
			Name:          "Wireless Earbuds",
			Description:   "Bluetooth 5.3 earbuds with charging case.",
			PriceAmount:   models.NewMoneyFromDecimal(decimal.NewFromFloat(49.99)),
			PriceCurrency: "USD",
			IsActive:      true,
			SortOrder:     30,
		},
		{
			CategoryID:    categoryIDs["electronics"],
			Slug:          "usb-c-hub",
			Name:          "USB-C Hub",
			Description:   "7-in-1 USB-C hub with HDMI and PD charging.",
			PriceAmount:   models.NewMoneyFromDecimal(decimal.NewFromFloat(29.99)),
			PriceCurrency: "USD",
			IsActive:      true,
			SortOrder:     20,
		},
		{
			CategoryID:    categoryIDs["lifestyle"],
			Slug:          "thermos-bottle",
			Name:          "Thermos Bottle",
			Description:   "500ml vacuum insulated bottle.",
			PriceAmount:   models.NewMoneyFromDecimal(decimal.NewFromFloat(14.99)),
			PriceCurrency: "USD",
			IsActive:      true,
			SortOrder:     10,
		},
		{
			CategoryID:    categoryIDs["accessories"],
			Slug:          "phone-stand",
			Name:          "Phone Stand",
			Description:   "Adjustable aluminum phone stand.",
			PriceAmount:   models.NewMoneyFromDecimal(decimal.NewFromFloat(9.99)),
			PriceCurrency: "USD",
			IsActive:      true,
			SortOrder:     10,
		},
	}

	for _, product := range products {
		var existing models.Product
		if err := models.DB.Where("slug = ?", product.Slug).First(&existing).Error; err != nil {
			if err := models.DB.Create(&product).Error; err != nil {
				stdLog.Printf("Failed to create product %s: %v", product.Slug, err)
			} else {
				stdLog.Printf("Created product: %s", product.Slug)
			}
		} else {
			stdLog.Printf("Product already exists: %s", product.Slug)
		}
	}

	stdLog.Printf("Seed completed")
}
