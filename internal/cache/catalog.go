package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/storefront-next/internal/models"
)

const catalogCacheTTL = 5 * time.Minute

const categoryListKey = "catalog:categories"

func categoryProductsKey(categoryID uint) string {
	return fmt.Sprintf("catalog:category:%d:products", categoryID)
}

// GetCategoryList 获取分类列表缓存
func GetCategoryList(ctx context.Context) ([]models.Category, bool, error) {
	var categories []models.Category
	hit, err := GetJSON(ctx, categoryListKey, &categories)
	if err != nil || !hit {
		return nil, hit, err
	}
	return categories, true, nil
}

// SetCategoryList 写入分类列表缓存
func SetCategoryList(ctx context.Context, categories []models.Category) error {
	return SetJSON(ctx, categoryListKey, categories, catalogCacheTTL)
}

// GetCategoryProducts 获取分类下商品列表缓存
func GetCategoryProducts(ctx context.Context, categoryID uint) ([]models.Product, bool, error) {
	if categoryID == 0 {
		return nil, false, nil
	}
	var products []models.Product
	hit, err := GetJSON(ctx, categoryProductsKey(categoryID), &products)
	if err != nil || !hit {
		return nil, hit, err
	}
	return products, true, nil
}

// SetCategoryProducts 写入分类下商品列表缓存
func SetCategoryProducts(ctx context.Context, categoryID uint, products []models.Product) error {
	if categoryID == 0 {
		return nil
	}
	return SetJSON(ctx, categoryProductsKey(categoryID), products, catalogCacheTTL)
}
