package service

import (
	"context"
	"strings"

	"github.com/storefront-next/internal/cache"
	"github.com/storefront-next/internal/logger"
	"github.com/storefront-next/internal/models"
	"github.com/storefront-next/internal/repository"
)

// CatalogService 商品目录服务
type CatalogService struct {
	categoryRepo repository.CategoryRepository
	productRepo  repository.ProductRepository
}

// NewCatalogService 创建商品目录服务
func NewCatalogService(categoryRepo repository.CategoryRepository, productRepo repository.ProductRepository) *CatalogService {
	return &CatalogService{
		categoryRepo: categoryRepo,
		productRepo:  productRepo,
	}
}

// CategoryDetail 分类详情（含商品列表）
type CategoryDetail struct {
	Category models.Category  `json:"category"`
	Products []models.Product `json:"products"`
}

// ListCategories 分类列表
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	if cached, hit, err := cache.GetCategoryList(ctx); err == nil && hit {
		return cached, nil
	}
	categories, err := s.categoryRepo.List()
	if err != nil {
		return nil, err
	}
	if err := cache.SetCategoryList(ctx, categories); err != nil {
		logger.Warnw("catalog_category_cache_set_failed", "error", err)
	}
	return categories, nil
}

// GetCategoryBySlug 根据 slug 获取分类及其在售商品
func (s *CatalogService) GetCategoryBySlug(ctx context.Context, slug string) (*CategoryDetail, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, ErrCategoryNotFound
	}
	category, err := s.categoryRepo.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}

	if cached, hit, err := cache.GetCategoryProducts(ctx, category.ID); err == nil && hit {
		return &CategoryDetail{Category: *category, Products: cached}, nil
	}
	products, err := s.productRepo.List(repository.ProductListFilter{
		CategoryID: category.ID,
		OnlyActive: true,
	})
	if err != nil {
		return nil, err
	}
	if err := cache.SetCategoryProducts(ctx, category.ID, products); err != nil {
		logger.Warnw("catalog_product_cache_set_failed", "category_id", category.ID, "error", err)
	}
	return &CategoryDetail{Category: *category, Products: products}, nil
}

// ListProducts 在售商品列表，categoryID 为 0 时返回全部分类
func (s *CatalogService) ListProducts(ctx context.Context, categoryID uint) ([]models.Product, error) {
	return s.productRepo.List(repository.ProductListFilter{
		CategoryID:   categoryID,
		OnlyActive:   true,
		WithCategory: true,
	})
}

// GetProduct 商品详情
func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	if id == 0 {
		return nil, ErrProductNotFound
	}
	product, err := s.productRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotFound
	}
	return product, nil
}
