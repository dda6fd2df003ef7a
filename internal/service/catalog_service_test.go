package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/storefront-next/internal/models"
	"github.com/storefront-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newCatalogTestEnv(t *testing.T, name string) (*gorm.DB, *CatalogService) {
	t.Helper()
	dsn := fmt.Sprintf("file:catalog_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Category{}, &models.Product{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	svc := NewCatalogService(repository.NewCategoryRepository(db), repository.NewProductRepository(db))
	return db, svc
}

func seedCategory(t *testing.T, db *gorm.DB, slug string, sortOrder int) *models.Category {
	t.Helper()
	category := &models.Category{
		Slug:        slug,
		Name:        slug,
		DisplayName: slug,
		SortOrder:   sortOrder,
		CreatedAt:   time.Now(),
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("create category failed: %v", err)
	}
	return category
}

func seedCatalogProduct(t *testing.T, db *gorm.DB, categoryID uint, slug string, active bool) *models.Product {
	t.Helper()
	now := time.Now()
	product := &models.Product{
		CategoryID:    categoryID,
		Slug:          slug,
		Name:          slug,
		PriceAmount:   models.NewMoneyFromDecimal(decimal.NewFromFloat(9.99)),
		PriceCurrency: "USD",
		IsActive:      active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if !active {
		if err := db.Model(product).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate product failed: %v", err)
		}
	}
	return product
}

func TestListCategoriesOrdering(t *testing.T) {
	db, svc := newCatalogTestEnv(t, "list_categories")
	seedCategory(t, db, "accessories", 10)
	seedCategory(t, db, "electronics", 30)
	seedCategory(t, db, "lifestyle", 20)

	categories, err := svc.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories error: %v", err)
	}
	if len(categories) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(categories))
	}
	if categories[0].Slug != "electronics" || categories[2].Slug != "accessories" {
		t.Fatalf("categories should be ordered by sort_order desc, got: %s .. %s",
			categories[0].Slug, categories[2].Slug)
	}
}

func TestGetCategoryBySlug(t *testing.T) {
	db, svc := newCatalogTestEnv(t, "category_detail")
	category := seedCategory(t, db, "electronics", 10)
	seedCatalogProduct(t, db, category.ID, "earbuds", true)
	seedCatalogProduct(t, db, category.ID, "retired-hub", false)

	detail, err := svc.GetCategoryBySlug(context.Background(), "electronics")
	if err != nil {
		t.Fatalf("GetCategoryBySlug error: %v", err)
	}
	if detail.Category.ID != category.ID {
		t.Fatalf("unexpected category: %+v", detail.Category)
	}
	if len(detail.Products) != 1 || detail.Products[0].Slug != "earbuds" {
		t.Fatalf("only active products should be listed, got: %+v", detail.Products)
	}

	_, err = svc.GetCategoryBySlug(context.Background(), "missing")
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got: %v", err)
	}
}

func TestListProductsFiltersInactive(t *testing.T) {
	db, svc := newCatalogTestEnv(t, "list_products")
	category := seedCategory(t, db, "electronics", 10)
	seedCatalogProduct(t, db, category.ID, "earbuds", true)
	seedCatalogProduct(t, db, category.ID, "retired-hub", false)

	products, err := svc.ListProducts(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListProducts error: %v", err)
	}
	if len(products) != 1 || products[0].Slug != "earbuds" {
		t.Fatalf("only active products should be listed, got: %+v", products)
	}
}

func TestListProductsByCategory(t *testing.T) {
	db, svc := newCatalogTestEnv(t, "list_by_category")
	electronics := seedCategory(t, db, "electronics", 20)
	lifestyle := seedCategory(t, db, "lifestyle", 10)
	seedCatalogProduct(t, db, electronics.ID, "earbuds", true)
	seedCatalogProduct(t, db, lifestyle.ID, "bottle", true)

	products, err := svc.ListProducts(context.Background(), lifestyle.ID)
	if err != nil {
		t.Fatalf("ListProducts error: %v", err)
	}
	if len(products) != 1 || products[0].Slug != "bottle" {
		t.Fatalf("category filter should apply, got: %+v", products)
	}

	all, err := svc.ListProducts(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListProducts error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("zero category id should list all, got %d", len(all))
	}
}

func TestGetProduct(t *testing.T) {
	db, svc := newCatalogTestEnv(t, "get_product")
	category := seedCategory(t, db, "electronics", 10)
	active := seedCatalogProduct(t, db, category.ID, "earbuds", true)
	retired := seedCatalogProduct(t, db, category.ID, "retired-hub", false)

	product, err := svc.GetProduct(context.Background(), active.ID)
	if err != nil {
		t.Fatalf("GetProduct error: %v", err)
	}
	if product.Slug != "earbuds" {
		t.Fatalf("unexpected product: %+v", product)
	}

	if _, err := svc.GetProduct(context.Background(), retired.ID); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("inactive product should be hidden, got: %v", err)
	}
	if _, err := svc.GetProduct(context.Background(), retired.ID+100); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got: %v", err)
	}
}
