package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"product-catalog/internal/catalog"
	"product-catalog/internal/catalog/engine"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"
)

const (
	minTitleLen       = 3
	minDescriptionLen = 10

	createDurableWait = 3 * time.Second
	remoteSyncTimeout = 30 * time.Second
)

// Catalog is the slice of the state engine the handlers drive.
type Catalog interface {
	View() engine.Page
	Categories() []string
	SetSearch(query string)
	SetCategory(category string)
	SetPriceRange(min, max float64)
	SetFavoritesOnly(only bool)
	SetPage(page int)
	Get(id int64) (catalog.Product, bool)
	Create(ctx context.Context, fields catalog.ProductFields) catalog.Product
	Update(ctx context.Context, id int64, patch catalog.ProductPatch) bool
	Delete(ctx context.Context, id int64) bool
	ToggleFavorite(id int64) bool
	IngestRemote(remote []catalog.Product) int
	Sync(ctx context.Context) error
}

// RemoteSource is the read-only remote catalog API.
type RemoteSource interface {
	FetchProducts(ctx context.Context) ([]catalog.Product, error)
	FetchProduct(ctx context.Context, id int64) (catalog.Product, error)
}

type Handler struct {
	catalog Catalog
	remote  RemoteSource
	logger  *slog.Logger
	syncSF  singleflight.Group
}

func NewHandler(cat Catalog, remote RemoteSource, logger *slog.Logger) *Handler {
	return &Handler{
		catalog: cat,
		remote:  remote,
		logger:  logger,
	}
}

type productRequest struct {
	Title       string  `json:"title" example:"Wireless Mouse"`
	Price       float64 `json:"price" example:"29.99"`
	Description string  `json:"description" example:"Compact wireless mouse with USB receiver"`
	Category    string  `json:"category" example:"electronics"`
	Image       string  `json:"image" example:"https://example.com/mouse.jpg"`
}

type productPatchRequest struct {
	Title       *string  `json:"title"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Image       *string  `json:"image"`
}

type errorResponse struct {
	Error string `json:"error" example:"product not found"`
}

type validationResponse struct {
	Errors map[string]string `json:"errors"`
}

type listProductsResponse struct {
	Items      []catalog.Product `json:"items"`
	Pagination paginationMeta    `json:"pagination"`
	Categories []string          `json:"categories"`
}

type paginationMeta struct {
	Page       int `json:"page" example:"1"`
	PageSize   int `json:"page_size" example:"12"`
	TotalItems int `json:"total_items" example:"42"`
	TotalPages int `json:"total_pages" example:"4"`
}

type createProductResponse struct {
	catalog.Product
	Durable bool `json:"durable" example:"true"`
}

type favoriteResponse struct {
	ID       int64 `json:"id" example:"1000"`
	Favorite bool  `json:"favorite" example:"true"`
}

type syncResponse struct {
	Fetched int `json:"fetched" example:"20"`
	Added   int `json:"added" example:"18"`
}

// ListProducts godoc
// @Summary      List products with filters and pagination
// @Tags         products
// @Produce      json
// @Param        search     query  string   false  "Substring match on title or description"
// @Param        category   query  string   false  "Exact category match"
// @Param        favorites  query  bool     false  "Only favorited products"
// @Param        min_price  query  number   false  "Minimum price, inclusive"
// @Param        max_price  query  number   false  "Maximum price, inclusive"
// @Param        page       query  int      false  "Page number"  default(1)
// @Success      200  {object}  listProductsResponse
// @Router       /products [get]
func (h *Handler) ListProducts(c *gin.Context) {
	if search, ok := c.GetQuery("search"); ok {
		h.catalog.SetSearch(search)
	}
	if category, ok := c.GetQuery("category"); ok {
		h.catalog.SetCategory(category)
	}
	if raw, ok := c.GetQuery("favorites"); ok {
		only, err := strconv.ParseBool(raw)
		if err == nil {
			h.catalog.SetFavoritesOnly(only)
		}
	}
	minRaw, hasMin := c.GetQuery("min_price")
	maxRaw, hasMax := c.GetQuery("max_price")
	if hasMin || hasMax {
		min := parseQueryFloat(minRaw, 0)
		max := parseQueryFloat(maxRaw, 100000)
		h.catalog.SetPriceRange(min, max)
	}
	if raw, ok := c.GetQuery("page"); ok {
		if page, err := strconv.Atoi(raw); err == nil {
			h.catalog.SetPage(page)
		}
	}

	page := h.catalog.View()
	c.JSON(http.StatusOK, listProductsResponse{
		Items: page.Items,
		Pagination: paginationMeta{
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalItems: page.TotalItems,
			TotalPages: page.TotalPages,
		},
		Categories: h.catalog.Categories(),
	})
}

// CreateProduct godoc
// @Summary      Create a new product
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        body  body      productRequest  true  "Product fields"
// @Success      201   {object}  createProductResponse
// @Failure      400   {object}  validationResponse
// @Router       /products [post]
func (h *Handler) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	fields, fieldErrs := validateFields(req)
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, validationResponse{Errors: fieldErrs})
		return
	}

	product := h.catalog.Create(c.Request.Context(), fields)

	// Confirm durability with a bounded wait; a timeout or write failure is
	// a soft outcome, the in-memory creation stands either way.
	syncCtx, cancel := context.WithTimeout(c.Request.Context(), createDurableWait)
	defer cancel()
	durable := true
	if err := h.catalog.Sync(syncCtx); err != nil {
		durable = false
		h.logger.Warn("created product not yet durable",
			"product_id", product.ID,
			"error", err,
		)
	}

	c.JSON(http.StatusCreated, createProductResponse{Product: product, Durable: durable})
}

// GetProduct godoc
// @Summary      Get a product by ID
// @Tags         products
// @Produce      json
// @Param        id  path      int  true  "Product ID"
// @Success      200  {object}  catalog.Product
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /products/{id} [get]
func (h *Handler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid product id"})
		return
	}

	if product, ok := h.catalog.Get(id); ok {
		c.JSON(http.StatusOK, product)
		return
	}

	// Not resident: the detail view falls back to the remote source. Any
	// remote failure degrades to not-found.
	product, err := h.remote.FetchProduct(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			h.logger.Warn("remote product lookup failed", "product_id", id, "error", err)
		}
		c.JSON(http.StatusNotFound, errorResponse{Error: catalog.ErrNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, product)
}

// UpdateProduct godoc
// @Summary      Update fields of a product
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        id    path      int                  true  "Product ID"
// @Param        body  body      productPatchRequest  true  "Fields to overwrite"
// @Success      200   {object}  catalog.Product
// @Failure      400   {object}  validationResponse
// @Failure      404   {object}  errorResponse
// @Router       /products/{id} [put]
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid product id"})
		return
	}

	var req productPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	patch, fieldErrs := validatePatch(req)
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, validationResponse{Errors: fieldErrs})
		return
	}

	if !h.catalog.Update(c.Request.Context(), id, patch) {
		c.JSON(http.StatusNotFound, errorResponse{Error: catalog.ErrNotFound.Error()})
		return
	}

	product, _ := h.catalog.Get(id)
	c.JSON(http.StatusOK, product)
}

// DeleteProduct godoc
// @Summary      Delete a product by ID
// @Tags         products
// @Produce      json
// @Param        id  path  int  true  "Product ID"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Router       /products/{id} [delete]
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid product id"})
		return
	}

	// Deleting an absent product is a no-op, not an error.
	h.catalog.Delete(c.Request.Context(), id)
	c.Status(http.StatusNoContent)
}

// ToggleFavorite godoc
// @Summary      Toggle favorite membership for a product ID
// @Tags         products
// @Produce      json
// @Param        id  path  int  true  "Product ID"
// @Success      200  {object}  favoriteResponse
// @Failure      400  {object}  errorResponse
// @Router       /products/{id}/favorite [post]
func (h *Handler) ToggleFavorite(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid product id"})
		return
	}

	favorite := h.catalog.ToggleFavorite(id)
	c.JSON(http.StatusOK, favoriteResponse{ID: id, Favorite: favorite})
}

// SyncCatalog godoc
// @Summary      Reconcile with the remote catalog source
// @Tags         products
// @Produce      json
// @Success      200  {object}  syncResponse
// @Router       /sync [post]
func (h *Handler) SyncCatalog(c *gin.Context) {
	// Concurrent sync requests share one reconciliation attempt; the merge
	// rule is idempotent only under sequential application.
	result, _, _ := h.syncSF.Do("remote-sync", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), remoteSyncTimeout)
		defer cancel()

		list, err := h.remote.FetchProducts(ctx)
		if err != nil {
			h.logger.Warn("remote catalog unavailable, keeping local data", "error", err)
			return syncResponse{}, nil
		}
		if len(list) == 0 {
			return syncResponse{}, nil
		}

		added := h.catalog.IngestRemote(list)
		return syncResponse{Fetched: len(list), Added: added}, nil
	})

	c.JSON(http.StatusOK, result.(syncResponse))
}

func validateFields(req productRequest) (catalog.ProductFields, map[string]string) {
	fieldErrs := make(map[string]string)

	title := strings.TrimSpace(req.Title)
	if len([]rune(title)) < minTitleLen {
		fieldErrs["title"] = "title must be at least 3 characters"
	}
	if req.Price <= 0 {
		fieldErrs["price"] = "price must be a positive number"
	}
	description := strings.TrimSpace(req.Description)
	if len([]rune(description)) < minDescriptionLen {
		fieldErrs["description"] = "description must be at least 10 characters"
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		fieldErrs["category"] = "category is required"
	}
	image := strings.TrimSpace(req.Image)
	if !validImageURL(image) {
		fieldErrs["image"] = "image must be a valid URL"
	}

	if len(fieldErrs) > 0 {
		return catalog.ProductFields{}, fieldErrs
	}

	return catalog.ProductFields{
		Title:       title,
		Price:       req.Price,
		Description: description,
		Category:    category,
		Image:       image,
	}, nil
}

func validatePatch(req productPatchRequest) (catalog.ProductPatch, map[string]string) {
	fieldErrs := make(map[string]string)
	var patch catalog.ProductPatch

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if len([]rune(title)) < minTitleLen {
			fieldErrs["title"] = "title must be at least 3 characters"
		} else {
			patch.Title = &title
		}
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			fieldErrs["price"] = "price must be a positive number"
		} else {
			patch.Price = req.Price
		}
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if len([]rune(description)) < minDescriptionLen {
			fieldErrs["description"] = "description must be at least 10 characters"
		} else {
			patch.Description = &description
		}
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			fieldErrs["category"] = "category is required"
		} else {
			patch.Category = &category
		}
	}
	if req.Image != nil {
		image := strings.TrimSpace(*req.Image)
		if !validImageURL(image) {
			fieldErrs["image"] = "image must be a valid URL"
		} else {
			patch.Image = &image
		}
	}

	if len(fieldErrs) > 0 {
		return catalog.ProductPatch{}, fieldErrs
	}
	return patch, nil
}

func validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

func parseQueryFloat(raw string, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
