package engine

import (
	"sort"
	"strings"

	"product-catalog/internal/catalog"
)

// Page is one page of the filtered collection plus pagination metadata.
type Page struct {
	Items      []catalog.Product `json:"items"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalItems int               `json:"total_items"`
	TotalPages int               `json:"total_pages"`
}

func (e *Engine) SetSearch(query string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view.search = query
	e.view.page = 1
}

func (e *Engine) SetCategory(category string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view.category = category
	e.view.page = 1
}

func (e *Engine) SetPriceRange(min, max float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view.priceMin = min
	e.view.priceMax = max
	e.view.page = 1
}

func (e *Engine) SetFavoritesOnly(only bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view.favoritesOnly = only
	e.view.page = 1
}

func (e *Engine) SetPage(page int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if page < 1 {
		page = 1
	}
	e.view.page = page
}

// View applies the active filters in order favorites, search, category,
// price, then paginates. The requested page is clamped into the range the
// filtered count allows.
func (e *Engine) View() Page {
	e.mu.RLock()
	defer e.mu.RUnlock()

	filtered := e.filteredLocked()

	pageSize := e.view.pageSize
	totalPages := (len(filtered) + pageSize - 1) / pageSize

	page := e.view.page
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	return Page{
		Items:      append([]catalog.Product(nil), filtered[start:end]...),
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(filtered),
		TotalPages: totalPages,
	}
}

// Categories returns the sorted set of distinct categories currently present.
func (e *Engine) Categories() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]struct{}, len(e.products))
	for _, p := range e.products {
		seen[p.Category] = struct{}{}
	}

	cats := make([]string, 0, len(seen))
	for c := range seen {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

func (e *Engine) filteredLocked() []catalog.Product {
	query := strings.ToLower(strings.TrimSpace(e.view.search))

	out := make([]catalog.Product, 0, len(e.products))
	for _, p := range e.products {
		if e.view.favoritesOnly {
			if _, ok := e.favorites[p.ID]; !ok {
				continue
			}
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Title), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		if e.view.category != "" && p.Category != e.view.category {
			continue
		}
		if p.Price < e.view.priceMin || p.Price > e.view.priceMax {
			continue
		}
		out = append(out, p)
	}
	return out
}
