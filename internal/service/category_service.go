package service

import (
	"context"
	"fmt"
	"strings"

	"sostrack/internal/dto"
	"sostrack/internal/model"
	"sostrack/internal/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
)

type CategoryService interface {
	List(ctx context.Context) ([]dto.CategoryResponse, error)
	Create(ctx context.Context, req dto.CreateCategoryRequest) (*dto.CategoryResponse, error)
	AddContainer(ctx context.Context, id uuid.UUID, req dto.ContainerTemplateRequest) (*dto.CategoryResponse, error)
	FindOrCreate(ctx context.Context, ws *repository.WriteSet, name string) (model.Category, bool, error)
}

type categoryService struct {
	store repository.Store
}

func NewCategoryService(store repository.Store) CategoryService {
	return &categoryService{store: store}
}

func (s *categoryService) List(ctx context.Context) ([]dto.CategoryResponse, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.CategoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryResponse(c))
	}
	return out, nil
}

// FindOrCreate returns the category whose normalized name matches name. When
// none exists a new one is staged in ws and created is true; the caller's commit
// persists it. Matching ignores case, surrounding space and one trailing "s".
func (s *categoryService) FindOrCreate(ctx context.Context, ws *repository.WriteSet, name string) (model.Category, bool, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return model.Category{}, false, invalidf("category name is required")
	}
	key := model.NormalizeCategoryName(name)
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return model.Category{}, false, err
	}
	for _, c := range cats {
		if c.NameKey == key {
			return c, false, nil
		}
	}
	c := model.Category{
		ID:        uuid.New(),
		Name:      name,
		NameKey:   key,
		SKUPrefix: deriveSKUPrefix(name),
	}
	ws.CreateCategory(c)
	return c, true, nil
}

func (s *categoryService) Create(ctx context.Context, req dto.CreateCategoryRequest) (*dto.CategoryResponse, error) {
	ws := repository.NewWriteSet()
	c, created, err := s.FindOrCreate(ctx, ws, req.Name)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("category %q: %w", c.Name, repository.ErrConflict)
	}
	if req.SKUPrefix != "" {
		c.SKUPrefix = strings.ToUpper(req.SKUPrefix)
	}
	for _, t := range req.Containers {
		tmpl, err := newTemplate(c, t)
		if err != nil {
			return nil, err
		}
		c.Containers = append(c.Containers, tmpl)
	}

	ws = repository.NewWriteSet()
	ws.CreateCategory(c)
	if err := s.store.Commit(ctx, ws); err != nil {
		return nil, commitErr("create category", err)
	}
	log.Info().Str("category_id", c.ID.String()).Str("name", c.Name).Msg("category: created")
	resp := toCategoryResponse(c)
	return &resp, nil
}

// AddContainer appends a container template to the category.
func (s *categoryService) AddContainer(ctx context.Context, id uuid.UUID, req dto.ContainerTemplateRequest) (*dto.CategoryResponse, error) {
	c, err := s.store.FindCategory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", id, err)
	}
	tmpl, err := newTemplate(*c, req)
	if err != nil {
		return nil, err
	}
	c.Containers = append(c.Containers, tmpl)

	ws := repository.NewWriteSet()
	ws.UpdateCategory(*c)
	if err := s.store.Commit(ctx, ws); err != nil {
		return nil, commitErr("add container", err)
	}
	log.Info().Str("category_id", id.String()).Str("container", tmpl.Name).Msg("category: container added")
	resp := toCategoryResponse(*c)
	return &resp, nil
}

// newTemplate validates a container against the category it joins: weight
// must be positive and SKU suffixes unique (case-insensitively).
func newTemplate(c model.Category, req dto.ContainerTemplateRequest) (model.ContainerTemplate, error) {
	if !req.WeightOz.IsPositive() {
		return model.ContainerTemplate{}, invalidf("container %q: weight_oz must be greater than 0", req.Name)
	}
	sku := strings.TrimSpace(req.SKU)
	if sku != "" {
		for _, t := range c.Containers {
			if strings.EqualFold(t.SKU, sku) {
				return model.ContainerTemplate{}, invalidf("container sku %q already used in %s", sku, c.Name)
			}
		}
	}
	return model.ContainerTemplate{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(req.Name),
		WeightOz:    req.WeightOz,
		SKU:         sku,
		MinQuantity: req.MinQuantity,
	}, nil
}

// deriveSKUPrefix takes the first three letters or digits of the transliterated
// name, upper-cased: "Crème Brûlée" → "CRE".
func deriveSKUPrefix(name string) string {
	compact := strings.ReplaceAll(slug.Make(name), "-", "")
	if len(compact) > 3 {
		compact = compact[:3]
	}
	return strings.ToUpper(compact)
}
