package service

import (
	"encoding/json"

	"sostrack/internal/dto"
	"sostrack/internal/model"
)

// AggregateStatus is the listing status of a product: the highest-priority
// active batch among Make > Package > Ready, else Idle.
func AggregateStatus(batches []model.Batch) string {
	rank := map[model.BatchStatus]int{model.BatchReady: 1, model.BatchPackage: 2, model.BatchMake: 3}
	best := 0
	status := model.StatusIdle
	for _, b := range batches {
		if r := rank[b.Status]; r > best {
			best = r
			status = string(b.Status)
		}
	}
	return status
}

func toCategoryResponse(c model.Category) dto.CategoryResponse {
	out := dto.CategoryResponse{
		ID:         c.ID.String(),
		Name:       c.Name,
		SKUPrefix:  c.SKUPrefix,
		Containers: make([]dto.ContainerTemplateResponse, 0, len(c.Containers)),
	}
	for _, t := range c.Containers {
		out.Containers = append(out.Containers, dto.ContainerTemplateResponse{
			ID:          t.ID.String(),
			Name:        t.Name,
			WeightOz:    t.WeightOz,
			SKU:         t.SKU,
			MinQuantity: t.MinQuantity,
		})
	}
	return out
}

// toProductResponse renders one line per category template, in template order.
// batches must already be filtered to this product.
func toProductResponse(p model.Product, cat model.Category, batches []model.Batch) dto.ProductResponse {
	out := dto.ProductResponse{
		ID:                   p.ID.String(),
		CategoryID:           p.CategoryID.String(),
		CategoryName:         cat.Name,
		Flavor:               p.Flavor,
		SKUSuffix:            p.SKUSuffix,
		DisplayName:          p.DisplayName(cat.Name),
		Status:               AggregateStatus(batches),
		Inventory:            make([]dto.InventoryLineResponse, 0, len(cat.Containers)),
		OnHandWeightOz:       OnHandWeight(p, cat),
		InProductionWeightOz: InProductionWeight(batches, cat),
		Version:              p.Version,
	}
	for _, t := range cat.Containers {
		qty := p.Quantity(t.ID)
		out.Inventory = append(out.Inventory, dto.InventoryLineResponse{
			TemplateID:  t.ID.String(),
			Container:   t.Name,
			Quantity:    qty,
			MinQuantity: t.MinQuantity,
			LowStock:    t.MinQuantity != nil && qty < *t.MinQuantity,
		})
	}
	return out
}

func toCountDTOs(in []model.ContainerCount) []dto.ContainerCountDTO {
	out := make([]dto.ContainerCountDTO, 0, len(in))
	for _, c := range in {
		out = append(out, dto.ContainerCountDTO{TemplateID: c.TemplateID.String(), Quantity: c.Quantity})
	}
	return out
}

func toBatchResponse(b model.Batch) dto.BatchResponse {
	out := dto.BatchResponse{
		ID:              b.ID.String(),
		ProductID:       b.ProductID.String(),
		CategoryID:      b.CategoryID.String(),
		Status:          string(b.Status),
		FinalCount:      toCountDTOs(b.FinalCount),
		StartedAt:       b.StartedAt,
		StatusChangedAt: b.StatusChangedAt,
		ReadyAt:         b.ReadyAt,
	}
	if b.Request != nil {
		out.Request = &dto.BatchRequestDTO{
			Containers:   toCountDTOs(b.Request.Containers),
			BulkWeightOz: b.Request.BulkWeightOz,
		}
	}
	return out
}

func toHistoryResponse(h model.InventoryHistory) dto.HistoryResponse {
	out := dto.HistoryResponse{
		ID:          h.ID.String(),
		ProductID:   h.ProductID.String(),
		ProductName: h.ProductName,
		ChangeType:  string(h.ChangeType),
		Details:     json.RawMessage(h.Details),
		CreatedAt:   h.CreatedAt,
	}
	if len(out.Details) == 0 {
		out.Details = json.RawMessage("null")
	}
	if h.CSVFileID != nil {
		s := h.CSVFileID.String()
		out.CSVFileID = &s
	}
	return out
}
