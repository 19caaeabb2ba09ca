package api

import (
	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MetaDTO struct {
	Total       int64 `json:"total"`
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

func metaFrom(m interfaces.ListMeta) MetaDTO {
	return MetaDTO{
		Total:       m.Total,
		Page:        m.Page,
		PageSize:    m.PageSize,
		TotalPages:  m.TotalPages(),
		HasNext:     m.HasNext(),
		HasPrevious: m.HasPrevious(),
	}
}

type PageListResponse struct {
	Items []entities.Page `json:"items"`
	Meta  MetaDTO         `json:"meta"`
}

type PostListResponse struct {
	Items []entities.Post `json:"items"`
	Meta  MetaDTO         `json:"meta"`
}

type FollowerListResponse struct {
	Items []entities.PageMember `json:"items"`
	Meta  MetaDTO               `json:"meta"`
}

type IngestRunListResponse struct {
	Items []entities.IngestRun `json:"items"`
	Meta  MetaDTO              `json:"meta"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
