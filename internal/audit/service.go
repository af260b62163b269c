// Package audit reads back the write history recorded in audit_logs.
package audit

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// ExportLimit caps an unpaged export.
	ExportLimit = 5000
)

// ErrNotConfigured is returned when the service has no repository.
var ErrNotConfigured = errors.New("audit: repository not configured")

// Repository runs timeline queries.
type Repository interface {
	Timeline(ctx context.Context, q Query) ([]Entry, error)
}

// Service coordinates timeline reads.
type Service struct {
	repo Repository
}

// NewService constructs an audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, ErrNotConfigured
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := toQuery(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	entries, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Result{Entries: entries, Paging: paging}, nil
}

// Export returns every matching entry up to ExportLimit.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s == nil || s.repo == nil {
		return nil, ErrNotConfigured
	}
	q := toQuery(filters)
	q.Limit = ExportLimit
	return s.repo.Timeline(ctx, q)
}

func toQuery(f TimelineFilters) Query {
	return Query{
		From:     f.From,
		To:       f.To,
		ActorID:  f.ActorID,
		Entity:   strings.TrimSpace(f.Entity),
		EntityID: strings.TrimSpace(f.EntityID),
		Action:   strings.TrimSpace(f.Action),
	}
}
