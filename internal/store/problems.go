package store

import (
	"context"

	"gorm.io/gorm"
)

// AuProblems returns the problems recorded for an AU.
func (s *GormStore) AuProblems(ctx context.Context, pluginID, auKey string) ([]string, error) {
	var problems []string
	err := s.conn(ctx).Model(&AuProblem{}).
		Where("plugin_id = ? AND au_key = ?", pluginID, auKey).
		Order("id").
		Pluck("problem", &problems).Error
	if err != nil {
		return nil, wrap("find au problems", err)
	}
	return problems, nil
}

// AddAuProblem records a problem for an AU unless it is already recorded.
func (s *GormStore) AddAuProblem(ctx context.Context, pluginID, auKey, problem string) error {
	_, err := s.insertIgnore(ctx, "add au problem", &AuProblem{PluginID: pluginID, AuKey: auKey, Problem: problem})
	return err
}

// RemoveAuProblem deletes one recorded problem of an AU.
func (s *GormStore) RemoveAuProblem(ctx context.Context, pluginID, auKey, problem string) error {
	err := s.conn(ctx).
		Where("plugin_id = ? AND au_key = ? AND problem = ?", pluginID, auKey, problem).
		Delete(&AuProblem{}).Error
	return wrap("remove au problem", err)
}

// MergeRequestAggregates moves the request counters of one publication to
// another. Counters of the same period are summed. It returns the number
// of rows moved or summed.
func (s *GormStore) MergeRequestAggregates(ctx context.Context, fromPublicationID, toPublicationID int64) (int, error) {
	var rows []RequestAggregate
	if err := s.conn(ctx).Where("publication_seq = ?", fromPublicationID).Order("id").Find(&rows).Error; err != nil {
		return 0, wrap("find request aggregates", err)
	}

	for _, r := range rows {
		var target RequestAggregate
		err := s.conn(ctx).
			Where("publication_seq = ? AND kind = ? AND request_year = ? AND request_month = ?",
				toPublicationID, r.Kind, r.Year, r.Month).
			Where("publication_year = ? AND is_publisher_involved = ?", r.PublicationYear, r.PublisherInvolved).
			Limit(1).
			Find(&target).Error
		if err != nil {
			return 0, wrap("find request aggregate", err)
		}

		if target.ID == 0 {
			err := s.conn(ctx).Model(&RequestAggregate{}).Where("id = ?", r.ID).
				Update("publication_seq", toPublicationID).Error
			if err != nil {
				return 0, wrap("move request aggregate", err)
			}
			continue
		}

		err = s.conn(ctx).Model(&RequestAggregate{}).Where("id = ?", target.ID).Updates(map[string]any{
			"total_requests":   gorm.Expr("total_requests + ?", r.Requests),
			"html_requests":    gorm.Expr("html_requests + ?", r.HTMLRequests),
			"pdf_requests":     gorm.Expr("pdf_requests + ?", r.PDFRequests),
			"section_requests": gorm.Expr("section_requests + ?", r.SectionRequests),
		}).Error
		if err != nil {
			return 0, wrap("sum request aggregate", err)
		}
		if err := s.conn(ctx).Delete(&RequestAggregate{}, r.ID).Error; err != nil {
			return 0, wrap("delete request aggregate", err)
		}
	}
	return len(rows), nil
}

// AddRequestAggregate stores a request counter row.
func (s *GormStore) AddRequestAggregate(ctx context.Context, agg *RequestAggregate) error {
	return wrap("add request aggregate", s.conn(ctx).Create(agg).Error)
}

// RequestAggregates returns the request counter rows of a publication.
func (s *GormStore) RequestAggregates(ctx context.Context, publicationID int64) ([]RequestAggregate, error) {
	var rows []RequestAggregate
	if err := s.conn(ctx).Where("publication_seq = ?", publicationID).Order("id").Find(&rows).Error; err != nil {
		return nil, wrap("find request aggregates", err)
	}
	return rows, nil
}
