package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// FindPublisher returns the id of the named publisher.
func (s *GormStore) FindPublisher(ctx context.Context, name string) (int64, bool, error) {
	if id, ok := s.caches.publishers.Get(name); ok {
		return id, true, nil
	}

	var p Publisher
	if err := s.conn(ctx).Where("publisher_name = ?", name).Limit(1).Find(&p).Error; err != nil {
		return 0, false, wrap("find publisher", err)
	}
	if p.ID == 0 {
		return 0, false, nil
	}

	id := p.ID
	s.remember(func() { s.caches.publishers.Add(name, id) })
	return id, true, nil
}

// FindOrCreatePublisher returns the id of the named publisher, adding it if needed.
func (s *GormStore) FindOrCreatePublisher(ctx context.Context, name string) (int64, error) {
	id, found, err := s.FindPublisher(ctx, name)
	if err != nil || found {
		return id, err
	}

	p := Publisher{Name: name}
	if err := s.conn(ctx).Create(&p).Error; err != nil {
		return 0, wrap("add publisher", err)
	}
	id = p.ID
	s.remember(func() { s.caches.publishers.Add(name, id) })
	return id, nil
}

// PublisherName returns the name of a publisher.
func (s *GormStore) PublisherName(ctx context.Context, publisherID int64) (string, bool, error) {
	var p Publisher
	if err := s.conn(ctx).Where("id = ?", publisherID).Limit(1).Find(&p).Error; err != nil {
		return "", false, wrap("find publisher name", err)
	}
	return p.Name, p.ID != 0, nil
}

// DeletePublisher removes a publisher row.
func (s *GormStore) DeletePublisher(ctx context.Context, publisherID int64) error {
	var p Publisher
	if err := s.conn(ctx).Where("id = ?", publisherID).Limit(1).Find(&p).Error; err != nil {
		return wrap("find publisher", err)
	}
	if p.ID == 0 {
		return nil
	}
	if err := s.conn(ctx).Delete(&Publisher{}, publisherID).Error; err != nil {
		return wrap("delete publisher", err)
	}
	// Drop the entry at once so no caller sees a deleted id; a rollback
	// only costs a cache miss.
	s.caches.publishers.Remove(p.Name)
	return nil
}

// PublisherPublications returns the publications owned by a publisher.
func (s *GormStore) PublisherPublications(ctx context.Context, publisherID int64) ([]int64, error) {
	var ids []int64
	err := s.conn(ctx).Model(&Publication{}).
		Where("publisher_seq = ?", publisherID).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, wrap("find publisher publications", err)
	}
	return ids, nil
}

// FindPublicationByIssns finds a publication of the given root item type
// by either of its ISSNs.
func (s *GormStore) FindPublicationByIssns(ctx context.Context, publisherID int64, pIssn, eIssn, itemType string) (int64, bool, error) {
	if pIssn == "" && eIssn == "" {
		return 0, false, nil
	}
	q := s.publicationQuery(ctx, publisherID, itemType).
		Joins("JOIN issn ON issn.md_item_seq = md_item.id")
	switch {
	case pIssn != "" && eIssn != "":
		q = q.Where("(issn.issn = ? AND issn.issn_type = ?) OR (issn.issn = ? AND issn.issn_type = ?)",
			pIssn, IdentifierPrint, eIssn, IdentifierElectronic)
	case pIssn != "":
		q = q.Where("issn.issn = ? AND issn.issn_type = ?", pIssn, IdentifierPrint)
	default:
		q = q.Where("issn.issn = ? AND issn.issn_type = ?", eIssn, IdentifierElectronic)
	}
	return firstID(q, "find publication by issn")
}

// FindPublicationByIsbns finds a publication of the given root item type
// by either of its ISBNs.
func (s *GormStore) FindPublicationByIsbns(ctx context.Context, publisherID int64, pIsbn, eIsbn, itemType string) (int64, bool, error) {
	if pIsbn == "" && eIsbn == "" {
		return 0, false, nil
	}
	q := s.publicationQuery(ctx, publisherID, itemType).
		Joins("JOIN isbn ON isbn.md_item_seq = md_item.id")
	switch {
	case pIsbn != "" && eIsbn != "":
		q = q.Where("(isbn.isbn = ? AND isbn.isbn_type = ?) OR (isbn.isbn = ? AND isbn.isbn_type = ?)",
			pIsbn, IdentifierPrint, eIsbn, IdentifierElectronic)
	case pIsbn != "":
		q = q.Where("isbn.isbn = ? AND isbn.isbn_type = ?", pIsbn, IdentifierPrint)
	default:
		q = q.Where("isbn.isbn = ? AND isbn.isbn_type = ?", eIsbn, IdentifierElectronic)
	}
	return firstID(q, "find publication by isbn")
}

// FindPublicationsByName lists, oldest first, the publications of the
// given root item type that carry name among their names.
func (s *GormStore) FindPublicationsByName(ctx context.Context, publisherID int64, name, itemType string) ([]int64, error) {
	if name == "" {
		return nil, nil
	}
	var ids []int64
	err := s.publicationQuery(ctx, publisherID, itemType).
		Joins("JOIN md_item_name ON md_item_name.md_item_seq = md_item.id").
		Where("md_item_name.name = ?", name).
		Order("publication.id").
		Pluck("publication.id", &ids).Error
	if err != nil {
		return nil, wrap("find publications by name", err)
	}
	return ids, nil
}

// publicationQuery selects publication ids of a publisher whose root item
// has the given type.
func (s *GormStore) publicationQuery(ctx context.Context, publisherID int64, itemType string) *gorm.DB {
	return s.conn(ctx).
		Model(&Publication{}).
		Joins("JOIN md_item ON md_item.id = publication.md_item_seq").
		Where("publication.publisher_seq = ? AND md_item.md_item_type = ?", publisherID, itemType)
}

func firstID(q *gorm.DB, op string) (int64, bool, error) {
	var ids []int64
	if err := q.Order("publication.id").Limit(1).Pluck("publication.id", &ids).Error; err != nil {
		return 0, false, wrap(op, err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// AddPublication links a root metadata item to a publisher as a publication.
func (s *GormStore) AddPublication(ctx context.Context, publisherID, mdItemID int64) (int64, error) {
	p := Publication{PublisherID: publisherID, MdItemID: mdItemID}
	if err := s.conn(ctx).Create(&p).Error; err != nil {
		return 0, wrap("add publication", err)
	}
	return p.ID, nil
}

// PublicationMdItem returns the root metadata item of a publication.
func (s *GormStore) PublicationMdItem(ctx context.Context, publicationID int64) (int64, error) {
	var p Publication
	if err := s.conn(ctx).Where("id = ?", publicationID).Limit(1).Find(&p).Error; err != nil {
		return 0, wrap("find publication", err)
	}
	if p.ID == 0 {
		return 0, wrap("find publication", fmt.Errorf("publication %d: %w", publicationID, ErrNotFound))
	}
	return p.MdItemID, nil
}

// DeletePublication removes a publication row and its request aggregates.
func (s *GormStore) DeletePublication(ctx context.Context, publicationID int64) error {
	if err := s.conn(ctx).Where("publication_seq = ?", publicationID).Delete(&RequestAggregate{}).Error; err != nil {
		return wrap("delete publication aggregates", err)
	}
	return wrap("delete publication", s.conn(ctx).Delete(&Publication{}, publicationID).Error)
}
