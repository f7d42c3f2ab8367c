package store

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm/clause"
)

// AddMdItem inserts a metadata item and returns its id.
func (s *GormStore) AddMdItem(ctx context.Context, item *MdItem) (int64, error) {
	if err := s.conn(ctx).Create(item).Error; err != nil {
		return 0, wrap("add md item", err)
	}
	return item.ID, nil
}

// FindMdItem finds the item of an AU with the given type and access URL.
func (s *GormStore) FindMdItem(ctx context.Context, itemType string, auMdID int64, accessURL string) (int64, bool, error) {
	var ids []int64
	err := s.conn(ctx).
		Model(&MdItem{}).
		Joins("JOIN url ON url.md_item_seq = md_item.id").
		Where("md_item.md_item_type = ? AND md_item.au_md_seq = ?", itemType, auMdID).
		Where("url.feature = ? AND url.url = ?", AccessFeature, accessURL).
		Order("md_item.id").
		Limit(1).
		Pluck("md_item.id", &ids).Error
	if err != nil {
		return 0, false, wrap("find md item", err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// MdItemType returns the type of a metadata item.
func (s *GormStore) MdItemType(ctx context.Context, mdItemID int64) (string, error) {
	var item MdItem
	if err := s.conn(ctx).Where("id = ?", mdItemID).Limit(1).Find(&item).Error; err != nil {
		return "", wrap("find md item type", err)
	}
	if item.ID == 0 {
		return "", wrap("find md item type", fmt.Errorf("md item %d: %w", mdItemID, ErrNotFound))
	}
	return item.Type, nil
}

// ChildMdItems returns the ids of the direct children of an item.
func (s *GormStore) ChildMdItems(ctx context.Context, parentID int64) ([]int64, error) {
	var ids []int64
	err := s.conn(ctx).Model(&MdItem{}).Where("parent_seq = ?", parentID).Order("id").Pluck("id", &ids).Error
	if err != nil {
		return nil, wrap("find child md items", err)
	}
	return ids, nil
}

// SetMdItemParent moves an item under a new parent.
func (s *GormStore) SetMdItemParent(ctx context.Context, mdItemID, parentID int64) error {
	err := s.conn(ctx).Model(&MdItem{}).Where("id = ?", mdItemID).Update("parent_seq", parentID).Error
	return wrap("set md item parent", err)
}

// DeleteMdItem removes an item, its descendants and everything attached
// to them.
func (s *GormStore) DeleteMdItem(ctx context.Context, mdItemID int64) error {
	return s.deleteMdItems(ctx, []int64{mdItemID})
}

// itemTables are the tables keyed by md_item_seq.
var itemTables = []any{
	&MdItemName{}, &Issn{}, &Isbn{}, &BibItem{}, &URL{}, &Doi{},
	&Author{}, &Keyword{}, &ProprietaryID{},
}

func (s *GormStore) deleteMdItems(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	// Collect descendants breadth first; delete deepest first.
	levels := [][]int64{ids}
	for frontier := ids; len(frontier) > 0; {
		var children []int64
		err := s.conn(ctx).Model(&MdItem{}).Where("parent_seq IN ?", frontier).Pluck("id", &children).Error
		if err != nil {
			return wrap("find descendant md items", err)
		}
		if len(children) > 0 {
			levels = append(levels, children)
		}
		frontier = children
	}

	for i := len(levels) - 1; i >= 0; i-- {
		level := levels[i]
		for _, model := range itemTables {
			if err := s.conn(ctx).Where("md_item_seq IN ?", level).Delete(model).Error; err != nil {
				return wrap("delete md item data", err)
			}
		}
		if err := s.conn(ctx).Where("id IN ?", level).Delete(&MdItem{}).Error; err != nil {
			return wrap("delete md items", err)
		}
	}
	return nil
}

// insertIgnore inserts row unless it violates a unique key and reports
// whether a row was added.
func (s *GormStore) insertIgnore(ctx context.Context, op string, row any) (bool, error) {
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, wrap(op, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MdItemNames returns the names of an item, the primary one first.
func (s *GormStore) MdItemNames(ctx context.Context, mdItemID int64) ([]ItemName, error) {
	var rows []MdItemName
	if err := s.conn(ctx).Where("md_item_seq = ?", mdItemID).Order("id").Find(&rows).Error; err != nil {
		return nil, wrap("find md item names", err)
	}
	names := make([]ItemName, 0, len(rows))
	for _, r := range rows {
		names = append(names, ItemName{Name: r.Name, Primary: r.NameType == namePrimary})
	}
	sort.SliceStable(names, func(i, j int) bool { return names[i].Primary && !names[j].Primary })
	return names, nil
}

// AddMdItemName adds a name to an item unless it already has it.
func (s *GormStore) AddMdItemName(ctx context.Context, mdItemID int64, name string, primary bool) (bool, error) {
	nameType := nameNotPrimary
	if primary {
		nameType = namePrimary
	}
	return s.insertIgnore(ctx, "add md item name", &MdItemName{MdItemID: mdItemID, Name: name, NameType: nameType})
}

// UpdatePrimaryName renames the primary name of an item. A non-primary
// copy of the new name is dropped.
func (s *GormStore) UpdatePrimaryName(ctx context.Context, mdItemID int64, name string) error {
	err := s.conn(ctx).
		Where("md_item_seq = ? AND name = ? AND name_type = ?", mdItemID, name, nameNotPrimary).
		Delete(&MdItemName{}).Error
	if err != nil {
		return wrap("update primary name", err)
	}

	res := s.conn(ctx).Model(&MdItemName{}).
		Where("md_item_seq = ? AND name_type = ?", mdItemID, namePrimary).
		Update("name", name)
	if res.Error != nil {
		return wrap("update primary name", res.Error)
	}
	if res.RowsAffected == 0 {
		_, err := s.AddMdItemName(ctx, mdItemID, name, true)
		return err
	}
	return nil
}

// DeleteMdItemName removes one name of an item.
func (s *GormStore) DeleteMdItemName(ctx context.Context, mdItemID int64, name string) error {
	err := s.conn(ctx).Where("md_item_seq = ? AND name = ?", mdItemID, name).Delete(&MdItemName{}).Error
	return wrap("delete md item name", err)
}

// Issns returns the ISSNs of an item.
func (s *GormStore) Issns(ctx context.Context, mdItemID int64) ([]Identifier, error) {
	var rows []Issn
	if err := s.conn(ctx).Where("md_item_seq = ?", mdItemID).Order("id").Find(&rows).Error; err != nil {
		return nil, wrap("find issns", err)
	}
	ids := make([]Identifier, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, Identifier{Value: r.Issn, Type: r.Type})
	}
	return ids, nil
}

// AddIssn adds an ISSN to an item unless it already has it.
func (s *GormStore) AddIssn(ctx context.Context, mdItemID int64, issn, issnType string) (bool, error) {
	return s.insertIgnore(ctx, "add issn", &Issn{MdItemID: mdItemID, Issn: issn, Type: issnType})
}

// Isbns returns the ISBNs of an item.
func (s *GormStore) Isbns(ctx context.Context, mdItemID int64) ([]Identifier, error) {
	var rows []Isbn
	if err := s.conn(ctx).Where("md_item_seq = ?", mdItemID).Order("id").Find(&rows).Error; err != nil {
		return nil, wrap("find isbns", err)
	}
	ids := make([]Identifier, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, Identifier{Value: r.Isbn, Type: r.Type})
	}
	return ids, nil
}

// AddIsbn adds an ISBN to an item unless it already has it.
func (s *GormStore) AddIsbn(ctx context.Context, mdItemID int64, isbn, isbnType string) (bool, error) {
	return s.insertIgnore(ctx, "add isbn", &Isbn{MdItemID: mdItemID, Isbn: isbn, Type: isbnType})
}

// ProprietaryIDs returns the proprietary identifiers of an item.
func (s *GormStore) ProprietaryIDs(ctx context.Context, mdItemID int64) ([]string, error) {
	var values []string
	err := s.conn(ctx).Model(&ProprietaryID{}).Where("md_item_seq = ?", mdItemID).Order("id").Pluck("proprietary_id", &values).Error
	if err != nil {
		return nil, wrap("find proprietary ids", err)
	}
	return values, nil
}

// AddProprietaryID adds a proprietary identifier unless the item already has it.
func (s *GormStore) AddProprietaryID(ctx context.Context, mdItemID int64, value string) (bool, error) {
	return s.insertIgnore(ctx, "add proprietary id", &ProprietaryID{MdItemID: mdItemID, Value: value})
}

// Authors returns the authors of an item in order.
func (s *GormStore) Authors(ctx context.Context, mdItemID int64) ([]string, error) {
	var names []string
	err := s.conn(ctx).Model(&Author{}).Where("md_item_seq = ?", mdItemID).Order("author_idx").Pluck("author_name", &names).Error
	if err != nil {
		return nil, wrap("find authors", err)
	}
	return names, nil
}

// AddAuthors appends the authors the item does not have yet, keeping their
// order, and returns how many were added.
func (s *GormStore) AddAuthors(ctx context.Context, mdItemID int64, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	var next int
	err := s.conn(ctx).Model(&Author{}).
		Where("md_item_seq = ?", mdItemID).
		Select("COALESCE(MAX(author_idx), 0)").
		Scan(&next).Error
	if err != nil {
		return 0, wrap("find last author", err)
	}

	added := 0
	for _, name := range names {
		ok, err := s.insertIgnore(ctx, "add author", &Author{MdItemID: mdItemID, Name: name, Seq: next + 1})
		if err != nil {
			return added, err
		}
		if ok {
			next++
			added++
		}
	}
	return added, nil
}

// Keywords returns the keywords of an item.
func (s *GormStore) Keywords(ctx context.Context, mdItemID int64) ([]string, error) {
	var keywords []string
	err := s.conn(ctx).Model(&Keyword{}).Where("md_item_seq = ?", mdItemID).Order("id").Pluck("keyword", &keywords).Error
	if err != nil {
		return nil, wrap("find keywords", err)
	}
	return keywords, nil
}

// AddKeywords adds the keywords the item does not have yet.
func (s *GormStore) AddKeywords(ctx context.Context, mdItemID int64, keywords []string) (int, error) {
	added := 0
	for _, k := range keywords {
		ok, err := s.insertIgnore(ctx, "add keyword", &Keyword{MdItemID: mdItemID, Keyword: k})
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// URLs returns the URLs of an item keyed by feature.
func (s *GormStore) URLs(ctx context.Context, mdItemID int64) (map[string]string, error) {
	var rows []URL
	if err := s.conn(ctx).Where("md_item_seq = ?", mdItemID).Find(&rows).Error; err != nil {
		return nil, wrap("find urls", err)
	}
	urls := make(map[string]string, len(rows))
	for _, r := range rows {
		urls[r.Feature] = r.URL
	}
	return urls, nil
}

// AddURLs adds the features the item does not have yet. Existing features
// keep their URL.
func (s *GormStore) AddURLs(ctx context.Context, mdItemID int64, urls map[string]string) (int, error) {
	features := make([]string, 0, len(urls))
	for f := range urls {
		features = append(features, f)
	}
	sort.Strings(features)

	added := 0
	for _, f := range features {
		ok, err := s.insertIgnore(ctx, "add url", &URL{MdItemID: mdItemID, Feature: f, URL: urls[f]})
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Doi returns the DOI of an item.
func (s *GormStore) Doi(ctx context.Context, mdItemID int64) (string, bool, error) {
	var d Doi
	if err := s.conn(ctx).Where("md_item_seq = ?", mdItemID).Limit(1).Find(&d).Error; err != nil {
		return "", false, wrap("find doi", err)
	}
	return d.Doi, d.MdItemID != 0, nil
}

// AddDoi sets the DOI of an item that has none.
func (s *GormStore) AddDoi(ctx context.Context, mdItemID int64, doi string) error {
	_, err := s.insertIgnore(ctx, "add doi", &Doi{MdItemID: mdItemID, Doi: doi})
	return err
}

// BibItem returns the bibliographic data of an item, or nil.
func (s *GormStore) BibItem(ctx context.Context, mdItemID int64) (*BibItem, error) {
	var b BibItem
	if err := s.conn(ctx).Where("md_item_seq = ?", mdItemID).Limit(1).Find(&b).Error; err != nil {
		return nil, wrap("find bib item", err)
	}
	if b.MdItemID == 0 {
		return nil, nil
	}
	return &b, nil
}

// UpsertBibItem stores bibliographic data. Non-empty fields of bib
// replace stored ones; empty fields leave them as they are.
func (s *GormStore) UpsertBibItem(ctx context.Context, bib *BibItem) error {
	existing, err := s.BibItem(ctx, bib.MdItemID)
	if err != nil {
		return err
	}
	if existing == nil {
		return wrap("add bib item", s.conn(ctx).Create(bib).Error)
	}

	updates := map[string]any{}
	for col, v := range map[string]string{
		"volume":     bib.Volume,
		"issue":      bib.Issue,
		"start_page": bib.StartPage,
		"end_page":   bib.EndPage,
		"item_no":    bib.ItemNumber,
	} {
		if v != "" {
			updates[col] = v
		}
	}
	if len(updates) == 0 {
		return nil
	}
	err = s.conn(ctx).Model(&BibItem{}).Where("md_item_seq = ?", bib.MdItemID).Updates(updates).Error
	return wrap("update bib item", err)
}
