package store

import (
	"context"
)

// FindOrCreatePlatform returns the id of the named platform, adding it if needed.
func (s *GormStore) FindOrCreatePlatform(ctx context.Context, name string) (int64, error) {
	if id, ok := s.caches.platforms.Get(name); ok {
		return id, nil
	}

	var p Platform
	err := s.conn(ctx).Where("platform_name = ?", name).Limit(1).Find(&p).Error
	if err != nil {
		return 0, wrap("find platform", err)
	}
	if p.ID == 0 {
		p = Platform{Name: name}
		if err := s.conn(ctx).Create(&p).Error; err != nil {
			return 0, wrap("add platform", err)
		}
	}

	id := p.ID
	s.remember(func() { s.caches.platforms.Add(name, id) })
	return id, nil
}

// FindOrCreatePlugin returns the id of the plugin row, adding it if needed.
func (s *GormStore) FindOrCreatePlugin(ctx context.Context, pluginID string, platformID int64) (int64, error) {
	if id, ok := s.caches.plugins.Get(pluginID); ok {
		return id, nil
	}

	var p Plugin
	err := s.conn(ctx).Where("plugin_id = ?", pluginID).Limit(1).Find(&p).Error
	if err != nil {
		return 0, wrap("find plugin", err)
	}
	if p.ID == 0 {
		p = Plugin{PluginID: pluginID}
		if platformID != 0 {
			p.PlatformID = &platformID
		}
		if err := s.conn(ctx).Create(&p).Error; err != nil {
			return 0, wrap("add plugin", err)
		}
	}

	id := p.ID
	s.remember(func() { s.caches.plugins.Add(pluginID, id) })
	return id, nil
}

// FindAu returns the id of an AU row.
func (s *GormStore) FindAu(ctx context.Context, pluginID, auKey string) (int64, bool, error) {
	var au Au
	err := s.conn(ctx).
		Joins("JOIN plugin ON plugin.id = au.plugin_seq").
		Where("plugin.plugin_id = ? AND au.au_key = ?", pluginID, auKey).
		Limit(1).
		Find(&au).Error
	if err != nil {
		return 0, false, wrap("find au", err)
	}
	return au.ID, au.ID != 0, nil
}

// FindOrCreateAu returns the id of the AU row for a plugin row and key.
func (s *GormStore) FindOrCreateAu(ctx context.Context, pluginSeq int64, auKey string) (int64, error) {
	var au Au
	err := s.conn(ctx).Where("plugin_seq = ? AND au_key = ?", pluginSeq, auKey).Limit(1).Find(&au).Error
	if err != nil {
		return 0, wrap("find au", err)
	}
	if au.ID != 0 {
		return au.ID, nil
	}
	au = Au{PluginID: pluginSeq, AuKey: auKey}
	if err := s.conn(ctx).Create(&au).Error; err != nil {
		return 0, wrap("add au", err)
	}
	return au.ID, nil
}

// FindAuMd returns the AU metadata row of an AU, or nil if it has none.
func (s *GormStore) FindAuMd(ctx context.Context, pluginID, auKey string) (*AuMd, error) {
	var md AuMd
	err := s.conn(ctx).
		Joins("JOIN au ON au.id = au_md.au_seq").
		Joins("JOIN plugin ON plugin.id = au.plugin_seq").
		Where("plugin.plugin_id = ? AND au.au_key = ?", pluginID, auKey).
		Limit(1).
		Find(&md).Error
	if err != nil {
		return nil, wrap("find au md", err)
	}
	if md.ID == 0 {
		return nil, nil
	}
	return &md, nil
}

// AddAuMd adds the AU metadata row of an AU.
func (s *GormStore) AddAuMd(ctx context.Context, md *AuMd) (int64, error) {
	if err := s.conn(ctx).Create(md).Error; err != nil {
		return 0, wrap("add au md", err)
	}
	return md.ID, nil
}

// UpdateAuMdVersion records the extractor version used for an AU.
func (s *GormStore) UpdateAuMdVersion(ctx context.Context, auMdID int64, version int) error {
	err := s.conn(ctx).Model(&AuMd{}).Where("id = ?", auMdID).Update("md_version", version).Error
	return wrap("update au md version", err)
}

// UpdateAuExtractTime records the time of the last completed extraction.
func (s *GormStore) UpdateAuExtractTime(ctx context.Context, auMdID int64, extractTime int64) error {
	err := s.conn(ctx).Model(&AuMd{}).Where("id = ?", auMdID).Update("extract_time", extractTime).Error
	return wrap("update au extract time", err)
}

// FindOrCreateProvider returns the id of the named provider, adding it if needed.
func (s *GormStore) FindOrCreateProvider(ctx context.Context, name string) (int64, error) {
	var p Provider
	err := s.conn(ctx).Where("provider_name = ?", name).Limit(1).Find(&p).Error
	if err != nil {
		return 0, wrap("find provider", err)
	}
	if p.ID != 0 {
		return p.ID, nil
	}
	p = Provider{Name: name}
	if err := s.conn(ctx).Create(&p).Error; err != nil {
		return 0, wrap("add provider", err)
	}
	return p.ID, nil
}

// FindAuPublisher returns the publisher of the publications an AU's items
// belong to.
func (s *GormStore) FindAuPublisher(ctx context.Context, pluginID, auKey string) (int64, bool, error) {
	md, err := s.FindAuMd(ctx, pluginID, auKey)
	if err != nil || md == nil {
		return 0, false, err
	}

	var publisherIDs []int64
	err = s.conn(ctx).
		Model(&Publication{}).
		Joins("JOIN md_item ON md_item.parent_seq = publication.md_item_seq").
		Where("md_item.au_md_seq = ?", md.ID).
		Limit(1).
		Pluck("publication.publisher_seq", &publisherIDs).Error
	if err != nil {
		return 0, false, wrap("find au publisher", err)
	}
	if len(publisherIDs) == 0 {
		return 0, false, nil
	}
	return publisherIDs[0], true, nil
}

// RemoveAuMetadataItems deletes the leaf metadata items of an AU and
// returns how many were removed.
func (s *GormStore) RemoveAuMetadataItems(ctx context.Context, pluginID, auKey string) (int64, error) {
	md, err := s.FindAuMd(ctx, pluginID, auKey)
	if err != nil || md == nil {
		return 0, err
	}

	var ids []int64
	if err := s.conn(ctx).Model(&MdItem{}).Where("au_md_seq = ?", md.ID).Pluck("id", &ids).Error; err != nil {
		return 0, wrap("find au md items", err)
	}
	if err := s.deleteMdItems(ctx, ids); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// DeleteAu removes an AU with all its metadata items, its AU metadata row
// and its problem markers. It returns the number of items removed.
func (s *GormStore) DeleteAu(ctx context.Context, pluginID, auKey string) (int64, error) {
	removed, err := s.RemoveAuMetadataItems(ctx, pluginID, auKey)
	if err != nil {
		return 0, err
	}

	auID, found, err := s.FindAu(ctx, pluginID, auKey)
	if err != nil {
		return 0, err
	}
	if found {
		if err := s.conn(ctx).Where("au_seq = ?", auID).Delete(&AuMd{}).Error; err != nil {
			return 0, wrap("delete au md", err)
		}
		if err := s.conn(ctx).Delete(&Au{}, auID).Error; err != nil {
			return 0, wrap("delete au", err)
		}
	}

	err = s.conn(ctx).Where("plugin_id = ? AND au_key = ?", pluginID, auKey).Delete(&AuProblem{}).Error
	if err != nil {
		return 0, wrap("delete au problems", err)
	}
	return removed, nil
}
