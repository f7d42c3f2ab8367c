package store

import (
	"context"
)

type pendingRow struct {
	PluginID    string
	AuKey       string
	Priority    int64
	FullReindex bool
	IsNew       bool
}

// EnabledPendingAus returns the pending AUs with a non-negative priority
// ordered by priority, then insertion order.
func (s *GormStore) EnabledPendingAus(ctx context.Context) ([]PendingEntry, error) {
	var rows []pendingRow
	err := s.conn(ctx).
		Table("pending_au AS p").
		Select("p.plugin_id AS plugin_id, p.au_key AS au_key, p.priority AS priority, " +
			"p.fully_reindex AS full_reindex, CASE WHEN md.id IS NULL THEN 1 ELSE 0 END AS is_new").
		Joins("LEFT JOIN plugin pl ON pl.plugin_id = p.plugin_id").
		Joins("LEFT JOIN au a ON a.plugin_seq = pl.id AND a.au_key = p.au_key").
		Joins("LEFT JOIN au_md md ON md.au_seq = a.id").
		Where("p.priority >= 0").
		Order("p.priority, p.id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrap("find pending aus", err)
	}

	entries := make([]PendingEntry, len(rows))
	for i, r := range rows {
		entries[i] = PendingEntry(r)
	}
	return entries, nil
}

// IsAuPending reports whether the AU has a pending row of any priority.
func (s *GormStore) IsAuPending(ctx context.Context, pluginID, auKey string) (bool, error) {
	var n int64
	err := s.conn(ctx).Model(&PendingAu{}).Where("plugin_id = ? AND au_key = ?", pluginID, auKey).Count(&n).Error
	if err != nil {
		return false, wrap("find pending au", err)
	}
	return n > 0, nil
}

// AddPendingAus appends the AUs that are not pending yet behind every
// enabled entry. AUs already pending keep their position; with
// fullReindex they are flagged for a full reindex. It returns how many
// rows were added.
func (s *GormStore) AddPendingAus(ctx context.Context, aus []AuRef, fullReindex bool) (int, error) {
	if len(aus) == 0 {
		return 0, nil
	}

	var last int64
	err := s.conn(ctx).Model(&PendingAu{}).
		Where("priority >= 0").
		Select("COALESCE(MAX(priority), -1)").
		Scan(&last).Error
	if err != nil {
		return 0, wrap("find last pending priority", err)
	}

	added := 0
	for _, au := range aus {
		var existing PendingAu
		err := s.conn(ctx).Where("plugin_id = ? AND au_key = ?", au.PluginID, au.AuKey).Limit(1).Find(&existing).Error
		if err != nil {
			return added, wrap("find pending au", err)
		}
		if existing.ID != 0 {
			if fullReindex && !existing.FullReindex {
				err := s.conn(ctx).Model(&PendingAu{}).Where("id = ?", existing.ID).Update("fully_reindex", true).Error
				if err != nil {
					return added, wrap("flag pending au", err)
				}
			}
			continue
		}

		last++
		row := PendingAu{PluginID: au.PluginID, AuKey: au.AuKey, Priority: last, FullReindex: fullReindex}
		if err := s.conn(ctx).Create(&row).Error; err != nil {
			return added, wrap("add pending au", err)
		}
		added++
	}
	return added, nil
}

// SetPendingAu stores the AU's pending row with the given priority and
// flag, replacing any existing row.
func (s *GormStore) SetPendingAu(ctx context.Context, pluginID, auKey string, priority int64, fullReindex bool) error {
	var existing PendingAu
	err := s.conn(ctx).Where("plugin_id = ? AND au_key = ?", pluginID, auKey).Limit(1).Find(&existing).Error
	if err != nil {
		return wrap("find pending au", err)
	}
	if existing.ID == 0 {
		row := PendingAu{PluginID: pluginID, AuKey: auKey, Priority: priority, FullReindex: fullReindex}
		return wrap("add pending au", s.conn(ctx).Create(&row).Error)
	}
	err = s.conn(ctx).Model(&PendingAu{}).Where("id = ?", existing.ID).
		Updates(map[string]any{"priority": priority, "fully_reindex": fullReindex}).Error
	return wrap("update pending au", err)
}

// RemovePendingAu deletes the AU's pending row.
func (s *GormStore) RemovePendingAu(ctx context.Context, pluginID, auKey string) error {
	err := s.conn(ctx).Where("plugin_id = ? AND au_key = ?", pluginID, auKey).Delete(&PendingAu{}).Error
	return wrap("remove pending au", err)
}

// RemoveDisabledPendingAu deletes the AU's pending row if it marks the AU
// as disabled.
func (s *GormStore) RemoveDisabledPendingAu(ctx context.Context, pluginID, auKey string) error {
	err := s.conn(ctx).
		Where("plugin_id = ? AND au_key = ? AND priority = ?", pluginID, auKey, PriorityDisabled).
		Delete(&PendingAu{}).Error
	return wrap("remove disabled pending au", err)
}

// PendingAusWithPriority lists the AUs pending with exactly the given priority.
func (s *GormStore) PendingAusWithPriority(ctx context.Context, priority int64) ([]AuRef, error) {
	var rows []PendingAu
	if err := s.conn(ctx).Where("priority = ?", priority).Order("id").Find(&rows).Error; err != nil {
		return nil, wrap("find pending aus by priority", err)
	}
	refs := make([]AuRef, len(rows))
	for i, r := range rows {
		refs[i] = AuRef{PluginID: r.PluginID, AuKey: r.AuKey}
	}
	return refs, nil
}

// EnabledPendingCount counts the pending AUs with a non-negative priority.
func (s *GormStore) EnabledPendingCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn(ctx).Model(&PendingAu{}).Where("priority >= 0").Count(&n).Error; err != nil {
		return 0, wrap("count pending aus", err)
	}
	return n, nil
}
