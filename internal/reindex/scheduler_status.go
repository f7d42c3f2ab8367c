package reindex

import (
	"context"
	"sort"

	"github.com/jackzampolin/mdindex/internal/metadata"
)

// Status is a snapshot of the scheduler.
type Status struct {
	Enabled     bool       `json:"enabled"`
	MaxTasks    int        `json:"max_tasks"`
	Pending     int64      `json:"pending"`
	Workers     int        `json:"workers"`
	Active      []TaskInfo `json:"active"`
	History     []TaskInfo `json:"history"`
	FailedTasks []TaskInfo `json:"failed_tasks"`
	Counts      Counts     `json:"counts"`
}

// Status returns the state of the scheduler, its task lists newest first.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	pending, err := s.st.EnabledPendingCount(ctx)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	st := Status{
		Enabled:     s.settings.Enabled,
		MaxTasks:    s.settings.MaxTasks,
		Pending:     pending,
		Workers:     s.pool.running(),
		History:     taskInfos(s.history),
		FailedTasks: taskInfos(s.failed),
		Counts:      s.counts,
	}
	active := make([]*Task, 0, len(s.active))
	for _, at := range s.active {
		active = append(active, at.task)
	}
	s.mu.Unlock()

	st.Active = taskInfos(active)
	sort.Slice(st.Active, func(i, j int) bool {
		return st.Active[i].Started.After(st.Active[j].Started)
	})
	return st, nil
}

// ActiveAuIDs lists the AUs with a running task.
func (s *Scheduler) ActiveAuIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PendingAuIDs lists up to limit enabled pending AUs in dispatch order. A
// limit of zero or less uses the configured pending list size.
func (s *Scheduler) PendingAuIDs(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	if limit <= 0 {
		limit = s.settings.PendingListSize
	}
	prioritizeNew := s.settings.PrioritizeNew
	s.mu.Unlock()

	entries, err := s.st.EnabledPendingAus(ctx)
	if err != nil {
		return nil, err
	}
	q := newPendingQueue(prioritizeNew, entries)
	var ids []string
	for len(ids) < limit {
		e, ok := q.pop()
		if !ok {
			break
		}
		ids = append(ids, metadata.AuID(e.PluginID, e.AuKey))
	}
	return ids, nil
}

func taskInfos(tasks []*Task) []TaskInfo {
	infos := make([]TaskInfo, len(tasks))
	for i, t := range tasks {
		infos[i] = t.Info()
	}
	return infos
}
