package engine

import (
	"sort"
	"strings"

	"assessportal/platform/apperr"

	"github.com/google/uuid"
)

// The projection layer is the pure read side: every view here is derived
// from store snapshots on demand and is never authoritative.

// TimelineSummary is the list-view projection of one timeline.
type TimelineSummary struct {
	ClientID         uuid.UUID `json:"clientId"`
	ServiceID        uuid.UUID `json:"serviceId"`
	Version          int       `json:"version"`
	CurrentStageID   int       `json:"currentStageId"`
	CurrentStageName string    `json:"currentStageName"`
	OverallProgress  int       `json:"overallProgress"`
	Resolved         bool      `json:"resolved"`
	AssignedManager  uuid.UUID `json:"assignedManager,omitempty"`
	AssignedTester   uuid.UUID `json:"assignedTester,omitempty"`
}

// ClientProgress aggregates a client's services into one progress figure:
// the average across that client's timelines.
type ClientProgress struct {
	ClientID        uuid.UUID `json:"clientId"`
	Services        int       `json:"services"`
	OverallProgress int       `json:"overallProgress"`
	Resolved        int       `json:"resolved"`
}

// ListQuery filters, sorts and paginates timeline summaries.
type ListQuery struct {
	ClientID *uuid.UUID
	Resolved *bool
	// SortBy is one of progress, version, stage. Default is progress.
	SortBy    string
	SortOrder string // asc or desc, default asc
	Offset    int
	Limit     int
}

// ProjectList runs q against a snapshot of every timeline in the store.
func (s *Store) ProjectList(q ListQuery) ([]TimelineSummary, int, error) {
	return Project(s.List(), q)
}

// Summarize projects one timeline into its list view.
func Summarize(t *Timeline) TimelineSummary {
	return TimelineSummary{
		ClientID:         t.ClientID,
		ServiceID:        t.ServiceID,
		Version:          t.Version,
		CurrentStageID:   t.CurrentStageID,
		CurrentStageName: StageName(t.CurrentStageID),
		OverallProgress:  t.OverallProgress(),
		Resolved:         t.Resolved,
		AssignedManager:  t.AssignedManager,
		AssignedTester:   t.AssignedTester,
	}
}

// Project filters, sorts and paginates the given snapshots. Returns the page
// and the total match count before pagination.
func Project(timelines []*Timeline, q ListQuery) ([]TimelineSummary, int, error) {
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "progress"
	}
	switch sortBy {
	case "progress", "version", "stage":
	default:
		return nil, 0, apperr.Validation("invalid sort field")
	}
	descending := false
	switch strings.ToLower(q.SortOrder) {
	case "", "asc":
	case "desc":
		descending = true
	default:
		return nil, 0, apperr.Validation("invalid sort order")
	}

	summaries := make([]TimelineSummary, 0, len(timelines))
	for _, t := range timelines {
		if q.ClientID != nil && t.ClientID != *q.ClientID {
			continue
		}
		if q.Resolved != nil && t.Resolved != *q.Resolved {
			continue
		}
		summaries = append(summaries, Summarize(t))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "version":
			less = summaries[i].Version < summaries[j].Version
		case "stage":
			less = summaries[i].CurrentStageID < summaries[j].CurrentStageID
		default:
			less = summaries[i].OverallProgress < summaries[j].OverallProgress
		}
		if descending {
			return !less
		}
		return less
	})

	total := len(summaries)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if q.Limit > 0 && offset+q.Limit < total {
		end = offset + q.Limit
	}
	return summaries[offset:end], total, nil
}

// ProgressByClient averages progress across each client's timelines.
func ProgressByClient(timelines []*Timeline) []ClientProgress {
	type acc struct {
		sum      int
		count    int
		resolved int
	}
	byClient := make(map[uuid.UUID]*acc)
	order := make([]uuid.UUID, 0)
	for _, t := range timelines {
		a, ok := byClient[t.ClientID]
		if !ok {
			a = &acc{}
			byClient[t.ClientID] = a
			order = append(order, t.ClientID)
		}
		a.sum += t.OverallProgress()
		a.count++
		if t.Resolved {
			a.resolved++
		}
	}

	sort.Slice(order, func(i, j int) bool {
		return order[i].String() < order[j].String()
	})

	out := make([]ClientProgress, 0, len(order))
	for _, clientID := range order {
		a := byClient[clientID]
		out = append(out, ClientProgress{
			ClientID:        clientID,
			Services:        a.count,
			OverallProgress: a.sum / a.count,
			Resolved:        a.resolved,
		})
	}
	return out
}
