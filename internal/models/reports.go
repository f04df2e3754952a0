package models

import "sort"

// TickerGroup is a set of records sharing one ticker.
type TickerGroup struct {
	Ticker   string
	Projects []*Project
}

// SortTickerGroups orders groups largest first, then by ticker.
func SortTickerGroups(groups []TickerGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].Projects) != len(groups[j].Projects) {
			return len(groups[i].Projects) > len(groups[j].Projects)
		}
		return groups[i].Ticker < groups[j].Ticker
	})
}

// StoreStats summarises the store's contents.
type StoreStats struct {
	Total    int64            `json:"total_projects"`
	BySource map[string]int64 `json:"projects_per_source"`
}
