package domain

import "context"

type ProfilesByRole struct {
	Member    int64 `json:"member"`
	Admin     int64 `json:"admin"`
	Moderator int64 `json:"moderator"`
}

type AdminStats struct {
	TotalProfiles  int64          `json:"totalProfiles"`
	ProfilesByRole ProfilesByRole `json:"profilesByRole"`
	OpenViewers    int            `json:"openViewers"`
}

type ProfileList struct {
	Profiles []Profile `json:"profiles"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

type AdminUsecase interface {
	GetStats(ctx context.Context) (*AdminStats, error)
	ListProfiles(ctx context.Context, filter ProfileFilter, page, limit int) (*ProfileList, error)
	ExportProfiles(ctx context.Context, filter ProfileFilter) ([]byte, error)
}
