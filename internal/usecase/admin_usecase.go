package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/apperror"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxExportRows = 5000

type adminUsecase struct {
	profiles domain.ProfileRepository
	viewers  domain.ViewerUsecase
}

func NewAdminUsecase(profiles domain.ProfileRepository, viewers domain.ViewerUsecase) domain.AdminUsecase {
	return &adminUsecase{profiles: profiles, viewers: viewers}
}

// GetStats returns dashboard statistics
func (u *adminUsecase) GetStats(ctx context.Context) (*domain.AdminStats, error) {
	if err := u.requireAdmin(ctx); err != nil {
		return nil, err
	}

	counts, err := u.profiles.CountByRole(ctx)
	if err != nil {
		return nil, apperror.Internal(errors.New("Failed to fetch statistics: " + err.Error()))
	}

	stats := &domain.AdminStats{
		ProfilesByRole: domain.ProfilesByRole{
			Member:    counts[domain.RoleMember],
			Admin:     counts[domain.RoleAdmin],
			Moderator: counts[domain.RoleModerator],
		},
	}
	for _, n := range counts {
		stats.TotalProfiles += n
	}
	if u.viewers != nil {
		stats.OpenViewers = u.viewers.Count()
	}
	return stats, nil
}

// ListProfiles returns paginated profiles
func (u *adminUsecase) ListProfiles(ctx context.Context, filter domain.ProfileFilter, page, limit int) (*domain.ProfileList, error) {
	if err := u.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	profiles, total, err := u.profiles.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal(errors.New("Failed to fetch profiles: " + err.Error()))
	}

	return &domain.ProfileList{
		Profiles: profiles,
		Total:    total,
		Page:     page,
		Limit:    limit,
	}, nil
}

// ExportProfiles builds an xlsx workbook of the profiles matching filter.
func (u *adminUsecase) ExportProfiles(ctx context.Context, filter domain.ProfileFilter) ([]byte, error) {
	if err := u.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	filter.Limit = maxExportRows
	filter.Offset = 0
	profiles, _, err := u.profiles.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal(errors.New("Failed to fetch profiles: " + err.Error()))
	}

	data, err := profilesWorkbook(profiles)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return data, nil
}

func profilesWorkbook(profiles []domain.Profile) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Profiles"
	f.SetSheetName("Sheet1", sheetName)

	headers := []string{"ID", "USERNAME", "FULL NAME", "ROLE"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}

	// Header: brand violet background, white text
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{domain.ColorOnPrimary}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	endCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
	f.SetCellStyle(sheetName, "A1", endCell, headerStyle)

	for rowIdx, p := range profiles {
		row := []interface{}{p.ID, p.Username, p.FullName, strings.ToUpper(string(p.Role))}
		for colIdx, v := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	f.SetColWidth(sheetName, "A", "A", 40)
	f.SetColWidth(sheetName, "B", "D", 20)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func validateFilter(filter domain.ProfileFilter) error {
	if filter.Role != "" && !filter.Role.Valid() {
		return apperror.BadRequest("Role must be member, admin or moderator")
	}
	return nil
}

func (u *adminUsecase) requireAdmin(ctx context.Context) error {
	var role string

	// First try Gin context string key (from c.Set)
	if r, ok := ctx.Value(string(domain.KeyUserRole)).(string); ok {
		role = r
	}

	// Fallback to CtxKey type (from context.WithValue)
	if role == "" {
		if r, ok := ctx.Value(domain.KeyUserRole).(string); ok {
			role = r
		}
	}

	if role != string(domain.RoleAdmin) {
		return apperror.Forbidden("Admin access required")
	}
	return nil
}
