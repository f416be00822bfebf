package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strings"
	"testing"

	"image-board-backend/internal/domain"
	"image-board-backend/internal/usecase"
	"image-board-backend/pkg/apperror"
	"image-board-backend/pkg/security/antivirus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func adminCtx() context.Context {
	return context.WithValue(context.Background(), domain.KeyUserRole, "admin")
}

func TestAdminRequiresRole(t *testing.T) {
	uc := usecase.NewAdminUsecase(new(MockProfileRepo), nil)

	t.Run("Should fail if role is not admin", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), domain.KeyUserRole, "moderator")
		_, err := uc.GetStats(ctx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Admin access required")
	})

	t.Run("Should fail safe if role is nil", func(t *testing.T) {
		_, err := uc.ListProfiles(context.Background(), domain.ProfileFilter{}, 1, 10)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Admin access required")
	})
}

func TestAdminStats(t *testing.T) {
	repo := new(MockProfileRepo)
	repo.On("CountByRole", mock.Anything).Return(map[domain.Role]int64{
		domain.RoleMember: 7,
		domain.RoleAdmin:  1,
	}, nil)

	stats, err := usecase.NewAdminUsecase(repo, nil).GetStats(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, int64(8), stats.TotalProfiles)
	assert.Equal(t, int64(7), stats.ProfilesByRole.Member)
	assert.Equal(t, int64(0), stats.ProfilesByRole.Moderator)
}

func TestAdminListProfiles(t *testing.T) {
	repo := new(MockProfileRepo)
	uc := usecase.NewAdminUsecase(repo, nil)

	t.Run("Should clamp paging into limit/offset", func(t *testing.T) {
		repo.On("List", mock.Anything, domain.ProfileFilter{Role: domain.RoleMember, Limit: 20, Offset: 40}).
			Return([]domain.Profile{{ID: "u1"}}, int64(41), nil).Once()

		list, err := uc.ListProfiles(adminCtx(), domain.ProfileFilter{Role: domain.RoleMember}, 3, 1000)
		require.NoError(t, err)
		assert.Equal(t, 3, list.Page)
		assert.Equal(t, 20, list.Limit)
		assert.Equal(t, int64(41), list.Total)
	})

	t.Run("Should reject unknown role", func(t *testing.T) {
		_, err := uc.ListProfiles(adminCtx(), domain.ProfileFilter{Role: "owner"}, 1, 10)
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, appErr.Code)
	})

	t.Run("Should wrap repository failure", func(t *testing.T) {
		repo.On("List", mock.Anything, mock.Anything).Return(nil, int64(0), errors.New("db down")).Once()
		_, err := uc.ListProfiles(adminCtx(), domain.ProfileFilter{}, 1, 10)
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusInternalServerError, appErr.Code)
	})
}

func TestAdminExportProfiles(t *testing.T) {
	repo := new(MockProfileRepo)
	repo.On("List", mock.Anything, mock.MatchedBy(func(f domain.ProfileFilter) bool { return f.Limit > 0 })).
		Return([]domain.Profile{
			{ID: "u1", Username: "anon-abc12345", FullName: "anon-abc12345", Role: domain.RoleMember},
			{ID: "u2", Username: "boss", FullName: "Boss", Role: domain.RoleAdmin},
		}, int64(2), nil)

	data, err := usecase.NewAdminUsecase(repo, nil).ExportProfiles(adminCtx(), domain.ProfileFilter{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Profiles")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "USERNAME", "FULL NAME", "ROLE"}, rows[0])
	assert.Equal(t, "boss", rows[2][1])
	assert.Equal(t, "ADMIN", rows[2][3])
}

type fakeStore struct {
	key, contentType string
	body             []byte
	err              error
}

func (s *fakeStore) Bucket() string { return "images" }

func (s *fakeStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	s.key, s.body, s.contentType = key, body, contentType
	return s.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestMediaUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("Should compress and store under the user prefix", func(t *testing.T) {
		store := &fakeStore{}
		uc := usecase.NewMediaUsecase(store, usecase.MediaConfig{MaxDimension: 64}, nil)

		out, err := uc.Upload(ctx, "user-1", "photo.png", pngBytes(t, 200, 100))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out.Key, "posts/user-1/"))
		assert.True(t, strings.HasSuffix(out.Key, ".jpg"))
		assert.Equal(t, "storage://images/"+out.Key, out.SourceURL)
		assert.Equal(t, "image/jpeg", store.contentType)
		assert.Equal(t, len(store.body), out.Size)
	})

	t.Run("Should reject spoofed files", func(t *testing.T) {
		uc := usecase.NewMediaUsecase(&fakeStore{}, usecase.MediaConfig{}, nil)
		_, err := uc.Upload(ctx, "user-1", "photo.jpg", pngBytes(t, 4, 4))
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, appErr.Code)
	})

	t.Run("Should enforce size limit", func(t *testing.T) {
		uc := usecase.NewMediaUsecase(&fakeStore{}, usecase.MediaConfig{MaxBytes: 10}, nil)
		_, err := uc.Upload(ctx, "user-1", "photo.png", pngBytes(t, 4, 4))
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusRequestEntityTooLarge, appErr.Code)
	})

	t.Run("Should report missing storage", func(t *testing.T) {
		uc := usecase.NewMediaUsecase(nil, usecase.MediaConfig{}, nil)
		_, err := uc.Upload(ctx, "user-1", "photo.png", pngBytes(t, 4, 4))
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusServiceUnavailable, appErr.Code)
	})

	t.Run("Should map storage failure", func(t *testing.T) {
		uc := usecase.NewMediaUsecase(&fakeStore{err: errors.New("s3 down")}, usecase.MediaConfig{}, nil)
		_, err := uc.Upload(ctx, "user-1", "photo.png", pngBytes(t, 4, 4))
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadGateway, appErr.Code)
	})

	t.Run("Should reject infected uploads", func(t *testing.T) {
		store := &fakeStore{}
		scanner := &stubScanner{result: antivirus.ScanResult{Infected: true, ThreatName: "Eicar", ScannerName: "stub"}}
		uc := usecase.NewMediaUsecase(store, usecase.MediaConfig{Scanner: scanner}, nil)

		_, err := uc.Upload(ctx, "user-1", "photo.png", pngBytes(t, 4, 4))
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, appErr.Code)
		assert.Nil(t, store.body)
	})

	t.Run("Should fail closed when the scanner is down", func(t *testing.T) {
		scanner := &stubScanner{err: antivirus.ErrUnavailable}
		uc := usecase.NewMediaUsecase(&fakeStore{}, usecase.MediaConfig{Scanner: scanner}, nil)

		_, err := uc.Upload(ctx, "user-1", "photo.png", pngBytes(t, 4, 4))
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusServiceUnavailable, appErr.Code)
	})

	t.Run("Should store clean uploads", func(t *testing.T) {
		store := &fakeStore{}
		uc := usecase.NewMediaUsecase(store, usecase.MediaConfig{Scanner: &stubScanner{}}, nil)

		_, err := uc.Upload(ctx, "user-1", "photo.png", pngBytes(t, 4, 4))
		require.NoError(t, err)
		assert.NotEmpty(t, store.body)
	})
}

type stubScanner struct {
	result antivirus.ScanResult
	err    error
}

func (s *stubScanner) Scan(context.Context, []byte) (antivirus.ScanResult, error) {
	return s.result, s.err
}
func (s *stubScanner) Name() string               { return "stub" }
func (s *stubScanner) Ping(context.Context) error { return s.err }

func TestHealthCheck(t *testing.T) {
	h := usecase.NewHealthUsecase(map[string]usecase.Pinger{
		"database": usecase.PingFunc(func(context.Context) error { return nil }),
		"redis":    usecase.PingFunc(func(context.Context) error { return errors.New("down") }),
		"storage":  nil,
	})
	res := h.Check(context.Background())
	assert.Equal(t, "degraded", res["status"])
	assert.Equal(t, "up", res["database"])
	assert.Equal(t, "down", res["redis"])
	assert.Equal(t, "disabled", res["storage"])
}
