// Package mocks 提供 repository 接口的 testify Mock 实现，仅测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Matthew0wolf/Apront/internal/domain"
)

// RundownRepository 是 repository.RundownRepository 的 Mock。
type RundownRepository struct {
	mock.Mock
}

func (m *RundownRepository) FindByID(ctx context.Context, id uint) (*domain.Rundown, error) {
	args := m.Called(ctx, id)
	if r, ok := args.Get(0).(*domain.Rundown); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RundownRepository) FindByIDWithStructure(ctx context.Context, id uint) (*domain.Rundown, error) {
	args := m.Called(ctx, id)
	if r, ok := args.Get(0).(*domain.Rundown); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RundownRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.Rundown, error) {
	args := m.Called(ctx, ids)
	if r, ok := args.Get(0).([]domain.Rundown); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RundownRepository) FindByCompany(ctx context.Context, companyID uint) ([]domain.Rundown, error) {
	args := m.Called(ctx, companyID)
	if r, ok := args.Get(0).([]domain.Rundown); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RundownRepository) Save(ctx context.Context, rundown *domain.Rundown) error {
	args := m.Called(ctx, rundown)
	return args.Error(0)
}

func (m *RundownRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *RundownRepository) ReplaceStructure(ctx context.Context, rundownID uint, folders []domain.Folder) ([]domain.Folder, error) {
	args := m.Called(ctx, rundownID, folders)
	if r, ok := args.Get(0).([]domain.Folder); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

// TimerStateRepository 是 repository.TimerStateRepository 的 Mock。
type TimerStateRepository struct {
	mock.Mock
}

func (m *TimerStateRepository) GetTimerState(ctx context.Context, rundownID uint) (domain.TimerState, bool, error) {
	args := m.Called(ctx, rundownID)
	state, _ := args.Get(0).(domain.TimerState)
	return state, args.Bool(1), args.Error(2)
}

func (m *TimerStateRepository) SaveTimerState(ctx context.Context, rundownID uint, state domain.TimerState) error {
	args := m.Called(ctx, rundownID, state)
	return args.Error(0)
}

func (m *TimerStateRepository) ListRunning(ctx context.Context) ([]uint, error) {
	args := m.Called(ctx)
	if r, ok := args.Get(0).([]uint); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

// MemberRepository 是 repository.MemberRepository 的 Mock。
type MemberRepository struct {
	mock.Mock
}

func (m *MemberRepository) ListByRundown(ctx context.Context, rundownID uint) ([]domain.RundownMember, error) {
	args := m.Called(ctx, rundownID)
	if r, ok := args.Get(0).([]domain.RundownMember); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MemberRepository) ListRundownIDsByUser(ctx context.Context, userID uint) ([]uint, error) {
	args := m.Called(ctx, userID)
	if r, ok := args.Get(0).([]uint); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MemberRepository) Exists(ctx context.Context, rundownID uint, userID uint) (bool, error) {
	args := m.Called(ctx, rundownID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MemberRepository) Replace(ctx context.Context, rundownID uint, members []domain.RundownMember) error {
	args := m.Called(ctx, rundownID, members)
	return args.Error(0)
}

func (m *MemberRepository) Add(ctx context.Context, member *domain.RundownMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

// UsageLogRepository 是 repository.UsageLogRepository 的 Mock。
type UsageLogRepository struct {
	mock.Mock
}

func (m *UsageLogRepository) SaveBatch(ctx context.Context, logs []domain.UsageLog) error {
	args := m.Called(ctx, logs)
	return args.Error(0)
}

// ListCacheRepository 是 repository.ListCacheRepository 的 Mock。
type ListCacheRepository struct {
	mock.Mock
}

func (m *ListCacheRepository) GetSnapshot(ctx context.Context, companyID uint, userID uint) ([]byte, error) {
	args := m.Called(ctx, companyID, userID)
	if r, ok := args.Get(0).([]byte); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ListCacheRepository) SetSnapshot(ctx context.Context, companyID uint, userID uint, snapshot []byte, ttl time.Duration) error {
	args := m.Called(ctx, companyID, userID, snapshot, ttl)
	return args.Error(0)
}

func (m *ListCacheRepository) InvalidateCompany(ctx context.Context, companyID uint) (int64, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ListCacheRepository) InvalidateUser(ctx context.Context, companyID uint, userID uint) error {
	args := m.Called(ctx, companyID, userID)
	return args.Error(0)
}

func (m *ListCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *ListCacheRepository) PublishRelay(ctx context.Context, rundownID uint, payload []byte) error {
	args := m.Called(ctx, rundownID, payload)
	return args.Error(0)
}
