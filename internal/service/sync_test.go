package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Matthew0wolf/Apront/internal/domain"
	"github.com/Matthew0wolf/Apront/internal/dto"
	"github.com/Matthew0wolf/Apront/internal/hub"
	"github.com/Matthew0wolf/Apront/internal/repository"
	"github.com/Matthew0wolf/Apront/internal/repository/mocks"
)

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Publish(room hub.Room, event string, payload interface{}) {
	m.Called(room, event, payload)
}

type syncFixture struct {
	svc         *SyncService
	rundownRepo *mocks.RundownRepository
	timerRepo   *mocks.TimerStateRepository
	memberRepo  *mocks.MemberRepository
	cacheRepo   *mocks.ListCacheRepository
	broadcaster *mockBroadcaster
}

// newSyncFixture 装配一个墙钟固定在 nowSec 的同步门面
func newSyncFixture(nowSec int64) *syncFixture {
	f := &syncFixture{
		rundownRepo: new(mocks.RundownRepository),
		timerRepo:   new(mocks.TimerStateRepository),
		memberRepo:  new(mocks.MemberRepository),
		cacheRepo:   new(mocks.ListCacheRepository),
		broadcaster: new(mockBroadcaster),
	}
	membership := NewMembershipService(f.rundownRepo, f.memberRepo)
	cache := NewListCacheService(f.cacheRepo, 0)
	f.svc = NewSyncService(f.rundownRepo, f.timerRepo, membership, cache, f.broadcaster)
	f.svc.now = func() time.Time { return time.Unix(nowSec, 0).UTC() }
	return f
}

var (
	adminActor     = domain.Actor{ID: 1, CompanyID: 7, Role: domain.RoleAdmin, CanOperate: true}
	operatorActor  = domain.Actor{ID: 2, CompanyID: 7, Role: domain.RoleOperator, CanOperate: true}
	presenterActor = domain.Actor{ID: 3, CompanyID: 7, Role: domain.RolePresenter, CanPresent: true}
)

// expectMemberAccess 让 operator/presenter 级别的 actor 通过访问检查
func (f *syncFixture) expectMemberAccess(actor domain.Actor, rundown *domain.Rundown) {
	f.rundownRepo.On("FindByID", mock.Anything, rundown.ID).Return(rundown, nil)
	f.memberRepo.On("Exists", mock.Anything, rundown.ID, actor.ID).Return(true, nil)
}

// --- 列表与缓存 ---

func TestListRundownsCacheHitSkipsDatabase(t *testing.T) {
	f := newSyncFixture(1000)
	snapshot := []byte(`[{"id":"10","name":"Jornal"}]`)
	f.cacheRepo.On("GetSnapshot", mock.Anything, uint(7), uint(1)).Return(snapshot, nil)

	got, err := f.svc.ListRundowns(context.Background(), adminActor, false)
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)

	f.rundownRepo.AssertNotCalled(t, "FindByCompany", mock.Anything, mock.Anything)
	f.cacheRepo.AssertNotCalled(t, "SetSnapshot", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListRundownsCacheMissFallsBackAndRepopulates(t *testing.T) {
	f := newSyncFixture(1000)
	f.cacheRepo.On("GetSnapshot", mock.Anything, uint(7), uint(1)).Return(nil, repository.ErrNotFound)
	f.rundownRepo.On("FindByCompany", mock.Anything, uint(7)).Return([]domain.Rundown{
		{ID: 10, CompanyID: 7, Name: "Jornal", Status: domain.StatusNovo},
	}, nil)
	f.cacheRepo.On("SetSnapshot", mock.Anything, uint(7), uint(1), mock.Anything, DefaultListCacheTTL).Return(nil)

	got, err := f.svc.ListRundowns(context.Background(), adminActor, false)
	require.NoError(t, err)

	var views []dto.RundownView
	require.NoError(t, json.Unmarshal(got, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "10", views[0].ID, "ids serialize as strings")
	f.cacheRepo.AssertExpectations(t)
}

func TestListRundownsCacheFailureIsOpen(t *testing.T) {
	f := newSyncFixture(1000)
	// Redis 整个挂掉：读写都报错，但请求必须照常从数据库出结果
	f.cacheRepo.On("GetSnapshot", mock.Anything, uint(7), uint(1)).Return(nil, errors.New("redis down"))
	f.rundownRepo.On("FindByCompany", mock.Anything, uint(7)).Return([]domain.Rundown{{ID: 10, CompanyID: 7}}, nil)
	f.cacheRepo.On("SetSnapshot", mock.Anything, uint(7), uint(1), mock.Anything, DefaultListCacheTTL).Return(errors.New("still down"))

	got, err := f.svc.ListRundowns(context.Background(), adminActor, false)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestListRundownsFreshBypassesCacheRead(t *testing.T) {
	f := newSyncFixture(1000)
	f.rundownRepo.On("FindByCompany", mock.Anything, uint(7)).Return([]domain.Rundown{}, nil)
	f.cacheRepo.On("SetSnapshot", mock.Anything, uint(7), uint(1), mock.Anything, DefaultListCacheTTL).Return(nil)

	_, err := f.svc.ListRundowns(context.Background(), adminActor, true)
	require.NoError(t, err)

	f.cacheRepo.AssertNotCalled(t, "GetSnapshot", mock.Anything, mock.Anything, mock.Anything)
	f.cacheRepo.AssertExpectations(t)
}

// --- 创建 / 删除 ---

func TestCreateRundownCreatorBecomesOwner(t *testing.T) {
	f := newSyncFixture(1000)
	f.rundownRepo.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Rundown).ID = 42
		}).Return(nil)
	f.memberRepo.On("Add", mock.Anything, mock.MatchedBy(func(m *domain.RundownMember) bool {
		return m.RundownID == 42 && m.UserID == operatorActor.ID && m.IsOwner()
	})).Return(nil)
	f.cacheRepo.On("InvalidateCompany", mock.Anything, uint(7)).Return(int64(3), nil)
	f.broadcaster.On("Publish", hub.CompanyRoom(7), dto.EventRundownListChanged, mock.Anything).Return()

	view, err := f.svc.CreateRundown(context.Background(), operatorActor, dto.CreateRundownInput{
		Name:   "Jornal da Noite",
		Status: "live", // 别名写法在入口处归一化
	})
	require.NoError(t, err)
	assert.Equal(t, "42", view.ID)
	assert.Equal(t, domain.StatusAoVivo, view.Status)
	assert.Equal(t, 1, view.TeamMembers)

	f.memberRepo.AssertExpectations(t)
	f.broadcaster.AssertExpectations(t)
}

func TestCreateRundownRequiresName(t *testing.T) {
	f := newSyncFixture(1000)

	_, err := f.svc.CreateRundown(context.Background(), operatorActor, dto.CreateRundownInput{Name: "   "})
	assert.ErrorIs(t, err, ErrValidation)
	f.rundownRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestDeleteRundownRequiresOwnerOrAdmin(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7}
	f.expectMemberAccess(operatorActor, rundown)
	f.memberRepo.On("ListByRundown", mock.Anything, uint(50)).Return([]domain.RundownMember{
		{RundownID: 50, UserID: 2, Role: domain.MemberRoleMember},
		{RundownID: 50, UserID: 9, Role: domain.MemberRoleOwner},
	}, nil)

	err := f.svc.DeleteRundown(context.Background(), operatorActor, 50)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	f.rundownRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDeleteRundownByAdminBroadcastsListChange(t *testing.T) {
	f := newSyncFixture(1000)
	f.rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(&domain.Rundown{ID: 50, CompanyID: 7}, nil)
	f.rundownRepo.On("Delete", mock.Anything, uint(50)).Return(nil)
	f.cacheRepo.On("InvalidateCompany", mock.Anything, uint(7)).Return(int64(0), nil)
	f.broadcaster.On("Publish", hub.CompanyRoom(7), dto.EventRundownListChanged, mock.MatchedBy(func(p interface{}) bool {
		ev, ok := p.(dto.RundownListChangedEvent)
		return ok && ev.Reason == "deleted" && ev.RundownID == 50
	})).Return()

	err := f.svc.DeleteRundown(context.Background(), adminActor, 50)
	require.NoError(t, err)
	f.broadcaster.AssertExpectations(t)
}

// --- 字段更新与差异 ---

func TestUpdateRundownBroadcastsOnlyChangedFields(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Name: "Old", Type: "news"}
	f.expectMemberAccess(operatorActor, rundown)
	f.rundownRepo.On("Save", mock.Anything, rundown).Return(nil)
	f.cacheRepo.On("InvalidateCompany", mock.Anything, uint(7)).Return(int64(1), nil)
	f.cacheRepo.On("PublishRelay", mock.Anything, uint(50), mock.Anything).Return(nil)
	f.broadcaster.On("Publish", hub.RundownRoom(50), dto.EventRundownUpdated, mock.Anything).Return()

	sameType := "news"
	newName := "New"
	changes, err := f.svc.UpdateRundown(context.Background(), operatorActor, 50, dto.UpdateRundownInput{
		Name: &newName,
		Type: &sameType, // 值没变，不应进入 diff
	})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, dto.FieldChange{Old: "Old", New: "New"}, changes["name"])
	assert.Equal(t, "New", rundown.Name)
}

func TestUpdateRundownNoChangeIsNoOp(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Name: "Same"}
	f.expectMemberAccess(operatorActor, rundown)

	sameName := "Same"
	changes, err := f.svc.UpdateRundown(context.Background(), operatorActor, 50, dto.UpdateRundownInput{Name: &sameName})
	require.NoError(t, err)
	assert.Empty(t, changes)

	f.rundownRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.cacheRepo.AssertNotCalled(t, "InvalidateCompany", mock.Anything, mock.Anything)
	f.broadcaster.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestPersistenceFailureAbortsAllSideEffects(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Name: "Old"}
	f.rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(rundown, nil)
	f.rundownRepo.On("Save", mock.Anything, mock.Anything).Return(errors.New("mysql gone"))

	newName := "New"
	_, err := f.svc.UpdateRundown(context.Background(), adminActor, 50, dto.UpdateRundownInput{Name: &newName})
	assert.ErrorIs(t, err, ErrInternalServer)

	// 持久化失败：缓存仍然一致，任何房间都收不到事件
	f.cacheRepo.AssertNotCalled(t, "InvalidateCompany", mock.Anything, mock.Anything)
	f.cacheRepo.AssertNotCalled(t, "PublishRelay", mock.Anything, mock.Anything, mock.Anything)
	f.broadcaster.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestCrossCompanyUpdateLooksLikeNotFound(t *testing.T) {
	f := newSyncFixture(1000)
	f.rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(&domain.Rundown{ID: 50, CompanyID: 8}, nil)

	newName := "New"
	_, err := f.svc.UpdateRundown(context.Background(), adminActor, 50, dto.UpdateRundownInput{Name: &newName})
	assert.ErrorIs(t, err, ErrRundownNotFound)
}

// --- 状态 ---

func TestUpdateStatusNormalizesAndInvalidatesBeforeBroadcast(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Status: domain.StatusNovo}
	f.expectMemberAccess(operatorActor, rundown)
	f.rundownRepo.On("Save", mock.Anything, rundown).Return(nil)

	var order []string
	f.cacheRepo.On("InvalidateCompany", mock.Anything, uint(7)).
		Run(func(mock.Arguments) { order = append(order, "invalidate") }).Return(int64(2), nil)
	f.cacheRepo.On("PublishRelay", mock.Anything, uint(50), mock.Anything).Return(nil)
	f.broadcaster.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, "publish:"+args.String(1)) }).Return()

	changes, err := f.svc.UpdateStatus(context.Background(), operatorActor, 50, "live")
	require.NoError(t, err)
	assert.Equal(t, dto.FieldChange{Old: domain.StatusNovo, New: domain.StatusAoVivo}, changes["status"])

	require.NotEmpty(t, order)
	assert.Equal(t, "invalidate", order[0], "cache invalidation happens before any broadcast")
	assert.Contains(t, order, "publish:"+dto.EventRundownUpdated)
	assert.Contains(t, order, "publish:"+dto.EventRundownListChanged)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Status: domain.StatusNovo}
	f.rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(rundown, nil)

	_, err := f.svc.UpdateStatus(context.Background(), adminActor, 50, "exploded")
	assert.ErrorIs(t, err, ErrValidation)
	f.rundownRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestUpdateStatusSameValueIsNoOp(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Status: domain.StatusAoVivo}
	f.rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(rundown, nil)

	changes, err := f.svc.UpdateStatus(context.Background(), adminActor, 50, "aovivo")
	require.NoError(t, err)
	assert.Empty(t, changes)
	f.broadcaster.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

// --- 结构 ---

func TestUpdateStructureReturnsCanonicalIDs(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Name: "Jornal"}
	f.expectMemberAccess(operatorActor, rundown)
	f.rundownRepo.On("ReplaceStructure", mock.Anything, uint(50), mock.MatchedBy(func(folders []domain.Folder) bool {
		// 顺序由数组位置决定
		return len(folders) == 2 && folders[0].Ordem == 0 && folders[1].Ordem == 1
	})).Return([]domain.Folder{
		{ID: 101, RundownID: 50, Title: "Bloco 1", Ordem: 0, Items: []domain.Item{{ID: 201, Title: "Abertura", Ordem: 0}}},
		{ID: 102, RundownID: 50, Title: "Bloco 2", Ordem: 1},
	}, nil)
	f.rundownRepo.On("Save", mock.Anything, rundown).Return(nil)
	f.cacheRepo.On("InvalidateCompany", mock.Anything, uint(7)).Return(int64(1), nil)
	f.cacheRepo.On("PublishRelay", mock.Anything, uint(50), mock.Anything).Return(nil)
	f.broadcaster.On("Publish", hub.RundownRoom(50), dto.EventRundownUpdated, mock.Anything).Return()

	view, err := f.svc.UpdateStructure(context.Background(), operatorActor, 50, dto.UpdateStructureInput{
		Items: []dto.FolderInput{
			{Title: "Bloco 1", Children: []dto.ItemInput{{Title: "Abertura"}}},
			{Title: "Bloco 2"},
		},
	})
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "101", view.Items[0].ID, "temp ids are replaced by server-assigned ones")
	require.Len(t, view.Items[0].Children, 1)
	assert.Equal(t, "201", view.Items[0].Children[0].ID)
}

// --- 计时器 ---

func TestUpdateTimerStatePauseFoldsRunningTime(t *testing.T) {
	f := newSyncFixture(140)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Status: domain.StatusAoVivo}
	f.expectMemberAccess(operatorActor, rundown)

	started := time.Unix(100, 0).UTC()
	f.timerRepo.On("GetTimerState", mock.Anything, uint(50)).
		Return(domain.TimerState{IsRunning: true, StartedAt: &started}, false, nil)
	f.timerRepo.On("SaveTimerState", mock.Anything, uint(50), mock.MatchedBy(func(s domain.TimerState) bool {
		return !s.IsRunning && s.StartedAt == nil && s.ElapsedBase == 40
	})).Return(nil)
	f.rundownRepo.On("Save", mock.Anything, rundown).Return(nil)
	f.cacheRepo.On("InvalidateCompany", mock.Anything, uint(7)).Return(int64(1), nil)
	f.cacheRepo.On("PublishRelay", mock.Anything, uint(50), mock.Anything).Return(nil)
	f.broadcaster.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return()

	running := false
	view, err := f.svc.UpdateTimerState(context.Background(), operatorActor, 50, dto.UpdateTimerStateInput{IsRunning: &running})
	require.NoError(t, err)
	assert.False(t, view.IsRunning)
	assert.Equal(t, 40, view.TimeElapsed)
	assert.Equal(t, domain.StatusPausado, view.Status, "pausing a live rundown flips status to Pausado")

	f.timerRepo.AssertExpectations(t)
}

func TestUpdateTimerStateExplicitElapsedOverridesPauseFold(t *testing.T) {
	f := newSyncFixture(140)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Status: domain.StatusAoVivo}
	f.expectMemberAccess(operatorActor, rundown)

	started := time.Unix(100, 0).UTC()
	f.timerRepo.On("GetTimerState", mock.Anything, uint(50)).
		Return(domain.TimerState{IsRunning: true, StartedAt: &started}, false, nil)
	// seek 在暂停之后应用，显式 timeElapsed 覆盖折算出来的 40
	f.timerRepo.On("SaveTimerState", mock.Anything, uint(50), mock.MatchedBy(func(s domain.TimerState) bool {
		return !s.IsRunning && s.ElapsedBase == 999
	})).Return(nil)
	f.rundownRepo.On("Save", mock.Anything, rundown).Return(nil)
	f.cacheRepo.On("InvalidateCompany", mock.Anything, uint(7)).Return(int64(1), nil)
	f.cacheRepo.On("PublishRelay", mock.Anything, uint(50), mock.Anything).Return(nil)
	f.broadcaster.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return()

	running := false
	elapsed := 999
	view, err := f.svc.UpdateTimerState(context.Background(), operatorActor, 50, dto.UpdateTimerStateInput{
		IsRunning:   &running,
		TimeElapsed: &elapsed,
	})
	require.NoError(t, err)
	assert.Equal(t, 999, view.TimeElapsed)
}

func TestUpdateTimerStateStartGoesLive(t *testing.T) {
	f := newSyncFixture(200)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Status: domain.StatusNovo}
	f.expectMemberAccess(operatorActor, rundown)

	f.timerRepo.On("GetTimerState", mock.Anything, uint(50)).
		Return(domain.TimerState{ElapsedBase: 40}, false, nil)
	f.timerRepo.On("SaveTimerState", mock.Anything, uint(50), mock.MatchedBy(func(s domain.TimerState) bool {
		return s.IsRunning && s.StartedAt != nil && s.StartedAt.Unix() == 200 && s.ElapsedBase == 40
	})).Return(nil)
	f.rundownRepo.On("Save", mock.Anything, rundown).Return(nil)
	f.cacheRepo.On("InvalidateCompany", mock.Anything, uint(7)).Return(int64(1), nil)
	f.cacheRepo.On("PublishRelay", mock.Anything, uint(50), mock.Anything).Return(nil)

	var companyPublished bool
	f.broadcaster.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			if args.Get(0).(hub.Room) == hub.CompanyRoom(7) {
				companyPublished = true
			}
		}).Return()

	running := true
	view, err := f.svc.UpdateTimerState(context.Background(), operatorActor, 50, dto.UpdateTimerStateInput{IsRunning: &running})
	require.NoError(t, err)
	assert.True(t, view.IsRunning)
	assert.Equal(t, domain.StatusAoVivo, view.Status)
	assert.True(t, companyPublished, "status flip must also notify the company list room")
}

func TestUpdateTimerStateRequiresOperatePermission(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Status: domain.StatusAoVivo}
	f.expectMemberAccess(presenterActor, rundown)

	running := true
	_, err := f.svc.UpdateTimerState(context.Background(), presenterActor, 50, dto.UpdateTimerStateInput{IsRunning: &running})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	f.timerRepo.AssertNotCalled(t, "GetTimerState", mock.Anything, mock.Anything)
}

func TestUpdateTimerStateRejectsNegativeElapsed(t *testing.T) {
	f := newSyncFixture(1000)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7}
	f.expectMemberAccess(operatorActor, rundown)

	elapsed := -5
	_, err := f.svc.UpdateTimerState(context.Background(), operatorActor, 50, dto.UpdateTimerStateInput{TimeElapsed: &elapsed})
	assert.ErrorIs(t, err, ErrValidation)
	f.timerRepo.AssertNotCalled(t, "SaveTimerState", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetTimerStateComputesElapsedFromClock(t *testing.T) {
	f := newSyncFixture(130)
	rundown := &domain.Rundown{ID: 50, CompanyID: 7, Status: domain.StatusAoVivo}
	f.expectMemberAccess(operatorActor, rundown)

	started := time.Unix(100, 0).UTC()
	f.timerRepo.On("GetTimerState", mock.Anything, uint(50)).
		Return(domain.TimerState{IsRunning: true, StartedAt: &started, ElapsedBase: 10}, false, nil)

	view, err := f.svc.GetTimerState(context.Background(), operatorActor, 50)
	require.NoError(t, err)
	assert.Equal(t, 40, view.TimeElapsed, "elapsed is computed server-side from the wall clock")
	assert.Equal(t, 10, view.TimerElapsedBase, "persisted base is exposed alongside the live value")
	assert.True(t, view.IsRunning)
	require.NotNil(t, view.TimerStartedAt)
	assert.Equal(t, started.Format(time.RFC3339), *view.TimerStartedAt)
}
