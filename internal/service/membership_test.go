package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Matthew0wolf/Apront/internal/domain"
	"github.com/Matthew0wolf/Apront/internal/repository"
	"github.com/Matthew0wolf/Apront/internal/repository/mocks"
)

func newMembershipFixture() (*MembershipService, *mocks.RundownRepository, *mocks.MemberRepository) {
	rundownRepo := new(mocks.RundownRepository)
	memberRepo := new(mocks.MemberRepository)
	return NewMembershipService(rundownRepo, memberRepo), rundownRepo, memberRepo
}

func TestVisibleRundownsAdminSeesWholeCompany(t *testing.T) {
	svc, rundownRepo, memberRepo := newMembershipFixture()
	admin := domain.Actor{ID: 1, CompanyID: 7, Role: domain.RoleAdmin}

	rundownRepo.On("FindByCompany", mock.Anything, uint(7)).Return([]domain.Rundown{
		{ID: 10, CompanyID: 7}, {ID: 11, CompanyID: 7},
	}, nil)

	visible, err := svc.VisibleRundowns(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, visible, 2)

	// 管理员路径不查成员关系
	memberRepo.AssertNotCalled(t, "ListRundownIDsByUser", mock.Anything, mock.Anything)
}

func TestVisibleRundownsMemberFiltersCrossCompanyRows(t *testing.T) {
	svc, rundownRepo, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 2, CompanyID: 7, Role: domain.RoleOperator}

	// 成员关系指向 10（本公司）和 99（脏数据，别家公司）
	memberRepo.On("ListRundownIDsByUser", mock.Anything, uint(2)).Return([]uint{10, 99}, nil)
	rundownRepo.On("FindByIDs", mock.Anything, []uint{10, 99}).Return([]domain.Rundown{
		{ID: 10, CompanyID: 7},
		{ID: 99, CompanyID: 8},
	}, nil)

	visible, err := svc.VisibleRundowns(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, visible, 1, "cross-company rundown must be filtered out despite the membership row")
	assert.Equal(t, uint(10), visible[0].ID)
}

func TestVisibleRundownsNoMemberships(t *testing.T) {
	svc, rundownRepo, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 3, CompanyID: 7, Role: domain.RoleOperator}

	memberRepo.On("ListRundownIDsByUser", mock.Anything, uint(3)).Return([]uint{}, nil)

	visible, err := svc.VisibleRundowns(context.Background(), actor)
	require.NoError(t, err)
	assert.Empty(t, visible)
	rundownRepo.AssertNotCalled(t, "FindByIDs", mock.Anything, mock.Anything)
}

func TestAuthorizeCrossCompanyLooksLikeNotFound(t *testing.T) {
	svc, rundownRepo, _ := newMembershipFixture()
	// 别家公司的管理员也不行：公司边界先于角色
	admin := domain.Actor{ID: 1, CompanyID: 7, Role: domain.RoleAdmin}

	rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(&domain.Rundown{ID: 50, CompanyID: 8}, nil)

	_, err := svc.Authorize(context.Background(), admin, 50)
	assert.ErrorIs(t, err, ErrRundownNotFound)
}

func TestAuthorizeMissingRundown(t *testing.T) {
	svc, rundownRepo, _ := newMembershipFixture()
	actor := domain.Actor{ID: 1, CompanyID: 7, Role: domain.RoleOperator}

	rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(nil, repository.ErrRundownNotFound)

	_, err := svc.Authorize(context.Background(), actor, 50)
	assert.ErrorIs(t, err, ErrRundownNotFound)
}

func TestAuthorizeNonMemberRejectedWhenRundownHasMembers(t *testing.T) {
	svc, rundownRepo, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 5, CompanyID: 7, Role: domain.RoleOperator}

	rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(&domain.Rundown{ID: 50, CompanyID: 7}, nil)
	memberRepo.On("Exists", mock.Anything, uint(50), uint(5)).Return(false, nil)
	memberRepo.On("ListByRundown", mock.Anything, uint(50)).Return([]domain.RundownMember{
		{RundownID: 50, UserID: 9, Role: domain.MemberRoleOwner},
	}, nil)

	_, err := svc.Authorize(context.Background(), actor, 50)
	assert.ErrorIs(t, err, ErrRundownNotFound, "membership exists for someone else, no auto-heal")
	memberRepo.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestAuthorizeAutoHealsOrphanRundown(t *testing.T) {
	svc, rundownRepo, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 5, CompanyID: 7, Role: domain.RoleOperator}

	rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(&domain.Rundown{ID: 50, CompanyID: 7}, nil)
	memberRepo.On("Exists", mock.Anything, uint(50), uint(5)).Return(false, nil)
	memberRepo.On("ListByRundown", mock.Anything, uint(50)).Return([]domain.RundownMember{}, nil)
	memberRepo.On("Add", mock.Anything, mock.MatchedBy(func(m *domain.RundownMember) bool {
		return m.RundownID == 50 && m.UserID == 5 && m.IsOwner()
	})).Return(nil)

	rundown, err := svc.Authorize(context.Background(), actor, 50)
	require.NoError(t, err, "orphan rundown in the same company is healed and granted")
	assert.Equal(t, uint(50), rundown.ID)
	memberRepo.AssertExpectations(t)
}

func TestAuthorizeAutoHealDuplicateRaceIsBenign(t *testing.T) {
	svc, rundownRepo, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 5, CompanyID: 7, Role: domain.RoleOperator}

	rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(&domain.Rundown{ID: 50, CompanyID: 7}, nil)
	memberRepo.On("Exists", mock.Anything, uint(50), uint(5)).Return(false, nil)
	memberRepo.On("ListByRundown", mock.Anything, uint(50)).Return([]domain.RundownMember{}, nil)
	memberRepo.On("Add", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry)

	_, err := svc.Authorize(context.Background(), actor, 50)
	assert.NoError(t, err, "losing the heal race means the row exists, access granted")
}

func TestSetMembersPreservesExistingOwners(t *testing.T) {
	svc, _, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 1, CompanyID: 7, Role: domain.RoleOperator}

	memberRepo.On("ListByRundown", mock.Anything, uint(50)).Return([]domain.RundownMember{
		{RundownID: 50, UserID: 1, Role: domain.MemberRoleOwner},
		{RundownID: 50, UserID: 2, Role: domain.MemberRoleMember},
	}, nil)

	var replaced []domain.RundownMember
	memberRepo.On("Replace", mock.Anything, uint(50), mock.Anything).
		Run(func(args mock.Arguments) {
			replaced = args.Get(2).([]domain.RundownMember)
		}).Return(nil)

	// 请求试图把 owner 降级为 member
	final, err := svc.SetMembers(context.Background(), actor, 50, []domain.RundownMember{
		{UserID: 1, Role: domain.MemberRoleMember},
		{UserID: 3, Role: domain.MemberRoleMember},
	})
	require.NoError(t, err)

	roles := make(map[uint]string)
	for _, m := range replaced {
		roles[m.UserID] = m.Role
	}
	assert.Equal(t, domain.MemberRoleOwner, roles[1], "existing owner cannot be demoted via replacement")
	assert.Equal(t, domain.MemberRoleMember, roles[3])
	assert.Len(t, final, 2)
}

func TestSetMembersReinsertsOmittedOwners(t *testing.T) {
	svc, _, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 1, CompanyID: 7, Role: domain.RoleOperator}

	// 两个既有 owner：请求者自己和用户 2
	memberRepo.On("ListByRundown", mock.Anything, uint(50)).Return([]domain.RundownMember{
		{RundownID: 50, UserID: 1, Role: domain.MemberRoleOwner},
		{RundownID: 50, UserID: 2, Role: domain.MemberRoleOwner},
	}, nil)

	var replaced []domain.RundownMember
	memberRepo.On("Replace", mock.Anything, uint(50), mock.Anything).
		Run(func(args mock.Arguments) {
			replaced = args.Get(2).([]domain.RundownMember)
		}).Return(nil)

	// 新名单把两个 owner 都漏掉了
	_, err := svc.SetMembers(context.Background(), actor, 50, []domain.RundownMember{
		{UserID: 3, Role: domain.MemberRoleMember},
	})
	require.NoError(t, err)

	roles := make(map[uint]string)
	for _, m := range replaced {
		roles[m.UserID] = m.Role
	}
	require.Len(t, replaced, 3, "both omitted owners are re-inserted")
	assert.Equal(t, domain.MemberRoleOwner, roles[1])
	assert.Equal(t, domain.MemberRoleOwner, roles[2], "owner omitted from the list must survive the replacement")
	assert.Equal(t, domain.MemberRoleMember, roles[3])
}

func TestSetMembersPromotesRequesterWhenNoOwnerRemains(t *testing.T) {
	svc, _, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 9, CompanyID: 7, Role: domain.RoleOperator}

	memberRepo.On("ListByRundown", mock.Anything, uint(50)).Return([]domain.RundownMember{}, nil)

	var replaced []domain.RundownMember
	memberRepo.On("Replace", mock.Anything, uint(50), mock.Anything).
		Run(func(args mock.Arguments) {
			replaced = args.Get(2).([]domain.RundownMember)
		}).Return(nil)

	// 名单里全是 member，且请求者不在其中
	_, err := svc.SetMembers(context.Background(), actor, 50, []domain.RundownMember{
		{UserID: 2, Role: domain.MemberRoleMember},
	})
	require.NoError(t, err)

	require.Len(t, replaced, 2, "requester is appended as the fallback owner")
	var ownerCount int
	for _, m := range replaced {
		if m.IsOwner() {
			ownerCount++
			assert.Equal(t, uint(9), m.UserID)
		}
	}
	assert.Equal(t, 1, ownerCount)
}

func TestSetMembersDeduplicates(t *testing.T) {
	svc, _, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 1, CompanyID: 7, Role: domain.RoleOperator}

	memberRepo.On("ListByRundown", mock.Anything, uint(50)).Return([]domain.RundownMember{}, nil)
	var replaced []domain.RundownMember
	memberRepo.On("Replace", mock.Anything, uint(50), mock.Anything).
		Run(func(args mock.Arguments) {
			replaced = args.Get(2).([]domain.RundownMember)
		}).Return(nil)

	_, err := svc.SetMembers(context.Background(), actor, 50, []domain.RundownMember{
		{UserID: 1, Role: domain.MemberRoleOwner},
		{UserID: 1, Role: domain.MemberRoleMember}, // 重复行
		{UserID: 0, Role: domain.MemberRoleMember}, // 非法 userId
	})
	require.NoError(t, err)
	assert.Len(t, replaced, 1)
}

func TestCanJoinRundownDelegatesToAuthorize(t *testing.T) {
	svc, rundownRepo, memberRepo := newMembershipFixture()
	actor := domain.Actor{ID: 2, CompanyID: 7, Role: domain.RoleOperator}

	rundownRepo.On("FindByID", mock.Anything, uint(50)).Return(&domain.Rundown{ID: 50, CompanyID: 7}, nil)
	memberRepo.On("Exists", mock.Anything, uint(50), uint(2)).Return(true, nil)

	assert.True(t, svc.CanJoinRundown(context.Background(), actor, 50))
}
