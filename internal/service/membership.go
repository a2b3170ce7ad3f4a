package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/domain"
	"github.com/Matthew0wolf/Apront/internal/repository"
)

// MembershipService 实现两层可见性规则：
// 第一层是公司（租户）边界，任何操作都不能跨越；
// 第二层是成员关系，公司内的普通用户只能看到自己是成员的 Rundown，
// 管理员可以看到本公司的全部 Rundown。
type MembershipService struct {
	rundownRepo repository.RundownRepository
	memberRepo  repository.MemberRepository
}

// NewMembershipService 创建 MembershipService 实例
func NewMembershipService(rundownRepo repository.RundownRepository, memberRepo repository.MemberRepository) *MembershipService {
	if rundownRepo == nil {
		panic("RundownRepository cannot be nil for MembershipService")
	}
	if memberRepo == nil {
		panic("MemberRepository cannot be nil for MembershipService")
	}
	return &MembershipService{
		rundownRepo: rundownRepo,
		memberRepo:  memberRepo,
	}
}

// VisibleRundowns 返回请求者可见的全部 Rundown（带结构预载）。
// 管理员按公司取全量；普通用户按成员关系取，再用公司边界过滤一遍，
// 防止脏成员关系行把别的公司的 Rundown 泄漏进来。
func (s *MembershipService) VisibleRundowns(ctx context.Context, actor domain.Actor) ([]domain.Rundown, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id":    actor.ID,
		"company_id": actor.CompanyID,
	})

	if actor.IsAdmin() {
		rundowns, err := s.rundownRepo.FindByCompany(ctx, actor.CompanyID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to list company rundowns for admin")
			return nil, ErrInternalServer
		}
		return rundowns, nil
	}

	ids, err := s.memberRepo.ListRundownIDsByUser(ctx, actor.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list membership rundown ids")
		return nil, ErrInternalServer
	}
	if len(ids) == 0 {
		return []domain.Rundown{}, nil
	}

	rundowns, err := s.rundownRepo.FindByIDs(ctx, ids)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load rundowns by membership ids")
		return nil, ErrInternalServer
	}

	visible := make([]domain.Rundown, 0, len(rundowns))
	for _, r := range rundowns {
		// 第二道租户过滤：成员关系行指向别家公司时直接丢弃
		if r.CompanyID == actor.CompanyID {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// Authorize 加载 Rundown 并检查请求者的访问资格。
// 不存在和不可访问统一返回 ErrRundownNotFound。
func (s *MembershipService) Authorize(ctx context.Context, actor domain.Actor, rundownID uint) (*domain.Rundown, error) {
	rundown, err := s.rundownRepo.FindByID(ctx, rundownID)
	if err != nil {
		if errors.Is(err, repository.ErrRundownNotFound) {
			return nil, ErrRundownNotFound
		}
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to load rundown for authorization")
		return nil, ErrInternalServer
	}
	if err := s.authorizeLoaded(ctx, actor, rundown); err != nil {
		return nil, err
	}
	return rundown, nil
}

// authorizeLoaded 对已加载的 Rundown 做访问检查（含 auto-heal）
func (s *MembershipService) authorizeLoaded(ctx context.Context, actor domain.Actor, rundown *domain.Rundown) error {
	// 第一层：公司边界。跨公司访问等同于不存在。
	if rundown.CompanyID != actor.CompanyID {
		return ErrRundownNotFound
	}
	// 第二层：管理员直通，普通用户查成员关系
	if actor.IsAdmin() {
		return nil
	}

	ok, err := s.memberRepo.Exists(ctx, rundown.ID, actor.ID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"rundown_id": rundown.ID,
			"user_id":    actor.ID,
		}).WithError(err).Error("Failed to check membership")
		return ErrInternalServer
	}
	if ok {
		return nil
	}

	// 成员关系缺失：仅当该 Rundown 一条成员行都没有时才自动修复
	// （历史数据或删除事故导致的孤儿 Rundown），否则照常拒绝。
	healed, err := s.tryAutoHeal(ctx, actor, rundown)
	if err != nil {
		return err
	}
	if healed {
		return nil
	}
	return ErrRundownNotFound
}

// tryAutoHeal 把同公司的孤儿 Rundown（零成员行）修复为由请求者拥有
func (s *MembershipService) tryAutoHeal(ctx context.Context, actor domain.Actor, rundown *domain.Rundown) (bool, error) {
	members, err := s.memberRepo.ListByRundown(ctx, rundown.ID)
	if err != nil {
		logrus.WithField("rundown_id", rundown.ID).WithError(err).Error("Failed to list members for auto-heal check")
		return false, ErrInternalServer
	}
	if len(members) > 0 {
		return false, nil
	}

	member := &domain.RundownMember{
		RundownID: rundown.ID,
		UserID:    actor.ID,
		Role:      domain.MemberRoleOwner,
	}
	if err := s.memberRepo.Add(ctx, member); err != nil {
		// 并发 heal 撞了唯一索引：说明成员行已经有了，视为成功
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return true, nil
		}
		logrus.WithField("rundown_id", rundown.ID).WithError(err).Error("Failed to auto-heal membership")
		return false, ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{
		"membership_autoheal": true,
		"rundown_id":          rundown.ID,
		"user_id":             actor.ID,
		"company_id":          actor.CompanyID,
	}).Warn("Rundown had no membership rows, granted ownership to accessing user")
	return true, nil
}

// AddOwner 为新建的 Rundown 写入创建者的 owner 成员行。
// 创建者无条件成为 owner，请求负载无法改变这一点。
func (s *MembershipService) AddOwner(ctx context.Context, rundownID, userID uint) error {
	member := &domain.RundownMember{
		RundownID: rundownID,
		UserID:    userID,
		Role:      domain.MemberRoleOwner,
	}
	if err := s.memberRepo.Add(ctx, member); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"rundown_id": rundownID,
			"user_id":    userID,
		}).WithError(err).Error("Failed to add owner membership")
		return ErrInternalServer
	}
	return nil
}

// CanJoinRundown 实现 hub.RoomAuthorizer：房间加入走同一套访问规则
func (s *MembershipService) CanJoinRundown(ctx context.Context, actor domain.Actor, rundownID uint) bool {
	_, err := s.Authorize(ctx, actor, rundownID)
	return err == nil
}

// IsOwner 判断请求者是否持有某 Rundown 的 owner 标签
func (s *MembershipService) IsOwner(ctx context.Context, actor domain.Actor, rundownID uint) (bool, error) {
	members, err := s.memberRepo.ListByRundown(ctx, rundownID)
	if err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to list members for owner check")
		return false, ErrInternalServer
	}
	for _, m := range members {
		if m.UserID == actor.ID && m.IsOwner() {
			return true, nil
		}
	}
	return false, nil
}

// Members 返回某 Rundown 的成员关系行
func (s *MembershipService) Members(ctx context.Context, rundownID uint) ([]domain.RundownMember, error) {
	members, err := s.memberRepo.ListByRundown(ctx, rundownID)
	if err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to list members")
		return nil, ErrInternalServer
	}
	return members, nil
}

// SetMembers 整体替换某 Rundown 的成员关系，强制两条不变量：
//  1. 替换前已是 owner 的用户无条件保留 owner 身份——无论新名单里
//     是否出现（被整体替换"漏掉"的 owner 会被重新插入）；
//  2. 替换后名单必须至少有一个 owner —— 没有则把请求者提为 owner
//     （请求者不在名单中时追加进去）。
//
// 返回写入后的最终名单。
func (s *MembershipService) SetMembers(ctx context.Context, actor domain.Actor, rundownID uint, desired []domain.RundownMember) ([]domain.RundownMember, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"rundown_id": rundownID,
		"user_id":    actor.ID,
	})

	existing, err := s.memberRepo.ListByRundown(ctx, rundownID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load existing members")
		return nil, ErrInternalServer
	}
	existingOwners := make(map[uint]bool, len(existing))
	for _, m := range existing {
		if m.IsOwner() {
			existingOwners[m.UserID] = true
		}
	}

	// 去重并应用 owner 保留规则
	final := make([]domain.RundownMember, 0, len(desired))
	seen := make(map[uint]bool, len(desired))
	hasOwner := false
	for _, m := range desired {
		if m.UserID == 0 || seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true

		role := domain.MemberRoleMember
		if m.IsOwner() || existingOwners[m.UserID] {
			role = domain.MemberRoleOwner
			hasOwner = true
		}
		final = append(final, domain.RundownMember{
			RundownID: rundownID,
			UserID:    m.UserID,
			Role:      role,
		})
	}

	// 被新名单漏掉的既有 owner 重新插入，owner 身份不因整体替换丢失
	for _, m := range existing {
		if !m.IsOwner() || seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		final = append(final, domain.RundownMember{
			RundownID: rundownID,
			UserID:    m.UserID,
			Role:      domain.MemberRoleOwner,
		})
		hasOwner = true
	}

	if !hasOwner {
		promoted := false
		for i := range final {
			if final[i].UserID == actor.ID {
				final[i].Role = domain.MemberRoleOwner
				promoted = true
				break
			}
		}
		if !promoted {
			final = append(final, domain.RundownMember{
				RundownID: rundownID,
				UserID:    actor.ID,
				Role:      domain.MemberRoleOwner,
			})
		}
		logCtx.Warn("Member replacement had no owner, promoted requesting user")
	}

	if err := s.memberRepo.Replace(ctx, rundownID, final); err != nil {
		logCtx.WithError(err).Error("Failed to replace members")
		return nil, ErrInternalServer
	}
	logCtx.WithField("member_count", len(final)).Info("Rundown members replaced")
	return final, nil
}
