package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/domain"
	"github.com/Matthew0wolf/Apront/internal/dto"
	"github.com/Matthew0wolf/Apront/internal/hub"
	"github.com/Matthew0wolf/Apront/internal/repository"
	"github.com/Matthew0wolf/Apront/internal/tasks"
)

// Broadcaster 是同步门面对 Hub 的最小依赖面
type Broadcaster interface {
	Publish(room hub.Room, event string, payload interface{})
}

// UsageRecorder 把使用记录投递到后台队列，实现必须是 fire-and-forget
type UsageRecorder interface {
	Record(ctx context.Context, entry tasks.UsageLogEntry)
}

// SyncService 是所有 Rundown 变更的唯一入口，保证统一的执行顺序：
//
//	校验 -> 持久化 -> 缓存失效 -> 差异计算 -> 广播
//
// 持久化失败在产生任何外部可见副作用之前中止；
// 失效和广播属于"尽力而为"副作用，失败只记日志不回滚。
type SyncService struct {
	rundownRepo repository.RundownRepository
	timerRepo   repository.TimerStateRepository
	membership  *MembershipService
	cache       *ListCacheService
	broadcaster Broadcaster
	usage       UsageRecorder // 可选，nil 时不记录
	now         func() time.Time
}

// SetUsageRecorder 挂接使用记录投递器（可选依赖）
func (s *SyncService) SetUsageRecorder(recorder UsageRecorder) {
	s.usage = recorder
}

// recordUsage 投递一条使用记录，nil recorder 时为空操作
func (s *SyncService) recordUsage(ctx context.Context, actor domain.Actor, action string, rundownID uint) {
	if s.usage == nil {
		return
	}
	s.usage.Record(ctx, tasks.UsageLogEntry{
		UserID:       actor.ID,
		CompanyID:    actor.CompanyID,
		Action:       action,
		ResourceType: "rundown",
		ResourceID:   rundownID,
		OccurredAt:   s.now(),
	})
}

// NewSyncService 创建 SyncService 实例
func NewSyncService(
	rundownRepo repository.RundownRepository,
	timerRepo repository.TimerStateRepository,
	membership *MembershipService,
	cache *ListCacheService,
	broadcaster Broadcaster,
) *SyncService {
	if rundownRepo == nil {
		panic("RundownRepository cannot be nil for SyncService")
	}
	if timerRepo == nil {
		panic("TimerStateRepository cannot be nil for SyncService")
	}
	if membership == nil {
		panic("MembershipService cannot be nil for SyncService")
	}
	if cache == nil {
		panic("ListCacheService cannot be nil for SyncService")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for SyncService")
	}
	return &SyncService{
		rundownRepo: rundownRepo,
		timerRepo:   timerRepo,
		membership:  membership,
		cache:       cache,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// 允许写入的状态全集
var validStatuses = map[string]bool{
	domain.StatusNovo:      true,
	domain.StatusAoVivo:    true,
	domain.StatusPausado:   true,
	domain.StatusEncerrado: true,
	domain.StatusArquivado: true,
}

// ListRundowns 返回请求者可见的 Rundown 列表（JSON 字节）。
// 快照按 (公司, 用户) 维度缓存；fresh 为 true 时跳过缓存。
func (s *SyncService) ListRundowns(ctx context.Context, actor domain.Actor, fresh bool) ([]byte, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id":    actor.ID,
		"company_id": actor.CompanyID,
	})

	// 1. 先查缓存
	if snapshot, hit := s.cache.Read(ctx, actor.CompanyID, actor.ID, fresh); hit {
		logCtx.Debug("Rundown list served from cache")
		return snapshot, nil
	}

	// 2. 未命中则按可见性规则从数据库装配
	rundowns, err := s.membership.VisibleRundowns(ctx, actor)
	if err != nil {
		return nil, err
	}
	views := make([]dto.RundownView, 0, len(rundowns))
	for i := range rundowns {
		views = append(views, dto.NewRundownView(&rundowns[i]))
	}
	snapshot, err := json.Marshal(views)
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal rundown list snapshot")
		return nil, ErrInternalServer
	}

	// 3. 回填缓存（失败不影响响应）
	s.cache.Write(ctx, actor.CompanyID, actor.ID, snapshot)
	logCtx.WithField("rundown_count", len(views)).Debug("Rundown list served from database")
	return snapshot, nil
}

// CreateRundown 创建 Rundown，创建者无条件成为 owner
func (s *SyncService) CreateRundown(ctx context.Context, actor domain.Actor, input dto.CreateRundownInput) (*dto.RundownView, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id":    actor.ID,
		"company_id": actor.CompanyID,
	})

	// 1. 校验
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationErr("name is required")
	}
	status := domain.NormalizeStatus(input.Status)
	if status == "" {
		status = domain.StatusNovo
	}
	if !validStatuses[status] {
		return nil, validationErr("unknown status %q", input.Status)
	}

	// 2. 持久化
	nowStr := s.now().UTC().Format(time.RFC3339)
	rundown := &domain.Rundown{
		CompanyID:    actor.CompanyID, // 租户归属来自认证身份，不信任请求体
		Name:         name,
		Type:         input.Type,
		Status:       status,
		Duration:     input.Duration,
		Created:      nowStr,
		LastModified: nowStr,
		TeamMembers:  1,
	}
	if err := s.rundownRepo.Save(ctx, rundown); err != nil {
		logCtx.WithError(err).Error("Failed to persist new rundown")
		return nil, ErrInternalServer
	}
	if err := s.membership.AddOwner(ctx, rundown.ID, actor.ID); err != nil {
		return nil, err
	}
	logCtx = logCtx.WithField("rundown_id", rundown.ID)

	// 3. 缓存失效（公司全员的列表都多了一行）
	s.cache.InvalidateCompany(ctx, actor.CompanyID)

	// 4. 公司房间广播列表变更
	s.broadcaster.Publish(hub.CompanyRoom(actor.CompanyID), dto.EventRundownListChanged, dto.RundownListChangedEvent{
		CompanyID: actor.CompanyID,
		Reason:    "created",
		RundownID: rundown.ID,
	})

	s.recordUsage(ctx, actor, "create_rundown", rundown.ID)
	logCtx.Info("Rundown created")
	view := dto.NewRundownView(rundown)
	return &view, nil
}

// DeleteRundown 删除 Rundown。仅 owner 或本公司管理员可删。
func (s *SyncService) DeleteRundown(ctx context.Context, actor domain.Actor, rundownID uint) error {
	// 1. 校验访问与权限
	rundown, err := s.membership.Authorize(ctx, actor, rundownID)
	if err != nil {
		return err
	}
	if err := s.requireOwnerOrAdmin(ctx, actor, rundownID); err != nil {
		return err
	}

	// 2. 持久化（级联删除结构与成员关系）
	if err := s.rundownRepo.Delete(ctx, rundownID); err != nil {
		if errors.Is(err, repository.ErrRundownNotFound) {
			return ErrRundownNotFound
		}
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to delete rundown")
		return ErrInternalServer
	}

	// 3. 缓存失效 + 4. 公司房间广播
	s.cache.InvalidateCompany(ctx, rundown.CompanyID)
	s.broadcaster.Publish(hub.CompanyRoom(rundown.CompanyID), dto.EventRundownListChanged, dto.RundownListChangedEvent{
		CompanyID: rundown.CompanyID,
		Reason:    "deleted",
		RundownID: rundownID,
	})

	s.recordUsage(ctx, actor, "delete_rundown", rundownID)
	logrus.WithFields(logrus.Fields{
		"rundown_id": rundownID,
		"user_id":    actor.ID,
	}).Info("Rundown deleted")
	return nil
}

// UpdateRundown 字段级更新 Rundown 元数据，返回实际发生变化的字段差异。
// 没有任何字段变化时为无副作用的空操作。
func (s *SyncService) UpdateRundown(ctx context.Context, actor domain.Actor, rundownID uint, input dto.UpdateRundownInput) (map[string]dto.FieldChange, error) {
	// 1. 校验访问
	rundown, err := s.membership.Authorize(ctx, actor, rundownID)
	if err != nil {
		return nil, err
	}

	// 2. 差异计算：只有真正变化的字段进入 diff 和广播
	changes := make(map[string]dto.FieldChange)
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, validationErr("name cannot be empty")
		}
		if name != rundown.Name {
			changes["name"] = dto.FieldChange{Old: rundown.Name, New: name}
			rundown.Name = name
		}
	}
	if input.Type != nil && *input.Type != rundown.Type {
		changes["type"] = dto.FieldChange{Old: rundown.Type, New: *input.Type}
		rundown.Type = *input.Type
	}
	if input.Duration != nil && *input.Duration != rundown.Duration {
		changes["duration"] = dto.FieldChange{Old: rundown.Duration, New: *input.Duration}
		rundown.Duration = *input.Duration
	}
	if input.TeamMembers != nil && *input.TeamMembers != rundown.TeamMembers {
		changes["teamMembers"] = dto.FieldChange{Old: rundown.TeamMembers, New: *input.TeamMembers}
		rundown.TeamMembers = *input.TeamMembers
	}
	if len(changes) == 0 {
		return changes, nil
	}

	// 3. 持久化
	rundown.LastModified = s.now().UTC().Format(time.RFC3339)
	if err := s.rundownRepo.Save(ctx, rundown); err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to persist rundown update")
		return nil, ErrInternalServer
	}

	// 4. 缓存失效 + 5. 房间广播
	s.cache.InvalidateCompany(ctx, rundown.CompanyID)
	s.publishRundownEvent(ctx, rundownID, dto.RundownUpdatedEvent{
		RundownID: rundownID,
		UpdatedBy: actor.ID,
		Changes:   changes,
	})

	return changes, nil
}

// UpdateStatus 更新 Rundown 状态。别名写法先归一化再校验。
func (s *SyncService) UpdateStatus(ctx context.Context, actor domain.Actor, rundownID uint, rawStatus string) (map[string]dto.FieldChange, error) {
	// 1. 校验
	rundown, err := s.membership.Authorize(ctx, actor, rundownID)
	if err != nil {
		return nil, err
	}
	status := domain.NormalizeStatus(rawStatus)
	if !validStatuses[status] {
		return nil, validationErr("unknown status %q", rawStatus)
	}
	if status == rundown.Status {
		return map[string]dto.FieldChange{}, nil
	}

	// 2. 持久化
	changes := map[string]dto.FieldChange{
		"status": {Old: rundown.Status, New: status},
	}
	rundown.Status = status
	rundown.LastModified = s.now().UTC().Format(time.RFC3339)
	if err := s.rundownRepo.Save(ctx, rundown); err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to persist status update")
		return nil, ErrInternalServer
	}

	// 3. 失效 + 4. 双房间广播：编辑者看到字段差异，公司列表页看到状态跳变
	s.cache.InvalidateCompany(ctx, rundown.CompanyID)
	s.publishRundownEvent(ctx, rundownID, dto.RundownUpdatedEvent{
		RundownID: rundownID,
		UpdatedBy: actor.ID,
		Changes:   changes,
	})
	s.broadcaster.Publish(hub.CompanyRoom(rundown.CompanyID), dto.EventRundownListChanged, dto.RundownListChangedEvent{
		CompanyID: rundown.CompanyID,
		Reason:    "status",
		RundownID: rundownID,
	})

	logrus.WithFields(logrus.Fields{
		"rundown_id": rundownID,
		"user_id":    actor.ID,
		"old_status": changes["status"].Old,
		"new_status": status,
	}).Info("Rundown status updated")
	return changes, nil
}

// UpdateStructure 用请求负载整体替换 Rundown 的结构（最后全量写入获胜），
// 返回带服务端真实 ID 的规范化结构。
func (s *SyncService) UpdateStructure(ctx context.Context, actor domain.Actor, rundownID uint, input dto.UpdateStructureInput) (*dto.RundownView, error) {
	// 1. 校验访问
	rundown, err := s.membership.Authorize(ctx, actor, rundownID)
	if err != nil {
		return nil, err
	}

	// 2. 持久化：临时 ID 丢弃，顺序由数组位置决定
	folders := make([]domain.Folder, 0, len(input.Items))
	for fi, folderInput := range input.Items {
		folder := domain.Folder{Title: folderInput.Title, Ordem: fi}
		for ii, itemInput := range folderInput.Children {
			folder.Items = append(folder.Items, domain.Item{
				Title:       itemInput.Title,
				Duration:    itemInput.Duration,
				Description: itemInput.Description,
				Type:        itemInput.Type,
				Status:      itemInput.Status,
				IconType:    itemInput.IconType,
				IconData:    itemInput.IconData,
				Color:       itemInput.Color,
				Urgency:     itemInput.Urgency,
				Reminder:    itemInput.Reminder,
				Ordem:       ii,
			})
		}
		folders = append(folders, folder)
	}
	canonical, err := s.rundownRepo.ReplaceStructure(ctx, rundownID, folders)
	if err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to replace rundown structure")
		return nil, ErrInternalServer
	}
	rundown.Folders = canonical
	rundown.LastModified = s.now().UTC().Format(time.RFC3339)
	if err := s.rundownRepo.Save(ctx, rundown); err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to persist structure timestamp")
		return nil, ErrInternalServer
	}

	// 3. 失效（列表快照内嵌结构树）+ 4. 房间广播完整规范化结构
	s.cache.InvalidateCompany(ctx, rundown.CompanyID)
	view := dto.NewRundownView(rundown)
	s.publishRundownEvent(ctx, rundownID, dto.RundownUpdatedEvent{
		RundownID: rundownID,
		UpdatedBy: actor.ID,
		Rundown:   &view,
	})

	logrus.WithFields(logrus.Fields{
		"rundown_id":   rundownID,
		"user_id":      actor.ID,
		"folder_count": len(canonical),
	}).Info("Rundown structure replaced")
	return &view, nil
}

// UpdateMembers 整体替换成员名单。仅 owner 或本公司管理员可改。
func (s *SyncService) UpdateMembers(ctx context.Context, actor domain.Actor, rundownID uint, input dto.UpdateMembersInput) ([]dto.MemberView, error) {
	// 1. 校验访问与权限
	rundown, err := s.membership.Authorize(ctx, actor, rundownID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOrAdmin(ctx, actor, rundownID); err != nil {
		return nil, err
	}

	// 2. 持久化（owner 保留规则在 MembershipService 内）
	desired := make([]domain.RundownMember, 0, len(input.Members))
	for _, m := range input.Members {
		desired = append(desired, domain.RundownMember{UserID: m.UserID, Role: m.Role})
	}
	final, err := s.membership.SetMembers(ctx, actor, rundownID, desired)
	if err != nil {
		return nil, err
	}

	oldCount := rundown.TeamMembers
	rundown.TeamMembers = len(final)
	rundown.LastModified = s.now().UTC().Format(time.RFC3339)
	if err := s.rundownRepo.Save(ctx, rundown); err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to persist member count")
		return nil, ErrInternalServer
	}

	// 3. 失效：成员变化影响"谁能看到这个 Rundown"
	s.cache.InvalidateCompany(ctx, rundown.CompanyID)

	// 4. 双房间广播
	s.publishRundownEvent(ctx, rundownID, dto.RundownUpdatedEvent{
		RundownID: rundownID,
		UpdatedBy: actor.ID,
		Changes: map[string]dto.FieldChange{
			"teamMembers": {Old: oldCount, New: len(final)},
		},
	})
	s.broadcaster.Publish(hub.CompanyRoom(rundown.CompanyID), dto.EventRundownListChanged, dto.RundownListChangedEvent{
		CompanyID: rundown.CompanyID,
		Reason:    "members",
		RundownID: rundownID,
	})

	views := make([]dto.MemberView, 0, len(final))
	for _, m := range final {
		views = append(views, dto.MemberView{UserID: m.UserID, Role: m.Role})
	}
	return views, nil
}

// GetTimerState 返回服务端权威的计时器状态。
// timeElapsed 基于当前墙钟现场计算，客户端本地计时仅作显示插值。
func (s *SyncService) GetTimerState(ctx context.Context, actor domain.Actor, rundownID uint) (*dto.TimerStateView, error) {
	rundown, err := s.membership.Authorize(ctx, actor, rundownID)
	if err != nil {
		return nil, err
	}
	state, degraded, err := s.timerRepo.GetTimerState(ctx, rundownID)
	if err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to load timer state")
		return nil, ErrInternalServer
	}
	if degraded {
		logrus.WithField("rundown_id", rundownID).Warn("Timer state degraded to defaults on read")
	}
	view := s.timerView(state, rundown.Status)
	return &view, nil
}

// UpdateTimerState 应用计时器更新。同一请求内的字段按固定顺序应用：
// 运行状态切换 -> 秒数 seek -> 在播指针。这样显式携带的 timeElapsed
// 能覆盖暂停折算出的值。需要操作权限（can_operate 或管理员）。
func (s *SyncService) UpdateTimerState(ctx context.Context, actor domain.Actor, rundownID uint, input dto.UpdateTimerStateInput) (*dto.TimerStateView, error) {
	// 1. 校验访问与权限
	rundown, err := s.membership.Authorize(ctx, actor, rundownID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.CanOperate {
		return nil, ErrPermissionDenied
	}
	if input.TimeElapsed != nil && *input.TimeElapsed < 0 {
		return nil, validationErr("timeElapsed must be >= 0")
	}
	if input.CurrentItemIndex != nil {
		pointer := domain.SegmentPointer(*input.CurrentItemIndex)
		if err := domain.ValidatePointer(pointer); err != nil {
			return nil, validationErr("invalid currentItemIndex: %v", err)
		}
	}

	state, degraded, err := s.timerRepo.GetTimerState(ctx, rundownID)
	if err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to load timer state for update")
		return nil, ErrInternalServer
	}
	if degraded {
		logrus.WithField("rundown_id", rundownID).Warn("Timer state degraded to defaults before update")
	}

	// 2. 按固定顺序应用状态机转换
	now := s.now()
	if input.IsRunning != nil {
		if *input.IsRunning {
			state = domain.Start(state, now)
		} else {
			state = domain.Pause(state, now)
		}
	}
	if input.TimeElapsed != nil {
		state = domain.Seek(state, *input.TimeElapsed, now)
	}
	if input.CurrentItemIndex != nil {
		state = domain.WithPointer(state, domain.SegmentPointer(*input.CurrentItemIndex))
	}

	// 3. 持久化（last-write-wins）
	if err := s.timerRepo.SaveTimerState(ctx, rundownID, state); err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to persist timer state")
		return nil, ErrInternalServer
	}

	// 4. 运行状态与 Rundown 状态的耦合：启动即直播，直播中暂停即暂停
	statusChanged := false
	var statusChange dto.FieldChange
	if input.IsRunning != nil {
		oldStatus := rundown.Status
		if *input.IsRunning && rundown.Status != domain.StatusAoVivo {
			rundown.Status = domain.StatusAoVivo
			statusChanged = true
		} else if !*input.IsRunning && rundown.Status == domain.StatusAoVivo {
			rundown.Status = domain.StatusPausado
			statusChanged = true
		}
		if statusChanged {
			statusChange = dto.FieldChange{Old: oldStatus, New: rundown.Status}
			rundown.LastModified = now.UTC().Format(time.RFC3339)
			if err := s.rundownRepo.Save(ctx, rundown); err != nil {
				logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to persist status transition for timer")
				return nil, ErrInternalServer
			}
		}
	}

	// 5. 失效（状态列出现在列表里）+ 6. 广播
	if statusChanged {
		s.cache.InvalidateCompany(ctx, rundown.CompanyID)
	}
	view := s.timerView(state, rundown.Status)
	event := dto.RundownUpdatedEvent{
		RundownID: rundownID,
		UpdatedBy: actor.ID,
		Timer:     &view,
	}
	if statusChanged {
		event.Changes = map[string]dto.FieldChange{"status": statusChange}
	}
	s.publishRundownEvent(ctx, rundownID, event)
	if statusChanged {
		s.broadcaster.Publish(hub.CompanyRoom(rundown.CompanyID), dto.EventRundownListChanged, dto.RundownListChangedEvent{
			CompanyID: rundown.CompanyID,
			Reason:    "status",
			RundownID: rundownID,
		})
	}

	return &view, nil
}

// requireOwnerOrAdmin 检查破坏性操作的权限（删除、改成员名单）
func (s *SyncService) requireOwnerOrAdmin(ctx context.Context, actor domain.Actor, rundownID uint) error {
	if actor.IsAdmin() {
		return nil
	}
	isOwner, err := s.membership.IsOwner(ctx, actor, rundownID)
	if err != nil {
		return err
	}
	if !isOwner {
		return ErrPermissionDenied
	}
	return nil
}

// publishRundownEvent 向 Rundown 房间广播并镜像到跨实例中继频道
func (s *SyncService) publishRundownEvent(ctx context.Context, rundownID uint, event dto.RundownUpdatedEvent) {
	s.broadcaster.Publish(hub.RundownRoom(rundownID), dto.EventRundownUpdated, event)

	payload, err := json.Marshal(dto.Envelope{Event: dto.EventRundownUpdated, Data: event})
	if err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Error("Failed to marshal relay payload")
		return
	}
	s.cache.Relay(ctx, rundownID, payload)
}

// timerView 装配计时器状态的对外形状，elapsed 用当前墙钟现场计算
func (s *SyncService) timerView(state domain.TimerState, status string) dto.TimerStateView {
	elapsed, _ := state.Elapsed(s.now())
	var startedAt *string
	if state.StartedAt != nil {
		formatted := state.StartedAt.UTC().Format(time.RFC3339)
		startedAt = &formatted
	}
	return dto.TimerStateView{
		IsRunning:        state.IsRunning,
		TimeElapsed:      elapsed,
		TimerElapsedBase: state.ElapsedBase,
		TimerStartedAt:   startedAt,
		CurrentItemIndex: dto.SegmentPointerInput{
			FolderIndex: state.Pointer.FolderIndex,
			ItemIndex:   state.Pointer.ItemIndex,
		},
		Status: status,
	}
}
