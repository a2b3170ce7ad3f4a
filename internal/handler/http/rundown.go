package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Matthew0wolf/Apront/internal/dto"
	"github.com/Matthew0wolf/Apront/internal/middleware"
	"github.com/Matthew0wolf/Apront/internal/service"
)

// RundownHandler 封装 Rundown 资源的 HTTP 处理逻辑。
// 所有变更都走同步门面，handler 只做传输层的解析与映射。
type RundownHandler struct {
	syncService *service.SyncService
}

// NewRundownHandler 创建 RundownHandler 实例
func NewRundownHandler(syncService *service.SyncService) *RundownHandler {
	if syncService == nil {
		panic("SyncService cannot be nil for RundownHandler")
	}
	return &RundownHandler{syncService: syncService}
}

// parseRundownID 解析路径参数 :id
func parseRundownID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid rundown id")
		return 0, false
	}
	return uint(id), true
}

// List 处理 GET /api/rundowns。?fresh=1 跳过缓存。
func (h *RundownHandler) List(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	fresh := c.Query("fresh") == "1"

	snapshot, err := h.syncService.ListRundowns(c.Request.Context(), actor, fresh)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	// 快照已经是 JSON 字节，原样透传避免二次序列化
	c.Data(http.StatusOK, "application/json; charset=utf-8", snapshot)
}

// Create 处理 POST /api/rundowns
func (h *RundownHandler) Create(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var input dto.CreateRundownInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	view, err := h.syncService.CreateRundown(c.Request.Context(), actor, input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, view)
}

// Update 处理 PATCH /api/rundowns/:id，返回字段差异
func (h *RundownHandler) Update(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	rundownID, ok := parseRundownID(c)
	if !ok {
		return
	}

	var input dto.UpdateRundownInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	changes, err := h.syncService.UpdateRundown(c.Request.Context(), actor, rundownID, input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"changes": changes})
}

// Delete 处理 DELETE /api/rundowns/:id
func (h *RundownHandler) Delete(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	rundownID, ok := parseRundownID(c)
	if !ok {
		return
	}

	if err := h.syncService.DeleteRundown(c.Request.Context(), actor, rundownID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Rundown deleted"})
}

// UpdateStatus 处理 PATCH /api/rundowns/:id/status
func (h *RundownHandler) UpdateStatus(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	rundownID, ok := parseRundownID(c)
	if !ok {
		return
	}

	var input dto.UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	changes, err := h.syncService.UpdateStatus(c.Request.Context(), actor, rundownID, input.Status)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"changes": changes})
}

// UpdateStructure 处理 PATCH /api/rundowns/:id/structure，
// 返回带服务端真实 ID 的规范化结构
func (h *RundownHandler) UpdateStructure(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	rundownID, ok := parseRundownID(c)
	if !ok {
		return
	}

	var input dto.UpdateStructureInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	view, err := h.syncService.UpdateStructure(c.Request.Context(), actor, rundownID, input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, view)
}

// UpdateMembers 处理 PATCH /api/rundowns/:id/members
func (h *RundownHandler) UpdateMembers(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	rundownID, ok := parseRundownID(c)
	if !ok {
		return
	}

	var input dto.UpdateMembersInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	members, err := h.syncService.UpdateMembers(c.Request.Context(), actor, rundownID, input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"members": members})
}
