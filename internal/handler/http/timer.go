package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Matthew0wolf/Apront/internal/dto"
	"github.com/Matthew0wolf/Apront/internal/middleware"
	"github.com/Matthew0wolf/Apront/internal/service"
)

// TimerHandler 封装计时器状态的 HTTP 处理逻辑
type TimerHandler struct {
	syncService *service.SyncService
}

// NewTimerHandler 创建 TimerHandler 实例
func NewTimerHandler(syncService *service.SyncService) *TimerHandler {
	if syncService == nil {
		panic("SyncService cannot be nil for TimerHandler")
	}
	return &TimerHandler{syncService: syncService}
}

// Get 处理 GET /api/rundowns/:id/timer-state。
// 返回的 timeElapsed 永远是服务端按当前墙钟计算的权威值。
func (h *TimerHandler) Get(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	rundownID, ok := parseRundownID(c)
	if !ok {
		return
	}

	view, err := h.syncService.GetTimerState(c.Request.Context(), actor, rundownID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, view)
}

// Update 处理 PATCH /api/rundowns/:id/timer-state。
// 请求体的三个字段都可选，服务层按固定顺序应用。
func (h *TimerHandler) Update(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	rundownID, ok := parseRundownID(c)
	if !ok {
		return
	}

	var input dto.UpdateTimerStateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	view, err := h.syncService.UpdateTimerState(c.Request.Context(), actor, rundownID, input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, view)
}
