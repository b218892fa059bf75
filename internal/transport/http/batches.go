package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/batch"
	"github.com/chatUnique/keyguard-pro/internal/middleware"
	"github.com/chatUnique/keyguard-pro/internal/service"
)

// BatchHandler 批量检测处理器
type BatchHandler struct {
	batches *service.BatchService
	logger  *zap.Logger
}

// NewBatchHandler 创建批量检测处理器
func NewBatchHandler(batches *service.BatchService, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{batches: batches, logger: logger}
}

type parseBatchRequest struct {
	Input string `json:"input"`
}

type createBatchRequest struct {
	Input         string                   `json:"input"`
	Items         []service.BatchItemInput `json:"items"`
	Concurrency   int                      `json:"concurrency"`
	MaxRetries    *int                     `json:"maxRetries"`
	RetryDelayMs  int64                    `json:"retryDelay"`
	TimeoutMs     int64                    `json:"timeout"`
	CheckBalance  bool                     `json:"checkBalance"`
	RequestFormat string                   `json:"requestFormat"`
}

// ParseBatch godoc
// @Summary 预览批量输入
// @Description 解析批量文本，返回条目数、问题提示和前几条预览（不发起验证）
// @Tags Batches
// @Accept json
// @Produce json
// @Param request body parseBatchRequest true "批量文本"
// @Success 200 {object} Response
// @Router /v1/batches/parse [post]
func (h *BatchHandler) ParseBatch(c *gin.Context) {
	var req parseBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	report := h.batches.Parse(req.Input)
	req.Input = ""
	Success(c, report)
}

// CreateBatch godoc
// @Summary 创建批量检测任务
// @Description 返回任务ID和访问令牌，后续查询、控制和订阅都需要该令牌
// @Tags Batches
// @Accept json
// @Produce json
// @Param request body createBatchRequest true "批量任务参数"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 429 {object} Response
// @Router /v1/batches [post]
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	job, err := h.batches.Create(&service.CreateBatchInput{
		Input:         req.Input,
		Items:         req.Items,
		Concurrency:   req.Concurrency,
		MaxRetries:    req.MaxRetries,
		RetryDelayMs:  req.RetryDelayMs,
		TimeoutMs:     req.TimeoutMs,
		CheckBalance:  req.CheckBalance,
		RequestFormat: req.RequestFormat,
	})
	req.Input, req.Items = "", nil
	if err != nil {
		respondError(c, err)
		return
	}

	Created(c, MsgBatchCreated, job)
}

// GetBatch godoc
// @Summary 查询任务快照
// @Description 快照中的条目只包含遮蔽后的密钥
// @Tags Batches
// @Produce json
// @Security JobToken
// @Param id path string true "任务ID"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 404 {object} Response
// @Router /v1/batches/{id} [get]
func (h *BatchHandler) GetBatch(c *gin.Context) {
	snapshot, err := h.batches.Get(c.Request.Context(), c.GetString(middleware.ContextJobID))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, snapshot)
}

// PauseBatch godoc
// @Summary 暂停任务
// @Tags Batches
// @Produce json
// @Security JobToken
// @Param id path string true "任务ID"
// @Success 200 {object} Response
// @Failure 409 {object} Response
// @Router /v1/batches/{id}/pause [post]
func (h *BatchHandler) PauseBatch(c *gin.Context) {
	h.control(c, h.batches.Pause, MsgJobPaused)
}

// ResumeBatch godoc
// @Summary 恢复任务
// @Tags Batches
// @Produce json
// @Security JobToken
// @Param id path string true "任务ID"
// @Success 200 {object} Response
// @Failure 409 {object} Response
// @Router /v1/batches/{id}/resume [post]
func (h *BatchHandler) ResumeBatch(c *gin.Context) {
	h.control(c, h.batches.Resume, MsgJobResumed)
}

// StopBatch godoc
// @Summary 停止任务
// @Description 停止后不可恢复，已完成的结果保留
// @Tags Batches
// @Produce json
// @Security JobToken
// @Param id path string true "任务ID"
// @Success 200 {object} Response
// @Failure 409 {object} Response
// @Router /v1/batches/{id}/stop [post]
func (h *BatchHandler) StopBatch(c *gin.Context) {
	h.control(c, h.batches.Stop, MsgJobStopped)
}

func (h *BatchHandler) control(c *gin.Context, action func(id string) (batch.ProcessingStatus, error), msg string) {
	jobID := c.GetString(middleware.ContextJobID)
	status, err := action(jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("Batch control", zap.String("job_id", jobID), zap.String("state", string(status.State)))
	SuccessWithMsg(c, msg, status)
}
