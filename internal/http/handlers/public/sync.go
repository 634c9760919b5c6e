package public

import (
	"errors"
	"strings"
	"time"

	"github.com/fleetsync/internal/constants"
	handlershared "github.com/fleetsync/internal/http/handlers/shared"
	"github.com/fleetsync/internal/http/response"
	"github.com/fleetsync/internal/i18n"
	"github.com/fleetsync/internal/models"
	"github.com/fleetsync/internal/service"

	"github.com/gin-gonic/gin"
)

// SyncPoint 坐标点
type SyncPoint struct {
	Latitude  *models.Coordinate `json:"latitude"`
	Longitude *models.Coordinate `json:"longitude"`
}

// SyncCoordinates 取件与送达坐标
type SyncCoordinates struct {
	Pickup  *SyncPoint `json:"pickup"`
	Dropoff *SyncPoint `json:"dropoff"`
}

// SyncPendingItemRequest 离线队列中的单条记录
type SyncPendingItemRequest struct {
	LocalID          string           `json:"local_id"`
	ServerID         uint             `json:"server_id"`
	Operation        string           `json:"operation"`
	ClientModifiedAt *time.Time       `json:"client_modified_at"`
	PickupAddress    *string          `json:"pickup_address"`
	DropoffAddress   *string          `json:"dropoff_address"`
	Coordinates      *SyncCoordinates `json:"coordinates"`
	CustomerName     *string          `json:"customer_name"`
	CustomerPhone    *string          `json:"customer_phone"`
	DeliveryNote     *string          `json:"delivery_note"`
	Status           *string          `json:"status"`
	DriverID         *uint            `json:"driver_id"`
	AssignedByID     *uint            `json:"assigned_by_id"`
	TouchedFields    []string         `json:"touched_fields"`
}

// SyncPendingRequest 离线同步批次
type SyncPendingRequest struct {
	Requests []SyncPendingItemRequest `json:"requests"`
}

// toPendingSyncItem 转换为同步引擎的输入；touched_fields 缺省时保持 nil
func (r SyncPendingItemRequest) toPendingSyncItem() service.PendingSyncItem {
	fields := &service.DeliveryFields{
		PickupAddress:  r.PickupAddress,
		DropoffAddress: r.DropoffAddress,
		CustomerName:   r.CustomerName,
		CustomerPhone:  r.CustomerPhone,
		DeliveryNote:   r.DeliveryNote,
		Status:         r.Status,
		DriverID:       r.DriverID,
		AssignedByID:   r.AssignedByID,
	}
	if r.Coordinates != nil {
		if p := r.Coordinates.Pickup; p != nil {
			fields.PickupLatitude = p.Latitude
			fields.PickupLongitude = p.Longitude
		}
		if d := r.Coordinates.Dropoff; d != nil {
			fields.DropoffLatitude = d.Latitude
			fields.DropoffLongitude = d.Longitude
		}
	}
	item := service.PendingSyncItem{
		ClientLocalID: r.LocalID,
		ServerID:      r.ServerID,
		Operation:     r.Operation,
		Fields:        fields,
	}
	if r.ClientModifiedAt != nil {
		item.ClientModifiedAt = r.ClientModifiedAt.UTC()
	}
	if r.TouchedFields != nil {
		item.TouchedFields = make([]string, 0, len(r.TouchedFields))
		for _, name := range r.TouchedFields {
			item.TouchedFields = append(item.TouchedFields, strings.ToLower(strings.TrimSpace(name)))
		}
	}
	return item
}

// SyncPending 提交离线同步批次
func (h *Handler) SyncPending(c *gin.Context) {
	user, ok := getSyncUser(c)
	if !ok {
		return
	}
	var req SyncPendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.sync_payload_invalid", err)
		return
	}

	items := make([]service.PendingSyncItem, 0, len(req.Requests))
	for _, raw := range req.Requests {
		items = append(items, raw.toPendingSyncItem())
	}

	result, err := h.SyncService.Reconcile(c.Request.Context(), user, items)
	if err != nil {
		if errors.Is(err, service.ErrSyncBatchTooLarge) {
			limit := h.Config.Sync.MaxBatchSize
			msg := i18n.Sprintf(i18n.ResolveLocale(c), "error.sync_batch_too_large", limit)
			response.ErrorWithData(c, response.CodePayloadTooLarge, msg, gin.H{"max_batch_size": limit, "received": len(items)})
			return
		}
		respondMapped(c, err, syncCallerErrorRules, response.CodeInternal, "error.internal_error")
		return
	}
	localizeOutcomeMessages(c, result)
	response.Success(c, result)
}

// localizeOutcomeMessages 将失败原因翻译为请求语言；校验失败保留具体原因
func localizeOutcomeMessages(c *gin.Context, result *service.SyncBatchResult) {
	if result == nil {
		return
	}
	locale := i18n.ResolveLocale(c)
	for i := range result.Outcomes {
		reason := result.Outcomes[i].Reason
		if reason == "" || reason == constants.SyncReasonInvalidItem {
			continue
		}
		result.Outcomes[i].Message = i18n.T(locale, "sync.reason."+reason)
	}
}

// SyncStatus 查询同步状态
func (h *Handler) SyncStatus(c *gin.Context) {
	user, ok := getSyncUser(c)
	if !ok {
		return
	}
	status, err := h.SyncService.GetStatus(c.Request.Context(), user)
	if err != nil {
		respondMapped(c, err, syncStatusErrorRules, response.CodeInternal, "error.sync_status_failed")
		return
	}
	response.Success(c, status)
}

// SyncLedger 分页查询同步流水
func (h *Handler) SyncLedger(c *gin.Context) {
	user, ok := getSyncUser(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.PaginationFromQuery(c)

	entries, total, err := h.SyncService.ListLedger(user, page, pageSize)
	if err != nil {
		respondMapped(c, err, syncLedgerErrorRules, response.CodeInternal, "error.sync_ledger_failed")
		return
	}
	response.SuccessWithPage(c, entries, response.BuildPagination(page, pageSize, total))
}
