package queue

import (
	"encoding/json"
	"time"

	"github.com/fleetsync/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskSyncLedgerAppend 同步流水补写任务
	TaskSyncLedgerAppend = constants.TaskSyncLedgerAppend
)

// SyncLedgerAppendPayload 同步流水补写任务载荷
type SyncLedgerAppendPayload struct {
	DeliveryRequestID *uint     `json:"delivery_request_id,omitempty"`
	UserID            uint      `json:"user_id"`
	BatchID           string    `json:"batch_id"`
	ClientLocalID     string    `json:"client_local_id"`
	Operation         string    `json:"operation"`
	Outcome           string    `json:"outcome"`
	Reason            string    `json:"reason,omitempty"`
	Message           string    `json:"message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewSyncLedgerAppendTask 创建同步流水补写任务
func NewSyncLedgerAppendTask(payload SyncLedgerAppendPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncLedgerAppend, body), nil
}

// ParseSyncLedgerAppendPayload 解析同步流水补写任务
func ParseSyncLedgerAppendPayload(task *asynq.Task) (SyncLedgerAppendPayload, error) {
	var payload SyncLedgerAppendPayload
	if task == nil {
		return payload, nil
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
