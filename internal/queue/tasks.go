package queue

import (
	"encoding/json"
	"strings"

	"github.com/carwash-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentExpire 单笔支付超时取消任务
	TaskPaymentExpire = constants.TaskPaymentExpire
	// TaskPaymentSweep 周期性过期支付清扫任务
	TaskPaymentSweep = constants.TaskPaymentSweep
)

// PaymentExpirePayload 单笔支付超时取消任务载荷
type PaymentExpirePayload struct {
	PaymentNo string `json:"payment_no"`
}

// PaymentSweepPayload 清扫任务载荷
type PaymentSweepPayload struct {
	BatchSize int `json:"batch_size"`
}

// NewPaymentExpireTask 创建单笔支付超时取消任务
func NewPaymentExpireTask(payload PaymentExpirePayload) (*asynq.Task, error) {
	payload.PaymentNo = strings.TrimSpace(payload.PaymentNo)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentExpire, body), nil
}

// NewPaymentSweepTask 创建过期清扫任务
func NewPaymentSweepTask(payload PaymentSweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentSweep, body), nil
}

// ParsePaymentExpirePayload 解析单笔超时任务载荷
func ParsePaymentExpirePayload(task *asynq.Task) (PaymentExpirePayload, error) {
	var payload PaymentExpirePayload
	if task == nil {
		return payload, nil
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}

// ParsePaymentSweepPayload 解析清扫任务载荷，空载荷视为默认批量
func ParsePaymentSweepPayload(task *asynq.Task) (PaymentSweepPayload, error) {
	var payload PaymentSweepPayload
	if task == nil || len(task.Payload()) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
