// Package notify delivers best-effort approver notifications. The Lark
// implementation messages the approver whose queue a claim just entered;
// failures are logged and never propagate into the approval workflow.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// Config holds Lark messenger configuration. Empty credentials disable
// notifications entirely.
type Config struct {
	AppID     string
	AppSecret string
	Timeout   time.Duration
}

// LarkNotifier sends claim notifications over Lark IM
type LarkNotifier struct {
	client  *lark.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewLarkNotifier creates a Lark-backed notifier
func NewLarkNotifier(cfg Config, logger *zap.Logger) *LarkNotifier {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LarkNotifier{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// NotifyPending messages the approver that a claim is waiting on them
func (n *LarkNotifier) NotifyPending(claim *models.Claim, approverID string, escalated bool) {
	text := fmt.Sprintf("Claim %s (%s, %s) from employee %s is pending your approval at level %d.",
		claim.ID, claim.ClaimType, claim.Amount.StringFixed(2),
		claim.EmployeeID, claim.Status.PendingLevel())
	if escalated {
		text = "[Escalated] " + text
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		n.logger.Error("Failed to build notification content", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("user_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(approverID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.client.Im.Message.Create(ctx, req)
	if err != nil {
		n.logger.Warn("Failed to send approver notification",
			zap.String("claim_id", claim.ID),
			zap.String("approver_id", approverID),
			zap.Error(err))
		return
	}
	if !resp.Success() {
		n.logger.Warn("Lark rejected approver notification",
			zap.String("claim_id", claim.ID),
			zap.String("approver_id", approverID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return
	}

	n.logger.Debug("Approver notified",
		zap.String("claim_id", claim.ID),
		zap.String("approver_id", approverID),
		zap.Bool("escalated", escalated))
}

// NopNotifier discards all notifications. Used when Lark credentials
// are not configured.
type NopNotifier struct{}

// NotifyPending does nothing
func (NopNotifier) NotifyPending(*models.Claim, string, bool) {}
