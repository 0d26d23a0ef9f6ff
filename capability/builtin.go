package capability

import (
	"fmt"
	"strings"

	"github.com/hupe1980/supportmesh/core"
)

// Names of the built-in capabilities.
const (
	SetIssueType       = "set_issue_type"
	UpdateUserProfile  = "update_user_profile"
	TransferToHandler  = "transfer_to_handler"
	Refund             = "refund"
	InvoiceStatus      = "invoice_status"
	RestartService     = "restart_service"
	CheckServiceStatus = "check_service_status"
	FAQ                = "faq"
)

// SetIssueTypeArgs are the arguments of set_issue_type.
type SetIssueTypeArgs struct {
	IssueType string `json:"issue_type" enum:"billing,technical,general" description:"Classification of the current message"`
}

// UpdateUserProfileArgs are the arguments of update_user_profile.
type UpdateUserProfileArgs struct {
	Name      *string `json:"name" description:"User name, if stated"`
	AccountID *string `json:"account_id" description:"Account identifier, if stated"`
}

// TransferToHandlerArgs are the arguments of transfer_to_handler.
type TransferToHandlerArgs struct {
	Target string `json:"target" enum:"billing,technical,general" description:"Specialist to hand the conversation to"`
}

// RefundArgs are the arguments of refund.
type RefundArgs struct {
	OrderID string  `json:"order_id" description:"Order identifier"`
	Amount  float64 `json:"amount" description:"Refund amount in USD"`
}

// InvoiceStatusArgs are the arguments of invoice_status.
type InvoiceStatusArgs struct {
	AccountID *string `json:"account_id" description:"Account identifier; defaults to the session account"`
}

// ServiceArgs are the arguments of restart_service and check_service_status.
type ServiceArgs struct {
	ServiceName string `json:"service_name" description:"Backend service name, e.g. payments"`
}

// FAQArgs are the arguments of faq.
type FAQArgs struct {
	Query string `json:"query" description:"The user's question"`
}

// Builtins returns fresh instances of every built-in capability.
//
// set_issue_type and update_user_profile are the only capabilities allowed to
// mutate the SupportContext. refund is gated on premium users and
// restart_service on a committed technical classification.
func Builtins() []*Capability {
	return []*Capability{
		Must(NewTyped(SetIssueType,
			`Set the current issue_type in shared context. Call this when you infer the user's query type. Accepts one of: "billing", "technical", "general".`,
			setIssueType, Mutating())),
		Must(NewTyped(UpdateUserProfile,
			"Persist user name and/or account_id to shared context if provided.",
			updateUserProfile, Mutating())),
		Must(NewTyped(TransferToHandler,
			"Hand the conversation off to the specialist for the committed issue type.",
			transferToHandler)),
		Must(NewTyped(Refund,
			"Process a refund for a given order_id and amount (USD). Only permitted for premium users; otherwise the tool is disabled.",
			refund, WithPredicate(PremiumOnly()))),
		Must(NewTyped(InvoiceStatus,
			"Provide the status of the latest invoice.",
			invoiceStatus)),
		Must(NewTyped(RestartService,
			`Restart a backend service by name. Enabled only if context.issue_type == "technical".`,
			restartService, WithPredicate(WhenIssueType(core.IssueTypeTechnical)))),
		Must(NewTyped(CheckServiceStatus,
			"Check the health of a backend service.",
			checkServiceStatus)),
		Must(NewTyped(FAQ,
			"Answer a frequently asked question from the built-in KB (mock).",
			faq)),
	}
}

func setIssueType(actx *core.ActionContext, args SetIssueTypeArgs) (string, error) {
	t, err := core.ParseIssueType(args.IssueType)
	if err != nil {
		return "", err
	}

	if err := actx.Update(func(f *core.SupportFields) { f.IssueType = t.Ptr() }); err != nil {
		return "", err
	}

	return fmt.Sprintf("issue_type set to '%s'", t), nil
}

func updateUserProfile(actx *core.ActionContext, args UpdateUserProfileArgs) (string, error) {
	var changed []string

	name := trimmed(args.Name)
	accountID := trimmed(args.AccountID)

	if name == "" && accountID == "" {
		return "No changes made.", nil
	}

	err := actx.Update(func(f *core.SupportFields) {
		if name != "" {
			f.Name = core.StringPtr(name)
			changed = append(changed, fmt.Sprintf("name='%s'", name))
		}
		if accountID != "" {
			f.AccountID = core.StringPtr(accountID)
			changed = append(changed, fmt.Sprintf("account_id='%s'", accountID))
		}
	})
	if err != nil {
		return "", err
	}

	return "Updated: " + strings.Join(changed, ", "), nil
}

func transferToHandler(_ *core.ActionContext, args TransferToHandlerArgs) (string, error) {
	t, err := core.ParseIssueType(args.Target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Transfer to %s requested.", t), nil
}

func refund(_ *core.ActionContext, args RefundArgs) (string, error) {
	if strings.TrimSpace(args.OrderID) == "" {
		return "", fmt.Errorf("order_id must not be empty")
	}
	if args.Amount <= 0 {
		return "", fmt.Errorf("amount must be positive, got %.2f", args.Amount)
	}
	return fmt.Sprintf("Refund issued for order %s, amount $%.2f.", args.OrderID, args.Amount), nil
}

func invoiceStatus(actx *core.ActionContext, args InvoiceStatusArgs) (string, error) {
	acct := trimmed(args.AccountID)
	if acct == "" {
		if f := actx.Fields(); f.AccountID != nil {
			acct = *f.AccountID
		}
	}
	if acct == "" {
		acct = "UNKNOWN"
	}
	return fmt.Sprintf("Invoice status for %s: PAID on-time (mock).", acct), nil
}

func restartService(_ *core.ActionContext, args ServiceArgs) (string, error) {
	return fmt.Sprintf("Service '%s' restarted successfully.", args.ServiceName), nil
}

func checkServiceStatus(_ *core.ActionContext, args ServiceArgs) (string, error) {
	return fmt.Sprintf("Service '%s' status: HEALTHY (mock).", args.ServiceName), nil
}

func faq(_ *core.ActionContext, args FAQArgs) (string, error) {
	return fmt.Sprintf("[KB] Answer to '%s': This is a placeholder knowledge base response.", args.Query), nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
