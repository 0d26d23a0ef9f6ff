// Package offline provides a keyword-driven model.Model that works without
// network access or API keys. It classifies intent, extracts profile
// details and calls only the tools offered in the request, which makes the
// console usable out of the box and end-to-end tests deterministic.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/guardrail"
	"github.com/hupe1980/supportmesh/model"
)

var (
	nameRe    = regexp.MustCompile(`\b(?:[Mm]y name is|I am|I'm|[Tt]his is)\s+([A-Z][a-zA-Z'-]+)`)
	accountRe = regexp.MustCompile(`(?i)\baccount(?:\s*(?:id|number|no\.?))?\s*(?:is|:|#)?\s*([A-Za-z0-9-]*\d[A-Za-z0-9-]*)`)
	orderRe   = regexp.MustCompile(`(?i)\border\s*(?:id|number|no\.?)?\s*(?:is|:|#)?\s*([A-Za-z0-9-]*\d[A-Za-z0-9-]*)`)
	amountRe  = regexp.MustCompile(`(?i)\$\s*(\d+(?:\.\d{1,2})?)|(\d+(?:\.\d{1,2})?)\s*(?:usd|dollars?)\b|\b(?:for|amount(?:\s+of)?:?)\s+(\d+(?:\.\d{1,2})?)\b`)
	serviceRe = regexp.MustCompile(`(?i)\b([a-z0-9_-]+)\s+service\b|\b(?:restart|reboot|check)\s+(?:the\s+)?([a-z0-9_-]+)`)
)

var keywords = map[core.IssueType][]string{
	core.IssueTypeBilling: {
		"refund", "invoice", "bill", "billing", "charge", "charged", "payment", "paid", "pay", "subscription", "price", "receipt",
	},
	core.IssueTypeTechnical: {
		"restart", "reboot", "error", "down", "outage", "crash", "bug", "server", "service", "broken", "failing", "latency", "status", "login",
	},
	core.IssueTypeGeneral: {
		"hours", "policy", "faq", "question", "contact", "help", "how", "what", "when", "where", "information",
	},
}

// Options configures the offline model.
type Options struct {
	// Name is reported by Info.
	Name string
}

// Model is the heuristic model.
type Model struct {
	opts Options
}

var _ model.Model = (*Model)(nil)

// NewModel creates an offline model.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{Name: "offline-heuristic"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{opts: opts}
}

// Generate implements model.Model. With Stream set the text is also
// delivered as word partials.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		msg := m.respond(req)

		if req.Stream && msg.Text != "" {
			for _, w := range strings.SplitAfter(msg.Text, " ") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- model.Response{Partial: true, Message: model.AssistantMessage(w)}:
				}
			}
		}

		finish := "stop"
		if len(msg.ToolCalls) > 0 {
			finish = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- model.Response{ID: core.NewID(), Message: msg, FinishReason: finish}:
		}
	}()

	return out, errCh
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Name, Provider: "offline", SupportsTools: true}
}

func (m *Model) respond(req model.Request) model.Message {
	if len(req.Messages) == 0 {
		return model.AssistantMessage("How can I help you today?")
	}

	query := firstUserText(req.Messages)
	results := toolResults(req.Messages)
	last := req.Messages[len(req.Messages)-1]

	if req.HasTool(capability.SetIssueType) {
		if len(results) == 0 {
			return triage(req, query)
		}
		return model.AssistantMessage("Routing your request.")
	}

	if last.Role == model.RoleUser && len(results) == 0 {
		if msg, ok := act(req, query); ok {
			return msg
		}
	}

	text := compose(req, query, results)
	if regenerating(req.Messages) {
		text = rephrase(text)
	}

	return model.AssistantMessage(text)
}

// Classify returns the issue type suggested by the keywords in text. ok is
// false when nothing matched.
func Classify(text string) (core.IssueType, bool) {
	words := tokenize(text)

	best, bestScore := core.IssueType(""), 0
	for _, t := range core.IssueTypes() {
		score := 0
		for _, kw := range keywords[t] {
			if words[kw] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = t, score
		}
	}

	return best, bestScore > 0
}

func triage(req model.Request, text string) model.Message {
	var calls []model.ToolCall

	t, ok := Classify(text)
	if ok {
		calls = append(calls, call(capability.SetIssueType, map[string]any{"issue_type": string(t)}))
	}

	if req.HasTool(capability.UpdateUserProfile) {
		profile := map[string]any{}
		if m := nameRe.FindStringSubmatch(text); m != nil {
			profile["name"] = m[1]
		}
		if m := accountRe.FindStringSubmatch(text); m != nil {
			profile["account_id"] = strings.ToUpper(m[1])
		}
		if len(profile) > 0 {
			calls = append(calls, call(capability.UpdateUserProfile, profile))
		}
	}

	if ok && req.HasTool(capability.TransferToHandler) {
		calls = append(calls, call(capability.TransferToHandler, map[string]any{"target": string(t)}))
	}

	if len(calls) == 0 {
		return model.AssistantMessage("The request does not match a known category.")
	}

	return model.AssistantMessage("", calls...)
}

// act picks the first offered tool that fits the query.
func act(req model.Request, text string) (model.Message, bool) {
	words := tokenize(text)

	switch {
	case req.HasTool(capability.Refund) && words["refund"]:
		order, amount := parseOrder(text), parseAmount(text)
		if order != "" && amount > 0 {
			return model.AssistantMessage("", call(capability.Refund, map[string]any{"order_id": order, "amount": amount})), true
		}
	case req.HasTool(capability.InvoiceStatus) && (words["invoice"] || words["bill"] || words["billing"] || words["paid"] || words["receipt"]):
		args := map[string]any{}
		if m := accountRe.FindStringSubmatch(text); m != nil {
			args["account_id"] = strings.ToUpper(m[1])
		}
		return model.AssistantMessage("", call(capability.InvoiceStatus, args)), true
	case req.HasTool(capability.RestartService) && (words["restart"] || words["reboot"]):
		return model.AssistantMessage("", call(capability.RestartService, map[string]any{"service_name": parseService(text)})), true
	case req.HasTool(capability.CheckServiceStatus):
		return model.AssistantMessage("", call(capability.CheckServiceStatus, map[string]any{"service_name": parseService(text)})), true
	case req.HasTool(capability.FAQ):
		return model.AssistantMessage("", call(capability.FAQ, map[string]any{"query": strings.TrimSpace(text)})), true
	}

	return model.Message{}, false
}

func compose(req model.Request, query string, results []model.Message) string {
	words := tokenize(query)

	if len(results) == 0 {
		if words["refund"] && !req.HasTool(capability.Refund) {
			return "Refunds are available to premium members. Upgrading your plan unlocks self-service refunds, and invoice questions are always welcome here."
		}
		if words["refund"] {
			return "To issue a refund please share the order id and the amount, for example: refund order A1001 for $49.99."
		}
		if words["restart"] || words["reboot"] {
			return "Service restarts are reserved for requests classified as technical issues."
		}
		return "Thanks for reaching out. Please share a few more details so the right action can be taken."
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		if strings.HasPrefix(r.Text, "Error:") {
			parts = append(parts, explainFailure(r.Name, r.Text))
			continue
		}
		parts = append(parts, r.Text)
	}

	return strings.Join(parts, " ")
}

func explainFailure(tool, text string) string {
	switch tool {
	case capability.Refund:
		return "Refunds are available to premium members only; upgrading your plan unlocks them."
	case capability.RestartService:
		return "A restart is only possible once the issue is classified as technical."
	default:
		return fmt.Sprintf("The %s action did not complete (%s).", tool, strings.TrimSpace(strings.TrimPrefix(text, "Error:")))
	}
}

func parseOrder(text string) string {
	if m := orderRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

func parseAmount(text string) float64 {
	for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
		for _, g := range m[1:] {
			if g == "" {
				continue
			}
			if v, err := strconv.ParseFloat(g, 64); err == nil {
				return v
			}
		}
	}
	return 0
}

func parseService(text string) string {
	for _, m := range serviceRe.FindAllStringSubmatch(strings.ToLower(text), -1) {
		for _, g := range m[1:] {
			if g != "" && g != "the" && g != "my" && g != "a" && g != "service" && g != "status" {
				return g
			}
		}
	}
	return "api"
}

func call(name string, args map[string]any) model.ToolCall {
	b, _ := json.Marshal(args)
	return model.ToolCall{ID: core.NewID(), Name: name, Arguments: string(b)}
}

// regenerating reports whether a corrective note followed the first user
// message.
func regenerating(msgs []model.Message) bool {
	users := 0
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			users++
		}
	}
	return users > 1
}

// rephrase drops policy-sensitive words echoed from tool output.
func rephrase(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]

	for _, f := range fields {
		lower := strings.ToLower(f)
		banned := false
		for _, w := range guardrail.BannedApologies() {
			if strings.Contains(lower, w) {
				banned = true
				break
			}
		}
		if !banned {
			kept = append(kept, f)
		}
	}

	return strings.Join(kept, " ")
}

func firstUserText(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			return m.Text
		}
	}
	return ""
}

func toolResults(msgs []model.Message) []model.Message {
	var out []model.Message
	for _, m := range msgs {
		if m.Role == model.RoleTool {
			out = append(out, m)
		}
	}
	return out
}

func tokenize(text string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	}) {
		words[w] = true
	}
	return words
}
