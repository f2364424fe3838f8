package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dohr-michael/bizclaw/internal/erp"
)

// reportRowCap bounds the rows returned by run_report.
const reportRowCap = 50

type runReportInput struct {
	ReportName string   `json:"report_name"`
	Filters    flexJSON `json:"filters"`
}

type callMethodInput struct {
	Method string   `json:"method"`
	Args   flexJSON `json:"args"`
}

type shareDocumentInput struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
	User    string `json:"user"`
	Ptype   string `json:"ptype"`
}

type dataInput struct {
	Data flexJSON `json:"data"`
}

func (k *erpKit) adminTools() []NativeTool {
	return []NativeTool{
		NewFuncTool(ToolSpec{
			Name:        "run_report",
			Description: "Run a named query or script report. At most 50 rows are returned.",
			Parameters: map[string]ParamSpec{
				"report_name": reqParam("string", "Name of the report"),
				"filters":     optParam("object", "Report filters as an object or JSON string"),
			},
			ReadOnly:   true,
			Idempotent: true,
		}, k.runReport),
		NewFuncTool(ToolSpec{
			Name:        "call_method",
			Description: "Call any whitelisted Frappe/ERPNext API method.",
			Parameters: map[string]ParamSpec{
				"method": reqParam("string", "Dotted method path (e.g. \"frappe.client.get_count\")"),
				"args":   optParam("object", "Method arguments as an object or JSON string"),
			},
			Dangerous: true,
		}, k.callMethod),
		NewFuncTool(ToolSpec{
			Name:        "share_document",
			Description: "Share a document with a user.",
			Parameters: map[string]ParamSpec{
				"doctype": doctypeParam,
				"name":    nameParam,
				"user":    reqParam("string", "User to share with"),
				"ptype":   {Type: "string", Description: "Permission to grant", Default: "read", Enum: []string{"read", "write", "share"}},
			},
			Idempotent: true,
		}, k.shareDocument),
		NewFuncTool(ToolSpec{
			Name:        "create_webhook",
			Description: "Create a new Webhook.",
			Parameters:  map[string]ParamSpec{"data": reqParam("object", "Webhook configuration as an object or JSON string")},
		}, k.createWebhook),
		NewFuncTool(ToolSpec{
			Name:        "create_server_script",
			Description: "Create a new Server Script. Scripts containing destructive commands are rejected.",
			Parameters:  map[string]ParamSpec{"data": reqParam("object", "Server Script configuration as an object or JSON string")},
			Dangerous:   true,
		}, k.createServerScript),
	}
}

func (k *erpKit) runReport(ctx context.Context, in runReportInput) (map[string]any, error) {
	filters, err := in.Filters.Object("filters")
	if err != nil {
		return nil, err
	}
	res, err := k.client.Call(ctx, "frappe.desk.query_report.run", map[string]any{
		"report_name": in.ReportName,
		"filters":     filters,
	}, false)
	if err != nil {
		return nil, erp.WithContext(err, in.ReportName, "run_report")
	}
	msg, _ := res["message"].(map[string]any)
	rows := listOr(msg["result"])
	return map[string]any{
		"report":    in.ReportName,
		"columns":   listOr(msg["columns"]),
		"row_count": len(rows),
		"result":    rows[:min(len(rows), reportRowCap)],
	}, nil
}

// callMethod returns the method's message, or the whole response when there is none.
func (k *erpKit) callMethod(ctx context.Context, in callMethodInput) (map[string]any, error) {
	args, err := in.Args.Object("args")
	if err != nil {
		return nil, err
	}
	res, err := k.client.Call(ctx, in.Method, args, false)
	if err != nil {
		return nil, erp.WithContext(err, "", in.Method)
	}
	msg, ok := res["message"]
	if !ok {
		return res, nil
	}
	if m, ok := msg.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"result": msg}, nil
}

func (k *erpKit) shareDocument(ctx context.Context, in shareDocumentInput) (map[string]any, error) {
	ptype := orDefault(in.Ptype, "read")
	share := map[string]any{
		"doctype":       "DocShare",
		"user":          in.User,
		"share_doctype": in.Doctype,
		"share_name":    in.Name,
		"read":          1,
	}
	switch ptype {
	case "read":
	case "write", "share":
		share[ptype] = 1
	default:
		return nil, erp.Errorf(erp.KindInvalidInput, "unsupported ptype %q", ptype)
	}
	if _, err := k.client.Post(ctx, erp.ResourcePath("DocShare"), share); err != nil {
		return nil, erp.WithContext(err, in.Doctype, "share_document")
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Shared %s/%s with %s", in.Doctype, in.Name, in.User),
	}, nil
}

func (k *erpKit) createWebhook(ctx context.Context, in dataInput) (map[string]any, error) {
	data, err := in.Data.Object("data")
	if err != nil {
		return nil, err
	}
	name, err := k.createOne(ctx, "Webhook", data)
	if err != nil {
		return nil, erp.WithContext(err, "Webhook", "create_webhook")
	}
	return map[string]any{
		"success": true,
		"webhook": name,
		"message": "Created Webhook: " + name,
	}, nil
}

// dangerousScript reports whether a server script contains a blocked command.
func dangerousScript(script string) bool {
	return strings.Contains(script, "rm -rf") || strings.Contains(strings.ToUpper(script), "DROP TABLE")
}

func (k *erpKit) createServerScript(ctx context.Context, in dataInput) (map[string]any, error) {
	data, err := in.Data.Object("data")
	if err != nil {
		return nil, err
	}
	if dangerousScript(str(data["script"])) {
		return nil, &erp.Error{
			Kind:      erp.KindInvalidInput,
			Message:   "Potentially dangerous script detected. Operation blocked.",
			Doctype:   "Server Script",
			Operation: "create_script",
		}
	}
	name, err := k.createOne(ctx, "Server Script", data)
	if err != nil {
		return nil, erp.WithContext(err, "Server Script", "create_script")
	}
	return map[string]any{
		"success": true,
		"script":  name,
		"message": "Created Server Script: " + name,
	}, nil
}
