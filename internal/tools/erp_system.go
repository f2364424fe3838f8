package tools

import (
	"context"
	"time"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/erp"
)

const loggedUserPath = "/api/method/frappe.auth.get_logged_user"

type noInput struct{}

func (k *erpKit) systemTools() []NativeTool {
	return []NativeTool{
		NewFuncTool(ToolSpec{
			Name:        "system_ping",
			Description: "Check if the MCP server and ERPNext are reachable.",
			ReadOnly:    true,
			Idempotent:  true,
		}, k.systemPing),
		NewFuncTool(ToolSpec{
			Name:        "get_current_user",
			Description: "Get the currently authenticated ERPNext user.",
			ReadOnly:    true,
			Idempotent:  true,
		}, k.getCurrentUser),
		NewFuncTool(ToolSpec{
			Name:        "debug_auth",
			Description: "Check authentication configuration and connectivity. Returns auth details for troubleshooting.",
			ReadOnly:    true,
			Idempotent:  true,
		}, k.debugAuth),
	}
}

func (k *erpKit) systemPing(ctx context.Context, _ noInput) (map[string]any, error) {
	out := map[string]any{
		"mcp_server":  "ok",
		"server_time": time.Now().UTC().Format(time.RFC3339),
		"version":     config.Version,
		"erpnext_url": k.client.BaseURL(),
	}
	res, err := k.client.Get(ctx, loggedUserPath, nil)
	if err != nil {
		out["erpnext_status"] = "unreachable"
		out["erpnext_error"] = err.Error()
		out["erpnext_error_kind"] = string(erp.KindOf(err))
		return out, nil
	}
	out["erpnext_status"] = "connected"
	out["erpnext_user"] = orDefault(str(res["message"]), "unknown")
	return out, nil
}

func (k *erpKit) getCurrentUser(ctx context.Context, _ noInput) (map[string]any, error) {
	res, err := k.client.Get(ctx, loggedUserPath, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": orDefault(str(res["message"]), "Guest")}, nil
}

func (k *erpKit) debugAuth(ctx context.Context, _ noInput) (map[string]any, error) {
	out := k.client.AuthInfo()

	res, err := k.client.Get(ctx, loggedUserPath, nil)
	if err != nil {
		out["auth_status"] = "failed"
		out["error"] = err.Error()
		out["error_kind"] = string(erp.KindOf(err))
		return out, nil
	}
	user := str(res["message"])
	out["auth_status"] = "success"
	out["logged_user"] = user

	userRes, err := k.client.Get(ctx, erp.ResourcePath("User", user), nil)
	if err != nil {
		out["user_error"] = err.Error()
		return out, nil
	}
	data := dataField(userRes)
	out["user_info"] = map[string]any{
		"email":   data["email"],
		"enabled": data["enabled"],
	}
	var roles []string
	if list, ok := data["roles"].([]any); ok {
		for _, r := range list {
			if m, ok := r.(map[string]any); ok {
				roles = append(roles, str(m["role"]))
			}
		}
	}
	out["roles"] = roles
	return out, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
