package tools

import (
	"context"

	"github.com/dohr-michael/bizclaw/internal/erp"
)

const getListMethod = "frappe.client.get_list"

type doctypeInput struct {
	Doctype string `json:"doctype"`
}

type listDoctypesInput struct {
	Module string `json:"module"`
}

type permissionsInput struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
}

func (k *erpKit) metaTools() []NativeTool {
	return []NativeTool{
		NewFuncTool(ToolSpec{
			Name:        "list_doctypes",
			Description: "List available DocTypes in ERPNext, optionally filtered by module.",
			Parameters: map[string]ParamSpec{
				"module": optParam("string", "Module name to filter by (e.g. \"Stock\", \"Accounts\")"),
			},
			ReadOnly:   true,
			Idempotent: true,
		}, k.listDoctypes),
		NewFuncTool(ToolSpec{
			Name:        "get_doctype_schema",
			Description: "Get the field schema for a DocType (field names, types, labels, required flags).",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam},
			ReadOnly:    true,
			Idempotent:  true,
		}, k.getDoctypeSchema),
		NewFuncTool(ToolSpec{
			Name:        "get_doctype_meta",
			Description: "Get detailed metadata for a DocType including naming, flags, fields and permissions.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam},
			ReadOnly:    true,
			Idempotent:  true,
		}, k.getDoctypeMeta),
		NewFuncTool(ToolSpec{
			Name:        "get_permissions",
			Description: "Get the permission rules of a DocType.",
			Parameters: map[string]ParamSpec{
				"doctype": doctypeParam,
				"name":    optParam("string", "Document name, for document-level context"),
			},
			ReadOnly:   true,
			Idempotent: true,
		}, k.getPermissions),
		NewFuncTool(ToolSpec{
			Name:        "validate_doctype",
			Description: "Check a DocType definition for missing fields or permissions.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam},
			ReadOnly:    true,
			Idempotent:  true,
		}, k.validateDoctype),
	}
}

func (k *erpKit) listDoctypes(ctx context.Context, in listDoctypesInput) (map[string]any, error) {
	filters := map[string]any{}
	if in.Module != "" {
		filters["module"] = in.Module
	}
	res, err := k.client.Call(ctx, getListMethod, map[string]any{
		"doctype":           "DocType",
		"filters":           filters,
		"fields":            []string{"name", "module"},
		"limit_page_length": 100,
		"order_by":          "name asc",
	}, false)
	if err != nil {
		return nil, erp.WithContext(err, "DocType", "list_doctypes")
	}
	list := messageList(res)
	return map[string]any{"doctypes": list, "count": len(list)}, nil
}

// doctypeDoc fetches the DocType definition document.
func (k *erpKit) doctypeDoc(ctx context.Context, doctype, op string) (map[string]any, error) {
	if doctype == "" {
		return nil, erp.Errorf(erp.KindInvalidInput, "doctype is required")
	}
	res, err := k.client.Get(ctx, erp.ResourcePath("DocType", doctype), nil)
	if err != nil {
		return nil, erp.WithContext(err, doctype, op)
	}
	return dataField(res), nil
}

// docFields returns the named fields of a DocType definition, projected to keys.
func docFields(doc map[string]any, keys ...string) []map[string]any {
	var out []map[string]any
	list, _ := doc["fields"].([]any)
	for _, f := range list {
		m, ok := f.(map[string]any)
		if !ok || str(m["fieldname"]) == "" {
			continue
		}
		field := make(map[string]any, len(keys))
		for _, key := range keys {
			field[key] = m[key]
		}
		if _, ok := field["reqd"]; ok && field["reqd"] == nil {
			field["reqd"] = 0
		}
		out = append(out, field)
	}
	return out
}

func (k *erpKit) getDoctypeSchema(ctx context.Context, in doctypeInput) (map[string]any, error) {
	doc, err := k.doctypeDoc(ctx, in.Doctype, "get_doctype_schema")
	if err != nil {
		return nil, err
	}
	fields := docFields(doc, "fieldname", "fieldtype", "label", "reqd", "options")
	return map[string]any{
		"doctype":     in.Doctype,
		"field_count": len(fields),
		"fields":      fields,
	}, nil
}

func (k *erpKit) getDoctypeMeta(ctx context.Context, in doctypeInput) (map[string]any, error) {
	doc, err := k.doctypeDoc(ctx, in.Doctype, "get_doctype_meta")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"doctype":        in.Doctype,
		"module":         doc["module"],
		"is_submittable": intOr(doc["is_submittable"]),
		"is_single":      intOr(doc["issingle"]),
		"is_tree":        intOr(doc["is_tree"]),
		"autoname":       doc["autoname"],
		"naming_rule":    doc["naming_rule"],
		"fields":         docFields(doc, "fieldname", "fieldtype", "label"),
		"permissions":    listOr(doc["permissions"]),
	}, nil
}

func (k *erpKit) getPermissions(ctx context.Context, in permissionsInput) (map[string]any, error) {
	doc, err := k.doctypeDoc(ctx, in.Doctype, "get_permissions")
	if err != nil {
		return nil, err
	}
	perms := listOr(doc["permissions"])
	return map[string]any{
		"doctype":          in.Doctype,
		"document":         orDefault(in.Name, "(doctype level)"),
		"permissions":      perms,
		"permission_count": len(perms),
	}, nil
}

func (k *erpKit) validateDoctype(ctx context.Context, in doctypeInput) (map[string]any, error) {
	doc, err := k.doctypeDoc(ctx, in.Doctype, "validate_doctype")
	if err != nil {
		return nil, err
	}
	issues := []string{}
	if len(listOr(doc["fields"])) == 0 {
		issues = append(issues, "No fields defined")
	}
	if len(listOr(doc["permissions"])) == 0 {
		issues = append(issues, "No permissions defined")
	}
	return map[string]any{"doctype": in.Doctype, "valid": len(issues) == 0, "issues": issues}, nil
}

func intOr(v any) any {
	if v == nil {
		return 0
	}
	return v
}

func listOr(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{}
}
