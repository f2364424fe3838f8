package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dohr-michael/bizclaw/internal/erp"
)

// cloneStripFields are dropped from a document before it is re-created as a copy.
var cloneStripFields = []string{"name", "creation", "modified", "owner", "modified_by", "docstatus", "idx", "amended_from"}

type docInput struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
}

type listDocumentsInput struct {
	Doctype string   `json:"doctype"`
	Fields  string   `json:"fields"`
	Filters flexJSON `json:"filters"`
	OrderBy string   `json:"order_by"`
	Limit   flexInt  `json:"limit"`
}

type searchDocumentsInput struct {
	Doctype string  `json:"doctype"`
	Query   string  `json:"query"`
	Limit   flexInt `json:"limit"`
}

type countInput struct {
	Doctype string   `json:"doctype"`
	Filters flexJSON `json:"filters"`
}

type createDocumentInput struct {
	Doctype   string   `json:"doctype"`
	Data      flexJSON `json:"data"`
	SmartMode flexBool `json:"smart_mode"`
}

type updateDocumentInput struct {
	Doctype string   `json:"doctype"`
	Name    string   `json:"name"`
	Data    flexJSON `json:"data"`
}

type cloneDocumentInput struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
	NewName string `json:"new_name"`
}

func (k *erpKit) documentTools() []NativeTool {
	return []NativeTool{
		NewFuncTool(ToolSpec{
			Name:        "get_document",
			Description: "Get a single document by DocType and name.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam, "name": nameParam},
			ReadOnly:    true,
			Idempotent:  true,
		}, k.getDocument),
		NewFuncTool(ToolSpec{
			Name:        "list_documents",
			Description: "List documents of a DocType with filtering, field selection, and sorting.",
			Parameters: map[string]ParamSpec{
				"doctype":  doctypeParam,
				"fields":   defParam("string", "Comma-separated field names", "name"),
				"filters":  optParam("object", "Filters as an object or JSON string (e.g. {\"status\": \"Open\"})"),
				"order_by": defParam("string", "Sort order", "modified desc"),
				"limit":    defParam("integer", "Max results, 1-100", 20),
			},
			ReadOnly:   true,
			Idempotent: true,
		}, k.listDocuments),
		NewFuncTool(ToolSpec{
			Name:        "search_documents",
			Description: "Search documents of a DocType whose name contains the query text.",
			Parameters: map[string]ParamSpec{
				"doctype": doctypeParam,
				"query":   reqParam("string", "Search text"),
				"limit":   defParam("integer", "Max results, up to 100", 20),
			},
			ReadOnly:   true,
			Idempotent: true,
		}, k.searchDocuments),
		NewFuncTool(ToolSpec{
			Name:        "get_count",
			Description: "Get the number of documents matching filters.",
			Parameters: map[string]ParamSpec{
				"doctype": doctypeParam,
				"filters": optParam("object", "Filters as an object or JSON string"),
			},
			ReadOnly:   true,
			Idempotent: true,
		}, k.getCount),
		NewFuncTool(ToolSpec{
			Name:        "create_document",
			Description: "Create a new document in ERPNext (saved as Draft).",
			Parameters: map[string]ParamSpec{
				"doctype":    doctypeParam,
				"data":       reqParam("object", "Field values as an object or JSON string"),
				"smart_mode": defParam("boolean", "Fill missing required fields with type defaults", false),
			},
		}, k.createDocument),
		NewFuncTool(ToolSpec{
			Name:        "update_document",
			Description: "Update fields of an existing document.",
			Parameters: map[string]ParamSpec{
				"doctype": doctypeParam,
				"name":    nameParam,
				"data":    reqParam("object", "Fields to update as an object or JSON string"),
			},
			Idempotent: true,
		}, k.updateDocument),
		NewFuncTool(ToolSpec{
			Name:        "delete_document",
			Description: "Delete a document by DocType and name.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam, "name": nameParam},
			Dangerous:   true,
		}, k.deleteDocument),
		NewFuncTool(ToolSpec{
			Name:        "clone_document",
			Description: "Duplicate an existing document as a new draft.",
			Parameters: map[string]ParamSpec{
				"doctype":  doctypeParam,
				"name":     nameParam,
				"new_name": optParam("string", "Name for the copy (default: naming series)"),
			},
		}, k.cloneDocument),
	}
}

func (k *erpKit) getDocument(ctx context.Context, in docInput) (map[string]any, error) {
	res, err := k.client.Get(ctx, erp.ResourcePath(in.Doctype, in.Name), nil)
	if err != nil {
		if erp.IsNotFound(err) {
			return nil, &erp.Error{Kind: erp.KindNotFound, Message: fmt.Sprintf("Not found: %s/%s", in.Doctype, in.Name), Doctype: in.Doctype, Operation: "get", Err: err}
		}
		return nil, erp.WithContext(err, in.Doctype, "get")
	}
	return dataField(res), nil
}

func (k *erpKit) listDocuments(ctx context.Context, in listDocumentsInput) (map[string]any, error) {
	filters, err := in.Filters.Filters()
	if err != nil {
		return nil, err
	}
	orderBy := in.OrderBy
	if orderBy == "" {
		orderBy = "modified desc"
	}
	res, err := k.client.Call(ctx, getListMethod, map[string]any{
		"doctype":           in.Doctype,
		"fields":            csvFields(in.Fields, "name"),
		"filters":           filters,
		"order_by":          orderBy,
		"limit_page_length": clamp(in.Limit.Or(20), 1, 100),
	}, false)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "list")
	}
	list := messageList(res)
	return map[string]any{"doctype": in.Doctype, "count": len(list), "data": list}, nil
}

func (k *erpKit) searchDocuments(ctx context.Context, in searchDocumentsInput) (map[string]any, error) {
	res, err := k.client.Call(ctx, getListMethod, map[string]any{
		"doctype":           in.Doctype,
		"filters":           map[string]any{"name": []any{"like", "%" + in.Query + "%"}},
		"fields":            []string{"name", "modified"},
		"limit_page_length": clamp(in.Limit.Or(20), 1, 100),
	}, false)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "search")
	}
	list := messageList(res)
	return map[string]any{"doctype": in.Doctype, "query": in.Query, "count": len(list), "data": list}, nil
}

func (k *erpKit) getCount(ctx context.Context, in countInput) (map[string]any, error) {
	filters, err := in.Filters.Filters()
	if err != nil {
		return nil, err
	}
	res, err := k.client.Call(ctx, "frappe.client.get_count", map[string]any{
		"doctype": in.Doctype,
		"filters": filters,
	}, false)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "count")
	}
	count := res["message"]
	if count == nil {
		count = 0
	}
	return map[string]any{"doctype": in.Doctype, "count": count}, nil
}

// defaultForFieldtype is the value smart mode puts in a missing required field.
func defaultForFieldtype(fieldtype string) (any, bool) {
	switch fieldtype {
	case "Data":
		return "New Item", true
	case "Int", "Check":
		return 0, true
	case "Float", "Currency", "Percent":
		return 0.0, true
	}
	return nil, false
}

func (k *erpKit) createDocument(ctx context.Context, in createDocumentInput) (map[string]any, error) {
	data, err := in.Data.Object("data")
	if err != nil {
		return nil, err
	}

	var filled []string
	if in.SmartMode {
		filled = k.fillRequired(ctx, in.Doctype, data)
	}

	res, err := k.client.Post(ctx, erp.ResourcePath(in.Doctype), data)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "create")
	}
	name := str(dataField(res)["name"])
	out := map[string]any{
		"success":         true,
		"doctype":         in.Doctype,
		"name":            name,
		"smart_mode_used": bool(in.SmartMode),
		"message":         fmt.Sprintf("Created %s: %s", in.Doctype, name),
	}
	if len(filled) > 0 {
		out["filled_fields"] = filled
	}
	return out, nil
}

// fillRequired sets defaults for required fields absent from data.
// Schema lookup failures are logged and leave data unchanged.
func (k *erpKit) fillRequired(ctx context.Context, doctype string, data map[string]any) []string {
	doc, err := k.doctypeDoc(ctx, doctype, "create")
	if err != nil {
		slog.Warn("smart mode: schema unavailable", "doctype", doctype, "error", err)
		return nil
	}
	var filled []string
	for _, f := range docFields(doc, "fieldname", "fieldtype", "reqd") {
		name := str(f["fieldname"])
		if !truthy(f["reqd"]) {
			continue
		}
		if _, ok := data[name]; ok {
			continue
		}
		if v, ok := defaultForFieldtype(str(f["fieldtype"])); ok {
			data[name] = v
			filled = append(filled, name)
			slog.Debug("smart mode: filled required field", "doctype", doctype, "field", name, "value", v)
		}
	}
	return filled
}

func (k *erpKit) updateDocument(ctx context.Context, in updateDocumentInput) (map[string]any, error) {
	data, err := in.Data.Object("data")
	if err != nil {
		return nil, err
	}
	res, err := k.client.Put(ctx, erp.ResourcePath(in.Doctype, in.Name), data)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "update")
	}
	name := orDefault(str(dataField(res)["name"]), in.Name)
	return map[string]any{
		"success": true,
		"doctype": in.Doctype,
		"name":    name,
		"message": fmt.Sprintf("Updated %s: %s", in.Doctype, name),
	}, nil
}

func (k *erpKit) deleteDocument(ctx context.Context, in docInput) (map[string]any, error) {
	if err := k.delete(ctx, in.Doctype, in.Name); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"doctype": in.Doctype,
		"name":    in.Name,
		"message": fmt.Sprintf("Deleted %s: %s", in.Doctype, in.Name),
	}, nil
}

func (k *erpKit) delete(ctx context.Context, doctype, name string) error {
	_, err := k.client.Call(ctx, "frappe.client.delete", map[string]any{"doctype": doctype, "name": name}, false)
	return erp.WithContext(err, doctype, "delete")
}

func (k *erpKit) cloneDocument(ctx context.Context, in cloneDocumentInput) (map[string]any, error) {
	res, err := k.client.Get(ctx, erp.ResourcePath(in.Doctype, in.Name), nil)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "clone")
	}
	doc := dataField(res)
	for _, f := range cloneStripFields {
		delete(doc, f)
	}
	if in.NewName != "" {
		doc["name"] = in.NewName
	}

	created, err := k.client.Post(ctx, erp.ResourcePath(in.Doctype), doc)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "clone")
	}
	cloneName := str(dataField(created)["name"])
	return map[string]any{
		"success":    true,
		"original":   map[string]any{"doctype": in.Doctype, "name": in.Name},
		"clone":      map[string]any{"doctype": in.Doctype, "name": cloneName},
		"clone_name": cloneName,
		"message":    fmt.Sprintf("Cloned %s: %s -> %s", in.Doctype, in.Name, cloneName),
	}, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != "" && t != "0" && !strings.EqualFold(t, "false")
	}
	return false
}
