package tools

import (
	"context"
	"fmt"

	"github.com/dohr-michael/bizclaw/internal/erp"
)

// linkedDocsPreview bounds the documents listed per linked DocType.
const linkedDocsPreview = 10

type amendDocumentInput struct {
	Doctype string   `json:"doctype"`
	Name    string   `json:"name"`
	Data    flexJSON `json:"data"`
}

func (k *erpKit) workflowTools() []NativeTool {
	return []NativeTool{
		NewFuncTool(ToolSpec{
			Name:        "submit_document",
			Description: "Submit a document (for transacted DocTypes like Sales Order).",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam, "name": nameParam},
		}, k.submitDocument),
		NewFuncTool(ToolSpec{
			Name:        "cancel_document",
			Description: "Cancel a submitted document.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam, "name": nameParam},
			Dangerous:   true,
		}, k.cancelDocument),
		NewFuncTool(ToolSpec{
			Name:        "amend_document",
			Description: "Create an amendment (new version) of a cancelled document.",
			Parameters: map[string]ParamSpec{
				"doctype": doctypeParam,
				"name":    nameParam,
				"data":    optParam("object", "Updated field values as an object or JSON string"),
			},
		}, k.amendDocument),
		NewFuncTool(ToolSpec{
			Name:        "get_document_history",
			Description: "Get the version history (audit trail) of a document.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam, "name": nameParam},
			ReadOnly:    true,
			Idempotent:  true,
		}, k.getDocumentHistory),
		NewFuncTool(ToolSpec{
			Name:        "get_linked_documents",
			Description: "Get the documents linked to a given document, grouped by DocType.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam, "name": nameParam},
			ReadOnly:    true,
			Idempotent:  true,
		}, k.getLinkedDocuments),
	}
}

func (k *erpKit) submitDocument(ctx context.Context, in docInput) (map[string]any, error) {
	res, err := k.client.Call(ctx, "frappe.client.submit", map[string]any{
		"doc": map[string]any{"doctype": in.Doctype, "name": in.Name},
	}, true)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "submit")
	}
	result := res["message"]
	if result == nil {
		result = map[string]any{}
	}
	return map[string]any{
		"success": true,
		"doctype": in.Doctype,
		"name":    in.Name,
		"message": fmt.Sprintf("Submitted %s: %s", in.Doctype, in.Name),
		"result":  result,
	}, nil
}

func (k *erpKit) cancelDocument(ctx context.Context, in docInput) (map[string]any, error) {
	_, err := k.client.Call(ctx, "frappe.client.cancel", map[string]any{
		"doctype": in.Doctype,
		"name":    in.Name,
	}, true)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "cancel")
	}
	return map[string]any{
		"success": true,
		"doctype": in.Doctype,
		"name":    in.Name,
		"message": fmt.Sprintf("Cancelled %s: %s", in.Doctype, in.Name),
	}, nil
}

// amendDocument re-creates a cancelled document with data overlaid and amended_from set.
func (k *erpKit) amendDocument(ctx context.Context, in amendDocumentInput) (map[string]any, error) {
	data, err := in.Data.Object("data")
	if err != nil {
		return nil, err
	}
	res, err := k.client.Get(ctx, erp.ResourcePath(in.Doctype, in.Name), nil)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "amend")
	}
	doc := dataField(res)
	for _, f := range cloneStripFields {
		delete(doc, f)
	}
	for key, v := range data {
		doc[key] = v
	}
	doc["amended_from"] = in.Name

	created, err := k.client.Post(ctx, erp.ResourcePath(in.Doctype), doc)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "amend")
	}
	newName := str(dataField(created)["name"])
	return map[string]any{
		"success":       true,
		"doctype":       in.Doctype,
		"original_name": in.Name,
		"new_name":      newName,
		"message":       fmt.Sprintf("Created amendment of %s: %s -> %s", in.Doctype, in.Name, newName),
	}, nil
}

func (k *erpKit) getDocumentHistory(ctx context.Context, in docInput) (map[string]any, error) {
	res, err := k.client.Call(ctx, getListMethod, map[string]any{
		"doctype":           "Version",
		"filters":           map[string]any{"ref_doctype": in.Doctype, "docname": in.Name},
		"fields":            []string{"name", "modified", "modified_by"},
		"order_by":          "modified desc",
		"limit_page_length": 20,
	}, false)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "get_history")
	}
	history := []any{}
	for _, e := range messageList(res) {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		history = append(history, map[string]any{
			"version":     m["name"],
			"modified":    m["modified"],
			"modified_by": m["modified_by"],
		})
	}
	return map[string]any{
		"doctype":       in.Doctype,
		"name":          in.Name,
		"version_count": len(history),
		"history":       history,
	}, nil
}

func (k *erpKit) getLinkedDocuments(ctx context.Context, in docInput) (map[string]any, error) {
	res, err := k.client.Call(ctx, "frappe.desk.search.get_linked_docs", map[string]any{
		"doctype": in.Doctype,
		"docname": in.Name,
	}, false)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "get_linked")
	}
	linked := map[string]any{}
	groups, _ := res["message"].(map[string]any)
	for linkDoctype, v := range groups {
		docs, ok := v.([]any)
		if !ok {
			continue
		}
		preview := make([]any, 0, min(len(docs), linkedDocsPreview))
		for _, d := range docs[:min(len(docs), linkedDocsPreview)] {
			if m, ok := d.(map[string]any); ok {
				preview = append(preview, map[string]any{"name": m["name"]})
			}
		}
		linked[linkDoctype] = map[string]any{"count": len(docs), "documents": preview}
	}
	return map[string]any{"doctype": in.Doctype, "name": in.Name, "linked_docs": linked}, nil
}
