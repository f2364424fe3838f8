package tools

import (
	"context"
	"fmt"

	"github.com/dohr-michael/bizclaw/internal/erp"
)

// exportLimit caps the documents returned by export_documents.
const exportLimit = 1000

type bulkDataInput struct {
	Doctype string   `json:"doctype"`
	Data    flexJSON `json:"data"`
}

type bulkDeleteInput struct {
	Doctype string   `json:"doctype"`
	Names   flexJSON `json:"names"`
}

type importInput struct {
	Doctype        string   `json:"doctype"`
	Data           flexJSON `json:"data"`
	UpdateExisting flexBool `json:"update_existing"`
}

type exportInput struct {
	Doctype string   `json:"doctype"`
	Filters flexJSON `json:"filters"`
	Fields  string   `json:"fields"`
}

func (k *erpKit) bulkTools() []NativeTool {
	docsParam := reqParam("array", "Documents as an array or JSON string")
	docsParam.Items = &ParamSpec{Type: "object"}
	updatesParam := reqParam("array", "Updates as [{\"name\": ..., \"data\": {...}}] or JSON string")
	updatesParam.Items = &ParamSpec{Type: "object"}
	namesParam := reqParam("array", "Document names as an array or JSON string")
	namesParam.Items = &ParamSpec{Type: "string"}

	return []NativeTool{
		NewFuncTool(ToolSpec{
			Name:        "bulk_create_documents",
			Description: "Create multiple documents in a single operation.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam, "data": docsParam},
		}, k.bulkCreate),
		NewFuncTool(ToolSpec{
			Name:        "bulk_update_documents",
			Description: "Update multiple documents in a single operation.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam, "data": updatesParam},
			Idempotent:  true,
		}, k.bulkUpdate),
		NewFuncTool(ToolSpec{
			Name:        "bulk_delete_documents",
			Description: "Delete multiple documents in a single operation.",
			Parameters:  map[string]ParamSpec{"doctype": doctypeParam, "names": namesParam},
			Dangerous:   true,
		}, k.bulkDelete),
		NewFuncTool(ToolSpec{
			Name:        "import_documents",
			Description: "Import documents from JSON data, optionally updating existing ones by name.",
			Parameters: map[string]ParamSpec{
				"doctype":         doctypeParam,
				"data":            docsParam,
				"update_existing": defParam("boolean", "Update documents that carry a name instead of creating them", false),
			},
		}, k.importDocuments),
		NewFuncTool(ToolSpec{
			Name:        "export_documents",
			Description: "Export documents of a DocType as JSON.",
			Parameters: map[string]ParamSpec{
				"doctype": doctypeParam,
				"filters": optParam("object", "Filters as an object or JSON string (default: all)"),
				"fields":  defParam("string", "Comma-separated fields or \"*\" for all", "*"),
			},
			ReadOnly:   true,
			Idempotent: true,
		}, k.exportDocuments),
	}
}

// objects returns the list elements of v, failing on non-object elements.
func objects(v flexJSON, param string) ([]map[string]any, error) {
	list, err := v.List(param)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(list))
	for i, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, erp.Errorf(erp.KindInvalidInput, "%s[%d] must be a JSON object", param, i)
		}
		out[i] = m
	}
	return out, nil
}

func (k *erpKit) createOne(ctx context.Context, doctype string, doc map[string]any) (string, error) {
	res, err := k.client.Post(ctx, erp.ResourcePath(doctype), doc)
	if err != nil {
		return "", err
	}
	return str(dataField(res)["name"]), nil
}

func (k *erpKit) bulkCreate(ctx context.Context, in bulkDataInput) (map[string]any, error) {
	docs, err := objects(in.Data, "data")
	if err != nil {
		return nil, err
	}
	res := erp.Bulk(ctx, len(docs), k.bulkConcurrency, func(ctx context.Context, i int) (erp.BulkItem, error) {
		name, err := k.createOne(ctx, in.Doctype, docs[i])
		return erp.BulkItem{Name: name}, err
	})
	return res.Map(map[string]any{"doctype": in.Doctype}), nil
}

func (k *erpKit) bulkUpdate(ctx context.Context, in bulkDataInput) (map[string]any, error) {
	updates, err := objects(in.Data, "data")
	if err != nil {
		return nil, err
	}
	res := erp.Bulk(ctx, len(updates), k.bulkConcurrency, func(ctx context.Context, i int) (erp.BulkItem, error) {
		name := str(updates[i]["name"])
		if name == "" {
			return erp.BulkItem{}, erp.Errorf(erp.KindInvalidInput, "Missing 'name' field")
		}
		data, _ := updates[i]["data"].(map[string]any)
		if data == nil {
			data = map[string]any{}
		}
		_, err := k.client.Put(ctx, erp.ResourcePath(in.Doctype, name), data)
		return erp.BulkItem{Name: name}, err
	})
	return res.Map(map[string]any{"doctype": in.Doctype}), nil
}

func (k *erpKit) bulkDelete(ctx context.Context, in bulkDeleteInput) (map[string]any, error) {
	list, err := in.Names.List("names")
	if err != nil {
		return nil, err
	}
	res := erp.Bulk(ctx, len(list), k.bulkConcurrency, func(ctx context.Context, i int) (erp.BulkItem, error) {
		name := str(list[i])
		return erp.BulkItem{Name: name}, k.delete(ctx, in.Doctype, name)
	})
	return res.Map(map[string]any{"doctype": in.Doctype}), nil
}

func (k *erpKit) importDocuments(ctx context.Context, in importInput) (map[string]any, error) {
	docs, err := objects(in.Data, "data")
	if err != nil {
		return nil, err
	}
	res := erp.Bulk(ctx, len(docs), k.bulkConcurrency, func(ctx context.Context, i int) (erp.BulkItem, error) {
		doc := docs[i]
		if name := str(doc["name"]); in.UpdateExisting && name != "" {
			_, err := k.client.Put(ctx, erp.ResourcePath(in.Doctype, name), doc)
			return erp.BulkItem{Name: name, Operation: "update"}, err
		}
		name, err := k.createOne(ctx, in.Doctype, doc)
		return erp.BulkItem{Name: name, Operation: "create"}, err
	})
	return res.Map(map[string]any{
		"doctype":         in.Doctype,
		"update_existing": bool(in.UpdateExisting),
	}), nil
}

func (k *erpKit) exportDocuments(ctx context.Context, in exportInput) (map[string]any, error) {
	filters, err := in.Filters.Filters()
	if err != nil {
		return nil, err
	}
	res, err := k.client.Call(ctx, getListMethod, map[string]any{
		"doctype":           in.Doctype,
		"filters":           filters,
		"fields":            csvFields(in.Fields, "*"),
		"limit_page_length": exportLimit,
	}, false)
	if err != nil {
		return nil, erp.WithContext(err, in.Doctype, "export")
	}
	docs := messageList(res)
	return map[string]any{
		"doctype":      in.Doctype,
		"export_count": len(docs),
		"filters":      filters,
		"data":         docs,
		"message":      fmt.Sprintf("Exported %d %s document(s)", len(docs), in.Doctype),
	}, nil
}
