package tools

import (
	"fmt"
	"slices"

	"github.com/dohr-michael/bizclaw/internal/erp"
)

// ERPManifestName is the manifest all ERPNext catalog tools are registered under.
const ERPManifestName = "erpnext"

// erpKit holds what the ERPNext tools share.
type erpKit struct {
	client          *erp.Client
	bulkConcurrency int
}

// RegisterERPTools registers the ERPNext tool catalog. Tools named in disabled are skipped.
func RegisterERPTools(r *ToolRegistry, client *erp.Client, bulkConcurrency int, disabled []string) error {
	k := &erpKit{client: client, bulkConcurrency: bulkConcurrency}

	var enabled []NativeTool
	for _, t := range slices.Concat(
		k.systemTools(),
		k.metaTools(),
		k.documentTools(),
		k.workflowTools(),
		k.bulkTools(),
		k.adminTools(),
	) {
		if slices.Contains(disabled, t.Spec().Name) {
			continue
		}
		enabled = append(enabled, t)
	}

	manifest := &Manifest{
		Name:        ERPManifestName,
		Description: "ERPNext REST API tools",
		Provider:    "native",
	}
	for _, t := range enabled {
		manifest.Tools = append(manifest.Tools, *t.Spec())
	}
	for _, t := range enabled {
		if err := r.RegisterNative(t.Spec().Name, t, manifest); err != nil {
			return fmt.Errorf("register %s: %w", t.Spec().Name, err)
		}
	}
	return nil
}

func reqParam(typ, desc string) ParamSpec {
	return ParamSpec{Type: typ, Description: desc, Required: true}
}

func optParam(typ, desc string) ParamSpec {
	return ParamSpec{Type: typ, Description: desc}
}

func defParam(typ, desc string, def any) ParamSpec {
	return ParamSpec{Type: typ, Description: desc, Default: def}
}

var (
	doctypeParam = reqParam("string", "DocType name (e.g. \"Customer\", \"Sales Order\")")
	nameParam    = reqParam("string", "Document name/ID")
)
