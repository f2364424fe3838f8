package tools

import (
	"github.com/cloudwego/eino/schema"
)

var dataTypes = map[string]schema.DataType{
	"string":  schema.String,
	"number":  schema.Number,
	"integer": schema.Integer,
	"boolean": schema.Boolean,
	"array":   schema.Array,
	"object":  schema.Object,
}

// ToolInfo describes the spec in eino terms. Unknown parameter types are
// treated as strings.
func (s *ToolSpec) ToolInfo() *schema.ToolInfo {
	info := &schema.ToolInfo{Name: s.Name, Desc: s.Description}
	if len(s.Parameters) > 0 {
		info.ParamsOneOf = schema.NewParamsOneOfByParams(paramTree(s.Parameters))
	}
	return info
}

func paramTree(params map[string]ParamSpec) map[string]*schema.ParameterInfo {
	tree := make(map[string]*schema.ParameterInfo, len(params))
	for name, p := range params {
		tree[name] = p.parameterInfo()
	}
	return tree
}

func (p ParamSpec) parameterInfo() *schema.ParameterInfo {
	dt, ok := dataTypes[p.Type]
	if !ok {
		dt = schema.String
	}
	pi := &schema.ParameterInfo{Type: dt, Desc: p.Description, Required: p.Required, Enum: p.Enum}
	if p.Items != nil {
		pi.ElemInfo = p.Items.parameterInfo()
	}
	if len(p.Properties) > 0 {
		pi.SubParams = paramTree(p.Properties)
	}
	return pi
}
