package tools

import (
	"sort"

	"github.com/BaSui01/nifimcp/nifi"
)

// Catalog 返回闸门允许的全部工具，按名称排序；extra 与引擎工具一起过闸门
func Catalog(client *nifi.Client, gate ReadGate, extra ...ToolSpec) []ToolSpec {
	all := append(readTools(client), writeTools(client)...)
	all = append(all, extra...)
	specs := gate.Filter(all)
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}
