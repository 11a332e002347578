package domain

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ToolVersionOptions carries user-supplied per-tool options. Declaration
// order is preserved because each option becomes an environment variable
// visible to backend scripts.
type ToolVersionOptions struct {
	kv *orderedmap.OrderedMap[string, string]
}

func NewToolVersionOptions() *ToolVersionOptions {
	return &ToolVersionOptions{kv: orderedmap.New[string, string]()}
}

func (o *ToolVersionOptions) Set(key, value string) *ToolVersionOptions {
	if o == nil {
		o = NewToolVersionOptions()
	}
	o.kv.Set(key, value)
	return o
}

func (o *ToolVersionOptions) Get(key string) (string, bool) {
	if o == nil || o.kv == nil {
		return "", false
	}
	return o.kv.Get(key)
}

func (o *ToolVersionOptions) Len() int {
	if o == nil || o.kv == nil {
		return 0
	}
	return o.kv.Len()
}

// Each visits every option in declaration order.
func (o *ToolVersionOptions) Each(fn func(key, value string)) {
	if o == nil || o.kv == nil {
		return
	}
	for pair := o.kv.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Equal compares two option sets including order; go-cmp picks it up.
func (o *ToolVersionOptions) Equal(other *ToolVersionOptions) bool {
	if o.Len() != other.Len() {
		return false
	}
	equal := true
	type entry struct{ k, v string }
	var otherEntries []entry
	other.Each(func(k, v string) {
		otherEntries = append(otherEntries, entry{k, v})
	})
	i := 0
	o.Each(func(k, v string) {
		if otherEntries[i].k != k || otherEntries[i].v != v {
			equal = false
		}
		i++
	})
	return equal
}

func (o *ToolVersionOptions) String() string {
	var sb strings.Builder
	o.Each(func(k, v string) {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(v)
	})
	return sb.String()
}
