package document

import (
	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
)

// Merge inserts fragCtx into data at path. Intermediate mappings are created
// as needed; a non-mapping value found on the path is replaced. Keys of
// fragCtx update the mapping at path, so fragments sharing a path each
// contribute their own keys.
func Merge(data map[string]any, path []string, fragCtx map[string]any) {
	target := data
	for _, key := range path {
		next, ok := target[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			target[key] = next
		}
		target = next
	}
	for k, v := range fragCtx {
		target[k] = docparam.DeepCopy(v)
	}
}
