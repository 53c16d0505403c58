package schema

import (
	"strconv"
	"strings"

	"toolvet/internal/logging"
)

// maxRefDepth bounds chained $ref resolution so reference cycles cannot
// hang normalization.
const maxRefDepth = 32

// deref resolves internal $ref nodes against the document root. Resolution
// failures are swallowed: the original node is returned and normalization
// proceeds with it. External references are never followed.
func deref(node map[string]any, root map[string]any) map[string]any {
	current := node
	for depth := 0; depth < maxRefDepth; depth++ {
		refVal, ok := current["$ref"]
		if !ok {
			return current
		}
		ref, ok := refVal.(string)
		if !ok {
			return current
		}

		resolved, ok := resolvePointer(root, ref)
		if !ok {
			logging.SchemaDebug("Unresolvable $ref %q, using original node", ref)
			return current
		}
		current = resolved
	}

	logging.SchemaDebug("$ref chain exceeded depth %d, using last node", maxRefDepth)
	return current
}

// resolvePointer walks a JSON Pointer of the form "#/a/b/0" from root.
func resolvePointer(root map[string]any, ref string) (map[string]any, bool) {
	if root == nil || !strings.HasPrefix(ref, "#") {
		return nil, false
	}

	pointer := strings.TrimPrefix(ref, "#")
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return root, true
	}

	var current any = root
	for _, part := range strings.Split(pointer, "/") {
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")

		switch v := current.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}

	result, ok := current.(map[string]any)
	return result, ok
}
