package route

import (
	"strings"
	"sync"
)

// AssetTypePrefix is the builtin predicate form "asset-type=<value>".
const AssetTypePrefix = "asset-type="

var (
	predicatesMutex sync.RWMutex
	predicates      = map[string]func(Context) bool{}
)

// RegisterPredicate binds a custom condition key usable in definitions.
// Registration happens at service start, definitions referencing an
// unregistered key are rejected at publish time.
func RegisterPredicate(key string, eval func(Context) bool) {
	predicatesMutex.Lock()
	defer predicatesMutex.Unlock()
	predicates[key] = eval
}

// Matches evaluates a custom predicate key against the context. Unknown
// keys evaluate false, publish validation keeps them out of definitions.
func Matches(key string, ctx Context) bool {
	if strings.HasPrefix(key, AssetTypePrefix) {
		return ctx.AssetType == strings.TrimPrefix(key, AssetTypePrefix)
	}

	predicatesMutex.RLock()
	eval, found := predicates[key]
	predicatesMutex.RUnlock()
	if !found {
		return false
	}
	return eval(ctx)
}

// KnownCondition reports whether a condition key may appear in a published
// definition.
func KnownCondition(key string) bool {
	if strings.HasPrefix(key, AssetTypePrefix) {
		return strings.TrimPrefix(key, AssetTypePrefix) != ""
	}
	predicatesMutex.RLock()
	defer predicatesMutex.RUnlock()
	_, found := predicates[key]
	return found
}
