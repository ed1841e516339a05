package board

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

var (
	muRegistry sync.RWMutex
	families   = map[string]Family{}
	plans      = map[string]Plan{}
)

// RegisterFamily installs a peripheral family under its descriptor tag.
// It panics on duplicate registration to catch mistakes at start-up.
func RegisterFamily(f Family) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	name := f.Name()
	if name == "" || f.New == nil {
		panic("board: incomplete family registration")
	}
	if _, exists := families[name]; exists {
		panic(fmt.Sprintf("board: family already registered %q", name))
	}
	families[name] = f
}

// LookupFamily finds a registered family by tag.
func LookupFamily(name string) (Family, bool) {
	muRegistry.RLock()
	defer muRegistry.RUnlock()
	f, ok := families[name]
	return f, ok
}

// RegisterPlan installs a board plan. Every family it names must already be
// registered.
func RegisterPlan(p Plan) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if p.Name == "" {
		panic("board: empty plan name")
	}
	if _, exists := plans[p.Name]; exists {
		panic(fmt.Sprintf("board: plan already registered %q", p.Name))
	}
	for _, fam := range p.Families {
		if _, ok := families[fam]; !ok {
			panic(fmt.Sprintf("board: plan %q names unknown family %q", p.Name, fam))
		}
	}
	plans[p.Name] = p
}

// LookupPlan finds a registered plan by board name.
func LookupPlan(name string) (Plan, bool) {
	muRegistry.RLock()
	defer muRegistry.RUnlock()
	p, ok := plans[name]
	return p, ok
}

// PlanNames lists the registered boards in lexical order.
func PlanNames() []string {
	muRegistry.RLock()
	defer muRegistry.RUnlock()
	return slices.Sorted(maps.Keys(plans))
}
