package mailroom

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-mailroom/core"
)

// ProviderPack is a named set of webhook adapters registered as one unit,
// typically a downstream module contributing its own email providers.
type ProviderPack struct {
	Name     string
	Adapters []core.ProviderAdapter
}

// ExtractorPack contributes a named OCR engine that downstream wiring can
// select by name.
type ExtractorPack struct {
	Name      string
	Extractor core.Extractor
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks is the downstream composition seam: provider packs,
// extractor packs and command/query bundles accumulate here before the
// runtime is assembled.
type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks  map[string]ProviderPack
	extractorPacks map[string]ExtractorPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks:  map[string]ProviderPack{},
		extractorPacks: map[string]ExtractorPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("mailroom: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("mailroom: provider pack name is required")
	}
	if len(pack.Adapters) == 0 {
		return fmt.Errorf("mailroom: provider pack %q has no adapters", name)
	}

	normalized := ProviderPack{
		Name:     name,
		Adapters: append([]core.ProviderAdapter(nil), pack.Adapters...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("mailroom: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterExtractorPack(pack ExtractorPack) error {
	if h == nil {
		return fmt.Errorf("mailroom: extension hooks are nil")
	}
	name := strings.TrimSpace(strings.ToLower(pack.Name))
	if name == "" {
		return fmt.Errorf("mailroom: extractor pack name is required")
	}
	if pack.Extractor == nil {
		return fmt.Errorf("mailroom: extractor pack %q has no extractor", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.extractorPacks[name]; exists {
		return fmt.Errorf("mailroom: extractor pack %q already registered", name)
	}
	h.extractorPacks[name] = ExtractorPack{Name: name, Extractor: pack.Extractor}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("mailroom: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("mailroom: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("mailroom: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("mailroom: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) ApplyProviderPacks(registry *core.ProviderRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("mailroom: registry is required")
	}

	for _, pack := range h.ProviderPacks() {
		for _, adapter := range pack.Adapters {
			if adapter == nil {
				return fmt.Errorf("mailroom: provider pack %q contains nil adapter", pack.Name)
			}
			if err := registry.Register(adapter); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("mailroom: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:     pack.Name,
			Adapters: append([]core.ProviderAdapter(nil), pack.Adapters...),
		})
	}
	return out
}

// Extractor resolves a contributed OCR engine by name.
func (h *ExtensionHooks) Extractor(name string) (core.Extractor, bool) {
	if h == nil {
		return nil, false
	}
	name = strings.TrimSpace(strings.ToLower(name))
	h.mu.RLock()
	defer h.mu.RUnlock()
	pack, ok := h.extractorPacks[name]
	if !ok {
		return nil, false
	}
	return pack.Extractor, true
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
