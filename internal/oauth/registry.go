package oauth

import (
	"fmt"
	"sort"
)

// Registry はプロバイダーを名前で解決する。
type Registry struct {
	providers map[string]Provider
}

// NewRegistry は指定プロバイダーを登録したRegistryを生成する。
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get は名前に対応するプロバイダーを返す。未登録の場合はErrUnknownProviderを返す。
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names は登録済みプロバイダー名を昇順で返す。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
