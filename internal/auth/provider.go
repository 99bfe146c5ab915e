package auth

import (
	"context"
	"fmt"

	"github.com/hitoshi/taskboard/internal/model"
)

// OAuthProvider はWebフロー（認可コード交換）での認証プロバイダーのインターフェース。
// 実装はプロバイダーごとに1つの構造体とし、Registryで選択する。
type OAuthProvider interface {
	// AuthCodeURL はOAuth認可URLを生成する。
	AuthCodeURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、検証用の生IDトークンを返す。
	ExchangeCode(ctx context.Context, code string) (rawIDToken string, err error)
}

// Registry はprovider種別からOAuthProvider実装を選択する。
type Registry struct {
	providers map[model.Provider]OAuthProvider
}

// NewRegistry はRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[model.Provider]OAuthProvider),
	}
}

// Register はprovider実装を登録する。
func (r *Registry) Register(p model.Provider, impl OAuthProvider) {
	r.providers[p] = impl
}

// Get は指定providerの実装を返す。未登録または許可リスト外の場合はエラー。
func (r *Registry) Get(p model.Provider) (OAuthProvider, error) {
	if !p.IsSupported() {
		return nil, model.NewUnsupportedProviderError(string(p))
	}
	impl, ok := r.providers[p]
	if !ok {
		return nil, fmt.Errorf("oauth provider not registered: %s", p)
	}
	return impl, nil
}
