package auth

import "context"

// RoleAdmin 可以调用清缓存等管理接口
const RoleAdmin = "admin"

// Identity 是通过 JWT 校验后挂在请求 context 上的调用方身份
type Identity struct {
	Subject string
	Role    string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
