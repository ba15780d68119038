package v1

import (
	"context"
	"log/slog"
)

const ANONYMOUS_USER = "anonymous"

type UserInfo interface {
	GetUserID() string
}

type _userInfo struct {
	id string
}

func (u *_userInfo) GetUserID() string {
	return u.id
}

// SetupUserInfo 身份由上游网关认证，这里只读取其注入的用户 id
func SetupUserInfo(ctx context.Context) UserInfo {
	id, ok := InjectUserID(ctx)
	if !ok {
		slog.Warn("Not found user in context", slog.String("component", "logic.v1.setupUserInfo"))
		id = ANONYMOUS_USER
	}
	return &_userInfo{id: id}
}
