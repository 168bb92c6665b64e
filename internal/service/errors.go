package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrBodyEmpty            = errors.New("消息内容不能为空")
	ErrSelfConversation     = errors.New("不能和自己建立会话")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrNotMember            = errors.New("不是该会话成员")
	ErrConflictRetry        = errors.New("并发冲突，请稍后重试")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrBodyEmpty:            BadRequest,
	ErrSelfConversation:     BadRequest,
	ErrConversationNotFound: NotFound,
	ErrNotMember:            Forbidden,
	ErrConflictRetry:        Conflict,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}
