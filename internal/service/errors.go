package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrContentEmpty         = errors.New("消息内容不能为空")
	ErrContentTooLong       = errors.New("消息内容超长")
	ErrTargetUserInvalid    = errors.New("目标用户无效")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrMessageNotFound      = errors.New("消息不存在")
	ErrNotParticipant       = errors.New("不是会话成员")
	ErrNotRecipient         = errors.New("只有接收方可以标记已读")
	ErrPeerUnreachable      = errors.New("对方不在线")
	ErrPersistFailed        = errors.New("消息保存失败，请重试")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrContentEmpty:         BadRequest,
	ErrContentTooLong:       BadRequest,
	ErrTargetUserInvalid:    BadRequest,
	ErrUserNotFound:         NotFound,
	ErrMessageNotFound:      NotFound,
	ErrNotParticipant:       Forbidden,
	ErrNotRecipient:         Forbidden,
	ErrPeerUnreachable:      BadRequest,
	ErrPersistFailed:        InternalServerError,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}
