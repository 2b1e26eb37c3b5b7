package errors

import (
	"errors"
	"fmt"
)

// 错误码
const (
	CodeSuccess          = 200
	CodeBadRequest       = 400
	CodeUnauthorized     = 401
	CodeForbidden        = 403
	CodeNotFound         = 404
	CodeConflict         = 409
	CodeLockContention   = 423
	CodeInternalError    = 500
	CodeDatabaseError    = 501
	CodeNotImplemented   = 502
	CodeValidationError  = 503
	CodeConfigurationErr = 510
	CodeSubprocessError  = 511
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较, 使 errors.Is(err, ErrLockContention) 对 Wrap 之后的错误同样生效
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode 判断错误链中是否存在指定错误码
func HasCode(err error, code int) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// 预定义错误
var (
	ErrBadRequest      = New(CodeBadRequest, "请求参数错误")
	ErrUnauthorized    = New(CodeUnauthorized, "未授权")
	ErrNotFound        = New(CodeNotFound, "资源不存在")
	ErrConflict        = New(CodeConflict, "资源冲突")
	ErrInternalError   = New(CodeInternalError, "内部服务器错误")
	ErrDatabaseError   = New(CodeDatabaseError, "数据库错误")
	ErrValidationError = New(CodeValidationError, "数据验证失败")
	ErrInvalidToken    = New(CodeUnauthorized, "无效的Token")
	ErrTokenExpired    = New(CodeUnauthorized, "Token已过期")
	ErrRecordNotFound  = New(CodeNotFound, "记录不存在")

	// ErrLockContention 租约被占用, 由调用方转换为延迟重试
	ErrLockContention = New(CodeLockContention, "lease is held by another worker")
)

// ConfigurationError 未配置 adapter/connection, 在启动子进程之前返回
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// SubprocessError 外部进程非零退出(包括超时), Output 为采集到的诊断输出
type SubprocessError struct {
	Operation  string
	ExitStatus int
	Output     string
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("%s process exited with status %d: %s", e.Operation, e.ExitStatus, e.Output)
}

// ArgumentError 参数非法, 例如未注册的调度任务
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Message
}

// NotImplementedError 调度任务既没有 dispatch 也没有 execute
type NotImplementedError struct {
	Message string
}

func (e *NotImplementedError) Error() string {
	return e.Message
}
