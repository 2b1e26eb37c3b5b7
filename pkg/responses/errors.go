package responses

import (
	"errors"

	pkgErrors "code-indexer/pkg/errors"
)

// 接口错误码, HTTP 状态码统一为 200
const (
	CodeSuccess       = 2000000
	CodeBadRequest    = 4000000
	CodeUnauthorized  = 4010000
	CodeForbidden     = 4030000
	CodeNotFound      = 4040000
	CodeConflict      = 4009000
	CodeLocked        = 4230000
	CodeInternalError = 5000000
	CodeDatabaseError = 5001000
	CodeNotSupported  = 5010000
)

// 内部错误码 → 接口错误码, 未列出的按 CodeInternalError
var codeTable = map[int]int{
	pkgErrors.CodeBadRequest:      CodeBadRequest,
	pkgErrors.CodeValidationError: CodeBadRequest,
	pkgErrors.CodeUnauthorized:    CodeUnauthorized,
	pkgErrors.CodeForbidden:       CodeForbidden,
	pkgErrors.CodeNotFound:        CodeNotFound,
	pkgErrors.CodeConflict:        CodeConflict,
	pkgErrors.CodeLockContention:  CodeLocked,
	pkgErrors.CodeDatabaseError:   CodeDatabaseError,
	pkgErrors.CodeNotImplemented:  CodeNotSupported,
}

// translate 返回接口错误码和对外消息; 非 AppError 的消息原样透出
func translate(err error) (int, string) {
	var argErr *pkgErrors.ArgumentError
	if errors.As(err, &argErr) {
		return CodeBadRequest, argErr.Message
	}
	var appErr *pkgErrors.AppError
	if !errors.As(err, &appErr) {
		return CodeInternalError, err.Error()
	}
	if code, ok := codeTable[appErr.Code]; ok {
		return code, appErr.Message
	}
	return CodeInternalError, appErr.Message
}
