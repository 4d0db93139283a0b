package errors

import (
	stderrors "errors"
	"fmt"
)

// ExitCode 进程退出码
type ExitCode int

const (
	// 0: 成功
	Success ExitCode = 0

	// 1: 通用失败
	Failure ExitCode = 1

	// 5x: 安装冲突
	AlreadyInstalled        ExitCode = 51 // 相同安装方式下已安装
	InstalledViaOtherMethod ExitCode = 52 // 其他安装方式下已安装
)

// CodedError 携带退出码的错误
type CodedError struct {
	Code    ExitCode `json:"code"`
	Message string   `json:"message"`
	Details string   `json:"details,omitempty"`
	err     error
}

// Error 实现error接口
func (e *CodedError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Unwrap 返回被包装的错误
func (e *CodedError) Unwrap() error {
	return e.err
}

// ExitCode 返回退出码
func (e *CodedError) ExitCode() int {
	return int(e.Code)
}

// New 创建带退出码的错误
func New(code ExitCode, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// NewWithDetails 创建带详细信息的错误
func NewWithDetails(code ExitCode, message, details string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Wrap 包装标准错误
func Wrap(code ExitCode, message string, err error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Details: err.Error(),
		err:     err,
	}
}

// exitCoder 能够提供退出码的错误
type exitCoder interface {
	ExitCode() int
}

// ExitCodeOf 从错误链中提取退出码，nil返回0，未声明退出码的错误返回1
func ExitCodeOf(err error) int {
	if err == nil {
		return int(Success)
	}
	var coder exitCoder
	if stderrors.As(err, &coder) {
		return coder.ExitCode()
	}
	return int(Failure)
}
