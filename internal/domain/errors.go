package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeUnsupported     ErrorCode = "UNSUPPORTED"
	CodeUnavailable     ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond   ErrorCode = "FAILED_PRECONDITION"
	CodeInternal        ErrorCode = "INTERNAL"
)

// ErrNoRepositoryURL is returned when a plugin install has neither a bound
// git URL nor a registry entry for its name.
var ErrNoRepositoryURL = errors.New("no repository url known for plugin")

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Cause:   existing.Cause,
		}
	}
	return E(code, op, msg, err)
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	var notFound *VersionNotFoundError
	if errors.As(err, &notFound) {
		return CodeNotFound, true
	}
	var notInstalled *PluginNotInstalledError
	if errors.As(err, &notInstalled) {
		return CodeFailedPrecond, true
	}
	var script *ScriptError
	if errors.As(err, &script) {
		return CodeUnavailable, true
	}
	if errors.Is(err, ErrNoRepositoryURL) {
		return CodeNotFound, true
	}
	return "", false
}

// ScriptError reports a backend script that exited non-zero. Stderr holds
// the captured diagnostic output for user display.
type ScriptError struct {
	Script   string
	ExitCode int
	Stderr   string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s exited with code %d", e.Script, e.ExitCode)
}

type VersionNotFoundError struct {
	Plugin  string
	Version string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("version %s not found for plugin %s", e.Version, e.Plugin)
}

type PluginNotInstalledError struct {
	Plugin string
}

func (e *PluginNotInstalledError) Error() string {
	return fmt.Sprintf("plugin %s is not installed", e.Plugin)
}
