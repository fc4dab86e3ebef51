package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestScanError(t *testing.T) {
	t.Run("basic error creation", func(t *testing.T) {
		err := WrapScanError(CodeScanFailed, "scan failed", nil)
		if err.Code != CodeScanFailed {
			t.Errorf("Expected code %s, got %s", CodeScanFailed, err.Code)
		}
		if err.Context == nil {
			t.Error("Context should be initialized")
		}
		if IsFatal(err) {
			t.Error("Scan failures must not be fatal")
		}
		if err.Error() != "[SCAN_FAILED] scan failed" {
			t.Errorf("Unexpected error message '%s'", err.Error())
		}
	})

	t.Run("wrapped error with target", func(t *testing.T) {
		cause := fmt.Errorf("network error")
		err := WrapScanErrorWithTarget(CodeScanFailed, "run 2 failed", "192.168.1.1", cause)
		expected := "[SCAN_FAILED] run 2 failed (target: 192.168.1.1): network error"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
		if !errors.Is(err, cause) {
			t.Error("Expected wrapped cause to be reachable with errors.Is")
		}
	})

	t.Run("context values", func(t *testing.T) {
		err := WrapScanError(CodeScanFailed, "slow", nil).WithContext("port", 22)
		if err.Context["port"] != 22 {
			t.Errorf("Expected context port 22, got %v", err.Context["port"])
		}
	})
}

func TestPortSpecError(t *testing.T) {
	err := NewPortSpecError("22,abc", "abc", "not a number")
	if !strings.Contains(err.Error(), `"abc"`) {
		t.Errorf("Expected token in message, got '%s'", err.Error())
	}
	if GetCode(err) != CodePortSpec {
		t.Errorf("Expected code %s, got %s", CodePortSpec, GetCode(err))
	}
	if !IsFatal(err) {
		t.Error("Port spec errors must be fatal")
	}
}

func TestResolutionError(t *testing.T) {
	cause := fmt.Errorf("no such host")
	err := NewResolutionError("nope.invalid", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected cause to unwrap")
	}
	if GetCode(err) != CodeResolution {
		t.Errorf("Expected code %s, got %s", CodeResolution, GetCode(err))
	}
	if IsFatal(err) {
		t.Error("Resolution errors must not be fatal")
	}
	if NewResolutionError("x", nil).Error() != `[RESOLUTION] could not resolve "x"` {
		t.Errorf("Unexpected message without cause: %s", NewResolutionError("x", nil).Error())
	}
}

func TestConfigError(t *testing.T) {
	t.Run("field error", func(t *testing.T) {
		err := NewConfigFieldError(CodeValidation, "invalid configuration value", "concurrency", 0)
		expected := "[VALIDATION] invalid configuration value (field: concurrency)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("no targets", func(t *testing.T) {
		err := ErrNoTargets()
		if !IsCode(err, CodeNoTargets) {
			t.Errorf("Expected code %s", CodeNoTargets)
		}
		if !IsFatal(err) {
			t.Error("Missing targets must be fatal")
		}
	})

	t.Run("wrapped in fmt error chain", func(t *testing.T) {
		err := fmt.Errorf("loading: %w", ErrConfigMissing("scanning.ports"))
		if GetCode(err) != CodeConfiguration {
			t.Errorf("Expected code %s, got %s", CodeConfiguration, GetCode(err))
		}
	})
}

func TestGetCodeUnknown(t *testing.T) {
	if GetCode(fmt.Errorf("plain")) != CodeUnknown {
		t.Error("Expected unknown code for plain errors")
	}
	if IsCode(nil, CodeUnknown) {
		t.Error("nil error should not match any code")
	}
}
