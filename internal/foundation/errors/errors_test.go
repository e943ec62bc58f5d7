package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "config.yml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "config.yml" {
			t.Errorf("expected context file=config.yml, got %v", file)
		}
	})

	t.Run("Category survives wrapping", func(t *testing.T) {
		inner := UnknownAliasError("x", []string{"a", "b"})
		wrapped := fmt.Errorf("prepare: %w", inner)

		if !HasCategory(wrapped, CategoryUnknownAlias) {
			t.Error("expected wrapped error to keep unknown_alias category")
		}
		if GetCategory(wrapped) != CategoryUnknownAlias {
			t.Errorf("unexpected category %s", GetCategory(wrapped))
		}
	})

	t.Run("Category of cause is found", func(t *testing.T) {
		err := ModuleError("svc", "shutdown", Interrupted(""))
		if !HasCategory(err, CategoryModule) || !HasCategory(err, CategoryInterrupted) {
			t.Error("expected both module and interrupted categories in chain")
		}
		if !IsInterrupt(err) {
			t.Error("expected interrupt to be detected through module error")
		}
	})
}

func TestTaxonomy(t *testing.T) {
	cause := errors.New("not registered")
	err := ModuleLoadError("jm", "jmeter", cause)
	if !errors.Is(err, cause) {
		t.Error("module load error must wrap its cause")
	}
	if !strings.Contains(UnknownAliasError("x", []string{"a", "b"}).Error(), "[a, b]") {
		t.Error("unknown alias message must list aliases")
	}
	if !IsManualShutdown(ManualShutdown("")) || IsManualShutdown(NormalShutdown("")) {
		t.Error("shutdown signals must be distinguishable")
	}
	if !IsInterrupt(fmt.Errorf("wrapped: %w", context.Canceled)) {
		t.Error("context cancellation counts as interrupt")
	}
}

func TestCLIErrorAdapter(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, nil)

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"normal shutdown", NormalShutdown(""), 0},
		{"manual shutdown", ManualShutdown(""), 130},
		{"format", FormatDetectionError("a.txt"), 7},
		{"alias", UnknownAliasError("x", nil), 9},
		{"module", ModuleError("a", "check", errors.New("x")), 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tc.err); got != tc.code {
				t.Errorf("expected exit code %d, got %d", tc.code, got)
			}
		})
	}

	var sb strings.Builder
	if code := adapter.Report(&sb, MissingConfigError("Please configure provisioning settings")); code != 7 {
		t.Errorf("unexpected exit code %d", code)
	}
	if !strings.Contains(sb.String(), "Please configure provisioning settings") {
		t.Errorf("unexpected message %q", sb.String())
	}
}
