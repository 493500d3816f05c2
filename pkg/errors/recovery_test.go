package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "Pipeline.Run")
		panic("index out of range")
	}

	err := testFunc()
	if err == nil {
		t.Fatal("Expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "Pipeline.Run" {
		t.Errorf("Expected operation 'Pipeline.Run', got '%s'", panicErr.Operation)
	}
	if panicErr.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}
	if want := "panic in Pipeline.Run: index out of range"; panicErr.Error() != want {
		t.Errorf("Error() = %q, want %q", panicErr.Error(), want)
	}
}

func TestRecover_WithoutPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "Pipeline.Run")
		return nil
	}
	if err := testFunc(); err != nil {
		t.Fatalf("Expected no error when no panic occurs, got: %v", err)
	}
}

func TestRecover_WithExistingError(t *testing.T) {
	originalErr := fmt.Errorf("original error")

	testFunc := func() (err error) {
		defer Recover(&err, "Job.Run")
		err = originalErr
		panic("panic after error")
	}

	err := testFunc()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "panic in Job.Run") || !strings.Contains(msg, "original error") {
		t.Errorf("unexpected message: %s", msg)
	}
	if !Is(err, originalErr) {
		t.Error("Should be able to identify original error with Is")
	}
}

func TestSafeExecute(t *testing.T) {
	fnErr := fmt.Errorf("function error")

	tests := []struct {
		name      string
		fn        func() error
		wantErr   error
		wantPanic bool
	}{
		{name: "success", fn: func() error { return nil }},
		{name: "function error", fn: func() error { return fnErr }, wantErr: fnErr},
		{name: "panic", fn: func() error { panic("boom") }, wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeExecute("convert", tt.fn)
			if tt.wantPanic {
				var panicErr *PanicError
				if !As(err, &panicErr) {
					t.Fatalf("Expected PanicError, got %v", err)
				}
				if panicErr.PanicValue != "boom" {
					t.Errorf("PanicValue = %v, want boom", panicErr.PanicValue)
				}
				return
			}
			if err != tt.wantErr {
				t.Errorf("SafeExecute() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPanicError_String(t *testing.T) {
	panicErr := NewPanicError("TestOp", 42)
	s := panicErr.String()
	if !strings.Contains(s, "panic in TestOp: 42") || !strings.Contains(s, "Stack trace:") {
		t.Errorf("String() = %q", s)
	}
}
