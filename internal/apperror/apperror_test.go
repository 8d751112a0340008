package apperror

import (
	"errors"
	"testing"
)

func TestNewUsesDefaultMessage(t *testing.T) {
	err := New(CodeNotEnrolled, nil)
	if err.Code != CodeNotEnrolled {
		t.Fatalf("code = %v, want %v", err.Code, CodeNotEnrolled)
	}
	if err.Error() != "user not enrolled" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestErrorWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := New(CodeStorage, cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the cause to errors.Is")
	}
	if err.Error() != "storage operation failed: disk full" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestNewfCustomMessage(t *testing.T) {
	err := Newf(CodeAuthorization, nil, "uid %d may not enroll as %q", 1001, "alice")
	if err.Error() != `uid 1001 may not enroll as "alice"` {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestIs(t *testing.T) {
	var err error = New(CodeTimeout, nil)
	if !Is(err, CodeTimeout) {
		t.Fatal("expected Is to match CodeTimeout")
	}
	if Is(err, CodeCapture) {
		t.Fatal("did not expect Is to match CodeCapture")
	}
	if Is(errors.New("plain"), CodeTimeout) {
		t.Fatal("Is should return false for non-AppError values")
	}
}
