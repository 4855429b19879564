package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("bind: %w", Wrap(CodeBindFailed, "listen on [::]:50052", errors.New("address in use")))

	if !errors.Is(err, New(CodeBindFailed, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if errors.Is(err, New(CodeShutdownFailed, "")) {
		t.Fatal("expected different code not to match")
	}
	if !IsCode(err, CodeBindFailed) {
		t.Fatal("expected IsCode to find wrapped code")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeShutdownFailed, "drain server", context.DeadlineExceeded)
	if err.Error() != "drain server: context deadline exceeded" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected cause to be reachable")
	}
	if New(CodeInvalidState, "not bound").Error() != "not bound" {
		t.Fatal("expected bare message without cause")
	}
}

func TestGetCodeUnknownForPlainErrors(t *testing.T) {
	if GetCode(errors.New("plain")) != CodeUnknown {
		t.Fatal("expected unknown code")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeInvalidConfig, codes.InvalidArgument},
		{CodeAlreadyStarted, codes.FailedPrecondition},
		{CodeInvalidState, codes.FailedPrecondition},
		{CodePoolExhausted, codes.ResourceExhausted},
		{CodeBindFailed, codes.Unavailable},
		{CodeModelLoadFailed, codes.Unavailable},
		{CodeShutdownFailed, codes.Internal},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range tests {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.code, tc.want, got)
		}
	}
}

func TestToGRPCStatusAttachesErrorInfo(t *testing.T) {
	err := WithMetadata(CodePoolExhausted, "worker pool exhausted", map[string]string{"size": "10"})

	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.ResourceExhausted {
		t.Fatalf("expected resource exhausted, got %s", st.Code())
	}
	var info *errdetails.ErrorInfo
	for _, detail := range st.Details() {
		if d, ok := detail.(*errdetails.ErrorInfo); ok {
			info = d
		}
	}
	if info == nil {
		t.Fatal("expected ErrorInfo detail")
	}
	if info.GetReason() != string(CodePoolExhausted) {
		t.Fatalf("reason = %q", info.GetReason())
	}
	if info.GetDomain() != Domain {
		t.Fatalf("domain = %q", info.GetDomain())
	}
	if info.GetMetadata()["size"] != "10" {
		t.Fatalf("metadata = %v", info.GetMetadata())
	}
}

func TestHandleError(t *testing.T) {
	if HandleError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	if got := status.Code(HandleError(New(CodeInvalidConfig, "bad"))); got != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %s", got)
	}

	passthrough := status.Error(codes.NotFound, "missing")
	if got := status.Code(HandleError(passthrough)); got != codes.NotFound {
		t.Fatalf("expected status passthrough, got %s", got)
	}

	if got := status.Code(HandleError(errors.New("boom"))); got != codes.Internal {
		t.Fatalf("expected internal, got %s", got)
	}
}
