package grpctransport

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const metadataAuthKey = "authorization"

// validateAuthToken compares the caller-supplied token against expected in
// constant time, so a timing side-channel cannot leak the bearer token one
// byte at a time. A full authN/authZ system is an explicit spec non-goal;
// this is the floor that keeps the wire from being wide open.
func validateAuthToken(token, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

func tokenFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(metadataAuthKey)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// unaryAuthInterceptor rejects calls whose bearer token does not match
// expected. Pass an empty expected token to disable auth (used by tests and
// by Serve when no token is configured).
func unaryAuthInterceptor(expected string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if expected == "" {
			return handler(ctx, req)
		}
		if !validateAuthToken(tokenFromContext(ctx), expected) {
			return nil, status.Error(codes.Unauthenticated, "invalid or missing bearer token")
		}
		return handler(ctx, req)
	}
}

func streamAuthInterceptor(expected string) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if expected == "" {
			return handler(srv, ss)
		}
		if !validateAuthToken(tokenFromContext(ss.Context()), expected) {
			return status.Error(codes.Unauthenticated, "invalid or missing bearer token")
		}
		return handler(srv, ss)
	}
}

// withBearerToken attaches token to an outgoing client context.
func withBearerToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, metadataAuthKey, token)
}
