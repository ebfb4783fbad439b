package grpc

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/simaogato/fundsflow-backend/internal/logger"
)

type senderKey struct{}

// WithSenderID stores the authenticated account id in ctx
func WithSenderID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, senderKey{}, id)
}

// SenderIDFromContext returns the authenticated account id
func SenderIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(senderKey{}).(int64)
	return id, ok && id > 0
}

// AuthInterceptor returns a gRPC unary server interceptor that validates
// the bearer JWT from request metadata and stores its subject, an account
// id, in the context.
// If the token is missing or invalid, it returns status.Unauthenticated.
func AuthInterceptor(signingKey []byte) grpc.UnaryServerInterceptor {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return signingKey, nil }

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		raw, found := strings.CutPrefix(authHeaders[0], "Bearer ")
		if !found {
			return nil, status.Error(codes.Unauthenticated, "authorization header must use the Bearer scheme")
		}

		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, status.Error(codes.Unauthenticated, "token expired")
			}
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		senderID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || senderID <= 0 {
			return nil, status.Error(codes.Unauthenticated, "invalid token subject")
		}

		return handler(WithSenderID(ctx, senderID), req)
	}
}

// LoggingInterceptor logs every unary call with its status code and duration
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		started := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(started)),
		}
		if id, ok := SenderIDFromContext(ctx); ok {
			fields = append(fields, zap.Int64("sender_id", id))
		}

		l := logger.WithTrace(ctx, log)
		switch status.Code(err) {
		case codes.OK:
			l.Info("gRPC call", fields...)
		case codes.Internal, codes.Unknown, codes.Unavailable:
			l.Error("gRPC call failed", append(fields, zap.Error(err))...)
		default:
			l.Warn("gRPC call rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

// IssueToken signs an HS256 token whose subject is accountID
func IssueToken(signingKey []byte, accountID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(signingKey)
}
