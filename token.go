package fabricmcp

import (
	"context"
	"net/http"
	"strings"
)

type authHeaderContextKey struct{}

// contextWithAuthorization stores the raw Authorization header value of the
// HTTP request that carried an MCP call. The stdio transport never stores
// one, which is what makes the header token source fail closed there.
func contextWithAuthorization(ctx context.Context, header string) context.Context {
	return context.WithValue(ctx, authHeaderContextKey{}, header)
}

func authorizationFromContext(ctx context.Context) (string, bool) {
	header, ok := ctx.Value(authHeaderContextKey{}).(string)
	return header, ok
}

// withAuthorizationCapture copies the Authorization header into the request
// context before the MCP handler consumes the request body.
func withAuthorizationCapture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get("Authorization"); header != "" {
			r = r.WithContext(contextWithAuthorization(r.Context(), header))
		}
		next.ServeHTTP(w, r)
	})
}

// bearerFromAuthorization strips one leading literal "Bearer " scheme prefix.
// The match is case sensitive and runs at most once; values without the
// prefix pass through untouched so raw tokens pasted without the scheme keep
// working.
func bearerFromAuthorization(header string) string {
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return header
}

// resolveBearerToken picks the Fabric bearer token for one tool call.
// configured is Config.AuthToken (env source), param is the tool's optional
// auth_token argument. A non-empty param always wins; the configured source
// only decides where to look when the caller sent none. An empty result is
// always an AuthError, never an unauthenticated upstream call.
func resolveBearerToken(ctx context.Context, source TokenSource, configured, param string) (string, error) {
	if p := strings.TrimSpace(param); p != "" {
		return p, nil
	}
	switch source {
	case TokenSourceEnv:
		if configured == "" {
			return "", &AuthError{Source: source, Hint: "set " + EnvAuthToken + " or pass --auth-token"}
		}
		return configured, nil
	case TokenSourceHeader:
		header, ok := authorizationFromContext(ctx)
		if !ok || header == "" {
			return "", &AuthError{Source: source, Hint: "send an Authorization header, or switch the token source to env or param"}
		}
		token := bearerFromAuthorization(header)
		if token == "" {
			return "", &AuthError{Source: source, Hint: "Authorization header carried an empty bearer token"}
		}
		return token, nil
	case TokenSourceParam:
		return "", &AuthError{Source: source, Hint: "pass the auth_token tool argument"}
	default:
		return "", &AuthError{Source: source}
	}
}
