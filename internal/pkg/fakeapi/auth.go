package fakeapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"

	"github.com/diwise/restmodel/pkg/client"
)

var tracer = otel.Tracer("restmodel-fakeapi/authz")

var ErrAccessDenied = errors.New("access denied")

// Authenticator decides whether a request may read from a collection.
type Authenticator interface {
	CheckAccess(ctx context.Context, r *http.Request, tenant, collection string) error
}

type authenticatorImpl struct {
	preparedQuery rego.PreparedEvalQuery
}

// NewAuthenticator prepares the rego policies read from policies. The policy
// module must define data.example.authz.allow, evaluated against an input
// with the request method, path segments, bearer token, tenant and collection.
func NewAuthenticator(ctx context.Context, policies io.Reader) (Authenticator, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %s", err.Error())
	}

	impl := &authenticatorImpl{}

	impl.preparedQuery, err = rego.New(
		rego.Query("x = data.example.authz.allow"),
		rego.Module("restmodel.rego", string(module)),
	).PrepareForEval(ctx)

	if err != nil {
		return nil, err
	}

	return impl, nil
}

func (a *authenticatorImpl) CheckAccess(ctx context.Context, r *http.Request, tenant, collection string) error {
	var err error

	ctx, span := tracer.Start(ctx, "check-auth")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	token := r.Header.Get("Authorization")
	token = strings.TrimPrefix(token, "Bearer ")

	input := map[string]any{
		"method":     r.Method,
		"path":       strings.Split(strings.Trim(r.URL.Path, "/"), "/"),
		"token":      token,
		"tenant":     tenant,
		"collection": collection,
	}

	results, err := a.preparedQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		err = fmt.Errorf("opa eval failed: %w", err)
		return err
	}

	if len(results) == 0 {
		err = fmt.Errorf("opa query could not be satisfied (%w)", ErrAccessDenied)
		return err
	}

	binding := results[0].Bindings["x"]

	// a denied request binds a single false
	if allowed, ok := binding.(bool); ok && !allowed {
		err = ErrAccessDenied
		return err
	}

	if _, ok := binding.(map[string]any); !ok {
		err = fmt.Errorf("opa error: unexpected result type %T", binding)
		return err
	}

	return nil
}

// Authorize rejects requests that the authenticator does not let through with
// 403 Forbidden. The collection is the first path segment.
func Authorize(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tenant := r.Header.Get(client.TenantHeader)
			collection, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

			if err := authenticator.CheckAccess(ctx, r, tenant, collection); err != nil {
				logging.GetFromContext(ctx).Info("request denied", "tenant", tenant, "collection", collection, "err", err.Error())
				respond(w, http.StatusForbidden, map[string]string{"error": ErrAccessDenied.Error()})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
