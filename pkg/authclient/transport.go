package authclient

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Token lifecycle headers stamped by the auth service; duplicated here so
// consumers of the client never import server internals.
const (
	HeaderTokenExpired       = "X-Token-Expired"
	HeaderRefreshRequired    = "X-Refresh-Required"
	HeaderTokenExpiresIn     = "X-Token-Expires-In"
	HeaderRefreshRecommended = "X-Token-Refresh-Recommended"
	HeaderRefreshPriority    = "X-Refresh-Priority"
)

// Transport is an http.RoundTripper that authorizes outgoing requests
// from the Monitor's session and reacts to the service's lifecycle
// headers:
//
//   - a response marked X-Token-Expired (or a plain 401) triggers a
//     refresh and, on success, one replay of the original request with
//     the new token; a failing replay is returned as-is rather than
//     looped;
//   - X-Token-Refresh-Recommended kicks off a background refresh without
//     delaying the response.
//
// Wrap the http.Client used for API calls to services guarded by the
// auth gate. Do not wrap the auth Client itself.
type Transport struct {
	base    http.RoundTripper
	monitor *Monitor
	log     *zap.Logger
}

// TransportOption customizes a Transport.
type TransportOption func(*Transport)

// WithBaseTransport sets the RoundTripper that actually performs
// requests. Defaults to http.DefaultTransport.
func WithBaseTransport(base http.RoundTripper) TransportOption {
	return func(t *Transport) {
		if base != nil {
			t.base = base
		}
	}
}

// WithTransportLogger attaches a logger.
func WithTransportLogger(log *zap.Logger) TransportOption {
	return func(t *Transport) {
		if log != nil {
			t.log = log
		}
	}
}

// NewTransport returns a Transport bound to the given Monitor.
func NewTransport(monitor *Monitor, opts ...TransportOption) *Transport {
	t := &Transport{
		base:    http.DefaultTransport,
		monitor: monitor,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	session := t.monitor.Snapshot()
	if !session.Active() {
		return t.base.RoundTrip(req)
	}

	resp, err := t.base.RoundTrip(withBearer(req, session.AccessToken))
	if err != nil {
		return resp, err
	}

	if tokenRejected(resp) {
		return t.retryWithFreshToken(req, resp)
	}

	if resp.Header.Get(HeaderRefreshRecommended) == "true" && t.monitor.ShouldRefresh() {
		ctx := context.WithoutCancel(req.Context())
		go func() {
			if _, err := t.monitor.Refresh(ctx); err != nil {
				t.log.Warn("recommended token refresh failed", zap.Error(err))
			}
		}()
	}
	return resp, nil
}

// retryWithFreshToken refreshes the session and replays the request once.
// When the refresh fails or the request body cannot be rewound, the
// original rejection is handed back untouched.
func (t *Transport) retryWithFreshToken(req *http.Request, rejected *http.Response) (*http.Response, error) {
	refreshed, err := t.monitor.Refresh(req.Context())
	if err != nil {
		t.log.Warn("reactive token refresh failed", zap.Error(err))
		return rejected, nil
	}

	replay, ok := rewound(req)
	if !ok {
		return rejected, nil
	}

	drain(rejected)
	return t.base.RoundTrip(withBearer(replay, refreshed.AccessToken))
}

// tokenRejected reports whether the response tells us the presented
// access token is no longer accepted.
func tokenRejected(resp *http.Response) bool {
	return resp.Header.Get(HeaderTokenExpired) == "true" ||
		resp.StatusCode == http.StatusUnauthorized
}

// withBearer clones the request with the Authorization header set.
// RoundTrippers must not mutate the caller's request.
func withBearer(req *http.Request, accessToken string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+accessToken)
	return clone
}

// rewound prepares a second send of req. Bodyless requests replay as-is;
// requests with a body need GetBody, since the first send consumed the
// original reader.
func rewound(req *http.Request) (*http.Request, bool) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, true
}

// drain exhausts and closes a response body we will not return, so the
// underlying connection can be reused.
func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<12))
	resp.Body.Close()
}
