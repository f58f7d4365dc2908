package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-seat-booking/internal/config"
	"github.com/iliyamo/library-seat-booking/internal/gateway"
)

const testGatewaySecret = "gw-secret"

// fakeBackend stands in for the order endpoints the flow consumes.
type fakeBackend struct {
	orderCalls atomic.Int64
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/exists", func(w http.ResponseWriter, r *http.Request) {
		exists := strings.HasPrefix(r.URL.Query().Get("email"), "known")
		_ = json.NewEncoder(w).Encode(map[string]bool{"exists": exists})
	})
	mux.HandleFunc("POST /v1/orders", func(w http.ResponseWriter, _ *http.Request) {
		f.orderCalls.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"orderReference": "ord_test",
			"amountDue": 4500,
			"gatewayParams": {"keyId": "pk_test", "description": "Monthly seat"}
		}`))
	})
	mux.HandleFunc("POST /v1/orders/verify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderReference   string `json:"orderReference"`
			PaymentReference string `json:"paymentReference"`
			Signature        string `json:"signature"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if gateway.VerifyProof(testGatewaySecret, gateway.Proof{
			OrderRef:   req.OrderReference,
			PaymentRef: req.PaymentReference,
			Signature:  req.Signature,
		}) {
			_, _ = w.Write([]byte(`{
				"confirmed": true,
				"booking": {"seatNumber": "A-12", "validUntil": "2026-10-01T00:00:00Z"}
			}`))
			return
		}
		_, _ = w.Write([]byte(`{"confirmed": false}`))
	})
	return mux
}

type flowEnv struct {
	e       *echo.Echo
	handler *FlowHandler
	backend *fakeBackend
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)

	cfg := config.Config{
		BackendBaseURL:  srv.URL,
		GatewayCheckout: "https://checkout.test/pay",
	}
	return &flowEnv{
		e:       echo.New(),
		handler: NewFlowHandler(cfg, gateway.NewHosted(cfg.GatewayCheckout)),
		backend: fb,
	}
}

// call invokes an echo handler directly and decodes the JSON response.
func (env *flowEnv) call(t *testing.T, fn echo.HandlerFunc, method, body string, flowID string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	if flowID != "" {
		c.SetParamNames("id")
		c.SetParamValues(flowID)
	}
	require.NoError(t, fn(c))

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (env *flowEnv) startFlow(t *testing.T) string {
	t.Helper()
	code, out := env.call(t, env.handler.Start, http.MethodPost, `{"library_id": 7}`, "")
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "COLLECTING_IDENTITY", out["step"])
	return out["flow_id"].(string)
}

func (env *flowEnv) step(t *testing.T, flowID string) string {
	t.Helper()
	_, out := env.call(t, env.handler.Get, http.MethodGet, "", flowID)
	return out["step"].(string)
}

func signedProofBody(sessionID, orderRef, payRef string) string {
	sig := gateway.SignProof(testGatewaySecret, orderRef, payRef)
	b, _ := json.Marshal(map[string]any{
		"session_id": sessionID,
		"status":     "success",
		"proof": map[string]string{
			"order_ref":   orderRef,
			"payment_ref": payRef,
			"signature":   sig,
		},
	})
	return string(b)
}

func TestFlowIdentityResolution(t *testing.T) {
	env := newFlowEnv(t)
	id := env.startFlow(t)

	code, out := env.call(t, env.handler.Identity, http.MethodPost,
		`{"email": "known@user.test"}`, id)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "LOGIN", out["route"])

	code, out = env.call(t, env.handler.Identity, http.MethodPost,
		`{"email": "new@user.test"}`, id)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "REGISTER", out["route"])
}

func TestFlowHappyPath(t *testing.T) {
	env := newFlowEnv(t)
	id := env.startFlow(t)

	code, out := env.call(t, env.handler.Identity, http.MethodPost,
		`{"email": "new@user.test", "access_token": "tok"}`, id)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "AWAITING_PAYMENT", out["step"])

	code, out = env.call(t, env.handler.Order, http.MethodPost, "", id)
	require.Equal(t, http.StatusOK, code)
	checkout := out["checkout"].(map[string]any)
	sessionID := checkout["session_id"].(string)
	assert.Contains(t, checkout["url"], "order=ord_test")

	code, _ = env.call(t, env.handler.Payment, http.MethodPost,
		signedProofBody(sessionID, "ord_test", "pay_9"), id)
	require.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, func() bool {
		return env.step(t, id) == "SUCCEEDED"
	}, 2*time.Second, 10*time.Millisecond)

	_, out = env.call(t, env.handler.Get, http.MethodGet, "", id)
	booking := out["booking"].(map[string]any)
	assert.Equal(t, "A-12", booking["seatNumber"])
}

func TestFlowBadSignatureRoutesToSupport(t *testing.T) {
	env := newFlowEnv(t)
	id := env.startFlow(t)
	env.call(t, env.handler.Identity, http.MethodPost,
		`{"email": "new@user.test", "access_token": "tok"}`, id)

	_, out := env.call(t, env.handler.Order, http.MethodPost, "", id)
	sessionID := out["checkout"].(map[string]any)["session_id"].(string)

	body, _ := json.Marshal(map[string]any{
		"session_id": sessionID,
		"status":     "success",
		"proof": map[string]string{
			"order_ref": "ord_test", "payment_ref": "pay_9", "signature": "bad",
		},
	})
	code, _ := env.call(t, env.handler.Payment, http.MethodPost, string(body), id)
	require.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, func() bool {
		return env.step(t, id) == "FAILED"
	}, 2*time.Second, 10*time.Millisecond)

	_, out = env.call(t, env.handler.Get, http.MethodGet, "", id)
	assert.Equal(t, "VERIFICATION", out["failure_kind"])
	assert.Contains(t, out["failure_reason"], "contact support")
	assert.Nil(t, out["booking"])

	// retry is refused for verification failures
	code, _ = env.call(t, env.handler.Retry, http.MethodPost, "", id)
	assert.Equal(t, http.StatusConflict, code)
}

func TestFlowCancelThenRetryReusesOrder(t *testing.T) {
	env := newFlowEnv(t)
	id := env.startFlow(t)
	env.call(t, env.handler.Identity, http.MethodPost,
		`{"email": "new@user.test", "access_token": "tok"}`, id)

	_, out := env.call(t, env.handler.Order, http.MethodPost, "", id)
	sessionID := out["checkout"].(map[string]any)["session_id"].(string)

	body, _ := json.Marshal(map[string]any{"session_id": sessionID, "status": "cancel"})
	code, _ := env.call(t, env.handler.Payment, http.MethodPost, string(body), id)
	require.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, func() bool {
		return env.step(t, id) == "FAILED"
	}, 2*time.Second, 10*time.Millisecond)

	code, out = env.call(t, env.handler.Retry, http.MethodPost, "", id)
	require.Equal(t, http.StatusOK, code)
	checkout := out["checkout"].(map[string]any)
	assert.Contains(t, checkout["url"], "order=ord_test")
	assert.Equal(t, int64(1), env.backend.orderCalls.Load(),
		"retry must reuse the order, not create a second one")
}

func TestFlowUnknownSessionIs404(t *testing.T) {
	env := newFlowEnv(t)
	code, _ := env.call(t, env.handler.Get, http.MethodGet, "", "nope")
	assert.Equal(t, http.StatusNotFound, code)
}
