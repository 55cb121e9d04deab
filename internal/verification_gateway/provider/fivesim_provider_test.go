package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
)

func newFiveSimServer(t *testing.T, handler http.HandlerFunc) *FiveSimProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewFiveSimProvider(testLogger(), server.URL, "test-token", server.Client())
}

func TestFiveSim_PurchaseNumber(t *testing.T) {
	p := newFiveSimServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/user/buy/activation/usa/any/telegram", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":635468024,"phone":"+15550004321","price":0.30,"status":"PENDING","sms":[]}`))
	})

	result, err := p.PurchaseNumber(context.Background(), "usa", "telegram", domain.CapabilitySMS)
	require.NoError(t, err)
	assert.Equal(t, "635468024", result.ActivationID)
	assert.Equal(t, "+15550004321", result.PhoneNumber)
	assert.Equal(t, 0.30, result.Cost)
}

func TestFiveSim_VoiceRejectedWithoutRequest(t *testing.T) {
	called := false
	p := newFiveSimServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := p.PurchaseNumber(context.Background(), "usa", "telegram", domain.CapabilityVoice)
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
	assert.False(t, called, "unsupported capability must not reach the wire")
}

func TestFiveSim_BadRequestClassification(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		permanent bool
	}{
		{"out of stock", "no free phones", false},
		{"account funds", "not enough user balance", true},
		{"malformed input", "bad country", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFiveSimServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			})

			_, err := p.PurchaseNumber(context.Background(), "usa", "telegram", domain.CapabilitySMS)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, domain.IsPermanent(err))
		})
	}
}

func TestFiveSim_CheckCode(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		p := newFiveSimServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/user/check/635468024", r.URL.Path)
			w.Write([]byte(`{"id":635468024,"status":"PENDING","sms":[]}`))
		})

		result, err := p.CheckCode(context.Background(), "635468024")
		require.NoError(t, err)
		assert.Empty(t, result.Code)
		assert.Equal(t, "PENDING", result.RawStatus)
	})

	t.Run("code arrived", func(t *testing.T) {
		p := newFiveSimServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":635468024,"status":"RECEIVED","sms":[{"code":"102030","text":"Your code is 102030"}]}`))
		})

		result, err := p.CheckCode(context.Background(), "635468024")
		require.NoError(t, err)
		assert.Equal(t, "102030", result.Code)
		assert.Equal(t, "RECEIVED", result.RawStatus)
	})
}

func TestFiveSim_Cancel(t *testing.T) {
	p := newFiveSimServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/cancel/635468024", r.URL.Path)
		w.Write([]byte(`{"id":635468024,"status":"CANCELED"}`))
	})

	ok, err := p.Cancel(context.Background(), "635468024")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFiveSim_GetBalance(t *testing.T) {
	p := newFiveSimServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/profile", r.URL.Path)
		w.Write([]byte(`{"id":1,"email":"u@example.com","balance":48.25}`))
	})

	balance, err := p.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 48.25, balance)
}

func TestFiveSim_UnauthorizedIsPermanent(t *testing.T) {
	p := newFiveSimServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := p.GetBalance(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}

func TestFiveSim_ServerErrorIsTransient(t *testing.T) {
	p := newFiveSimServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := p.GetBalance(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}
