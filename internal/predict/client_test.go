package predict

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/leaf-check/internal/selection"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func leaf() selection.File {
	return selection.FromBytes("leaf.jpg", []byte("\xff\xd8\xff\xe0fake-jpeg"))
}

func asFault(t *testing.T, err error) *Fault {
	t.Helper()
	var fault *Fault
	require.True(t, errors.As(err, &fault), "expected *Fault, got %T", err)
	return fault
}

func TestPredictSendsSingleFileField(t *testing.T) {
	var gotName, gotType, gotRequestID string
	var gotBody []byte
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Len(t, r.MultipartForm.File, 1)
		assert.Empty(t, r.MultipartForm.Value)

		f, hdr, err := r.FormFile(FieldName)
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		gotBody, _ = io.ReadAll(f)
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		gotRequestID = r.Header.Get("X-Request-ID")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"class":"Early_Blight","confidence":0.91}`))
	})

	client := NewClient(srv.URL, zap.NewNop())
	result, err := client.Predict(context.Background(), leaf())
	require.NoError(t, err)

	assert.Equal(t, "Early_Blight", result.Label)
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 0.91, *result.Confidence, 1e-9)
	assert.Equal(t, "leaf.jpg", gotName)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, "\xff\xd8\xff\xe0fake-jpeg", string(gotBody))
	assert.NotEmpty(t, gotRequestID)
}

func TestPredictGateResponseIsStillASuccess(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accepted":false,"class":null,"confidence":null,"plant_confidence":0.12,"message":"Invalid image."}`))
	})

	result, err := NewClient(srv.URL, zap.NewNop()).Predict(context.Background(), leaf())
	require.NoError(t, err)

	assert.Equal(t, "", result.Label)
	assert.Nil(t, result.Confidence)
	require.NotNil(t, result.Accepted)
	assert.False(t, *result.Accepted)
	assert.Equal(t, "Invalid image.", result.Message)
	require.NotNil(t, result.PlantConfidence)
	assert.InDelta(t, 0.12, *result.PlantConfidence, 1e-9)
}

func TestPredictConfidenceVariants(t *testing.T) {
	cases := []struct {
		body string
		want *float64
	}{
		{`{"class":"Healthy","confidence":"0.5"}`, ptr(0.5)},
		{`{"class":"Healthy","confidence":"high"}`, nil},
		{`{"class":"Healthy","confidence":"NaN"}`, nil},
		{`{"class":"Healthy","confidence":"Infinity"}`, nil},
		{`{"class":"Healthy"}`, nil},
		{`{"class":"Healthy","confidence":0}`, ptr(0)},
	}
	for _, tc := range cases {
		body, want := tc.body, tc.want
		t.Run(body, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			result, err := NewClient(srv.URL, zap.NewNop()).Predict(context.Background(), leaf())
			require.NoError(t, err)
			if want == nil {
				assert.Nil(t, result.Confidence)
				return
			}
			require.NotNil(t, result.Confidence)
			assert.InDelta(t, *want, *result.Confidence, 1e-9)
		})
	}
}

func TestPredictMalformedSuccessBody(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>ok</html>`))
	})

	result, err := NewClient(srv.URL, zap.NewNop()).Predict(context.Background(), leaf())
	require.NoError(t, err)
	assert.True(t, result.Malformed)
	assert.Empty(t, result.Label)
	assert.Nil(t, result.Confidence)
}

func TestPredictServerFaultMessagePrecedence(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail wins", http.StatusInternalServerError, `{"detail":"model unavailable","message":"ignored"}`, "model unavailable"},
		{"message next", http.StatusBadGateway, `{"message":"upstream down"}`, "upstream down"},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","file"],"msg":"field required"}]}`, `[{"loc":["body","file"],"msg":"field required"}]`},
		{"status text", http.StatusServiceUnavailable, `not json`, "request failed with status code 503"},
		{"empty detail falls through", http.StatusInternalServerError, `{"detail":""}`, "request failed with status code 500"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			result, err := NewClient(srv.URL, zap.NewNop()).Predict(context.Background(), leaf())
			assert.Nil(t, result)
			fault := asFault(t, err)
			assert.Equal(t, FaultServer, fault.Kind)
			assert.Equal(t, tc.status, fault.StatusCode)
			assert.Equal(t, tc.want, fault.Message)
			assert.Error(t, fault.Cause)
		})
	}
}

func TestPredictTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client := NewClient(srv.URL, zap.NewNop(), WithTimeout(50*time.Millisecond))
	result, err := client.Predict(context.Background(), leaf())
	assert.Nil(t, result)

	fault := asFault(t, err)
	assert.Equal(t, FaultTimeout, fault.Kind)
	assert.Equal(t, "timeout of 50ms exceeded", fault.Message)
}

func TestPredictTransportFault(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	_, err := NewClient(endpoint, zap.NewNop()).Predict(context.Background(), leaf())
	fault := asFault(t, err)
	assert.Equal(t, FaultTransport, fault.Kind)
	assert.Contains(t, fault.Message, "network error: ")
	assert.Error(t, errors.Unwrap(fault))
}

func TestPredictUnreadableFile(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", zap.NewNop())
	_, err := client.Predict(context.Background(), selection.FromPath("/nonexistent/leaf.jpg"))
	fault := asFault(t, err)
	assert.Equal(t, FaultTransport, fault.Kind)
	assert.Contains(t, fault.Message, "unable to read leaf.jpg")
}

func TestPredictUsesCache(t *testing.T) {
	var hits int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"class":"Late_Blight","confidence":0.77}`))
	})

	cache := newMapCache()
	client := NewClient(srv.URL, zap.NewNop(), WithCache(cache, time.Minute))

	first, err := client.Predict(context.Background(), leaf())
	require.NoError(t, err)
	second, err := client.Predict(context.Background(), leaf())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, first.Label, second.Label)
	require.NotNil(t, second.Confidence)
	assert.InDelta(t, 0.77, *second.Confidence, 1e-9)

	summary := client.Metrics()
	assert.Equal(t, int64(2), summary.TotalRequests)
	assert.Equal(t, int64(2), summary.SuccessfulRequests)
	assert.Equal(t, int64(1), summary.CacheHits)
}

func TestPredictDoesNotReuseGateRejections(t *testing.T) {
	var hits int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"accepted":false,"class":"unknown","confidence":0.41,"message":"Low confidence (41.00%)."}`))
	})

	client := NewClient(srv.URL, zap.NewNop(), WithCache(newMapCache(), time.Minute))
	for i := 0; i < 2; i++ {
		_, err := client.Predict(context.Background(), leaf())
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, int64(0), client.Metrics().CacheHits)
}

func TestPredictCacheFailureDoesNotBlock(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"class":"Healthy","confidence":0.99}`))
	})

	cache := &stubCache{getErrs: []error{errors.New("connection refused")}, setErrs: []error{errors.New("connection refused")}}
	client := NewClient(srv.URL, zap.NewNop(), WithCache(cache, time.Minute))

	result, err := client.Predict(context.Background(), leaf())
	require.NoError(t, err)
	assert.Equal(t, "Healthy", result.Label)
}

func TestMetricsSummary(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"class":"Healthy","confidence":0.8}`))
	})
	client := NewClient(srv.URL, zap.NewNop())

	_, err := client.Predict(context.Background(), leaf())
	require.NoError(t, err)
	status.Store(http.StatusInternalServerError)
	_, err = client.Predict(context.Background(), leaf())
	require.Error(t, err)

	summary := client.Metrics()
	assert.Equal(t, int64(2), summary.TotalRequests)
	assert.Equal(t, int64(1), summary.SuccessfulRequests)
	assert.Equal(t, int64(1), summary.FailedRequests)
	assert.InDelta(t, 0.5, summary.SuccessRate, 1e-9)
	assert.InDelta(t, 0.8, summary.AverageConfidence, 1e-9)
}

func ptr(f float64) *float64 { return &f }
