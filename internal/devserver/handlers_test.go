package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/leaf-check/internal/predict"
	"github.com/example/leaf-check/internal/present"
	"github.com/example/leaf-check/internal/selection"
)

var testOptions = Options{ConfidenceThreshold: 0.80, PlantThreshold: 0.35}

type stubScorer struct {
	mu      sync.Mutex
	verdict Verdict
	err     error
	calls   int
}

func (s *stubScorer) Score(ctx context.Context, image []byte) (Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.verdict, s.err
}

func (s *stubScorer) set(v Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdict = v
}

func newTestRouter(scorer Scorer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(scorer, testOptions, zap.NewNop())
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func buildMultipartBody(t *testing.T, field, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="leaf.png"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func postPredict(t *testing.T, router *gin.Engine, body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &decoded), resp.Body.String())
	return resp, decoded
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&stubScorer{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestPredictAccepted(t *testing.T) {
	scorer := &stubScorer{verdict: Verdict{Class: "Early Blight", Confidence: 0.91, PlantConfidence: 0.7}}
	router := newTestRouter(scorer)

	body, ct := buildMultipartBody(t, predict.FieldName, "image/png", pngBytes(t))
	resp, decoded := postPredict(t, router, body, ct)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, decoded["accepted"])
	assert.Equal(t, "Early Blight", decoded["class"])
	assert.InDelta(t, 0.91, decoded["confidence"], 1e-9)
	assert.InDelta(t, 0.7, decoded["plant_confidence"], 1e-9)
	assert.NotContains(t, decoded, "message")
	assert.Equal(t, 1, scorer.calls)
}

func TestPredictGates(t *testing.T) {
	cases := []struct {
		name           string
		verdict        Verdict
		message        string
		wantConfidence bool
	}{
		{
			name:    "not a plant",
			verdict: Verdict{Class: "Healthy", Confidence: 0.99, PlantConfidence: 0.1},
			message: "Invalid image. Please upload a plant/leaf image (potato leaf preferred). Plant confidence: 10.00%.",
		},
		{
			name:           "low confidence",
			verdict:        Verdict{Class: "Healthy", Confidence: 0.5, PlantConfidence: 0.9},
			message:        "Low confidence (50.00%). Please upload a clear potato leaf image (good lighting, leaf in focus).",
			wantConfidence: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubScorer{verdict: tc.verdict})
			body, ct := buildMultipartBody(t, predict.FieldName, "image/png", pngBytes(t))
			resp, decoded := postPredict(t, router, body, ct)

			assert.Equal(t, http.StatusOK, resp.Code)
			assert.Equal(t, false, decoded["accepted"])
			assert.Nil(t, decoded["class"])
			assert.Equal(t, tc.message, decoded["message"])
			if tc.wantConfidence {
				assert.InDelta(t, tc.verdict.Confidence, decoded["confidence"], 1e-9)
			} else {
				assert.Nil(t, decoded["confidence"])
			}
		})
	}
}

func TestPredictRejections(t *testing.T) {
	cases := []struct {
		name        string
		field       string
		contentType string
		payload     []byte
		status      int
	}{
		{name: "missing file", field: "image", contentType: "image/png", payload: []byte("x"), status: http.StatusUnprocessableEntity},
		{name: "too large", field: predict.FieldName, contentType: "image/png", payload: bytes.Repeat([]byte("a"), MaxUploadSize+1), status: http.StatusRequestEntityTooLarge},
		{name: "not an image", field: predict.FieldName, contentType: "text/plain", payload: []byte("hello"), status: http.StatusUnsupportedMediaType},
		{name: "sniffed text", field: predict.FieldName, contentType: "application/octet-stream", payload: []byte("hello"), status: http.StatusUnsupportedMediaType},
		{name: "undecodable", field: predict.FieldName, contentType: "image/png", payload: []byte("not really a png"), status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scorer := &stubScorer{}
			router := newTestRouter(scorer)
			body, ct := buildMultipartBody(t, tc.field, tc.contentType, tc.payload)
			resp, decoded := postPredict(t, router, body, ct)

			assert.Equal(t, tc.status, resp.Code)
			assert.NotEmpty(t, decoded["detail"])
			assert.Zero(t, scorer.calls)
		})
	}
}

func TestPredictScorerFailure(t *testing.T) {
	router := newTestRouter(&stubScorer{err: errors.New("weights missing")})
	body, ct := buildMultipartBody(t, predict.FieldName, "image/png", pngBytes(t))
	resp, decoded := postPredict(t, router, body, ct)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "model unavailable", decoded["detail"])
}

func TestClientAgainstStub(t *testing.T) {
	gin.SetMode(gin.TestMode)
	scorer := &stubScorer{verdict: Verdict{Class: "Late Blight", Confidence: 0.8734, PlantConfidence: 0.6}}
	srv := httptest.NewServer(NewRouter(scorer, testOptions, zap.NewNop()))
	defer srv.Close()

	client := predict.NewClient(srv.URL, zap.NewNop())
	result, err := client.Predict(context.Background(), selection.FromBytes("leaf.png", pngBytes(t)))
	require.NoError(t, err)

	assert.Equal(t, "Late Blight", result.Label)
	assert.Equal(t, "87.34%", present.FormatConfidence(result.Confidence))
	require.NotNil(t, result.Accepted)
	assert.True(t, *result.Accepted)

	scorer.set(Verdict{Class: "Late Blight", Confidence: 0.8734, PlantConfidence: 0.1})
	result, err = client.Predict(context.Background(), selection.FromBytes("leaf.png", pngBytes(t)))
	require.NoError(t, err)
	assert.Equal(t, present.UnknownLabel, present.FormatLabel(result.Label))
	assert.Contains(t, result.Message, "Invalid image")

	_, err = client.Predict(context.Background(), selection.FromBytes("notes.txt", []byte("hello")))
	fault := predict.AsFault(err)
	require.NotNil(t, fault)
	assert.Equal(t, predict.FaultServer, fault.Kind)
	assert.Equal(t, http.StatusUnsupportedMediaType, fault.StatusCode)
	assert.Contains(t, fault.Message, "unsupported content type")
}

func TestHashScorerIsDeterministic(t *testing.T) {
	data := pngBytes(t)
	first, err := HashScorer{}.Score(context.Background(), data)
	require.NoError(t, err)
	second, err := HashScorer{}.Score(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, ClassNames, first.Class)
	assert.GreaterOrEqual(t, first.Confidence, 0.5)
	assert.LessOrEqual(t, first.Confidence, 1.0)
	assert.GreaterOrEqual(t, first.PlantConfidence, 0.2)
	assert.LessOrEqual(t, first.PlantConfidence, 1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = HashScorer{}.Score(ctx, data)
	assert.ErrorIs(t, err, context.Canceled)
}
