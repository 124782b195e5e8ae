package handler

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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bgfill/internal/assets"
	imgpkg "bgfill/internal/image"
	"bgfill/internal/removal"
	"bgfill/pkg/metrics"
)

type fakeRemover struct {
	out      []byte
	err      error
	gotData  []byte
	gotName  string
	numCalls int
}

func (f *fakeRemover) Remove(ctx context.Context, data []byte, filename string) ([]byte, error) {
	f.numCalls++
	f.gotData = data
	f.gotName = filename
	return f.out, f.err
}

var bgBlue = color.NRGBA{R: 0, G: 0, B: 200, A: 255}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// cutout is a 13x7 image: transparent left half, opaque red right half.
func cutout() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 13, 7))
	for y := 0; y < 7; y++ {
		for x := 7; x < 13; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	return img
}

func newTestConfig(t *testing.T, remover Remover) *Config {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{"base/background1.png", "base/background2.png", "send/background1.png"} {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, encodePNG(t, solid(40, 40, bgBlue)), 0o644))
	}
	return NewConfig(remover, assets.NewStore(root))
}

func multipartRequest(t *testing.T, target string, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		part, err := mw.CreateFormFile("image", "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decodeDataURL(t *testing.T, url string) image.Image {
	t.Helper()
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"), url[:min(len(url), 40)])
	data, _, err := imgpkg.ParseDataURL(url)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestHandlers_MissingImage(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{})

	handlers := map[string]http.HandlerFunc{
		"background": BackgroundHandler(cfg),
		"tint":       TintHandler(cfg),
	}

	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h(w, multipartRequest(t, "/api/"+name, map[string]string{"projectType": "base"}, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "No file uploaded", decodeBody(t, w)["error"])
		})
	}
}

func TestHandlers_NotMultipart(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{})

	req := httptest.NewRequest(http.MethodPost, "/api/tint", strings.NewReader(`{"image":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	TintHandler(cfg)(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "No file uploaded", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestHandlers_EmptyFile(t *testing.T) {
	remover := &fakeRemover{}
	cfg := newTestConfig(t, remover)

	w := httptest.NewRecorder()
	BackgroundHandler(cfg)(w, multipartRequest(t, "/api/background", nil, []byte{}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, remover.numCalls)
}

func TestHandlers_TooLarge(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{})
	cfg.MaxUploadBytes = 1024

	w := httptest.NewRecorder()
	TintHandler(cfg)(w, multipartRequest(t, "/api/tint", nil, bytes.Repeat([]byte("x"), 4096)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "File too large", decodeBody(t, w)["error"])
}

func TestBackgroundHandler_Success(t *testing.T) {
	remover := &fakeRemover{out: encodePNG(t, cutout())}
	cfg := newTestConfig(t, remover)

	w := httptest.NewRecorder()
	req := multipartRequest(t, "/api/background", map[string]string{
		"projectType":      "send",
		"backgroundChoice": "background1.png",
	}, []byte("original-photo"))
	BackgroundHandler(cfg)(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "original-photo", string(remover.gotData))
	assert.Equal(t, "photo.jpg", remover.gotName)

	img := decodeDataURL(t, decodeBody(t, w)["processedImageUrl"])
	assert.Equal(t, 13, img.Bounds().Dx())
	assert.Equal(t, 7, img.Bounds().Dy())

	assert.Equal(t, color.NRGBA{R: 255, A: 255}, nrgbaAt(img, 10, 3))

	bg := nrgbaAt(img, 2, 3)
	assert.Equal(t, uint8(255), bg.A)
	assert.InDelta(t, bgBlue.B, bg.B, 1)
	assert.InDelta(t, 0, bg.R, 1)
}

func TestBackgroundHandler_Defaults(t *testing.T) {
	remover := &fakeRemover{out: encodePNG(t, cutout())}
	cfg := newTestConfig(t, remover)
	require.NoError(t, os.Remove(filepath.Join(cfg.Assets.Root(), "base", "background2.png")))

	w := httptest.NewRecorder()
	BackgroundHandler(cfg)(w, multipartRequest(t, "/api/background", nil, []byte("photo")))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBackgroundHandler_RemoteErrorPropagates(t *testing.T) {
	metrics.Reset()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("Insufficient credits"))
	}))
	defer upstream.Close()

	cfg := newTestConfig(t, removal.New(removal.Options{Endpoint: upstream.URL, APIKey: "k"}))

	w := httptest.NewRecorder()
	BackgroundHandler(cfg)(w, multipartRequest(t, "/api/background", nil, []byte("photo")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Image processing failed", body["error"])
	assert.Equal(t, "Remove.bg API failed: Insufficient credits", body["details"])

	expected := `
# HELP bgfill_errors_total Pipeline failures by kind.
# TYPE bgfill_errors_total counter
bgfill_errors_total{type="removal"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Get().Registry(), strings.NewReader(expected), "bgfill_errors_total"))
}

func TestBackgroundHandler_MissingBackground(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{out: encodePNG(t, cutout())})

	w := httptest.NewRecorder()
	BackgroundHandler(cfg)(w, multipartRequest(t, "/api/background", map[string]string{
		"projectType":      "enb",
		"backgroundChoice": "nope.png",
	}, []byte("photo")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	details := decodeBody(t, w)["details"]
	assert.True(t, strings.HasPrefix(details, "Failed to read background image at "+filepath.Join(cfg.Assets.Root(), "enb", "nope.png")), details)
}

func TestBackgroundHandler_RejectsTraversal(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{out: encodePNG(t, cutout())})
	secret := filepath.Join(filepath.Dir(cfg.Assets.Root()), "secret.png")
	require.NoError(t, os.WriteFile(secret, encodePNG(t, solid(2, 2, bgBlue)), 0o644))

	w := httptest.NewRecorder()
	BackgroundHandler(cfg)(w, multipartRequest(t, "/api/background", map[string]string{
		"projectType":      "..",
		"backgroundChoice": "secret.png",
	}, []byte("photo")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeBody(t, w)["details"], "Failed to read background image at")
}

func TestBackgroundHandler_RemoverError(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{err: errors.New("dial tcp: connection refused")})

	w := httptest.NewRecorder()
	BackgroundHandler(cfg)(w, multipartRequest(t, "/api/background", nil, []byte("photo")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "dial tcp: connection refused", decodeBody(t, w)["details"])
}

func TestBackgroundHandler_UndecodableCutout(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{out: []byte("not an image")})

	w := httptest.NewRecorder()
	BackgroundHandler(cfg)(w, multipartRequest(t, "/api/background", nil, []byte("photo")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeBody(t, w)["details"], "decode cutout")
}

func TestTintHandler_Success(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{})

	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 100, B: 255, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 50, B: 10, A: 128})
	src.SetNRGBA(2, 0, color.NRGBA{R: 9, G: 8, B: 7, A: 0})
	src.SetNRGBA(0, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 1})

	w := httptest.NewRecorder()
	TintHandler(cfg)(w, multipartRequest(t, "/api/tint", nil, encodePNG(t, src)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decodeDataURL(t, decodeBody(t, w)["processedImageUrl"])
	require.Equal(t, src.Bounds(), out.Bounds())

	// new = round(old*0.8 + target*0.2), target #66D4FF
	assert.Equal(t, color.NRGBA{R: 20, G: 122, B: 255, A: 255}, nrgbaAt(out, 0, 0))
	assert.Equal(t, color.NRGBA{R: 180, G: 82, B: 59, A: 128}, nrgbaAt(out, 1, 0))
	assert.Equal(t, color.NRGBA{R: 224, G: 246, B: 255, A: 1}, nrgbaAt(out, 0, 1))

	// Alpha preserved everywhere.
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			assert.Equal(t, src.NRGBAAt(x, y).A, nrgbaAt(out, x, y).A)
		}
	}
	assert.Equal(t, uint8(0), nrgbaAt(out, 2, 0).A)
}

func TestTintHandler_Undecodable(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{})

	w := httptest.NewRecorder()
	TintHandler(cfg)(w, multipartRequest(t, "/api/tint", nil, []byte("garbage")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Tinting failed", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestTintHandler_PixelLimit(t *testing.T) {
	t.Cleanup(func() { imgpkg.SetMaxPixels(0) })
	imgpkg.SetMaxPixels(100)
	cfg := newTestConfig(t, &fakeRemover{})

	w := httptest.NewRecorder()
	TintHandler(cfg)(w, multipartRequest(t, "/api/tint", nil, encodePNG(t, solid(20, 20, bgBlue))))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Tinting failed", body["error"])
	assert.Contains(t, body["details"], imgpkg.ErrTooManyPixels.Error())
}

func TestBackgroundsHandler(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{})

	w := httptest.NewRecorder()
	BackgroundsHandler(cfg)(w, httptest.NewRequest(http.MethodGet, "/api/backgrounds?projectType=base", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp backgroundsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "base", resp.ProjectType)
	assert.Equal(t, []string{"background1.png", "background2.png"}, resp.Backgrounds)

	w = httptest.NewRecorder()
	BackgroundsHandler(cfg)(w, httptest.NewRequest(http.MethodGet, "/api/backgrounds?projectType=enb", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{}, resp.Backgrounds)

	w = httptest.NewRecorder()
	BackgroundsHandler(cfg)(w, httptest.NewRequest(http.MethodGet, "/api/backgrounds?projectType=..", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectTypesHandler(t *testing.T) {
	cfg := newTestConfig(t, &fakeRemover{})

	w := httptest.NewRecorder()
	ProjectTypesHandler(cfg)(w, httptest.NewRequest(http.MethodGet, "/api/project-types", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp projectTypesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"base", "send"}, resp.ProjectTypes)
}
