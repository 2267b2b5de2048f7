package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/wound-roi/internal/config"
	"github.com/menta2k/wound-roi/pkg/detection"
	"github.com/menta2k/wound-roi/pkg/types"
)

func TestParsePolygon(t *testing.T) {
	got, err := parsePolygon(" 10,10  50,10.5 50,50 ")
	require.NoError(t, err)
	assert.Equal(t, types.Polygon{{X: 10, Y: 10}, {X: 50, Y: 10.5}, {X: 50, Y: 50}}, got)

	for _, bad := range []string{"10", "a,1", "1,b"} {
		_, err := parsePolygon(bad)
		assert.Error(t, err, bad)
	}
}

func TestFitWithin(t *testing.T) {
	w, h := fitWithin(800, 600, 1024)
	assert.Equal(t, []int{800, 600}, []int{w, h})

	w, h = fitWithin(4000, 2000, 1024)
	assert.Equal(t, []int{1024, 512}, []int{w, h})

	w, h = fitWithin(1000, 3000, 1024)
	assert.Equal(t, []int{341, 1024}, []int{w, h})
}

func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{200, 60, 60, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "heel.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestTestVision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) && assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "qwen2-vl", req.Model)
			assert.Equal(t, detection.SimpleTestPrompt, req.Messages[0].Content[0].Text)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A red patch on skin."}}]}`))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Analysis.Backend = config.BackendLlamaCpp
	cfg.Analysis.URL = server.URL
	cfg.Analysis.Model = "qwen2-vl"

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, testVision(context.Background(), cfg, writePNG(t), &out, logger))
	assert.Equal(t, "A red patch on skin.\n", out.String())
}

func TestTestVisionNeedsVisionBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.Backend = config.BackendMLService

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := testVision(context.Background(), cfg, writePNG(t), io.Discard, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama or llamacpp")
}
