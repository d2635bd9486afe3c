package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/entity"
)

type fakeEngine struct {
	text  string
	conf  float32
	err   error
	calls int
	got   []byte
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, png []byte) (string, float32, error) {
	f.calls++
	f.got = png
	return f.text, f.conf, f.err
}

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	stdout map[string][]byte
	err    error
	// write, when set, produces the converter output file.
	write  []byte
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.err != nil {
		return nil, []byte("boom"), f.err
	}
	if f.write != nil && len(args) > 0 {
		if err := os.WriteFile(args[len(args)-1], f.write, 0o600); err != nil {
			return nil, nil, err
		}
	}
	key := name
	if len(args) > 0 && args[len(args)-1] == "tsv" {
		key = name + " tsv"
	}
	return f.stdout[key], nil, nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExtractReportsIncreasingProgress(t *testing.T) {
	engine := &fakeEngine{text: "INGREDIENTS: Sugar,  Water,\r\nRed 40, Citric Acid", conf: 0.8}
	ex, err := NewExtractor(Config{Preprocess: true, MaxDimension: 32}, nil, WithEngine(engine))
	require.NoError(t, err)

	var seen []int
	img := entity.NewImage(testPNG(t, 64, 48), "image/png", "label.png", constants.SourceUpload)
	res, err := ex.Extract(context.Background(), img, func(p int) { seen = append(seen, p) })
	require.NoError(t, err)

	assert.Equal(t, "INGREDIENTS: Sugar, Water,\nRed 40, Citric Acid", res.Text)
	assert.Equal(t, "fake", res.Method)
	assert.Greater(t, res.Confidence, float32(0))
	assert.IsIncreasing(t, seen)
	assert.Equal(t, ProgressDone, seen[len(seen)-1])

	decoded, _, err := image.Decode(bytes.NewReader(engine.got))
	require.NoError(t, err)
	assert.LessOrEqual(t, decoded.Bounds().Dx(), 32)
}

func TestExtractEngineFailure(t *testing.T) {
	engine := &fakeEngine{err: errors.New("no text found")}
	ex, err := NewExtractor(Config{}, nil, WithEngine(engine))
	require.NoError(t, err)

	img := entity.NewImage(testPNG(t, 8, 8), "image/png", "", constants.SourceCamera)
	_, err = ex.Extract(context.Background(), img, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text found")
	assert.Equal(t, 1, engine.calls)
}

func TestExtractRejectsUndecodableImage(t *testing.T) {
	engine := &fakeEngine{text: "x"}
	ex, err := NewExtractor(Config{}, nil, WithEngine(engine))
	require.NoError(t, err)

	img := entity.NewImage([]byte("definitely not an image"), "image/png", "", constants.SourceUpload)
	_, err = ex.Extract(context.Background(), img, nil)
	require.Error(t, err)
	assert.Zero(t, engine.calls)

	_, err = ex.Extract(context.Background(), entity.Image{}, nil)
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestExtractHonoursCancellation(t *testing.T) {
	engine := &fakeEngine{text: "x"}
	ex, err := NewExtractor(Config{}, nil, WithEngine(engine))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img := entity.NewImage(testPNG(t, 8, 8), "image/png", "", constants.SourceUpload)
	_, err = ex.Extract(ctx, img, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, engine.calls)
}

func TestExtractConvertsHEIC(t *testing.T) {
	runner := &fakeRunner{write: testPNG(t, 8, 8)}
	engine := &fakeEngine{text: "Sugar"}
	ex, err := NewExtractor(Config{HeicConverter: "magick"}, nil, WithEngine(engine), WithRunner(runner))
	require.NoError(t, err)

	img := entity.NewImage([]byte("heic-bytes"), "image/heic", "IMG_0001.HEIC", constants.SourceUpload)
	res, err := ex.Extract(context.Background(), img, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sugar", res.Text)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "magick", runner.calls[0].name)
}

func TestExtractHEICWithoutConverter(t *testing.T) {
	ex, err := NewExtractor(Config{}, nil, WithEngine(&fakeEngine{}), WithRunner(&fakeRunner{}))
	require.NoError(t, err)

	img := entity.NewImage([]byte("heic-bytes"), "image/heif", "", constants.SourceUpload)
	_, err = ex.Extract(context.Background(), img, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEIC not supported")
}

func TestCLIEngineArgsAndConfidence(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t90\tSugar,\n" +
		"5\t1\t1\t1\t1\t2\t0\t0\t10\t10\t70\tWater\n"
	runner := &fakeRunner{stdout: map[string][]byte{
		"tesseract":     []byte("Sugar, Water\n-----\n"),
		"tesseract tsv": []byte(tsv),
	}}
	ex, err := NewExtractor(Config{PSM: 6, Language: "eng+fra", TessdataDir: "/td"}, nil, WithRunner(runner))
	require.NoError(t, err)

	img := entity.NewImage(testPNG(t, 8, 8), "image/png", "", constants.SourceUpload)
	res, err := ex.Extract(context.Background(), img, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sugar, Water", res.Text)
	assert.Equal(t, EngineTesseract, res.Method)

	require.Len(t, runner.calls, 2)
	args := runner.calls[0].args
	assert.Equal(t, "stdout", args[1])
	assert.Equal(t, []string{"-l", "eng+fra", "--psm", "6", "--tessdata-dir", "/td"}, args[2:])
	assert.Equal(t, "tsv", runner.calls[1].args[len(runner.calls[1].args)-1])
}

func TestMeanTSVConfidence(t *testing.T) {
	assert.Zero(t, meanTSVConfidence(""))
	assert.InDelta(t, 0.8, meanTSVConfidence("header\n5\t1\t1\t1\t1\t1\t0\t0\t1\t1\t80\tSalt\n"), 0.001)
}

func TestUnknownEngine(t *testing.T) {
	_, err := NewExtractor(Config{Engine: "abbyy"}, nil)
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"  Sugar,\tWater  \r\n", "Sugar, Water"},
		{"mono-\nglycerides , salt", "monoglycerides, salt"},
		{"Vitamin B-\n12", "Vitamin B-\n12"},
		{"Sugar\n\n\n\n\nSalt", "Sugar\n\nSalt"},
		{"INGREDIENTS\n______\nSugar", "INGREDIENTS\n\nSugar"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestHeuristicConfidence(t *testing.T) {
	assert.Zero(t, heuristicConfidence("   "))
	plain := heuristicConfidence("hello")
	label := heuristicConfidence("Ingredients: Sugar, Water, Palm Oil (12%), Salt, E330")
	assert.Greater(t, label, plain)
	assert.LessOrEqual(t, label, float32(1))

	assert.InDelta(t, 0.5, blendConfidence(0, 0.5), 0.0001)
	assert.InDelta(t, 0.7*0.9+0.3*0.5, blendConfidence(0.9, 0.5), 0.0001)
}
