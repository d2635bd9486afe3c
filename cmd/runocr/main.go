package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/llm"
	"github.com/joseph-ayodele/labelscan/internal/llm/gemini"
	"github.com/joseph-ayodele/labelscan/internal/logger"
	"github.com/joseph-ayodele/labelscan/internal/ocr"
	"github.com/joseph-ayodele/labelscan/internal/report"
)

var (
	okLine   = color.New(color.FgGreen)
	warnLine = color.New(color.FgYellow)
	errLine  = color.New(color.FgRed)
	infoLine = color.New(color.FgCyan)
)

func main() {
	analyze := flag.Bool("analyze", false, "send the recognized text to Gemini and print the report")
	modeFlag := flag.String("mode", "general", "analysis mode: general | allergen | diabetes")
	xlsxOut := flag.String("xlsx", "", "also write the report workbook to this path (with -analyze)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall time limit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: runocr [-analyze] [-mode m] [-xlsx out.xlsx] <image>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	mode, ok := constants.ParseMode(*modeFlag)
	if !ok {
		errLine.Printf("✗ unknown mode %q (want one of %v)\n", *modeFlag, constants.ModesAsStringSlice())
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		errLine.Printf("✗ load config: %v\n", err)
		os.Exit(1)
	}
	// keep the terminal for the progress bar and results
	cfg.Log.Level = "warn"
	cfg.Log.Format = "console"
	log, err := logger.New(cfg.Log)
	if err != nil {
		errLine.Printf("✗ build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	data, err := os.ReadFile(path)
	if err != nil {
		errLine.Printf("✗ read %s: %v\n", path, err)
		os.Exit(1)
	}
	mimeType, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(path))]
	if !ok {
		errLine.Printf("✗ unsupported file type %q\n", filepath.Ext(path))
		os.Exit(1)
	}
	img := entity.NewImage(data, mimeType, filepath.Base(path), constants.SourceUpload)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	extractor, err := ocr.NewExtractor(ocr.Config{
		Engine:        cfg.OCR.Engine,
		Tesseract:     cfg.OCR.Tesseract,
		Language:      cfg.OCR.Language,
		TessdataDir:   cfg.OCR.TessdataDir,
		HeicConverter: cfg.OCR.HeicConverter,
		PSM:           cfg.OCR.PSM,
		Preprocess:    cfg.OCR.Preprocess,
		Binarize:      cfg.OCR.Binarize,
		MaxDimension:  cfg.OCR.MaxDimension,
	}, log)
	if err != nil {
		errLine.Printf("✗ %v\n", err)
		os.Exit(1)
	}

	infoLine.Printf("ℹ %s (%s, %d bytes) with %s/%s\n", img.Filename, img.MIMEType, img.Size, cfg.OCR.Engine, extractor.Language())
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("recognizing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
	res, err := extractor.Extract(ctx, img, func(pct int) { _ = bar.Set(pct) })
	if err != nil {
		_ = bar.Exit()
		errLine.Printf("✗ text extraction failed: %v\n", err)
		os.Exit(1)
	}
	for _, w := range res.Warnings {
		warnLine.Printf("⚠ %s\n", w)
	}
	if res.Text == "" {
		errLine.Println("✗ " + common.UserMessage(common.ErrEmptyExtraction))
		os.Exit(1)
	}
	okLine.Printf("✓ text extraction OK: %d chars, confidence %.2f, %dms\n",
		len(res.Text), res.Confidence, res.Duration.Milliseconds())
	fmt.Println(res.Text)

	if !*analyze {
		return
	}

	client := gemini.NewClient(gemini.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Params: llm.GenerationParams{
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
			TopK:        cfg.LLM.TopK,
		},
		Timeout: cfg.LLM.Timeout,
	}, log)
	if err := client.CheckCredentials(); err != nil {
		errLine.Println("✗ " + common.UserMessage(err))
		os.Exit(1)
	}

	infoLine.Printf("ℹ analyzing in %s mode with %s\n", mode.Title(), cfg.LLM.Model)
	start := time.Now()
	raw, err := client.Submit(ctx, llm.BuildPrompt(res.Text, mode))
	if err != nil {
		errLine.Println("✗ " + common.UserMessage(err))
		os.Exit(1)
	}
	result, err := llm.ParseAnalysisWithLogger(raw, mode, log)
	if err != nil {
		errLine.Println("✗ " + common.UserMessage(err))
		log.Debug("runocr.raw_response", zap.String("raw", raw))
		os.Exit(1)
	}
	okLine.Printf("✓ analysis OK in %dms\n", time.Since(start).Milliseconds())

	view := report.BuildView(result, mode)
	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		errLine.Printf("✗ encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if *xlsxOut != "" {
		book, err := report.RenderXLSX(view)
		if err == nil {
			err = os.WriteFile(*xlsxOut, book, 0o644)
		}
		if err != nil {
			errLine.Printf("✗ write %s: %v\n", *xlsxOut, err)
			os.Exit(1)
		}
		okLine.Printf("✓ wrote %s\n", *xlsxOut)
	}
}
