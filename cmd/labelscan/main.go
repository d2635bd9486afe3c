package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/core"
	"github.com/joseph-ayodele/labelscan/internal/extract"
	"github.com/joseph-ayodele/labelscan/internal/llm"
	"github.com/joseph-ayodele/labelscan/internal/llm/gemini"
	"github.com/joseph-ayodele/labelscan/internal/logger"
	"github.com/joseph-ayodele/labelscan/internal/ocr"
	"github.com/joseph-ayodele/labelscan/internal/repository"
	"github.com/joseph-ayodele/labelscan/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.LLM.APIKey == "" {
		// the service still starts; analyses fail with AUTH_MISSING until a key is set
		log.Warn("GEMINI_API_KEY is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// OCR text pipeline
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
		log.Fatal("failed to build OCR extractor", zap.Error(err))
	}
	recognizer := extract.NewOCRAdapter(extractor, log)

	geminiClient := gemini.NewClient(gemini.Config{
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
	log.Info("analysis client ready", zap.String("model", geminiClient.Model()))

	sessions := repository.NewSessionRepository(repository.SessionConfig{
		TTL:             cfg.Session.TTL,
		CleanupInterval: cfg.Session.CleanupInterval,
	}, log)

	processor := core.NewProcessor(core.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Workers:        cfg.Session.Workers,
		QueueSize:      cfg.Session.QueueSize,
		JobTimeout:     cfg.Session.JobTimeout,
	}, log, sessions, recognizer, geminiClient)

	srvCfg := server.Config{
		Addr:           cfg.Server.HTTPAddr,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}
	httpServer := server.NewHTTPServer(srvCfg, server.NewRouter(srvCfg, processor, log))

	// gRPC health
	grpcServer, healthServer := server.NewHealthServer()
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatal("failed to listen on address", zap.String("addr", cfg.Server.GRPCAddr), zap.Error(err))
	}

	go func() {
		log.Info("labelscan listening",
			zap.String("http_addr", cfg.Server.HTTPAddr),
			zap.String("ocr_engine", cfg.OCR.Engine),
			zap.String("model", cfg.LLM.Model))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http serve error", zap.Error(err))
			stop()
		}
	}()
	go func() {
		log.Info("grpc health listening", zap.String("grpc_addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC serve error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	processor.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	log.Info("stopped", zap.Int("sessions_open", sessions.Count()))
}
