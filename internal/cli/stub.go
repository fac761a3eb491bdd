package cli

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/leaf-check/internal/devserver"
)

const stubShutdownTimeout = 15 * time.Second

type stubOptions struct {
	addr                string
	confidenceThreshold float64
	plantThreshold      float64
}

func newStubCmd(root *rootOptions) *cobra.Command {
	opts := &stubOptions{}

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve a local stand-in for the prediction endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStub(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default from stub.addr)")
	cmd.Flags().Float64Var(&opts.confidenceThreshold, "confidence-threshold", 0, "Minimum disease confidence to accept")
	cmd.Flags().Float64Var(&opts.plantThreshold, "plant-threshold", 0, "Minimum plant confidence to accept")
	return cmd
}

func runStub(cmd *cobra.Command, root *rootOptions, opts *stubOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	addr := cfg.Stub.Addr
	if cmd.Flags().Changed("addr") {
		addr = opts.addr
	}
	gates := devserver.Options{
		ConfidenceThreshold: cfg.Stub.ConfidenceThreshold,
		PlantThreshold:      cfg.Stub.PlantThreshold,
	}
	if cmd.Flags().Changed("confidence-threshold") {
		gates.ConfidenceThreshold = opts.confidenceThreshold
	}
	if cmd.Flags().Changed("plant-threshold") {
		gates.PlantThreshold = opts.plantThreshold
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:    addr,
		Handler: devserver.NewRouter(devserver.HashScorer{}, gates, logger),
	}

	logger.Info("stub prediction endpoint listening",
		zap.String("addr", addr),
		zap.Float64("confidence_threshold", gates.ConfidenceThreshold),
		zap.Float64("plant_threshold", gates.PlantThreshold),
	)
	return devserver.Serve(server, stubShutdownTimeout, logger, nil, nil)
}
