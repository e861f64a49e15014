// Command artifacts renders the alert-rule and dashboard documents to an
// output directory. Run it whenever the rules or layout change and commit
// the generated files alongside the deployment manifests.
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"catalog-pulse/internal/observability/artifacts"
	"catalog-pulse/internal/observability/logging"
)

func main() {
	outDir := flag.String("out", "deploy/observability", "directory to write the generated YAML files")
	flag.Parse()

	logger := logging.NewTextLogger()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("failed to create output directory", slog.Any("error", err))
		os.Exit(1)
	}

	rules, err := artifacts.RenderRules(artifacts.DefaultAlertRules())
	if err != nil {
		logger.Error("failed to render alert rules", slog.Any("error", err))
		os.Exit(1)
	}

	dashboard, err := artifacts.RenderDashboard(artifacts.DefaultDashboard())
	if err != nil {
		logger.Error("failed to render dashboard", slog.Any("error", err))
		os.Exit(1)
	}

	files := map[string][]byte{
		"alert_rules.yaml": rules,
		"dashboard.yaml":   dashboard,
	}
	for name, content := range files {
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			logger.Error("failed to write artifact", slog.String("path", path), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("artifact written", slog.String("path", path), slog.Int("bytes", len(content)))
	}
}
