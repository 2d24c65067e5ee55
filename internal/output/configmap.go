package output

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

const (
	managedByLabel = "app.kubernetes.io/managed-by"
	managedByValue = "trendmaster-ai"
	runIDLabel     = "trendmaster.io/run-id"
	generatedAtKey = "trendmaster.io/generated-at"

	configDataKey = "config.yaml"
)

// ConfigMap is the minimal v1 ConfigMap shape the writer emits and the
// reader accepts.
type ConfigMap struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   ConfigMapMetadata `yaml:"metadata"`
	Data       map[string]string `yaml:"data"`
}

type ConfigMapMetadata struct {
	Name        string            `yaml:"name"`
	Namespace   string            `yaml:"namespace"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

// Writer renders merged descriptor trees as ConfigMap YAML artifacts.
type Writer struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func NewWriter(cfg *config.Config, logger *logrus.Logger) *Writer {
	return &Writer{cfg: cfg, logger: logger}
}

// WriteConfigMap wraps the descriptor tree in a ConfigMap and writes it to
// the output directory, returning the file path.
func (w *Writer) WriteConfigMap(rateLimits *models.RateLimitConfig, runID string) (string, error) {
	configMap, err := w.BuildConfigMap(rateLimits, runID)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(configMap)
	if err != nil {
		return "", fmt.Errorf("marshalling configmap: %w", err)
	}

	if err := os.MkdirAll(w.cfg.Output.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(w.cfg.Output.Dir, w.cfg.Output.ConfigMapName+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing configmap artifact: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"path":    path,
		"run_id":  runID,
		"entries": len(rateLimits.Flatten()),
	}).Info("Wrote rate limit ConfigMap artifact")

	return path, nil
}

// BuildConfigMap assembles the ConfigMap object without writing it.
func (w *Writer) BuildConfigMap(rateLimits *models.RateLimitConfig, runID string) (*ConfigMap, error) {
	payload, err := yaml.Marshal(rateLimits)
	if err != nil {
		return nil, fmt.Errorf("marshalling rate limit config: %w", err)
	}

	return &ConfigMap{
		APIVersion: "v1",
		Kind:       "ConfigMap",
		Metadata: ConfigMapMetadata{
			Name:      w.cfg.Output.ConfigMapName,
			Namespace: w.cfg.Output.Namespace,
			Labels: map[string]string{
				managedByLabel: managedByValue,
				runIDLabel:     runID,
			},
			Annotations: map[string]string{
				generatedAtKey: time.Now().UTC().Format(time.RFC3339),
			},
		},
		Data: map[string]string{
			configDataKey: string(payload),
		},
	}, nil
}

// ReadExisting parses a previously applied configuration from a file. Both
// a full ConfigMap and a bare descriptor tree are accepted. A missing file
// returns (nil, nil): there is simply nothing to merge against yet.
func ReadExisting(path string) (*models.RateLimitConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading existing configuration: %w", err)
	}

	var configMap ConfigMap
	if err := yaml.Unmarshal(data, &configMap); err == nil && configMap.Kind == "ConfigMap" {
		payload, ok := configMap.Data[configDataKey]
		if !ok {
			return nil, fmt.Errorf("configmap %s has no %s entry", path, configDataKey)
		}
		data = []byte(payload)
	}

	var rateLimits models.RateLimitConfig
	if err := yaml.Unmarshal(data, &rateLimits); err != nil {
		return nil, fmt.Errorf("parsing rate limit configuration: %w", err)
	}
	return &rateLimits, nil
}
