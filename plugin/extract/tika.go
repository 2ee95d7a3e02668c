package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// tikaMimeTypes lists the formats delegated to Tika.
var tikaMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/rtf",
	"text/rtf",
}

// TikaConfig holds the Tika extraction configuration.
type TikaConfig struct {
	// ServerURL is the URL of the Tika server (e.g., http://localhost:9998)
	ServerURL string
	// JarPath is the path to tika-app.jar (for embedded mode)
	JarPath string
	// JavaPath is the path to the java executable
	JavaPath string
	// Timeout is the HTTP timeout for Tika server requests
	Timeout time.Duration
	// UseEmbedded determines whether to prefer embedded Tika (java -jar tika-app.jar)
	UseEmbedded bool
}

// DefaultTikaConfig returns the default Tika configuration.
func DefaultTikaConfig() *TikaConfig {
	return &TikaConfig{
		ServerURL:   "http://localhost:9998",
		JarPath:     "",
		JavaPath:    "java",
		Timeout:     30 * time.Second,
		UseEmbedded: false,
	}
}

// TikaConfigFromEnv creates Tika config from GRANARY_* environment variables.
func TikaConfigFromEnv() *TikaConfig {
	config := DefaultTikaConfig()

	if url := os.Getenv("GRANARY_TIKA_URL"); url != "" {
		config.ServerURL = url
	}
	if path := os.Getenv("GRANARY_TIKA_JAR"); path != "" {
		config.JarPath = path
	}
	if path := os.Getenv("GRANARY_JAVA_PATH"); path != "" {
		config.JavaPath = path
	}
	if timeout := os.Getenv("GRANARY_TIKA_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Timeout = d
		}
	}
	if useEmbedded := os.Getenv("GRANARY_TIKA_EMBEDDED"); useEmbedded == "true" || useEmbedded == "1" {
		config.UseEmbedded = true
	}

	return config
}

// TikaClient extracts text from binary document formats via Apache Tika.
type TikaClient struct {
	config     *TikaConfig
	httpClient *http.Client
}

// NewTikaClient creates a new Tika client.
func NewTikaClient(config *TikaConfig) *TikaClient {
	if config == nil {
		config = DefaultTikaConfig()
	}

	return &TikaClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// ExtractText extracts text from a document.
func (c *TikaClient) ExtractText(ctx context.Context, data []byte, contentType string) (*Result, error) {
	if !c.IsSupported(contentType) {
		return nil, errors.Errorf("unsupported content type: %s", contentType)
	}

	if c.config.UseEmbedded && c.config.JarPath != "" {
		return c.extractEmbedded(ctx, data, contentType)
	}

	return c.extractFromServer(ctx, data, contentType)
}

// extractFromServer extracts text using the Tika server.
func (c *TikaClient) extractFromServer(ctx context.Context, data []byte, contentType string) (*Result, error) {
	if c.config.ServerURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			c.config.ServerURL+"/tika",
			bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create request")
		}

		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "text/plain")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			slog.Warn("tika server request failed, trying fallback", "error", err)
			// Fall through to embedded mode if available
		} else {
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				return nil, errors.Errorf("tika server returned status %d: %s", resp.StatusCode, string(body))
			}

			text, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, errors.Wrap(err, "failed to read response")
			}

			result := &Result{
				Text:        strings.TrimSpace(string(text)),
				ContentType: contentType,
			}
			result.calculateStats()

			metadata, err := c.getMetadata(ctx, data, contentType)
			if err == nil {
				result.Metadata = metadata
				result.Title = metadata["title"]
				if result.Title == "" {
					result.Title = metadata["dc:title"]
				}
			}

			return result, nil
		}
	}

	// Fallback to embedded mode
	if c.config.JarPath != "" {
		return c.extractEmbedded(ctx, data, contentType)
	}

	return nil, errors.New("no tika server or jar available")
}

// extractEmbedded extracts text using embedded Tika (java -jar tika-app.jar).
func (c *TikaClient) extractEmbedded(ctx context.Context, data []byte, contentType string) (*Result, error) {
	inputFile, err := os.CreateTemp("", "tika_input_*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp input file")
	}
	defer func() {
		inputFile.Close()
		os.Remove(inputFile.Name())
	}()

	if _, err := inputFile.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed to write input file")
	}

	args := []string{
		"-jar", c.config.JarPath,
		"-t", // text output
		inputFile.Name(),
	}

	cmd := exec.CommandContext(ctx, c.config.JavaPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slog.Warn("tika embedded extraction failed", "error", err, "stderr", stderr.String())
		return nil, errors.Wrap(err, "tika-app.jar failed")
	}

	result := &Result{
		Text:        strings.TrimSpace(stdout.String()),
		ContentType: contentType,
	}
	result.calculateStats()

	return result, nil
}

// getMetadata retrieves document metadata from Tika.
func (c *TikaClient) getMetadata(ctx context.Context, data []byte, contentType string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.config.ServerURL+"/meta",
		bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request returned status %d", resp.StatusCode)
	}

	var metadata map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for k, v := range metadata {
		if str, ok := v.(string); ok {
			result[k] = str
		} else if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
			if str, ok := arr[0].(string); ok {
				result[k] = str
			}
		}
	}

	return result, nil
}

// IsAvailable checks if Tika is reachable.
func (c *TikaClient) IsAvailable(ctx context.Context) bool {
	if c.config.ServerURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ServerURL, nil)
		if err == nil {
			resp, err := c.httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
				return resp.StatusCode == http.StatusOK
			}
		}
	}

	if c.config.JarPath != "" {
		if _, err := os.Stat(c.config.JarPath); err == nil {
			cmd := exec.CommandContext(ctx, c.config.JavaPath, "-version")
			return cmd.Run() == nil
		}
	}

	return false
}

// IsSupported checks if a MIME type is delegated to Tika.
func (c *TikaClient) IsSupported(contentType string) bool {
	for _, supported := range tikaMimeTypes {
		if strings.EqualFold(contentType, supported) {
			return true
		}
	}
	return false
}
