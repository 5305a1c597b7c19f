// Package narrative provides the text generators behind orchestration reports.
package narrative

import (
	"fmt"
	"net/http"
	"time"

	"grantflow.org/internal/config"
	"grantflow.org/internal/orchestrator"
)

// New builds the generator selected by cfg.Provider.
func New(cfg config.NarrativeConfig) (orchestrator.NarrativeGenerator, error) {
	switch cfg.Provider {
	case "", "template":
		return Template{}, nil
	case "openai":
		return &OpenAI{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Client:  &http.Client{Timeout: time.Minute},
			Guard:   NewGuard(cfg.MaxFailures, cfg.Cooldown),
		}, nil
	}
	return nil, fmt.Errorf("unknown narrative provider %q", cfg.Provider)
}
