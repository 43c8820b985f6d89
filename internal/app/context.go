package app

import (
	"context"
	"fmt"
	"path/filepath"

	"tooldo/internal/config"
	"tooldo/internal/repo"
)

// ResolveConfig loads the workspace config, falling back to defaults when
// tooldo.yml is absent. The workspace directory name seeds the workspace ID.
func ResolveConfig(workspace string) (*config.Config, error) {
	if workspace == "" {
		workspace = "."
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return nil, err
		}
		cfg = config.Default(filepath.Base(abs))
	}
	return cfg, nil
}

// ResolveCompany picks the active company: an explicit override wins,
// otherwise a workspace holding exactly one company selects it.
func ResolveCompany(ctx context.Context, r repo.Repo, override string) (string, error) {
	if override != "" {
		if _, err := r.GetCompany(ctx, override); err != nil {
			return "", fmt.Errorf("company %s: %w", override, err)
		}
		return override, nil
	}
	companies, err := r.ListCompanies(ctx)
	if err != nil {
		return "", err
	}
	switch len(companies) {
	case 0:
		return "", fmt.Errorf("no company found; run td init first")
	case 1:
		return companies[0].ID, nil
	default:
		return "", fmt.Errorf("multiple companies in workspace; use --company")
	}
}
