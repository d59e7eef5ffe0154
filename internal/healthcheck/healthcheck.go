package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/l3aro/go-template-script/internal/config"
	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/eval"
)

// Status values of a single check.
const (
	StatusReady       = "ready"
	StatusDisabled    = "disabled"
	StatusUnavailable = "unavailable" // not an error; the feature degrades
	StatusError       = "error"
)

// CheckStatus represents the outcome of a single check.
type CheckStatus struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	EffectivePath  string        `json:"effective_path,omitempty"`
	EffectiveScope string        `json:"effective_scope"` // "global", "project" or "defaults"
	Checks         []CheckStatus `json:"checks"`
}

// Failed reports whether any check ended in an error.
func (r *HealthCheckResult) Failed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusError {
			return true
		}
	}
	return false
}

// Check performs a health check against the given config.
// effectivePath is the config file actually in use, empty for defaults.
func Check(ctx context.Context, cfg *config.Config, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}
	result.Checks = []CheckStatus{
		checkConfig(cfg),
		checkNamespace(cfg.ModuleNamespace),
		checkParser(ctx),
		checkCache(cfg),
		checkPrompts(),
	}
	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
func scopeFromPath(path string) string {
	if path == "" {
		return "defaults"
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".gts")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

func checkConfig(cfg *config.Config) CheckStatus {
	status := CheckStatus{
		Name:   "config",
		Detail: fmt.Sprintf("loops %d, call depth %d", cfg.MaxLoopIterations, cfg.MaxCallDepth),
		Status: StatusReady,
	}
	if err := cfg.Validate(); err != nil {
		status.Status = StatusError
		status.Error = err.Error()
	}
	return status
}

func checkNamespace(ns string) CheckStatus {
	status := CheckStatus{Name: "module namespace", Detail: ns, Status: StatusReady}
	if !ast.IsIdentifier(ns) {
		status.Status = StatusError
		status.Error = fmt.Sprintf("%q is not an identifier", ns)
	}
	return status
}

// checkParser verifies the JavaScript grammar used by the dependency
// analyzer loads and parses a probe script.
func checkParser(ctx context.Context) CheckStatus {
	status := CheckStatus{Name: "script parser", Detail: "tree-sitter javascript"}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	tree, err := p.ParseCtx(ctx, nil, []byte("let x = tp.date.now(); for (const n of [1]) { tR += n }"))
	if err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("parse failed: %v", err)
		return status
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		status.Status = StatusError
		status.Error = "probe script did not parse cleanly"
		return status
	}
	status.Status = StatusReady
	return status
}

// checkCache verifies the persisted expression cache can be read.
func checkCache(cfg *config.Config) CheckStatus {
	status := CheckStatus{Name: "expression cache", Detail: cfg.CacheFile}

	if !cfg.ExpressionCache {
		status.Status = StatusDisabled
		return status
	}
	if cfg.CacheFile == "" {
		status.Detail = fmt.Sprintf("in memory, %d entries", cfg.CacheSize)
		status.Status = StatusReady
		return status
	}

	if _, err := os.Stat(cfg.CacheFile); errors.Is(err, os.ErrNotExist) {
		status.Detail += " (not written yet)"
		status.Status = StatusReady
		return status
	}
	c := eval.NewExprCache(cfg.CacheSize)
	if err := c.LoadFile(cfg.CacheFile); err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("unreadable cache: %v", err)
		return status
	}
	status.Detail = fmt.Sprintf("%s (%d entries)", cfg.CacheFile, c.Len())
	status.Status = StatusReady
	return status
}

// checkPrompts reports whether tp.system prompts can be shown.
func checkPrompts() CheckStatus {
	status := CheckStatus{Name: "interactive prompts", Status: StatusReady}
	if !log.IsTTY() {
		status.Status = StatusUnavailable
		status.Detail = "not attached to a terminal; tp.system calls are cancelled"
	}
	return status
}
