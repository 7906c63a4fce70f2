package grader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/pkg/sandbox"
)

// ErrUnsupportedLanguage indicates the assignment's language has no runner.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrNoTestCases indicates the assignment declares no test cases to run.
var ErrNoTestCases = errors.New("assignment has no test cases")

const inputFileName = "input.txt"

type languageConfig struct {
	Image    string
	FileName string
	Command  []string
}

// runCommand redirects the case input file to the program's stdin.
func (l languageConfig) runCommand() []string {
	run := strings.Join(l.Command, " ")
	return []string{"sh", "-c", fmt.Sprintf("%s < %s", run, inputFileName)}
}

// Config holds grading defaults applied when the assignment does not set its own.
type Config struct {
	CaseTimeout   time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkspaceRoot string
}

// Grader runs submitted code against an assignment's declared test cases.
type Grader struct {
	executor  sandbox.Executor
	cfg       Config
	logger    zerolog.Logger
	languages map[string]languageConfig
}

// New constructs a Grader around the given sandbox executor.
func New(executor sandbox.Executor, cfg Config, logger zerolog.Logger) *Grader {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.CaseTimeout <= 0 {
		cfg.CaseTimeout = 30 * time.Second
	}

	return &Grader{
		executor: executor,
		cfg:      cfg,
		logger:   logger.With().Str("component", "grader").Logger(),
		languages: map[string]languageConfig{
			"python": {
				Image:    "python:3.11-alpine",
				FileName: "main.py",
				Command:  []string{"python", "main.py"},
			},
			"javascript": {
				Image:    "node:20-alpine",
				FileName: "main.js",
				Command:  []string{"node", "main.js"},
			},
			"go": {
				Image:    "golang:1.22-alpine",
				FileName: "main.go",
				Command:  []string{"go", "run", "main.go"},
			},
		},
	}
}

// Supports reports whether the language has a configured runner.
func (g *Grader) Supports(language string) bool {
	_, ok := g.languages[normalizeLanguage(language)]
	return ok
}

// Grade executes the source once per test case, in declared order, and returns
// one result per case. A timeout or execution error fails that case only; the
// remaining cases still run. Per-case score is maxScore divided evenly across
// the cases.
func (g *Grader) Grade(ctx context.Context, source, language string, testCases []models.TestCase, maxScore float64, caseTimeout time.Duration) ([]models.TestCaseResult, float64, error) {
	langCfg, ok := g.languages[normalizeLanguage(language)]
	if !ok {
		return nil, 0, ErrUnsupportedLanguage
	}

	if len(testCases) == 0 {
		return nil, 0, ErrNoTestCases
	}

	if caseTimeout <= 0 {
		caseTimeout = g.cfg.CaseTimeout
	}

	workspace, err := os.MkdirTemp(g.cfg.WorkspaceRoot, "grading-")
	if err != nil {
		return nil, 0, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, langCfg.FileName), []byte(source), 0o600); err != nil {
		return nil, 0, fmt.Errorf("write source: %w", err)
	}

	perCaseScore := maxScore / float64(len(testCases))

	results := make([]models.TestCaseResult, 0, len(testCases))
	var total float64

	for i, tc := range testCases {
		result := g.runCase(ctx, workspace, langCfg, i, tc, caseTimeout)
		if result.Passed {
			result.Score = perCaseScore
			total += perCaseScore
		}
		results = append(results, result)
	}

	return results, total, nil
}

func (g *Grader) runCase(ctx context.Context, workspace string, langCfg languageConfig, index int, tc models.TestCase, timeout time.Duration) models.TestCaseResult {
	result := models.TestCaseResult{
		Index:    index,
		Input:    tc.Input,
		Expected: tc.ExpectedOutput,
	}

	if err := os.WriteFile(filepath.Join(workspace, inputFileName), []byte(tc.Input), 0o600); err != nil {
		result.Actual = fmt.Sprintf("error: %v", err)
		return result
	}

	execResult, err := g.executor.Run(ctx, sandbox.ExecutionRequest{
		Image:         langCfg.Image,
		Cmd:           langCfg.runCommand(),
		Timeout:       timeout,
		Workspace:     workspace,
		MemoryLimitMB: g.cfg.MemoryLimitMB,
		CPUShares:     g.cfg.CPUShares,
	})

	switch {
	case execResult.TimedOut:
		result.Actual = "<timeout>"
	case err != nil:
		result.Actual = fmt.Sprintf("error: %v", err)
	case execResult.ExitCode != 0:
		stderr := strings.TrimSpace(execResult.Stderr)
		if stderr == "" {
			stderr = fmt.Sprintf("process exited with code %d", execResult.ExitCode)
		}
		result.Actual = fmt.Sprintf("error: %s", stderr)
	default:
		result.Actual = trimTrailingNewline(execResult.Stdout)
		result.Passed = result.Actual == tc.ExpectedOutput
	}

	if !result.Passed {
		g.logger.Debug().Int("case", index).Str("actual", result.Actual).Msg("test case failed")
	}

	return result
}

func normalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

func trimTrailingNewline(output string) string {
	output = strings.TrimSuffix(output, "\n")
	return strings.TrimSuffix(output, "\r")
}
