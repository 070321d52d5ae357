package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/fancylads/bespoke/internal/config"
	"github.com/fancylads/bespoke/internal/core"
	"github.com/fancylads/bespoke/internal/models"
	"github.com/fancylads/bespoke/internal/plan"
	"github.com/fancylads/bespoke/internal/store"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
	"github.com/fancylads/bespoke/pkg/remote"
)

// RunService drives one bespoke test run end to end: load the config
// files, stage tools and builds, connect to the lab, execute, and persist
// the outcome.
type RunService struct {
	fs     afero.Fs
	loader *plan.Loader
	store  *store.Store
	cfg    *config.Configuration
	log    *zap.SugaredLogger
}

func NewRunService(fs afero.Fs, st *store.Store, cfg *config.Configuration) *RunService {
	return &RunService{
		fs:     fs,
		loader: plan.NewLoader(fs),
		store:  st,
		cfg:    cfg,
		log:    zap.S().Named("runner"),
	}
}

// Run executes the test run described by runPath against the lab
// described by globalPath. The returned status is the run's terminal
// status; err is non-nil only when the run could not be driven at all.
func (s *RunService) Run(ctx context.Context, globalPath, runPath string) (models.Status, error) {
	global, err := s.loader.LoadGlobal(globalPath)
	if err != nil {
		return models.StatusNotRan, err
	}

	registry := NewResourceRegistry()
	for _, resourcePath := range global.ResourceConfigs {
		resources, err := s.loader.LoadResources(resourcePath)
		if err != nil {
			return models.StatusNotRan, err
		}
		if err := registry.AddFromConfig(ctx, resources); err != nil {
			return models.StatusNotRan, err
		}
	}

	runFile, err := s.loader.LoadTestRun(runPath)
	if err != nil {
		return models.StatusNotRan, err
	}
	tools, builds, err := s.loader.Catalogs(runFile)
	if err != nil {
		return models.StatusNotRan, err
	}

	if err := s.stage(ctx, global.ToolsPath, tools, builds); err != nil {
		return models.StatusNotRan, err
	}

	env, err := s.environment(global)
	if err != nil {
		return models.StatusNotRan, err
	}
	testRun, err := s.loader.BuildTestRun(runFile, env, registry, tools, builds)
	if err != nil {
		return models.StatusNotRan, err
	}

	return s.execute(ctx, testRun)
}

func (s *RunService) stage(ctx context.Context, toolsRoot string, catalogs ...map[string]models.Tool) error {
	var artifacts []models.Tool
	for _, catalog := range catalogs {
		for _, tool := range catalog {
			artifacts = append(artifacts, tool)
		}
	}
	if len(artifacts) == 0 {
		return nil
	}

	stager := NewToolStager(s.fs, toolsRoot, s.cfg.Lab.NumWorkers)
	return stager.Stage(ctx, artifacts)
}

func (s *RunService) environment(global *plan.GlobalFile) (*core.Environment, error) {
	opts := []remote.HTTPDialerOption{
		remote.WithAgentPort(s.cfg.Agent.HTTPPort),
		remote.WithFs(s.fs),
	}
	if s.cfg.Auth.Enabled {
		token, err := s.agentToken()
		if err != nil {
			return nil, err
		}
		opts = append(opts, remote.WithToken(token))
	}

	return core.NewEnvironment(core.Environment{
		LocalResults:   global.ResultsPath,
		LocalTools:     global.ToolsPath,
		LocalTests:     global.TestsPath,
		ServerHostname: global.ServerHostname,
		BootWait:       s.cfg.Lab.BootWaitSeconds,
		Dialer:         remote.NewHTTPDialer(opts...),
		Fs:             s.fs,
	}), nil
}

// agentToken mints the bearer token agents verify, signed with the same
// shared secret the agents load at startup.
func (s *RunService) agentToken() (string, error) {
	raw, err := os.ReadFile(s.cfg.Auth.JWTSecretFilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read the JWT secret: %w", err)
	}
	secret := []byte(strings.TrimSpace(string(raw)))

	claims := jwt.MapClaims{
		"iss": "bespoke",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *RunService) execute(ctx context.Context, testRun *core.TestRun) (models.Status, error) {
	record := models.RunRecord{
		ID:        uuid.NewString(),
		Name:      testRun.Name(),
		Status:    models.StatusRunning,
		StartedAt: time.Now(),
	}
	if err := s.store.Runs().Create(ctx, record); err != nil {
		return models.StatusNotRan, err
	}

	err := testRun.Execute(ctx)
	switch {
	case err == nil, bkErrors.IsFailure(err):
	case bkErrors.IsFatal(err):
		s.log.Errorw("test run aborted", "run", testRun.Name(), "error", err)
	default:
		s.log.Errorw("test run failed to execute", "run", testRun.Name(), "error", err)
	}

	if err := s.record(ctx, record.ID, testRun); err != nil {
		s.log.Errorw("failed to persist test results", "run", testRun.Name(), "error", err)
	}

	record.Status = testRun.Status()
	record.Message = testRun.Message()
	record.FinishedAt = time.Now()
	if err := s.store.Runs().Finish(ctx, record); err != nil {
		s.log.Errorw("failed to persist the run outcome", "run", testRun.Name(), "error", err)
	}

	s.summarize(testRun)
	return testRun.Status(), nil
}

// record flattens the run into one row per executed unit.
func (s *RunService) record(ctx context.Context, runID string, testRun *core.TestRun) error {
	var records []models.ResultRecord
	for _, testPlan := range testRun.TestPlans() {
		for _, testCase := range testPlan.TestCases() {
			for _, unit := range testCase.Units() {
				records = append(records, models.ResultRecord{
					ID:          uuid.NewString(),
					RunID:       runID,
					PlanName:    testPlan.Name(),
					CaseName:    testCase.Name(),
					UnitName:    unit.Name(),
					UnitKind:    unitKind(unit),
					Status:      unit.Status(),
					Message:     unit.Message(),
					ResultsPath: resultsPath(unit),
					RecordedAt:  time.Now(),
				})
			}
		}
	}
	return s.store.Results().AddAll(ctx, records)
}

func unitKind(unit core.Unit) string {
	switch unit.(type) {
	case *core.TestPrep:
		return "TestPrep"
	case *core.BasicInstaller:
		return "BasicInstaller"
	case *core.MSIInstaller:
		return "MSIInstaller"
	case *core.TestStep:
		return "TestStep"
	case *core.PowerControl:
		return "PowerControl"
	default:
		return "Unknown"
	}
}

func resultsPath(unit core.Unit) string {
	if r, ok := unit.(interface{ LocalResults() string }); ok {
		return r.LocalResults()
	}
	return ""
}

// summarize prints the operator-facing outcome table.
func (s *RunService) summarize(testRun *core.TestRun) {
	fmt.Printf("\nTest run %q: %s\n", testRun.Name(), colorStatus(testRun.Status()))
	if testRun.Message() != "" {
		fmt.Printf("  %s\n", testRun.Message())
	}

	for _, testPlan := range testRun.TestPlans() {
		fmt.Printf("  plan %q: %s\n", testPlan.Name(), colorStatus(testPlan.Status()))
		for _, testCase := range testPlan.TestCases() {
			fmt.Printf("    case %q: %s\n", testCase.Name(), colorStatus(testCase.Status()))
			if testCase.Message() != "" {
				fmt.Printf("      %s\n", testCase.Message())
			}
		}
	}
}

func colorStatus(status models.Status) string {
	switch status {
	case models.StatusPass:
		return color.GreenString(string(status))
	case models.StatusFail:
		return color.RedString(string(status))
	case models.StatusFatal, models.StatusCritical:
		return color.New(color.FgRed, color.Bold).Sprint(string(status))
	default:
		return color.YellowString(string(status))
	}
}
