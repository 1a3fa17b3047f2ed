// Package verify runs the canary extraction and checks its header against
// the decoder extract's expected columns.
package verify

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/alert"
	"github.com/cpm-tools/corvil-extract/internal/command"
	"github.com/cpm-tools/corvil-extract/internal/model"
)

// ErrSchemaMismatch is returned when the canary header does not match.
var ErrSchemaMismatch = eris.New("verify: column verification failed")

// Runner executes one command to completion.
type Runner interface {
	Run(ctx context.Context, cmd command.Command) error
}

// Verifier runs canaries and compares their headers.
type Verifier struct {
	runner  Runner
	alerter alert.Alerter
}

// New creates a Verifier. A nil alerter discards alerts.
func New(runner Runner, alerter alert.Alerter) *Verifier {
	if alerter == nil {
		alerter = alert.Nop{}
	}
	return &Verifier{runner: runner, alerter: alerter}
}

// Verify runs the plan's canary command and checks its header against
// expected. The canary output is always removed afterwards. The header-only
// verification file is removed on success and kept on mismatch.
func (v *Verifier) Verify(ctx context.Context, plan command.Plan, expected []string, classID string, w model.TimeWindow) (Result, error) {
	canaryPath := plan.Canary.Output
	defer func() {
		zap.L().Info("Deleting test extract file", zap.String("path", canaryPath))
		if err := os.Remove(canaryPath); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("verify: remove canary", zap.String("path", canaryPath), zap.Error(err))
		}
	}()

	if err := v.runner.Run(ctx, plan.Canary); err != nil {
		return Result{}, err
	}

	zap.L().Info("Generating verification file", zap.String("path", plan.Paths.Verify))
	header, found, err := HeaderLine(canaryPath, plan.Canary.Pipeline.Compression)
	if err != nil {
		return Result{}, err
	}
	if !found {
		zap.L().Warn("verify: canary output has no header line", zap.String("path", canaryPath))
	}
	if err := writeVerifyFile(plan.Paths.Verify, header, found); err != nil {
		return Result{}, err
	}

	zap.L().Info("Running column verification")
	res := Compare(expected, SplitHeader(header))
	if res.OK {
		zap.L().Info("Column verification passed")
		zap.L().Info("Deleting verification file", zap.String("path", plan.Paths.Verify))
		if err := os.Remove(plan.Paths.Verify); err != nil && !os.IsNotExist(err) {
			return res, eris.Wrapf(err, "verify: remove %s", plan.Paths.Verify)
		}
		return res, nil
	}

	logMismatch(res)

	details := map[string]any{
		"expected":       res.Expected,
		"actual":         res.Actual,
		"count_mismatch": res.CountMismatch,
	}
	if res.Position > 0 {
		details["position"] = res.Position
	}
	if err := v.alerter.Send(ctx, alert.SchemaMismatch(classID, w, details)); err != nil {
		zap.L().Error("verify: error sending alert", zap.Error(err))
	}

	if res.CountMismatch {
		return res, eris.Wrapf(ErrSchemaMismatch, "expected %d columns, got %d", len(res.Expected), len(res.Actual))
	}
	return res, eris.Wrapf(ErrSchemaMismatch, "column %d: expected %q, got %q",
		res.Position, res.ExpectedColumn(), res.ActualColumn())
}

func logMismatch(res Result) {
	if res.CountMismatch {
		zap.L().Error("Verification failed. Column count mismatch",
			zap.Int("expected_count", len(res.Expected)),
			zap.Int("actual_count", len(res.Actual)),
		)
	} else {
		zap.L().Error("Column mismatch at output file column position",
			zap.Int("position", res.Position),
			zap.String("expected", res.ExpectedColumn()),
			zap.String("actual", res.ActualColumn()),
		)
	}
	zap.L().Error("verify: column lists",
		zap.Strings("expected_columns", res.Expected),
		zap.Strings("actual_columns", res.Actual),
	)
}

func writeVerifyFile(path, header string, found bool) error {
	content := ""
	if found {
		content = header + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return eris.Wrapf(err, "verify: write %s", path)
	}
	return nil
}
