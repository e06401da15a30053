package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gorates/app"
	"gorates/internal"
	"gorates/internal/config"
	"gorates/ports"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "gorates",
		Short:         "Inference for Poisson rates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newConfintCmd(),
		newTestCmd(),
		newTwoSampleCmd(),
		newEtestCmd(),
		newTostCmd(),
		newConfint2Cmd(),
		newPowerCmd(),
		newDispersionCmd(),
		newBatchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newService() (*app.RateService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.NewRateService(cfg, internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level))), nil
}

// run executes fn against a fresh service and prints the response as JSON
func run[Resp any](ctx context.Context, fn func(*app.RateService, context.Context) (*Resp, error)) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	resp, err := fn(svc, ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("count %q is not an integer", s)
	}
	return n, nil
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		out[i] = v
	}
	return out, nil
}

func parsePair(args []string) (ports.TwoSampleRequest, error) {
	var req ports.TwoSampleRequest
	c1, err := parseCount(args[0])
	if err != nil {
		return req, err
	}
	c2, err := parseCount(args[2])
	if err != nil {
		return req, err
	}
	exp, err := parseFloats([]string{args[1], args[3]})
	if err != nil {
		return req, err
	}
	req.Count1, req.Exposure1, req.Count2, req.Exposure2 = c1, exp[0], c2, exp[1]
	return req, nil
}

// twoSampleFlags are shared by the commands comparing two rates
type twoSampleFlags struct {
	method      string
	compare     string
	alternative string
	value       float64
	dispersion  float64
	alpha       float64
	grid        []int
}

func (f *twoSampleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.method, "method", "", "Test or interval method (default score)")
	cmd.Flags().StringVar(&f.compare, "compare", "ratio", "Effect measure: ratio|diff")
	cmd.Flags().StringVar(&f.alternative, "alternative", "two-sided", "Alternative: two-sided|larger|smaller")
	cmd.Flags().Float64Var(&f.value, "value", 0, "Null value of the ratio or difference")
	cmd.Flags().Float64Var(&f.dispersion, "dispersion", 1, "Overdispersion factor")
	cmd.Flags().Float64Var(&f.alpha, "alpha", 0.05, "Significance level")
	cmd.Flags().IntSliceVar(&f.grid, "y-grid", nil, "Explicit E-test count grid")
}

func (f *twoSampleFlags) apply(cmd *cobra.Command, req *ports.TwoSampleRequest) error {
	req.Method = f.method
	req.Compare = f.compare
	req.Alternative = f.alternative
	req.Dispersion = f.dispersion
	req.Alpha = f.alpha
	if cmd.Flags().Changed("value") {
		v := f.value
		req.Value = &v
	}
	if len(f.grid) > 0 {
		raw, err := json.Marshal(f.grid)
		if err != nil {
			return err
		}
		req.YGrid = raw
	}
	return nil
}

func newConfintCmd() *cobra.Command {
	var method string
	var alpha float64

	cmd := &cobra.Command{
		Use:   "confint [count] [exposure]",
		Short: "Confidence interval for one Poisson rate",
		Long: `Confidence interval for the rate count/exposure.

Methods: wald, waldccv, score, exact-c, midp-c, jeff, sqrt, sqrt-a, sqrt-v

Example: gorates confint 15 400 --method exact-c`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := parseCount(args[0])
			if err != nil {
				return err
			}
			exposure, err := parseFloats(args[1:2])
			if err != nil {
				return err
			}
			req := ports.ConfintRequest{Count: count, Exposure: exposure[0], Alpha: alpha, Method: method}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.IntervalResponse, error) {
				return s.ConfintPoisson(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&method, "method", "score", "Interval method")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "Significance level")
	return cmd
}

func newTestCmd() *cobra.Command {
	var method, alternative string
	var value, dispersion float64

	cmd := &cobra.Command{
		Use:   "test [count] [exposure]",
		Short: "Test one Poisson rate against a hypothesized value",
		Long: `Test H0: rate = value.

Methods: wald, waldccv, score, exact-c, midp-c, sqrt

Example: gorates test 15 400 --value 0.05 --method midp-c --alternative smaller`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := parseCount(args[0])
			if err != nil {
				return err
			}
			exposure, err := parseFloats(args[1:2])
			if err != nil {
				return err
			}
			req := ports.TestRequest{
				Count: count, Exposure: exposure[0], Value: value,
				Method: method, Alternative: alternative, Dispersion: dispersion,
			}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.TestResponse, error) {
				return s.TestPoisson(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&method, "method", "score", "Test method")
	cmd.Flags().StringVar(&alternative, "alternative", "two-sided", "Alternative: two-sided|larger|smaller")
	cmd.Flags().Float64Var(&value, "value", 1, "Hypothesized rate")
	cmd.Flags().Float64Var(&dispersion, "dispersion", 1, "Overdispersion factor")
	return cmd
}

func newTwoSampleCmd() *cobra.Command {
	var flags twoSampleFlags

	cmd := &cobra.Command{
		Use:   "test2 [count1] [exposure1] [count2] [exposure2]",
		Short: "Compare two independent Poisson rates",
		Long: `Test the ratio or difference of two independent rates.

Ratio methods: wald, score, wald-log, score-log, sqrt, exact-cond, cond-midp, etest, etest-score, etest-wald
Difference methods: wald, score, waldccv, etest, etest-score, etest-wald

Example: gorates test2 60 51477.5 30 54308.7 --method exact-cond --alternative larger`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parsePair(args)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, &req); err != nil {
				return err
			}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.TwoSampleResponse, error) {
				return s.TestPoisson2Indep(ctx, req)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newEtestCmd() *cobra.Command {
	var flags twoSampleFlags

	cmd := &cobra.Command{
		Use:   "etest [count1] [exposure1] [count2] [exposure2]",
		Short: "E-test for two independent Poisson rates",
		Long: `Parametric bootstrap test of Krishnamoorthy and Thomson.

Methods: score, wald

Example: gorates etest 41 28010 15 19017 --y-grid 0,1,2,3`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parsePair(args)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, &req); err != nil {
				return err
			}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.ETestResponse, error) {
				return s.EtestPoisson2Indep(ctx, req)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newTostCmd() *cobra.Command {
	var flags twoSampleFlags

	cmd := &cobra.Command{
		Use:   "tost [count1] [exposure1] [count2] [exposure2] [low] [upp]",
		Short: "Equivalence test for two independent Poisson rates",
		Long: `Two one-sided tests with equivalence margins (low, upp).

Example: gorates tost 60 51477.5 30 54308.7 0.8 1.25 --method exact-cond`,
		Args: cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePair(args[:4])
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, &pair); err != nil {
				return err
			}
			margins, err := parseFloats(args[4:])
			if err != nil {
				return err
			}
			req := ports.TOSTRequest{TwoSampleRequest: pair, Low: margins[0], Upp: margins[1]}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.TOSTResponse, error) {
				return s.TostPoisson2Indep(ctx, req)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newConfint2Cmd() *cobra.Command {
	var flags twoSampleFlags

	cmd := &cobra.Command{
		Use:   "confint2 [count1] [exposure1] [count2] [exposure2]",
		Short: "Confidence interval for the ratio or difference of two rates",
		Long: `Ratio methods: score, score-log, wald-log, sqrt, exact-cond, cond-midp
Difference methods: score, wald, waldccv

Example: gorates confint2 60 51477.5 30 54308.7 --method exact-cond`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parsePair(args)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, &req); err != nil {
				return err
			}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.IntervalResponse, error) {
				return s.ConfintPoisson2Indep(ctx, req)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newPowerCmd() *cobra.Command {
	var alpha, dispersion, value, exposure, nobsRatio float64
	var alternative, methodVar string

	cmd := &cobra.Command{
		Use:   "power",
		Short: "Power of two-sample rate tests",
	}
	cmd.PersistentFlags().Float64Var(&alpha, "alpha", 0.05, "Significance level")
	cmd.PersistentFlags().StringVar(&methodVar, "method-var", "alt", "Variance under the null: alt|score")

	ratio := &cobra.Command{
		Use:     "ratio [rate1] [nobs1] [rate2] [nobs2]",
		Short:   "Power of the rate ratio test",
		Example: "gorates power ratio 1.8 29 2.2 29 --exposure 2.5 --value 1.2 --alpha 0.025 --alternative smaller",
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloats(args)
			if err != nil {
				return err
			}
			req := ports.PowerRatioRequest{
				Rate1: v[0], Nobs1: v[1], Rate2: v[2], Nobs2: v[3], Exposure: exposure,
				Alpha: alpha, Alternative: alternative, Dispersion: dispersion, MethodVar: methodVar,
			}
			if cmd.Flags().Changed("value") {
				req.Value = &value
			}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.PowerResponse, error) {
				return s.PowerRatio(ctx, req)
			})
		},
	}
	ratio.Flags().Float64Var(&exposure, "exposure", 1, "Exposure per observation")
	ratio.Flags().Float64Var(&value, "value", 1, "Null rate ratio")
	ratio.Flags().Float64Var(&dispersion, "dispersion", 1, "Overdispersion factor")
	ratio.Flags().StringVar(&alternative, "alternative", "two-sided", "Alternative: two-sided|larger|smaller")

	equivalence := &cobra.Command{
		Use:     "equivalence [rate1] [nobs1] [rate2] [nobs2] [low] [upp]",
		Short:   "Power of the rate ratio equivalence test",
		Example: "gorates power equivalence 2.2 95 2.2 95 0.8 1.25 --exposure 2.5 --alpha 0.025",
		Args:    cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloats(args)
			if err != nil {
				return err
			}
			req := ports.PowerEquivalenceRequest{
				Rate1: v[0], Nobs1: v[1], Rate2: v[2], Nobs2: v[3], Exposure: exposure,
				Low: v[4], Upp: v[5], Alpha: alpha, Dispersion: dispersion, MethodVar: methodVar,
			}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.PowerResponse, error) {
				return s.PowerEquivalence(ctx, req)
			})
		},
	}
	equivalence.Flags().Float64Var(&exposure, "exposure", 1, "Exposure per observation")
	equivalence.Flags().Float64Var(&dispersion, "dispersion", 1, "Overdispersion factor")

	diff := &cobra.Command{
		Use:     "diff [diff] [rate2] [nobs1]",
		Short:   "Power of the rate difference test",
		Example: "gorates power diff 5 10 6 --nobs-ratio 0.75 --alternative larger",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloats(args)
			if err != nil {
				return err
			}
			req := ports.PowerDiffRequest{
				Diff: v[0], Rate2: v[1], Nobs1: v[2], NobsRatio: nobsRatio,
				Value: value, Alpha: alpha, Alternative: alternative, MethodVar: methodVar,
			}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.PowerResponse, error) {
				return s.PowerDiff(ctx, req)
			})
		},
	}
	diff.Flags().Float64Var(&nobsRatio, "nobs-ratio", 1, "nobs1 / nobs2")
	diff.Flags().Float64Var(&value, "value", 0, "Null rate difference")
	diff.Flags().StringVar(&alternative, "alternative", "two-sided", "Alternative: two-sided|larger|smaller")

	cmd.AddCommand(ratio, equivalence, diff)
	return cmd
}

func newDispersionCmd() *cobra.Command {
	var unitExposure float64

	cmd := &cobra.Command{
		Use:   "dispersion [counts...]",
		Short: "Check counts for overdispersion before pooling them",
		Long: `Variance-to-mean ratio and chi-square dispersion test.

Example: gorates dispersion 2 4 6 8`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := parseFloats(args)
			if err != nil {
				return err
			}
			req := ports.DispersionRequest{Counts: counts, UnitExposure: unitExposure}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.DispersionResponse, error) {
				return s.EstimateDispersion(ctx, req)
			})
		},
	}

	cmd.Flags().Float64Var(&unitExposure, "unit-exposure", 1, "Exposure of each count")
	return cmd
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [file]",
		Short: "Evaluate a JSON batch of requests",
		Long: `Evaluate the items of a batch file concurrently. The file holds
{"items": [{"kind": "poisson.confint", "payload": {...}}, ...]}; use - for stdin.

Example: gorates batch requests.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open batch file: %w", err)
				}
				defer f.Close()
				in = f
			}

			var req ports.BatchRequest
			if err := json.NewDecoder(in).Decode(&req); err != nil {
				return fmt.Errorf("failed to decode batch file: %w", err)
			}
			return run(cmd.Context(), func(s *app.RateService, ctx context.Context) (*ports.BatchResponse, error) {
				return s.Batch(ctx, req)
			})
		},
	}
}
