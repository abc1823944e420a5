// Command pcregister runs the point-cloud registration core over two files
// from the command line (spec.md §6 "CLI").
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/viamrobotics/pcregister/ioformats"
	"github.com/viamrobotics/pcregister/pointcloud"
	"github.com/viamrobotics/pcregister/registration"
)

// Exit codes per spec.md §6.
const (
	exitSuccess          = 0
	exitUsageError       = 2
	exitIOError          = 3
	exitRegistrationFail = 4
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := &cli.App{
		Name:      "pcregister",
		Usage:     "align a source point cloud onto a target point cloud",
		ArgsUsage: "source_file target_file",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "rmse-threshold", Usage: "fail if final RMSE exceeds this value"},
			&cli.IntFlag{Name: "max-iterations", Usage: "override Params.MaxIterations"},
			&cli.Float64Flag{Name: "tolerance", Usage: "override Params.Tolerance"},
			&cli.BoolFlag{Name: "use-ransac", Usage: "enable RANSAC outlier rejection before ICP"},
			&cli.StringFlag{Name: "output", Usage: "write the result record to this path instead of stdout"},
			&cli.StringFlag{Name: "format", Value: "text", Usage: "text|json|csv"},
		},
		Action: func(c *cli.Context) error {
			return runAction(c)
		},
	}

	// The default ExitErrHandler calls os.Exit directly, which would make
	// run untestable; suppress it and handle the returned error ourselves.
	app.ExitErrHandler = func(*cli.Context, error) {}

	if err := app.Run(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return codeFor(err)
	}
	return exitSuccess
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func codeFor(err error) int {
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	return exitUsageError
}

func runAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return &exitError{code: exitUsageError, err: fmt.Errorf("usage: pcregister [flags] source_file target_file")}
	}
	sourcePath, targetPath := c.Args().Get(0), c.Args().Get(1)

	srcBuf, err := readCloudFile(sourcePath)
	if err != nil {
		return &exitError{code: exitIOError, err: err}
	}
	tgtBuf, err := readCloudFile(targetPath)
	if err != nil {
		return &exitError{code: exitIOError, err: err}
	}

	src, err := pointcloud.New(srcBuf)
	if err != nil {
		return &exitError{code: exitIOError, err: err}
	}
	tgt, err := pointcloud.New(tgtBuf)
	if err != nil {
		return &exitError{code: exitIOError, err: err}
	}

	params := registration.DefaultParams()
	if c.IsSet("max-iterations") {
		params.MaxIterations = c.Int("max-iterations")
	}
	if c.IsSet("tolerance") {
		params.Tolerance = c.Float64("tolerance")
	}
	if c.IsSet("use-ransac") {
		params.UseRANSAC = c.Bool("use-ransac")
	}

	res, err := registration.Register(src, tgt, params)
	if err != nil {
		return &exitError{code: exitRegistrationFail, err: err}
	}

	if c.IsSet("rmse-threshold") && res.Metrics.RMSE > c.Float64("rmse-threshold") {
		if err := writeResult(c, res); err != nil {
			return &exitError{code: exitIOError, err: err}
		}
		return &exitError{code: exitRegistrationFail, err: fmt.Errorf("final RMSE %g exceeds threshold %g", res.Metrics.RMSE, c.Float64("rmse-threshold"))}
	}

	if err := writeResult(c, res); err != nil {
		return &exitError{code: exitIOError, err: err}
	}
	return nil
}

func readCloudFile(path string) ([]float32, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ply":
		return ioformats.ReadPLY(path)
	case ".csv":
		return ioformats.ReadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported file extension for %s (expected .ply or .csv)", path)
	}
}

type resultRecord struct {
	Transformation [][4]float64 `json:"transformation"`
	Iterations     int          `json:"iterations"`
	FinalRMSE      float64      `json:"final_rmse"`
	Converged      bool         `json:"converged"`
	Termination    string       `json:"termination_reason"`
	RMSE           float64      `json:"rmse"`
	Max            float64      `json:"max"`
	Mean           float64      `json:"mean"`
	Median         float64      `json:"median"`
}

func toRecord(res registration.Result) resultRecord {
	return resultRecord{
		Transformation: [][4]float64{
			{res.Transform.R.At(0, 0), res.Transform.R.At(0, 1), res.Transform.R.At(0, 2), res.Transform.T.X},
			{res.Transform.R.At(1, 0), res.Transform.R.At(1, 1), res.Transform.R.At(1, 2), res.Transform.T.Y},
			{res.Transform.R.At(2, 0), res.Transform.R.At(2, 1), res.Transform.R.At(2, 2), res.Transform.T.Z},
			{0, 0, 0, 1},
		},
		Iterations:  res.ICP.Iterations,
		FinalRMSE:   res.ICP.FinalRMSE,
		Converged:   res.ICP.Converged,
		Termination: res.ICP.TerminationReason.String(),
		RMSE:        res.Metrics.RMSE,
		Max:         res.Metrics.Max,
		Mean:        res.Metrics.Mean,
		Median:      res.Metrics.Median,
	}
}

func writeResult(c *cli.Context, res registration.Result) error {
	rec := toRecord(res)

	out := os.Stdout
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch c.String("format") {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "csv":
		w := csv.NewWriter(out)
		defer w.Flush()
		if err := w.Write([]string{"iterations", "final_rmse", "converged", "termination_reason", "rmse", "max", "mean", "median"}); err != nil {
			return err
		}
		return w.Write([]string{
			fmt.Sprintf("%d", rec.Iterations),
			fmt.Sprintf("%g", rec.FinalRMSE),
			fmt.Sprintf("%t", rec.Converged),
			rec.Termination,
			fmt.Sprintf("%g", rec.RMSE),
			fmt.Sprintf("%g", rec.Max),
			fmt.Sprintf("%g", rec.Mean),
			fmt.Sprintf("%g", rec.Median),
		})
	default:
		fmt.Fprintf(out, "transform:\n")
		for _, row := range rec.Transformation {
			fmt.Fprintf(out, "  %8.4f %8.4f %8.4f %8.4f\n", row[0], row[1], row[2], row[3])
		}
		fmt.Fprintf(out, "iterations=%d converged=%t termination=%s\n", rec.Iterations, rec.Converged, rec.Termination)
		fmt.Fprintf(out, "rmse=%g max=%g mean=%g median=%g\n", rec.RMSE, rec.Max, rec.Mean, rec.Median)
		return nil
	}
}
