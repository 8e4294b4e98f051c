package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/lagmix/lagmix/pkg/config"
	"github.com/lagmix/lagmix/pkg/exposure"
	"github.com/lagmix/lagmix/pkg/sampler"
)

func init() {
	FitCmd.Flags().String("data", "", "outcome CSV: first column response, remaining columns covariates")
	FitCmd.Flags().StringSlice("exposure", nil, "exposure lag-matrix CSV, repeatable")
	FitCmd.Flags().Int("chains", 1, "number of independent chains")
	FitCmd.Flags().String("out", "", "write the posterior mean fit to this CSV")
	FitCmd.Flags().String("trace", "", "write per-record scalar traces to this CSV")
	FitCmd.Flags().Bool("progress", false, "show a progress bar per chain")
	RootCmd.AddCommand(FitCmd)
}

var FitCmd = &cobra.Command{
	Use:          "fit",
	Short:        "run the MCMC sampler on CSV input",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		dataFile, err := cmd.Flags().GetString("data")
		if err != nil {
			return err
		}
		exposureFiles, err := cmd.Flags().GetStringSlice("exposure")
		if err != nil {
			return err
		}
		chains, err := cmd.Flags().GetInt("chains")
		if err != nil {
			return err
		}
		outFile, err := cmd.Flags().GetString("out")
		if err != nil {
			return err
		}
		traceFile, err := cmd.Flags().GetString("trace")
		if err != nil {
			return err
		}
		progress, err := cmd.Flags().GetBool("progress")
		if err != nil {
			return err
		}

		if dataFile == "" {
			return errors.New("--data is required")
		}
		if len(exposureFiles) == 0 {
			return errors.New("at least one --exposure is required")
		}
		if chains < 1 {
			return errors.New("--chains must be at least 1")
		}

		cfg := config.Default()
		if configFile != "" {
			loaded, err := config.Load(configFile)
			if err != nil {
				return err
			}
			cfg = *loaded
		}
		cfg.Verbose = progress
		if cfg.Family != "gaussian" {
			// non-gaussian families need a latent-variable refitter that
			// only the library API can supply
			return errors.Errorf("fit supports the gaussian family only, config has %q", cfg.Family)
		}

		y, z, err := readOutcome(dataFile)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"observations": len(y),
			"covariates":   zCols(z) - 1,
			"exposures":    len(exposureFiles),
			"chains":       chains,
		}).Info("data loaded")

		exps := make([]exposure.Provider, 0, len(exposureFiles))
		for _, f := range exposureFiles {
			x, err := readMatrix(f)
			if err != nil {
				return errors.Wrapf(err, "exposure %s", f)
			}
			e, err := exposure.NewGaussian(x, z)
			if err != nil {
				return errors.Wrapf(err, "exposure %s", f)
			}
			exps = append(exps, e)
		}

		results := make([]*sampler.Results, chains)
		g, ctx := errgroup.WithContext(cmd.Context())
		for c := 0; c < chains; c++ {
			c := c
			chainCfg := cfg
			chainCfg.Seed = cfg.Seed + uint64(c)
			chainCfg.Verbose = cfg.Verbose && c == 0
			g.Go(func() error {
				smp, err := sampler.New(sampler.Params{
					Config:    chainCfg,
					Y:         y,
					Z:         z,
					Exposures: exps,
				})
				if err != nil {
					return errors.Wrapf(err, "chain %d", c)
				}
				res, err := smp.Run(ctx)
				if err != nil {
					return errors.Wrapf(err, "chain %d", c)
				}
				results[c] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		printSummary(results)

		if outFile != "" {
			if err := writeFit(outFile, results); err != nil {
				return err
			}
			log.WithField("file", outFile).Info("posterior mean fit written")
		}
		if traceFile != "" {
			if err := writeTrace(traceFile, results); err != nil {
				return err
			}
			log.WithField("file", traceFile).Info("scalar traces written")
		}
		return nil
	},
}

func printSummary(results []*sampler.Results) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"chain", "records", "sigma2", "nu", "exposure probs"})
	for c, res := range results {
		probs := ""
		if n := len(res.Log.ExpProb); n > 0 {
			means := make([]float64, len(res.Log.ExpProb[0]))
			for _, row := range res.Log.ExpProb {
				for i, p := range row {
					means[i] += p / float64(n)
				}
			}
			for i, m := range means {
				if i > 0 {
					probs += " "
				}
				probs += fmt.Sprintf("%.3f", m)
			}
		}
		t.AppendRow(table.Row{
			c,
			res.NRecords,
			fmt.Sprintf("%.4f", sampler.PosteriorMean(res.Log.Sigma2)),
			fmt.Sprintf("%.4f", sampler.PosteriorMean(res.Log.Nu)),
			probs,
		})
	}
	t.Render()
}

// readOutcome parses the outcome CSV into the response vector and the fixed
// design, an intercept column prepended.
func readOutcome(path string) ([]float64, *mat.Dense, error) {
	m, err := readMatrix(path)
	if err != nil {
		return nil, nil, err
	}
	n, c := m.Dims()
	if c < 1 {
		return nil, nil, errors.Errorf("%s: need at least one column", path)
	}

	y := make([]float64, n)
	z := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		y[i] = m.At(i, 0)
		z.Set(i, 0, 1)
		for j := 1; j < c; j++ {
			z.Set(i, j, m.At(i, j))
		}
	}
	return y, z, nil
}

// readMatrix loads a numeric CSV. A single leading header row is skipped
// when its first cell does not parse as a number.
func readMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		if _, err := strconv.ParseFloat(rows[0][0], 64); err != nil {
			rows = rows[1:]
		}
	}
	if len(rows) == 0 {
		return nil, errors.Errorf("%s: no data rows", path)
	}

	n, c := len(rows), len(rows[0])
	m := mat.NewDense(n, c, nil)
	for i, row := range rows {
		if len(row) != c {
			return nil, errors.Errorf("%s: row %d has %d fields, want %d", path, i+1, len(row), c)
		}
		for j, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: row %d col %d", path, i+1, j+1)
			}
			m.Set(i, j, v)
		}
	}
	return m, nil
}

func writeFit(path string, results []*sampler.Results) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"obs"}
	for c := range results {
		header = append(header, fmt.Sprintf("fhat_chain%d", c))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i := range results[0].FhatMean {
		row := []string{strconv.Itoa(i)}
		for _, res := range results {
			row = append(row, strconv.FormatFloat(res.FhatMean[i], 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeTrace dumps the thinned scalar traces of every chain, one row per
// recorded sample.
func writeTrace(path string, results []*sampler.Results) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"chain", "record", "sigma2", "nu", "kappa"}); err != nil {
		return err
	}
	for c, res := range results {
		for i := range res.Log.Sigma2 {
			row := []string{
				strconv.Itoa(c),
				strconv.Itoa(i + 1),
				strconv.FormatFloat(res.Log.Sigma2[i], 'g', -1, 64),
				strconv.FormatFloat(res.Log.Nu[i], 'g', -1, 64),
				strconv.FormatFloat(res.Log.Kappa[i], 'g', -1, 64),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func zCols(z *mat.Dense) int {
	_, c := z.Dims()
	return c
}
