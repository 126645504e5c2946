package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/flowry/internal/app"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/predict"
	"github.com/foxzi/flowry/internal/readiness"
	"github.com/foxzi/flowry/internal/reference"
)

var (
	preflightGoal   string
	preflightBrand  string
	preflightFormat string
)

var preflightCmd = &cobra.Command{
	Use:   "preflight <structure.json>",
	Short: "Check a flow file for launch readiness",
	Long: `Run the readiness checks and the success prediction on a flow file.
The file holds either {"nodes": [...], "edges": [...]} or a campaign export with
"structure", "goal" and "brand" fields. Use "-" to read standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreflight,
}

func init() {
	preflightCmd.Flags().StringVar(&preflightGoal, "goal", "", "Campaign goal (overrides the file)")
	preflightCmd.Flags().StringVar(&preflightBrand, "brand", "", "Brand (overrides the file)")
	preflightCmd.Flags().StringVar(&preflightFormat, "format", "text", "Output format (text, json)")

	rootCmd.AddCommand(preflightCmd)
}

// flowFile is either a bare graph or a campaign with a structure
type flowFile struct {
	Nodes     []flow.Node `json:"nodes"`
	Edges     []flow.Edge `json:"edges"`
	Structure *flow.Graph `json:"structure"`
	Goal      string      `json:"goal"`
	Brand     string      `json:"brand"`
}

func readFlowFile(r io.Reader) (*flow.Graph, string, string, error) {
	var f flowFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, "", "", fmt.Errorf("failed to parse flow file: %w", err)
	}
	if f.Structure != nil {
		return f.Structure, f.Goal, f.Brand, nil
	}
	return &flow.Graph{Nodes: f.Nodes, Edges: f.Edges}, f.Goal, f.Brand, nil
}

type preflightResult struct {
	Readiness  *readiness.Report   `json:"readiness"`
	Prediction *predict.Prediction `json:"prediction"`
}

func runPreflight(cmd *cobra.Command, args []string) error {
	in := io.Reader(os.Stdin)
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open flow file: %w", err)
		}
		defer f.Close()
		in = f
	}

	g, goal, brand, err := readFlowFile(in)
	if err != nil {
		return err
	}
	if preflightGoal != "" {
		goal = preflightGoal
	}
	if preflightBrand != "" {
		brand = preflightBrand
	}

	// The config is optional here; it only tunes the analyzer and the catalog
	analyzer := readiness.NewAnalyzer(readiness.Options{})
	catalog := reference.Default()
	if cfgFile != "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		analyzer = app.NewAnalyzer(cfg.Readiness)
		if catalog, err = app.LoadCatalog(cfg.Reference); err != nil {
			return err
		}
	}

	result := preflightResult{
		Readiness:  analyzer.Analyze(g, goal),
		Prediction: predict.NewPredictor(catalog).Predict(g, brand, goal),
	}

	switch preflightFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text":
		printPreflight(os.Stdout, result)
		return nil
	default:
		return fmt.Errorf("unknown format %q (use text or json)", preflightFormat)
	}
}

func printPreflight(out io.Writer, res preflightResult) {
	r := res.Readiness
	fmt.Fprintf(out, "Readiness score: %d%% (%d/%d checks passed)\n\n", r.Score, r.PassedChecks, r.TotalChecks)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCATEGORY\tCHECK")
	fmt.Fprintln(w, "------\t--------\t-----")
	for _, c := range r.Checks {
		status := string(c.Status)
		if c.Advisory {
			status += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", status, c.Category, c.Message)
	}
	w.Flush()

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(out, "  - %s\n", rec)
		}
	}

	p := res.Prediction
	fmt.Fprintf(out, "\nSuccess probability: %.1f%%\n", p.SuccessProbability)
	fmt.Fprintf(out, "  Structure complexity: %.1f\n", p.SuccessFactors.StructureComplexity)
	fmt.Fprintf(out, "  Content quality:      %.1f\n", p.SuccessFactors.ContentQuality)
	fmt.Fprintf(out, "  Channel mix:          %.1f\n", p.SuccessFactors.ChannelMix)
	fmt.Fprintf(out, "  Brand alignment:      %.1f\n", p.SuccessFactors.BrandAlignment)
	if len(p.Recommendations) > 0 {
		fmt.Fprintf(out, "  Next steps: %s\n", strings.Join(p.Recommendations, "; "))
	}
}
