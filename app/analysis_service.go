package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"cognosis/domain/core"
	"cognosis/domain/statistics"
	"cognosis/ports"
)

// AnalysisService aggregates settled trials into batch statistics, baseline
// updates and human-readable reports. It only ever reads the trial ledger;
// trials are immutable once settled.
type AnalysisService struct {
	trials        ports.TrialRepository
	reports       ports.ReportWriter
	priorMean     float64
	priorVariance float64
}

// NewAnalysisService wires the service. The prior seeds Bayesian baseline
// updating; reports may be nil when no export sink is configured.
func NewAnalysisService(trials ports.TrialRepository, reports ports.ReportWriter, priorMean, priorVariance float64) *AnalysisService {
	return &AnalysisService{
		trials:        trials,
		reports:       reports,
		priorMean:     priorMean,
		priorVariance: priorVariance,
	}
}

// BatchAnalysis is the full statistical picture of a trial batch.
type BatchAnalysis struct {
	Summary        statistics.BatchSummary     `json:"summary"`
	Hits           *statistics.Result          `json:"hits,omitempty"`
	ChiSquare      *statistics.ChiSquareResult `json:"chi_square,omitempty"`
	MeanPsi        *float64                    `json:"mean_psi,omitempty"`
	PsiSignificant int                         `json:"psi_significant_trials"`
	Baseline       statistics.BayesianBaseline `json:"baseline"`
}

// maxBatch bounds how many trials a single analysis loads.
const maxBatch = 10000

// AnalyzeParty runs the analysis battery over one participant's trials.
func (s *AnalysisService) AnalyzeParty(ctx context.Context, party core.PartyID) (*BatchAnalysis, error) {
	trials, err := s.trials.ListByParty(ctx, party, maxBatch, 0)
	if err != nil {
		return nil, err
	}
	return s.analyze(trials)
}

// AnalyzeAll runs the analysis battery over every settled trial.
func (s *AnalysisService) AnalyzeAll(ctx context.Context) (*BatchAnalysis, error) {
	trials, err := s.trials.ListAll(ctx, maxBatch, 0)
	if err != nil {
		return nil, err
	}
	return s.analyze(trials)
}

func (s *AnalysisService) analyze(trials []ports.Trial) (*BatchAnalysis, error) {
	if len(trials) == 0 {
		return nil, core.NewValidationError("trials", "no settled trials to analyze")
	}

	scores := make([]float64, 0, len(trials))
	for _, t := range trials {
		scores = append(scores, t.Score.OverallScore)
	}

	summary, err := statistics.Summarize(scores)
	if err != nil {
		return nil, err
	}
	analysis := &BatchAnalysis{Summary: summary}

	// Hit-based battery only applies to forced-choice trials with a uniform
	// grid size.
	if hits, total, numOptions := hitCounts(trials); total > 0 && numOptions > 1 {
		chance := 1.0 / float64(numOptions)
		binomial, err := statistics.BinomialStats(hits, total, chance)
		if err != nil {
			return nil, err
		}
		analysis.Hits = &binomial

		observed := []float64{float64(hits), float64(total - hits)}
		expected := []float64{chance * float64(total), (1 - chance) * float64(total)}
		chi, err := statistics.ChiSquareStats(observed, expected)
		if err != nil {
			return nil, err
		}
		analysis.ChiSquare = &chi
	}

	var psiSum float64
	var psiCount, psiSignificant int
	for _, t := range trials {
		if t.Psi == nil {
			continue
		}
		psiSum += t.Psi.Psi
		psiCount++
		if t.Psi.Significant {
			psiSignificant++
		}
	}
	if psiCount > 0 {
		mean := psiSum / float64(psiCount)
		analysis.MeanPsi = &mean
		analysis.PsiSignificant = psiSignificant
	}

	baseline, err := statistics.UpdateBaseline(scores, s.priorMean, s.priorVariance)
	if err != nil {
		return nil, err
	}
	analysis.Baseline = baseline
	return analysis, nil
}

// hitCounts tallies hit/miss trials sharing a common grid size. Mixed grid
// sizes disable the binomial battery rather than blending chance rates.
func hitCounts(trials []ports.Trial) (hits, total, numOptions int) {
	for _, t := range trials {
		if t.Hit == nil || t.NumOptions < 2 {
			continue
		}
		if numOptions == 0 {
			numOptions = t.NumOptions
		}
		if t.NumOptions != numOptions {
			return 0, 0, 0
		}
		total++
		if *t.Hit {
			hits++
		}
	}
	return hits, total, numOptions
}

// ExportBatchReport writes the batch to the configured report sink.
func (s *AnalysisService) ExportBatchReport(ctx context.Context, path string) error {
	if s.reports == nil {
		return core.NewValidationError("reports", "no report writer configured")
	}
	trials, err := s.trials.ListAll(ctx, maxBatch, 0)
	if err != nil {
		return err
	}
	scores := make([]float64, 0, len(trials))
	for _, t := range trials {
		scores = append(scores, t.Score.OverallScore)
	}
	summary, err := statistics.Summarize(scores)
	if err != nil {
		return err
	}
	return s.reports.WriteBatchReport(ctx, path, trials, summary)
}

// RenderReportMarkdown builds the analyst-facing report as markdown.
func RenderReportMarkdown(a *BatchAnalysis) string {
	var b strings.Builder
	b.WriteString("# Batch Analysis\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Trials | %d |\n", a.Summary.Sessions)
	fmt.Fprintf(&b, "| Mean score | %.2f |\n", a.Summary.Mean)
	fmt.Fprintf(&b, "| Std dev | %.2f |\n", a.Summary.Std)
	fmt.Fprintf(&b, "| Median | %.2f |\n", a.Summary.Median)

	if a.Hits != nil {
		b.WriteString("\n## Forced-choice hitting\n\n")
		fmt.Fprintf(&b, "Observed %.0f hits of %d trials (p = %.4f, z = %.2f, %s).\n",
			a.Hits.Observed*float64(a.Hits.SampleSize), a.Hits.SampleSize, a.Hits.PValue, a.Hits.ZScore, a.Hits.Significance)
		fmt.Fprintf(&b, "Effect size h = %.3f (%s).\n",
			a.Hits.EffectSize, statistics.EffectLabel(a.Hits.EffectSize))
	}
	if a.ChiSquare != nil {
		fmt.Fprintf(&b, "\nChi-square goodness of fit: chi2 = %.3f, df = %d, p = %.4f.\n",
			a.ChiSquare.ChiSquare, a.ChiSquare.DF, a.ChiSquare.PValue)
	}
	if a.MeanPsi != nil {
		b.WriteString("\n## Psi coefficient\n\n")
		fmt.Fprintf(&b, "Mean psi = %.3f across scored trials; %d individually significant.\n",
			*a.MeanPsi, a.PsiSignificant)
	}

	b.WriteString("\n## Updated baseline\n\n")
	fmt.Fprintf(&b, "Posterior mean %.2f (95%% CI %.2f to %.2f) over %d observations.\n",
		a.Baseline.PosteriorMean, a.Baseline.CILower, a.Baseline.CIUpper, a.Baseline.Observations)
	return b.String()
}

// RenderReportHTML renders the markdown report for browser delivery.
func RenderReportHTML(a *BatchAnalysis) []byte {
	md := []byte(RenderReportMarkdown(a))
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML(md, p, renderer)
}
