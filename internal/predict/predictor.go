// Package predict estimates campaign success from a flow graph and compares predicted and actual metrics.
package predict

import (
	"math"
	"strings"

	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/reference"
)

// Factor weights. They must sum to 1.
const (
	WeightStructure = 0.25
	WeightContent   = 0.35
	WeightChannel   = 0.25
	WeightBrand     = 0.15
)

// Weights groups the factor weights
type Weights struct {
	StructureComplexity float64
	ContentQuality      float64
	ChannelMix          float64
	BrandAlignment      float64
}

// DefaultWeights returns the fixed factor weights
func DefaultWeights() Weights {
	return Weights{
		StructureComplexity: WeightStructure,
		ContentQuality:      WeightContent,
		ChannelMix:          WeightChannel,
		BrandAlignment:      WeightBrand,
	}
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.StructureComplexity + w.ContentQuality + w.ChannelMix + w.BrandAlignment
}

const (
	recommendThreshold = 70

	baselineScore = 60.0
	maxNodeScore  = 95.0
	minCTABody    = 50
)

// Recommendation strings, one per factor
const (
	RecStructure = "Optimize campaign structure"
	RecContent   = "Improve content quality through better copywriting"
	RecChannel   = "Diversify your channel mix"
	RecBrand     = "Ensure better brand alignment"
)

var ctaMarkers = []string{"http://", "https://", "www.", "click", "tap", "learn more", "shop", "join", "start"}

// Factors is the per-factor breakdown of a prediction
type Factors struct {
	StructureComplexity float64 `json:"structure_complexity"`
	ContentQuality      float64 `json:"content_quality"`
	ChannelMix          float64 `json:"channel_mix"`
	BrandAlignment      float64 `json:"brand_alignment"`
}

// Prediction is the result of Predict
type Prediction struct {
	SuccessProbability float64  `json:"success_probability"`
	SuccessFactors     Factors  `json:"success_factors"`
	Recommendations    []string `json:"recommendations"`
}

// Metrics flattens the prediction into a metric map suitable for predicted_performance
func (p *Prediction) Metrics() map[string]float64 {
	return map[string]float64{
		"success_probability":  p.SuccessProbability,
		"structure_complexity": p.SuccessFactors.StructureComplexity,
		"content_quality":      p.SuccessFactors.ContentQuality,
		"channel_mix":          p.SuccessFactors.ChannelMix,
		"brand_alignment":      p.SuccessFactors.BrandAlignment,
	}
}

// Predictor scores flows. It is safe for concurrent use.
type Predictor struct {
	catalog *reference.Catalog
	weights Weights
}

// NewPredictor creates a predictor backed by the reference catalog
func NewPredictor(catalog *reference.Catalog) *Predictor {
	if catalog == nil {
		catalog = reference.Default()
	}
	return &Predictor{catalog: catalog, weights: DefaultWeights()}
}

// Predict estimates the success probability of a flow. A nil graph is treated as empty.
func (p *Predictor) Predict(g *flow.Graph, brand, goal string) *Prediction {
	f := Factors{
		StructureComplexity: StructureComplexity(g),
		ContentQuality:      p.ContentQuality(g),
		ChannelMix:          ChannelMix(g),
		BrandAlignment:      p.BrandAlignment(g, brand),
	}

	score := p.weights.StructureComplexity*f.StructureComplexity +
		p.weights.ContentQuality*f.ContentQuality +
		p.weights.ChannelMix*f.ChannelMix +
		p.weights.BrandAlignment*f.BrandAlignment

	return &Prediction{
		SuccessProbability: clamp(round2(score), 0, 100),
		SuccessFactors:     f,
		Recommendations:    recommendations(f),
	}
}

// StructureComplexity rewards more touchpoints, saturating at ten nodes
func StructureComplexity(g *flow.Graph) float64 {
	return math.Min(100, float64(len(g.GetNodes())*10))
}

// ChannelMix rewards distinct node types, saturating at five
func ChannelMix(g *flow.Graph) float64 {
	return math.Min(100, float64(len(g.NodeTypes())*20))
}

// ContentQuality averages a copy completeness score across content nodes
func (p *Predictor) ContentQuality(g *flow.Graph) float64 {
	nodes := contentNodes(g)
	if len(nodes) == 0 {
		return baselineScore
	}

	limits := p.catalog.Limits()
	var total float64
	for i := range nodes {
		total += nodeQuality(&nodes[i], limits)
	}
	return round2(total / float64(len(nodes)))
}

func nodeQuality(n *flow.Node, limits reference.Limits) float64 {
	score := baselineScore
	headline := strings.TrimSpace(n.Headline())
	body := strings.TrimSpace(n.Body())

	if headline != "" {
		score += 10
	}
	if body != "" {
		score += 10
	}
	if len([]rune(body)) >= minCTABody {
		score += 5
	}
	if hasCTA(headline + " " + body) {
		score += 5
	}
	if limit := limits.HeadlineLimit(n.Type); headline != "" && (limit == 0 || len([]rune(headline)) <= limit) {
		score += 5
	}
	return math.Min(score, maxNodeScore)
}

// BrandAlignment measures how many content nodes mention a brand keyword
func (p *Predictor) BrandAlignment(g *flow.Graph, brand string) float64 {
	b, ok := p.catalog.Brand(brand)
	nodes := contentNodes(g)
	if !ok || len(b.Keywords) == 0 || len(nodes) == 0 {
		return baselineScore
	}

	matched := 0
	for i := range nodes {
		text := strings.ToLower(nodes[i].ContentFields())
		for _, kw := range b.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				matched++
				break
			}
		}
	}
	return round2(baselineScore + 35*float64(matched)/float64(len(nodes)))
}

func contentNodes(g *flow.Graph) []flow.Node {
	return g.NodesOfType(flow.TypeEmail, flow.TypePush, flow.TypeAd, flow.TypeSocial)
}

func hasCTA(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range ctaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func recommendations(f Factors) []string {
	recs := []string{}
	if f.StructureComplexity < recommendThreshold {
		recs = append(recs, RecStructure)
	}
	if f.ContentQuality < recommendThreshold {
		recs = append(recs, RecContent)
	}
	if f.ChannelMix < recommendThreshold {
		recs = append(recs, RecChannel)
	}
	if f.BrandAlignment < recommendThreshold {
		recs = append(recs, RecBrand)
	}
	return recs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
