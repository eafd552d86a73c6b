// Package testkit provides in-memory adapters and canned oracles so service
// level tests can run the full protocol without a database or network.
package testkit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"cognosis/domain/beacon"
	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/target"
)

// Kit bundles the in-memory adapters wired the way the container wires the
// real ones.
type Kit struct {
	Sessions *InMemorySessionRepository
	Trials   *InMemoryTrialRepository
	Beacons  *FixedBeaconClient
	Clock    *core.FixedClock
}

func New() *Kit {
	return &Kit{
		Sessions: NewInMemorySessionRepository(),
		Trials:   NewInMemoryTrialRepository(),
		Beacons:  NewFixedBeaconClient(42),
		Clock:    &core.FixedClock{At: core.Now()},
	}
}

// FixedBeaconClient serves deterministic beacons derived from the round
// number, so grid orderings are replayable across test runs.
type FixedBeaconClient struct {
	round uint64
}

func NewFixedBeaconClient(round uint64) *FixedBeaconClient {
	return &FixedBeaconClient{round: round}
}

func (c *FixedBeaconClient) Latest(ctx context.Context) (beacon.Beacon, error) {
	return c.Round(ctx, c.round)
}

func (c *FixedBeaconClient) Round(_ context.Context, round uint64) (beacon.Beacon, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("testkit-beacon-%d", round)))
	return beacon.New(round, sum[:], beacon.SourceExternal)
}

// StubEmbedder maps known texts to fixed vectors and embeds unknown text by
// hashing words into a small bag-of-words vector. Similar texts share words
// and so score high cosine similarity.
type StubEmbedder struct {
	Vectors map[string][]float64
	Err     error
}

func (e *StubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if v, ok := e.Vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = bagOfWords(text)
	}
	return out, nil
}

func bagOfWords(text string) []float64 {
	v := make([]float64, 64)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(w))
		v[int(sum[0])%64]++
	}
	return v
}

// StubJudge returns a fixed judgment.
type StubJudge struct {
	Result scoring.Judgment
	Err    error
}

func (j *StubJudge) Judge(context.Context, string, target.Target) (scoring.Judgment, error) {
	if j.Err != nil {
		return scoring.Judgment{}, j.Err
	}
	return j.Result, nil
}

// StubGenerativeOracle serves targets from a fixed list, in order.
type StubGenerativeOracle struct {
	Targets []target.Target
	Err     error
	calls   int
}

func (o *StubGenerativeOracle) Generate(_ context.Context, _ target.Constraints) (target.Target, error) {
	if o.Err != nil {
		return target.Target{}, o.Err
	}
	if len(o.Targets) == 0 {
		return target.Target{}, core.ErrOracleUnavailable
	}
	t := o.Targets[o.calls%len(o.Targets)]
	o.calls++
	return t, nil
}

// StubSimilarityOracle serves canned distractors and pairwise scores from a
// lookup keyed "payloadA|payloadB", with a default for unknown pairs.
type StubSimilarityOracle struct {
	Distractors []target.Target
	Scores      map[string]float64
	Default     float64
	Err         error
}

func (o *StubSimilarityOracle) GenerateDistractors(_ context.Context, _ target.Target, n int, _ float64) ([]target.Target, error) {
	if o.Err != nil {
		return nil, o.Err
	}
	if n > len(o.Distractors) {
		n = len(o.Distractors)
	}
	return append([]target.Target(nil), o.Distractors[:n]...), nil
}

func (o *StubSimilarityOracle) Similarity(_ context.Context, a, b target.Target) (float64, error) {
	if o.Err != nil {
		return 0, o.Err
	}
	if s, ok := o.Scores[a.Payload+"|"+b.Payload]; ok {
		return s, nil
	}
	return o.Default, nil
}

// TargetPool returns a small fixed pool for selector tests and fallbacks.
func TargetPool() target.Pool {
	var pool target.Pool
	for _, p := range []struct {
		payload  string
		features []string
	}{
		{"a red lighthouse on a rocky shore", []string{"lighthouse", "rocks", "sea"}},
		{"a white windmill in a yellow field", []string{"windmill", "field"}},
		{"an old suspension bridge at dusk", []string{"bridge", "dusk"}},
		{"a market stall piled with oranges", []string{"market", "oranges"}},
		{"a snowy mountain pass with a cabin", []string{"mountain", "snow", "cabin"}},
		{"a subway platform, empty, fluorescent", []string{"subway", "platform"}},
	} {
		t, err := target.New(target.KindImage, p.payload, p.features, "")
		if err != nil {
			panic(err)
		}
		pool = append(pool, t)
	}
	return pool
}
