package judge

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/scenario-miner/internal/codec"
	"github.com/danielpatrickdp/scenario-miner/internal/config"
	"github.com/danielpatrickdp/scenario-miner/internal/outcomes"
	"github.com/danielpatrickdp/scenario-miner/internal/schema"
	"github.com/danielpatrickdp/scenario-miner/internal/store"
	"github.com/danielpatrickdp/scenario-miner/internal/verifier"
)

// #region fakes

// stubReasoner answers every call with the next scripted reply, repeating the last.
type stubReasoner struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	reqs    []codec.Request
}

func (s *stubReasoner) Complete(_ context.Context, r codec.Request) (codec.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.reqs = append(s.reqs, r)
	if i < len(s.errs) && s.errs[i] != nil {
		return codec.Completion{}, s.errs[i]
	}
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return codec.Completion{Text: s.replies[i]}, nil
}

// descScorer scores a candidate by looking up its description.
type descScorer map[string]float64

func (d descScorer) Score(c schema.Annotation, _ string) verifier.Result {
	return verifier.Result{Score: d[c.Description]}
}

type memStore struct {
	mu   sync.Mutex
	rows []schema.ConsensusRecord
	err  error
}

func (m *memStore) Append(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, v.(schema.ConsensusRecord))
	return nil
}

type memDecisions struct {
	mu   sync.Mutex
	rows []outcomes.DecisionRow
}

func (m *memDecisions) RecordDecision(r outcomes.DecisionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

// #endregion fakes

// #region fixtures

func baseAnnotation() schema.Annotation {
	return schema.Annotation{
		ODD: schema.ODDAttributes{
			Weather: "clear", TimeOfDay: "day", LightingCondition: "nominal",
			RoadSurfaceFriction: "dry", SensorIntegrity: "nominal",
		},
		Topology: schema.RoadTopology{
			SceneType: "urban_street", LaneConfiguration: "straight",
			DrivableAreaStatus: "nominal", TrafficControls: schema.StringList{},
		},
		Agents: schema.InteractingAgents{
			VRUStatus: "none", LeadVehicleBehavior: "nominal",
			AdjacentVehicleBehavior: "none", SpecialAgentClass: "none",
		},
		Criticality: schema.Criticality{
			PrimaryChallenge: "none", EgoRequiredAction: "lane_keep",
			BlockingFactor: "none", RiskScore: 2,
		},
		Tags:        schema.StringList{},
		Description: "Quiet street.",
	}
}

func constructionAnnotation() schema.Annotation {
	a := baseAnnotation()
	a.Topology.SceneType = "construction_zone"
	a.Topology.DrivableAreaStatus = "restricted_by_static_obstacle"
	a.Criticality.EgoRequiredAction = "slow_down"
	a.Criticality.BlockingFactor = "construction_barrier"
	a.Tags = schema.StringList{schema.TagConstruction}
	a.Description = "Lane narrowed by drums."
	return a
}

func reply(t *testing.T, a schema.Annotation) string {
	t.Helper()
	b, err := json.Marshal(a)
	require.NoError(t, err)
	return "<think>compare the scouts</think>\n```json\n" + string(b) + "\n```"
}

func testConfig() config.Judge {
	return config.Judge{Model: "judge", N: 3, Temperature: 0.3, MaxTokens: 512, TracePrefix: 500, Workers: 2}
}

func writeStore(t *testing.T, path string, rows ...any) {
	t.Helper()
	app, err := store.OpenAppender(path)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, app.Append(r))
	}
	require.NoError(t, app.Close())
}

// #endregion fixtures

// #region select-tests

func TestSelect_StrictMaxFirstWins(t *testing.T) {
	cands := []Candidate{
		{Index: 0, Result: verifier.Result{Score: 2}},
		{Index: 1, Result: verifier.Result{Score: 5}},
		{Index: 2, Result: verifier.Result{Score: 5}},
	}
	best, ok := Select(cands)
	require.True(t, ok)
	assert.Equal(t, 1, best.Index)

	_, ok = Select(nil)
	assert.False(t, ok)
}

func TestSynthesize_PicksFirstHighest(t *testing.T) {
	a, b, c := baseAnnotation(), baseAnnotation(), baseAnnotation()
	a.Description, b.Description, c.Description = "first", "second", "third"
	r := &stubReasoner{replies: []string{reply(t, a), reply(t, b), reply(t, c)}}
	dec := &memDecisions{}
	j := New(testConfig(), Deps{
		Reasoner:  r,
		Scorer:    descScorer{"first": 2, "second": 5, "third": 5},
		Decisions: dec,
	})

	rec, ok, err := j.Synthesize(context.Background(), "tok", []schema.ScoutRecord{{RecordID: "tok", Scout: "a", Annotation: a}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", rec.Description)
	assert.Equal(t, 5.0, rec.Score)
	assert.Equal(t, 3, rec.Candidates)
	assert.Equal(t, 3, r.calls)

	require.Len(t, dec.rows, 1)
	assert.Equal(t, 1, dec.rows[0].WinnerIndex)
	assert.Equal(t, 3, dec.rows[0].Survivors)

	for _, req := range r.reqs {
		assert.Equal(t, 0.3, req.Temperature)
		assert.Empty(t, req.Images)
	}
}

// #endregion select-tests

// #region synthesize-tests

func TestSynthesize_ConstructionConsensus(t *testing.T) {
	scoutA := schema.ScoutRecord{
		RecordID:       "tok",
		Scout:          "a",
		Annotation:     constructionAnnotation(),
		ReasoningTrace: "Orange drums narrow the right lane.",
		Inventory:      "Detected: 4x drum, 1x car",
	}
	scoutB := schema.ScoutRecord{RecordID: "tok", Scout: "b", Annotation: baseAnnotation()}

	r := &stubReasoner{replies: []string{reply(t, scoutA.Annotation)}}
	j := New(testConfig(), Deps{
		Reasoner: r,
		Scorer:   verifier.New(verifier.DefaultWeights()),
		Output:   &memStore{},
	})

	rec, ok, err := j.Synthesize(context.Background(), "tok", []schema.ScoutRecord{scoutA, scoutB})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, schema.StringList{schema.TagConstruction}, rec.Tags)
	assert.Equal(t, "construction_barrier", rec.Criticality.BlockingFactor)
	assert.Equal(t, verifier.DefaultWeights().ConstructionGroundedBonus, rec.Score)
	assert.Contains(t, rec.Reasons, "pass: construction grounded by inventory")
	assert.Equal(t, scoutA.Inventory, rec.Inventory)
	assert.Equal(t, []string{"a", "b"}, rec.Scouts)

	// Both condensed reports reach the judge, B without a trace.
	prompt := r.reqs[0].Text
	assert.Contains(t, prompt, "--- SCOUT 1 ---\n[Trace]: Orange drums")
	assert.Contains(t, prompt, "--- SCOUT 2 ---\n[Trace]: No trace...")
	assert.True(t, strings.HasSuffix(prompt, "Synthesize the Consensus JSON."))
}

func TestSynthesize_DiscardsFailures(t *testing.T) {
	good := baseAnnotation()
	good.Description = "good"
	r := &stubReasoner{
		replies: []string{"", "no json here", reply(t, good)},
		errs:    []error{errors.New("backend down")},
	}
	j := New(testConfig(), Deps{Reasoner: r, Scorer: descScorer{}})

	rec, ok, err := j.Synthesize(context.Background(), "tok", []schema.ScoutRecord{{RecordID: "tok", Annotation: good}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "good", rec.Description)
	assert.Equal(t, 1, rec.Candidates)
}

func TestSynthesize_NoSurvivors(t *testing.T) {
	r := &stubReasoner{replies: []string{`{"description": "partial"}`}}
	j := New(testConfig(), Deps{Reasoner: r, Scorer: descScorer{}})

	_, ok, err := j.Synthesize(context.Background(), "tok", []schema.ScoutRecord{{RecordID: "tok", Annotation: baseAnnotation()}})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, r.calls)
}

func TestSynthesize_PlaceholdersKeptAndPenalized(t *testing.T) {
	a := baseAnnotation()
	a.ODD.Weather = schema.Placeholder
	r := &stubReasoner{replies: []string{reply(t, a)}}
	cfg := testConfig()
	cfg.N = 1
	j := New(cfg, Deps{Reasoner: r, Scorer: verifier.New(verifier.DefaultWeights())})

	rec, ok, err := j.Synthesize(context.Background(), "tok", []schema.ScoutRecord{{RecordID: "tok", Annotation: a, Inventory: "Detected: 1x car"}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, schema.Placeholder, rec.ODD.Weather)
	assert.Equal(t, -verifier.DefaultWeights().PlaceholderPenalty, rec.Score)
}

func TestSharedInventory(t *testing.T) {
	assert.Equal(t, schema.NoDetectorInventory, SharedInventory(nil))
	assert.Equal(t, "Detected: 1x cone", SharedInventory([]schema.ScoutRecord{
		{Inventory: "  "}, {Inventory: "Detected: 1x cone"}, {Inventory: "Detected: 2x car"},
	}))
	assert.Equal(t, schema.NoDetectorInventory, SharedInventory([]schema.ScoutRecord{
		{Inventory: schema.DetectorErrorInventory}, {Inventory: ""},
	}))
}

func TestSynthesize_SkipsDetectorErrorInventory(t *testing.T) {
	scoutA := schema.ScoutRecord{RecordID: "tok", Scout: "a", Annotation: constructionAnnotation(), Inventory: schema.DetectorErrorInventory}
	scoutB := schema.ScoutRecord{RecordID: "tok", Scout: "b", Annotation: constructionAnnotation(), Inventory: "[CAM_FRONT]: 3 traffic drum (Large/0.9)"}

	r := &stubReasoner{replies: []string{reply(t, scoutA.Annotation)}}
	j := New(testConfig(), Deps{Reasoner: r, Scorer: verifier.New(verifier.DefaultWeights())})

	rec, ok, err := j.Synthesize(context.Background(), "tok", []schema.ScoutRecord{scoutA, scoutB})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, scoutB.Inventory, rec.Inventory)
	assert.Equal(t, verifier.DefaultWeights().ConstructionGroundedBonus, rec.Score)
	assert.Contains(t, r.reqs[0].Text, "### SYMBOLIC GROUNDING (DETECTOR):\n[CAM_FRONT]: 3 traffic drum")
}

// #endregion synthesize-tests

// #region run-tests

func TestLoadScouts_OrderAndFallback(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "index_alpha.jsonl")
	pathB := filepath.Join(dir, "index_beta.jsonl")

	first := baseAnnotation()
	first.Description = "first"
	dup := baseAnnotation()
	dup.Description = "duplicate"
	writeStore(t, pathA,
		schema.ScoutRecord{RecordID: "t1", Annotation: first},
		schema.ScoutRecord{RecordID: "t2", Scout: "alpha-tagged", Annotation: first},
		schema.ScoutRecord{RecordID: "t1", Annotation: dup},
	)
	writeStore(t, pathB, schema.ScoutRecord{RecordID: "t3", Scout: "beta", Annotation: first},
		schema.ScoutRecord{RecordID: "t1", Scout: "beta", Annotation: first})

	s, err := LoadScouts([]string{pathA, pathB})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, s.IDs())

	t1 := s.Records("t1")
	require.Len(t, t1, 2)
	assert.Equal(t, "alpha", t1[0].Scout)
	assert.Equal(t, "first", t1[0].Description)
	assert.Equal(t, "beta", t1[1].Scout)
	assert.Equal(t, "alpha-tagged", s.Records("t2")[0].Scout)
}

func TestRun_WritesAndIsRerunnable(t *testing.T) {
	dir := t.TempDir()
	scoutPath := filepath.Join(dir, "index_a.jsonl")
	outPath := filepath.Join(dir, "consensus.jsonl")
	writeStore(t, scoutPath,
		schema.ScoutRecord{RecordID: "t1", Scout: "a", Annotation: baseAnnotation()},
		schema.ScoutRecord{RecordID: "t2", Scout: "a", Annotation: baseAnnotation()},
	)
	scouts, err := LoadScouts([]string{scoutPath})
	require.NoError(t, err)

	run := func() (Summary, *stubReasoner) {
		ledger, err := store.Load(outPath)
		require.NoError(t, err)
		out, err := store.OpenAppender(outPath)
		require.NoError(t, err)
		defer out.Close()
		r := &stubReasoner{replies: []string{reply(t, baseAnnotation())}}
		j := New(testConfig(), Deps{
			Reasoner: r,
			Scorer:   verifier.New(verifier.DefaultWeights()),
			Output:   out,
			Ledger:   ledger,
		})
		sum, err := j.Run(context.Background(), scouts)
		require.NoError(t, err)
		return sum, r
	}

	sum, r := run()
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 6, r.calls)

	sum, r = run()
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 0, sum.Succeeded)
	assert.Equal(t, 0, r.calls)

	rows, skipped, err := store.ReadAll[schema.ConsensusRecord](outPath)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Len(t, rows, 2)
}

func TestRun_NoSurvivorsCountsFailed(t *testing.T) {
	scoutPath := filepath.Join(t.TempDir(), "index_a.jsonl")
	writeStore(t, scoutPath, schema.ScoutRecord{RecordID: "t1", Scout: "a", Annotation: baseAnnotation()})
	scouts, err := LoadScouts([]string{scoutPath})
	require.NoError(t, err)

	out := &memStore{}
	j := New(testConfig(), Deps{
		Reasoner: &stubReasoner{replies: []string{"nothing"}},
		Scorer:   descScorer{},
		Output:   out,
	})
	sum, err := j.Run(context.Background(), scouts)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Error(t, sum.LastError)
	assert.Empty(t, out.rows)
}

func TestRun_Cancelled(t *testing.T) {
	scoutPath := filepath.Join(t.TempDir(), "index_a.jsonl")
	writeStore(t, scoutPath, schema.ScoutRecord{RecordID: "t1", Scout: "a", Annotation: baseAnnotation()})
	scouts, err := LoadScouts([]string{scoutPath})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := &memStore{}
	j := New(testConfig(), Deps{Reasoner: &stubReasoner{replies: []string{"x"}}, Scorer: descScorer{}, Output: out})
	_, err = j.Run(ctx, scouts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.rows)
}

func TestLoadScouts_MissingFile(t *testing.T) {
	s, err := LoadScouts([]string{filepath.Join(t.TempDir(), "absent.jsonl")})
	require.NoError(t, err)
	assert.Empty(t, s.IDs())
}

// #endregion run-tests
