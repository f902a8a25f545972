package bridge

import "testing"

func approxEqual(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}

func TestScore_ZeroFeeZeroTimeAuditedNoExploit(t *testing.T) {
	got := Score(0.0, 0, true, false, DefaultScoringConfig)
	want := 0.94 // 0.4*1.0 + 0.4*1.0 + 0.2*0.7
	if !approxEqual(got, want) {
		t.Errorf("Score() = %v, want %v", got, want)
	}
}

func TestScore_ClampsAtThresholds(t *testing.T) {
	got := Score(1.0, 10000, false, true, DefaultScoringConfig)
	if got != 0 {
		t.Errorf("Score() at/over both ceilings with exploit = %v, want 0", got)
	}
}

func TestFeeScore_EdgeCases(t *testing.T) {
	if v := FeeScore(0, DefaultScoringConfig); v != 1 {
		t.Errorf("FeeScore(0) = %v, want 1", v)
	}
	if v := FeeScore(-1, DefaultScoringConfig); v != 1 {
		t.Errorf("FeeScore(negative) = %v, want 1", v)
	}
	if v := FeeScore(0.01, DefaultScoringConfig); v != 0 {
		t.Errorf("FeeScore(at ceiling) = %v, want 0", v)
	}
}

func TestTimeScore_EdgeCases(t *testing.T) {
	if v := TimeScore(0, DefaultScoringConfig); v != 1 {
		t.Errorf("TimeScore(0) = %v, want 1", v)
	}
	if v := TimeScore(3600, DefaultScoringConfig); v != 0 {
		t.Errorf("TimeScore(at ceiling) = %v, want 0", v)
	}
}

func TestSecurityScore(t *testing.T) {
	cases := []struct {
		hasAudit, hasExploit bool
		want                 float64
	}{
		{false, false, 0.5},
		{true, false, 0.7},
		{false, true, 0.0},
		{true, true, 0.2},
	}
	for _, c := range cases {
		got := SecurityScore(c.hasAudit, c.hasExploit, DefaultScoringConfig)
		if !approxEqual(got, c.want) {
			t.Errorf("SecurityScore(%v, %v) = %v, want %v", c.hasAudit, c.hasExploit, got, c.want)
		}
	}
}

func TestBuildScoredRoute_MinimumOutputRespectsSlippage(t *testing.T) {
	quote := NormalizedQuote{Bridge: "across", FeeInToken: 1, EstTimeSeconds: 120}
	route := BuildScoredRoute(quote, 100, 50, SecurityMetadata{}, DefaultScoringConfig) // 50bps = 0.5%

	wantExpected := 99.0
	if !approxEqual(route.Output.Expected, wantExpected) {
		t.Errorf("Output.Expected = %v, want %v", route.Output.Expected, wantExpected)
	}
	wantMinimum := wantExpected * 0.995
	if !approxEqual(route.Output.Minimum, wantMinimum) {
		t.Errorf("Output.Minimum = %v, want %v", route.Output.Minimum, wantMinimum)
	}
	if route.Score < 0 || route.Score > 1 {
		t.Errorf("Score = %v, want in [0,1]", route.Score)
	}
}

func TestBuildScoredRoute_EstimatedMetadataMeansDegraded(t *testing.T) {
	meta := []byte(`{"estimated":true}`)
	quote := NormalizedQuote{Bridge: "hop", FeeInToken: 0.5, EstTimeSeconds: 300, Metadata: meta}
	route := BuildScoredRoute(quote, 100, 50, SecurityMetadata{}, DefaultScoringConfig)

	if route.Status != StatusDegraded {
		t.Errorf("Status = %v, want %v", route.Status, StatusDegraded)
	}
}

func TestCategorizeTiming(t *testing.T) {
	cases := []struct {
		seconds uint64
		want    TimingCategory
	}{
		{60, TimingFast},
		{120, TimingFast},
		{121, TimingMedium},
		{600, TimingMedium},
		{601, TimingSlow},
	}
	for _, c := range cases {
		if got := categorizeTiming(c.seconds); got != c.want {
			t.Errorf("categorizeTiming(%d) = %v, want %v", c.seconds, got, c.want)
		}
	}
}

func TestCategorizeSecurity(t *testing.T) {
	cases := []struct {
		score float64
		want  SecurityLevel
	}{
		{0.9, SecurityHigh},
		{0.7, SecurityHigh},
		{0.5, SecurityMedium},
		{0.4, SecurityMedium},
		{0.2, SecurityLow},
	}
	for _, c := range cases {
		if got := categorizeSecurity(c.score); got != c.want {
			t.Errorf("categorizeSecurity(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}
