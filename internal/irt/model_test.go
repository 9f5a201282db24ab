package irt

import (
	"math"
	"testing"
)

func TestProb_ReducesTo2PL(t *testing.T) {
	p := Params{A: 1, B: 0, C: 0, D: 1}
	if got := p.Prob(0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Prob(0) = %v, want 0.5", got)
	}
	if got := p.Prob(1); math.Abs(got-1/(1+math.Exp(-1))) > 1e-12 {
		t.Errorf("Prob(1) = %v", got)
	}
}

func TestProb_Asymptotes(t *testing.T) {
	p := Params{A: 1.2, B: 0.3, C: 0.2, D: 0.95}
	if got := p.Prob(-50); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("lower asymptote = %v, want 0.2", got)
	}
	if got := p.Prob(50); math.Abs(got-0.95) > 1e-9 {
		t.Errorf("upper asymptote = %v, want 0.95", got)
	}
}

func TestDerivative_MatchesFiniteDifference(t *testing.T) {
	p := Params{A: 1.7, B: -0.4, C: 0.15, D: 0.98}
	const h = 1e-5
	for _, theta := range []float64{-3, -1, 0, 0.5, 2.5} {
		numeric := (p.Prob(theta+h) - p.Prob(theta-h)) / (2 * h)
		if got := p.Derivative(theta); math.Abs(got-numeric) > 1e-7 {
			t.Errorf("Derivative(%v) = %v, finite difference %v", theta, got, numeric)
		}
		numeric2 := (p.Derivative(theta+h) - p.Derivative(theta-h)) / (2 * h)
		if got := p.SecondDerivative(theta); math.Abs(got-numeric2) > 1e-6 {
			t.Errorf("SecondDerivative(%v) = %v, finite difference %v", theta, got, numeric2)
		}
	}
}

func TestInformation_Scenario(t *testing.T) {
	a := Params{A: 1, B: 0, C: 0, D: 1}
	b := Params{A: 1.5, B: 1, C: 0, D: 1}

	if got := a.Information(0); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("I_A(0) = %v, want 0.25", got)
	}
	// 2PL information is a²·P·(1−P).
	s := 1 / (1 + math.Exp(1.5))
	want := 2.25 * s * (1 - s)
	if got := b.Information(0); math.Abs(got-want) > 1e-9 {
		t.Errorf("I_B(0) = %v, want %v", got, want)
	}
	if b.Information(0) <= a.Information(0) {
		t.Error("expected item B to be more informative at theta 0")
	}
}

func TestInformation_FiniteAtExtremes(t *testing.T) {
	p := Params{A: 4, B: 0, C: 0, D: 1}
	for _, theta := range []float64{-1e6, -40, 40, 1e6} {
		got := p.Information(theta)
		if math.IsNaN(got) || math.IsInf(got, 0) || got < 0 {
			t.Errorf("Information(%v) = %v, want finite non-negative", theta, got)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		wantErr bool
	}{
		{"3PL", Params{A: 1, B: 0, C: 0.2, D: 1}, false},
		{"4PL", Params{A: 0.8, B: 1, C: 0.1, D: 0.9}, false},
		{"zero a", Params{A: 0, B: 0, C: 0, D: 1}, true},
		{"negative a", Params{A: -1, B: 0, C: 0, D: 1}, true},
		{"c of one", Params{A: 1, B: 0, C: 1, D: 1}, true},
		{"zero d", Params{A: 1, B: 0, C: 0, D: 0}, true},
		{"d above one", Params{A: 1, B: 0, C: 0, D: 1.1}, true},
		{"c above d", Params{A: 1, B: 0, C: 0.6, D: 0.5}, true},
		{"nan b", Params{A: 1, B: math.NaN(), C: 0, D: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStandardError(t *testing.T) {
	if got := StandardError(0, 1.2); got != 1.2 {
		t.Errorf("StandardError(0) = %v, want prior 1.2", got)
	}
	if got := StandardError(4, 1.2); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("StandardError(4) = %v, want 0.5", got)
	}
}

func TestStandardError_NonIncreasingWithMoreItems(t *testing.T) {
	items := []Item{
		{ID: "i1", Params: Params{A: 1, B: -1, C: 0.2, D: 1}},
		{ID: "i2", Params: Params{A: 1.4, B: 0, C: 0, D: 1}},
		{ID: "i3", Params: Params{A: 0.6, B: 2, C: 0.1, D: 0.95}},
		{ID: "i4", Params: Params{A: 2, B: 0.5, C: 0.25, D: 1}},
	}
	for _, theta := range []float64{-2, 0, 1.3} {
		prev := math.Inf(1)
		for n := 1; n <= len(items); n++ {
			se := StandardError(TestInformation(items[:n], theta), 1)
			if se > prev {
				t.Errorf("theta=%v: SE rose from %v to %v after item %d", theta, prev, se, n)
			}
			prev = se
		}
	}
}
