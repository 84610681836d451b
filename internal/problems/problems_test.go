package problems

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"phylon/internal/evo"
)

func TestBuiltinsResolveAndEvaluate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, info := range List() {
		b, err := Resolve(info.Name, Options{})
		if err != nil {
			t.Fatalf("resolve %s: %v", info.Name, err)
		}
		if b.Name != info.Name || b.Description == "" {
			t.Fatalf("%s: unexpected metadata %+v", info.Name, b)
		}
		g := b.Problem.Encode(rng)
		if !g.IsValid() {
			t.Fatalf("%s: encoded invalid genotype", info.Name)
		}
		score, err := b.Problem.Eval(g)
		if err != nil {
			t.Fatalf("%s: eval: %v", info.Name, err)
		}
		if err := b.Objective.Validate(score); err != nil {
			t.Fatalf("%s: score arity: %v", info.Name, err)
		}
		if _, err := evo.NewPipeline(b.Alterers...); err != nil {
			t.Fatalf("%s: default alterers: %v", info.Name, err)
		}
		if b.Format(b.Problem.Decode(g)) == "" {
			t.Fatalf("%s: empty formatted value", info.Name)
		}
	}
}

func TestResolveNormalizesAliases(t *testing.T) {
	for alias, want := range map[string]string{
		"One_Max":  "onemax",
		"ZDT-1":    "zdt1",
		" weasel ": "target-string",
		"sum_min":  "sum-min",
	} {
		if got := Normalize(alias); got != want {
			t.Fatalf("Normalize(%q)=%q want %q", alias, got, want)
		}
	}
	if _, err := Resolve("nope", Options{}); !errors.Is(err, ErrProblemNotFound) {
		t.Fatalf("expected ErrProblemNotFound, got %v", err)
	}
}

func TestResolveRejectsBadDimensions(t *testing.T) {
	if _, err := Resolve("zdt1", Options{Dimensions: 1}); err == nil {
		t.Fatal("expected error for one-dimensional zdt1")
	}
	if _, err := Resolve("target-string", Options{Dimensions: 3}); err == nil {
		t.Fatal("expected error for resized target string")
	}
	if _, err := Resolve("sphere", Options{Dimensions: -1}); err == nil {
		t.Fatal("expected error for negative dimensions")
	}
	b, err := Resolve("sphere", Options{Dimensions: 4})
	if err != nil {
		t.Fatalf("resolve sphere: %v", err)
	}
	if got := b.Problem.Encode(rand.New(rand.NewSource(2))).GeneCount(); got != 4 {
		t.Fatalf("expected 4 genes, got %d", got)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Cleanup(func() {
		resetRegistryForTests()
		registerBuiltins()
	})
	if err := Register("onemax", "again", newOneMax); !errors.Is(err, ErrProblemExists) {
		t.Fatalf("expected ErrProblemExists, got %v", err)
	}
	if err := Register("", "blank", newOneMax); err == nil {
		t.Fatal("expected error for blank name")
	}
	if err := Register("custom", "no factory", nil); err == nil {
		t.Fatal("expected error for nil factory")
	}
}

func TestBenchmarkFunctionsAtKnownPoints(t *testing.T) {
	if got := rastrigin([]float64{0, 0, 0}); got != 0 {
		t.Fatalf("rastrigin optimum: %f", got)
	}
	if got := sphere([]float64{1, 2}); got != 5 {
		t.Fatalf("sphere: %f", got)
	}
	f := zdt1([]float64{0.25, 0, 0})
	if math.Abs(f[0]-0.25) > 1e-12 || math.Abs(f[1]-0.5) > 1e-12 {
		t.Fatalf("zdt1 on the true front: %v", f)
	}
	d := dtlz2([]float64{0.3, 0.7, 0.5, 0.5})
	norm := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
	if math.Abs(norm-1) > 1e-12 {
		t.Fatalf("dtlz2 front point should lie on the unit sphere, |f|^2=%f", norm)
	}
	cities := circleCities(4)
	if got, want := tourLength(cities), 4*math.Sqrt2; math.Abs(got-want) > 1e-12 {
		t.Fatalf("square tour length %f want %f", got, want)
	}
}

func TestKnapsackPenalizesOverweight(t *testing.T) {
	b, err := Resolve("knapsack", Options{Dimensions: 8})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	g := b.Problem.Encode(rand.New(rand.NewSource(3)))
	packed := g.Chromosome(0)
	for i := 0; i < packed.Len(); i++ {
		packed = packed.WithGene(i, packed.Gene(i).WithAllele(true))
	}
	score, err := b.Problem.Eval(g.WithChromosome(0, packed))
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if score.Float64() >= 0 {
		t.Fatalf("packing every item must exceed capacity, got %f", score.Float64())
	}
}

func TestOneMaxImprovesUnderEngine(t *testing.T) {
	b, err := Resolve("onemax", Options{Dimensions: 24})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	engine, err := evo.New(evo.Config[any]{
		Problem:        b.Problem,
		PopulationSize: 40,
		Objective:      b.Objective,
		Alterers:       b.Alterers,
		Seed:           11,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	first, err := engine.Next(context.Background())
	if err != nil {
		t.Fatalf("first epoch: %v", err)
	}
	last, err := engine.Run(context.Background(), evo.Until[any](evo.UntilGeneration(30)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if last.Best.Score.Float64() <= first.Best.Score.Float64() {
		t.Fatalf("expected improvement: first=%v last=%v", first.Best.Score, last.Best.Score)
	}
}
