// Package classifier implements the fixed-topology feedforward neural
// network classifiers dispatched by name in a Pattern: 32 MFCC inputs, one
// or two hidden layers, a single sigmoid output, trained by batched online
// backpropagation with momentum.
//
// Topologies are looked up through a compile-time registry keyed by the
// exact name strings written into a Pattern, rather than the dynamic
// single-inheritance dispatch the C implementation used — the set of
// topologies is small and closed, so a tagged lookup removes the need for
// a reference-counted object runtime.
package classifier

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sdroege/whistler"
	"github.com/sdroege/whistler/pattern"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

const numInputs = 32
const momentum = 0.25

// defaultSeed is used by New so that unit tests exercising the exported
// constructor (rather than NewSeeded) still get reproducible weights.
const defaultSeed = 1

// topologyDef describes a registered fixed topology: the hidden layer
// sizes (the final output layer of size 1 is implicit) and its learning
// rate, which spec.md fixes per topology rather than exposing as a
// parameter.
type topologyDef struct {
	hiddenSizes  []int
	learningRate float64
}

var registry = map[string]topologyDef{
	"WhsNNClassifier_32_16_1":    {hiddenSizes: []int{16}, learningRate: 1e-4},
	"WhsNNClassifier_32_32_1":    {hiddenSizes: []int{32}, learningRate: 1e-4},
	"WhsNNClassifier_32_32_32_1": {hiddenSizes: []int{32, 32}, learningRate: 1e-3},
}

// RegisterTopology adds a custom fixed topology to the registry, for
// importers that need a classifier shape beyond the three spec.md defines.
// Registering a name that is already present, including one of the three
// built-in names, replaces its entry.
func RegisterTopology(name string, hiddenSizes []int, learningRate float64) {
	sizes := make([]int, len(hiddenSizes))
	copy(sizes, hiddenSizes)
	registry[name] = topologyDef{hiddenSizes: sizes, learningRate: learningRate}
}

// layer holds one fully-connected sigmoid layer's contiguous weight buffer
// (neuron-major: weights[n*(inputs+1)] is the bias, weights[n*(inputs+1)+1+i]
// the weight for input i) plus the per-neuron inputs and output cached
// during Forward for use by a subsequent backward pass.
type layer struct {
	neurons int
	inputs  int
	weights []float64
	x       []float64 // neurons*inputs, last forward pass's inputs
	o       []float64 // neurons, last forward pass's outputs
}

func newLayer(neurons, inputs int) layer {
	return layer{
		neurons: neurons,
		inputs:  inputs,
		weights: make([]float64, neurons*(inputs+1)),
		x:       make([]float64, neurons*inputs),
		o:       make([]float64, neurons),
	}
}

func (l *layer) forward(in []float64) []float64 {
	for n := 0; n < l.neurons; n++ {
		base := n * (l.inputs + 1)
		u := l.weights[base]
		for i := 0; i < l.inputs; i++ {
			u += in[i] * l.weights[base+1+i]
			l.x[n*l.inputs+i] = in[i]
		}
		l.o[n] = sigmoid(u)
	}
	return l.o
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// Classifier is a constructed instance of a registered topology, either
// randomly initialized or reconstructed from a Pattern's serialized
// weights.
type Classifier struct {
	name        string
	def         topologyDef
	layers      []layer
	totalWeight int
}

// New constructs a Classifier for the named topology with weights drawn
// uniformly from [-2, 2] using a fixed default seed. Use NewSeeded for an
// explicit seed (tests should pin one).
func New(name string) (*Classifier, error) {
	return NewSeeded(name, defaultSeed)
}

// NewSeeded constructs a Classifier for the named topology with weights
// drawn uniformly from [-2, 2] using the given PRNG seed.
func NewSeeded(name string, seed uint64) (*Classifier, error) {
	c, err := newTopology(name)
	if err != nil {
		return nil, err
	}

	src := rand.NewSource(seed)
	u := distuv.Uniform{Min: -2.0, Max: 2.0, Src: src}
	for l := range c.layers {
		w := c.layers[l].weights
		for i := range w {
			w[i] = u.Rand()
		}
	}
	return c, nil
}

// NewFromPattern reconstructs a Classifier from a Pattern's serialized
// weights, verifying the pattern's classifier name matches name and that
// its data length matches the topology's expected weight count. Fails with
// whistler.IncompatiblePattern otherwise.
func NewFromPattern(name string, pat *pattern.Pattern) (*Classifier, error) {
	c, err := newTopology(name)
	if err != nil {
		return nil, err
	}

	data, err := pat.ClassifierData(name)
	if err != nil {
		return nil, err
	}
	if len(data) != 4*c.totalWeight {
		return nil, whistler.NewError(whistler.IncompatiblePattern, "classifier.NewFromPattern",
			fmt.Errorf("expected %d bytes of weight data for %q, got %d", 4*c.totalWeight, name, len(data)))
	}

	off := 0
	for l := range c.layers {
		w := c.layers[l].weights
		for i := range w {
			bits := binary.BigEndian.Uint32(data[off : off+4])
			w[i] = float64(math.Float32frombits(bits))
			off += 4
		}
	}
	return c, nil
}

func newTopology(name string) (*Classifier, error) {
	def, ok := registry[name]
	if !ok {
		return nil, whistler.NewError(whistler.Unsupported, "classifier.newTopology", fmt.Errorf("unknown classifier topology %q", name))
	}

	layers := make([]layer, 0, len(def.hiddenSizes)+1)
	inputs := numInputs
	for _, size := range def.hiddenSizes {
		layers = append(layers, newLayer(size, inputs))
		inputs = size
	}
	layers = append(layers, newLayer(1, inputs)) // output layer

	total := 0
	for _, l := range layers {
		total += l.neurons * (l.inputs + 1)
	}

	return &Classifier{name: name, def: def, layers: layers, totalWeight: total}, nil
}

// Name returns the topology name this Classifier was constructed for.
func (c *Classifier) Name() string { return c.name }

// forward runs the full forward pass and returns the single output score.
func (c *Classifier) forward(vec whistler.FeatureVector) float64 {
	in := vec[:]
	for l := range c.layers {
		in = c.layers[l].forward(in)
	}
	return in[0]
}

// Process computes the classification score in (0,1) for a feature vector.
func (c *Classifier) Process(vec whistler.FeatureVector) float64 {
	return c.forward(vec)
}

// Learn runs batched online backpropagation with momentum over values
// (skipping any with a negative label) until overall accuracy reaches
// targetRate, then serializes the resulting weights into a new Pattern.
// There is no iteration cap; the caller controls convergence via
// targetRate. minFreq, maxFreq and sampleRate are stamped into the
// returned Pattern unchanged (Learner is the usual caller and owns that
// metadata).
func (c *Classifier) Learn(values []whistler.ResultValue, targetRate float64, minFreq, maxFreq, sampleRate uint32) (*pattern.Pattern, error) {
	labeled := make([]whistler.ResultValue, 0, len(values))
	for _, v := range values {
		if v.Label >= 0 {
			labeled = append(labeled, v)
		}
	}
	if len(labeled) == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "Classifier.Learn", fmt.Errorf("no labeled samples to train on"))
	}

	prevDelta := make([][]float64, len(c.layers))
	for l := range c.layers {
		prevDelta[l] = make([]float64, len(c.layers[l].weights))
	}

	rate := c.def.learningRate
	deltas := make([][]float64, len(c.layers))
	for l := range c.layers {
		deltas[l] = make([]float64, c.layers[l].neurons)
	}

	for {
		for _, v := range labeled {
			c.forward(v.Vec)
			target := float64(v.Label)

			outIdx := len(c.layers) - 1
			o := c.layers[outIdx].o[0]
			deltas[outIdx][0] = o * (1 - o) * (target - o)

			for l := outIdx - 1; l >= 0; l-- {
				next := &c.layers[l+1]
				for n := 0; n < c.layers[l].neurons; n++ {
					var sum float64
					for k := 0; k < next.neurons; k++ {
						sum += next.weights[k*(next.inputs+1)+1+n] * deltas[l+1][k]
					}
					on := c.layers[l].o[n]
					deltas[l][n] = on * (1 - on) * sum
				}
			}

			for l := range c.layers {
				ly := &c.layers[l]
				for n := 0; n < ly.neurons; n++ {
					base := n * (ly.inputs + 1)
					d := rate*deltas[l][n] + momentum*prevDelta[l][base]
					ly.weights[base] += d
					prevDelta[l][base] = d
					for i := 0; i < ly.inputs; i++ {
						wd := rate*deltas[l][n]*ly.x[n*ly.inputs+i] + momentum*prevDelta[l][base+1+i]
						ly.weights[base+1+i] += wd
						prevDelta[l][base+1+i] = wd
					}
				}
			}
		}

		correct := 0
		for _, v := range labeled {
			out := c.forward(v.Vec)
			if (v.Label == 0 && out < 0.5) || (v.Label == 1 && out >= 0.5) {
				correct++
			}
		}
		if float64(correct)/float64(len(labeled)) >= targetRate {
			break
		}
	}

	data := make([]byte, 4*c.totalWeight)
	off := 0
	for l := range c.layers {
		for _, w := range c.layers[l].weights {
			binary.BigEndian.PutUint32(data[off:off+4], math.Float32bits(float32(w)))
			off += 4
		}
	}

	return pattern.New(c.name, minFreq, maxFreq, sampleRate, data), nil
}
